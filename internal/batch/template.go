package batch

import (
	"fmt"
	"io"
	"os"
	"strings"

	"heatbatch/internal/model"
	"heatbatch/internal/registry"
)

// WriteTemplate writes a commented, empty batch file documenting every column.
func WriteTemplate(w io.Writer, reg *registry.Registry) error {
	if reg == nil {
		reg = registry.Default()
	}
	header := strings.Join(model.Header, ", ")

	var b strings.Builder
	b.WriteString("#HEAT batchFile\n")
	b.WriteString("#For use when running HEAT in terminal / batch mode.  Each line is a new entry.\n")
	b.WriteString("#\n")
	b.WriteString("# The first non-comment line of every batchFile must be:\n")
	fmt.Fprintf(&b, "# %s\n", header)
	b.WriteString("#\n")
	b.WriteString("#===Column variables are defined as follows\n")
	fmt.Fprintf(&b, "# MachFlag: machine specific flag. One of: %s\n", strings.Join(reg.Machines, ", "))
	b.WriteString("#\n")
	b.WriteString("# Tag:  label for the simulation. Each tag is an independent run. For time\n")
	b.WriteString("#       varying discharges repeat the tag on several lines, one per timestep.\n")
	b.WriteString("#\n")
	b.WriteString("# Shot: pulse number, a non-negative integer. Only the first line of a tag counts.\n")
	b.WriteString("#\n")
	b.WriteString("# TimeStep: time in seconds that the GEQDSK on this line corresponds to.\n")
	b.WriteString("#\n")
	b.WriteString("# GEQDSK: magnetic equilibrium file for this timestep.\n")
	b.WriteString("#\n")
	b.WriteString("# CAD: CAD file for the tag. Only the first line of a tag counts.\n")
	b.WriteString("#\n")
	b.WriteString("# PFC: PFC file for the tag. Only the first line of a tag counts.\n")
	b.WriteString("#\n")
	b.WriteString("# Input: input file, re-read at every timestep.\n")
	b.WriteString("#\n")
	b.WriteString("# Output: what to calculate. Only the first line of a tag counts. Options are:\n")
	for _, o := range reg.Outputs {
		fmt.Fprintf(&b, "#         -%-8s %s\n", o.Tag, o.Description)
	}
	b.WriteString("#       for multiple outputs, separate options with : (ie hfOpt:psiN:T)\n")
	b.WriteString("#\n")
	b.WriteString("# Referenced files live next to the batch file, under a directory named\n")
	b.WriteString("# after the machine:\n")
	b.WriteString("# <path>/batchFile.dat\n")
	b.WriteString("# <path>/MachFlag/GEQDSK\n")
	b.WriteString("# <path>/MachFlag/CAD\n")
	b.WriteString("# <path>/MachFlag/PFC\n")
	b.WriteString("# <path>/MachFlag/Input\n")
	b.WriteString("#\n")
	b.WriteString("#  Example line for an NSTX-U run for pulse 204118 timestep 4ms:\n")
	b.WriteString("#nstx, run1, 204118, 0.004, geqdsk.00004, IBDH_2tiles.step, PFCs_run1.csv, NSTXU_input.csv, B:hfOpt\n")
	b.WriteString("#\n")
	b.WriteString(header + "\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// SaveTemplate writes the template to path, refusing to overwrite an existing file.
func SaveTemplate(path string, reg *registry.Registry) error {
	f, err := os.OpenFile(model.ExpandTilde(path), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	if err := WriteTemplate(f, reg); err != nil {
		f.Close()
		return fmt.Errorf("write template: %w", err)
	}
	return f.Close()
}

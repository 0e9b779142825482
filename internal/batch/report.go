package batch

import (
	"fmt"
	"strconv"
	"strings"

	"heatbatch/internal/model"
	"heatbatch/internal/registry"
)

// GenerateReport renders a parsed batch file as plain text. parseErr is the
// error Parse returned, if any; sched may be nil when parsing stopped early.
func GenerateReport(sched *model.Schedule, parseErr error, reg *registry.Registry, verbose bool) string {
	if reg == nil {
		reg = registry.Default()
	}
	var b strings.Builder
	rule := strings.Repeat("=", 70)

	b.WriteString(rule + "\n")
	b.WriteString("HEAT BATCH REPORT\n")
	b.WriteString(rule + "\n")
	if sched != nil && sched.Source != "" {
		fmt.Fprintf(&b, "Batch file: %s\n", sched.Source)
	}
	if sched != nil {
		fmt.Fprintf(&b, "Runs: %d   Timesteps: %d\n", len(sched.Runs), sched.TimestepCount())
	}
	b.WriteString("\n")

	if sched != nil {
		for _, run := range sched.Runs {
			writeRun(&b, run, reg, verbose)
		}
	}

	diags := Diagnostics(parseErr)
	if sched != nil {
		diags = append(diags, sched.Warnings...)
	}
	if len(diags) > 0 {
		b.WriteString(strings.Repeat("-", 70) + "\n")
		b.WriteString("DIAGNOSTICS\n")
		b.WriteString(strings.Repeat("-", 70) + "\n")
		for _, d := range diags {
			icon := model.IconWarning
			if d.Severity == model.SeverityError {
				icon = model.IconError
			}
			if d.Line > 0 {
				fmt.Fprintf(&b, "%s line %d: %s\n", icon, d.Line, d.Message)
			} else {
				fmt.Fprintf(&b, "%s %s\n", icon, d.Message)
			}
			if verbose && d.Raw != "" {
				fmt.Fprintf(&b, "    > %s\n", d.Raw)
			}
		}
	}
	return b.String()
}

func writeRun(b *strings.Builder, run model.RunDescriptor, reg *registry.Registry, verbose bool) {
	fmt.Fprintf(b, "%s %s  [%s, shot %d]\n", model.IconRun, run.Tag, run.Machine, run.Shot)
	fmt.Fprintf(b, "    CAD:     %s\n", run.CAD)
	fmt.Fprintf(b, "    PFC:     %s\n", run.PFC)
	fmt.Fprintf(b, "    Outputs: %s\n", strings.Join(run.Outputs, ", "))
	if verbose {
		for _, o := range run.Outputs {
			fmt.Fprintf(b, "             %-7s %s\n", o, reg.Describe(o))
		}
	}
	fmt.Fprintf(b, "    Timesteps (%d):\n", len(run.Entries))
	for _, ts := range run.Timesteps() {
		if verbose {
			fmt.Fprintf(b, "      %s t=%-12s geqdsk=%s input=%s (line %d)\n",
				model.IconTimestep, FormatSeconds(ts.Time), ts.GEQDSK, ts.Input, ts.Line)
		} else {
			fmt.Fprintf(b, "      %s t=%-12s geqdsk=%s input=%s\n",
				model.IconTimestep, FormatSeconds(ts.Time), ts.GEQDSK, ts.Input)
		}
	}
	b.WriteString("\n")
}

// FormatSeconds prints a timestep with the shortest exact representation.
func FormatSeconds(t float64) string {
	return strconv.FormatFloat(t, 'f', -1, 64) + "s"
}

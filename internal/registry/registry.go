// Package registry holds the machine tags and output kinds a batch file may use.
// The sets are data, not code: they can be replaced from a YAML file to add a
// machine or an output kind without rebuilding.
package registry

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// OutputKind is one value accepted in the Output column.
type OutputKind struct {
	Tag         string `yaml:"tag"`
	Description string `yaml:"description"`
}

// Registry is the set of recognized machines and output kinds.
type Registry struct {
	Machines []string     `yaml:"machines"`
	Outputs  []OutputKind `yaml:"outputs"`
}

var defaultMachines = []string{"d3d", "nstx", "st40", "step", "sparc", "west", "kstar"}

var defaultOutputs = []OutputKind{
	{Tag: "hfOpt", Description: "optical heat flux point cloud"},
	{Tag: "hfGyro", Description: "gyro orbit heat flux point cloud"},
	{Tag: "hfRad", Description: "radiated power heat flux point cloud"},
	{Tag: "hfFil", Description: "filament heat flux point cloud"},
	{Tag: "B", Description: "magnetic field glyph cloud"},
	{Tag: "psiN", Description: "normalized poloidal flux point cloud"},
	{Tag: "pwrDir", Description: "power direction point cloud"},
	{Tag: "bdotn", Description: "b·n point cloud"},
	{Tag: "norm", Description: "normal vector glyph cloud"},
	{Tag: "T", Description: "temperature using OpenFOAM"},
	{Tag: "elmer", Description: "FEM analysis using Elmer"},
}

// Default returns the built-in registry.
func Default() *Registry {
	r := &Registry{
		Machines: make([]string, len(defaultMachines)),
		Outputs:  make([]OutputKind, len(defaultOutputs)),
	}
	copy(r.Machines, defaultMachines)
	copy(r.Outputs, defaultOutputs)
	return r
}

// Load reads a registry from a YAML file. A section left out of the file
// keeps the built-in values.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a registry from YAML bytes.
func Parse(data []byte) (*Registry, error) {
	var r Registry
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	def := Default()
	if len(r.Machines) == 0 {
		r.Machines = def.Machines
	}
	if len(r.Outputs) == 0 {
		r.Outputs = def.Outputs
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate rejects empty and duplicate tags.
func (r *Registry) Validate() error {
	var errs []error
	seen := make(map[string]bool)
	for i, m := range r.Machines {
		switch {
		case m == "":
			errs = append(errs, fmt.Errorf("machines[%d]: empty tag", i))
		case seen[m]:
			errs = append(errs, fmt.Errorf("machines[%d]: duplicate tag %q", i, m))
		}
		seen[m] = true
	}
	seen = make(map[string]bool)
	for i, o := range r.Outputs {
		switch {
		case o.Tag == "":
			errs = append(errs, fmt.Errorf("outputs[%d]: empty tag", i))
		case seen[o.Tag]:
			errs = append(errs, fmt.Errorf("outputs[%d]: duplicate tag %q", i, o.Tag))
		}
		seen[o.Tag] = true
	}
	return errors.Join(errs...)
}

// IsMachine reports whether tag is a recognized machine. Matching is case-sensitive.
func (r *Registry) IsMachine(tag string) bool {
	for _, m := range r.Machines {
		if m == tag {
			return true
		}
	}
	return false
}

// IsOutput reports whether tag is a recognized output kind.
func (r *Registry) IsOutput(tag string) bool {
	_, ok := r.lookup(tag)
	return ok
}

// Describe returns the human readable description of an output kind.
func (r *Registry) Describe(tag string) string {
	if o, ok := r.lookup(tag); ok {
		return o.Description
	}
	return ""
}

// OutputTags lists the output kinds in registry order.
func (r *Registry) OutputTags() []string {
	tags := make([]string, len(r.Outputs))
	for i, o := range r.Outputs {
		tags[i] = o.Tag
	}
	return tags
}

func (r *Registry) lookup(tag string) (OutputKind, bool) {
	for _, o := range r.Outputs {
		if o.Tag == tag {
			return o, true
		}
	}
	return OutputKind{}, false
}

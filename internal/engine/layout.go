package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"heatbatch/internal/model"
)

// Layout maps batch file references onto the filesystem.
//
// Inputs resolve as <BatchDir>/<machine>/<file>; each run writes to
// <DataPath>/<machine>_<zero padded shot>_<tag>.
type Layout struct {
	BatchDir   string
	DataPath   string
	ShotDigits int
	TimeDigits int
}

// NewLayout returns a Layout for a parsed schedule.
func NewLayout(sched *model.Schedule, dataPath string, shotDigits, timeDigits int) Layout {
	return Layout{BatchDir: sched.Dir, DataPath: dataPath, ShotDigits: shotDigits, TimeDigits: timeDigits}
}

// Resolve returns the path of a file referenced by a row for machine.
func (l Layout) Resolve(machine, file string) string {
	return filepath.Join(l.BatchDir, machine, file)
}

// OutputDir is where the engine writes results for run.
func (l Layout) OutputDir(run model.RunDescriptor) string {
	return filepath.Join(l.DataPath, fmt.Sprintf("%s_%0*d_%s", run.Machine, l.ShotDigits, run.Shot, run.Tag))
}

// FormatTime prints a timestep with TimeDigits decimals.
func (l Layout) FormatTime(ts float64) string {
	return strconv.FormatFloat(ts, 'f', l.TimeDigits, 64)
}

// StepPlan is one timestep with resolved paths.
type StepPlan struct {
	Line   int
	Time   string
	GEQDSK string
	Input  string
}

// RunPlan is a RunDescriptor with every reference resolved.
type RunPlan struct {
	Run       model.RunDescriptor `json:"-"`
	Tag       string
	Machine   string
	Shot      int
	CAD       string
	PFC       string
	Outputs   []string
	OutputDir string
	Steps     []StepPlan
}

// Plan resolves every run of a schedule.
func Plan(sched *model.Schedule, l Layout) []RunPlan {
	plans := make([]RunPlan, 0, len(sched.Runs))
	for _, run := range sched.Runs {
		plans = append(plans, PlanRun(run, l))
	}
	return plans
}

// PlanRun resolves a single run.
func PlanRun(run model.RunDescriptor, l Layout) RunPlan {
	p := RunPlan{
		Run:       run,
		Tag:       run.Tag,
		Machine:   run.Machine,
		Shot:      run.Shot,
		CAD:       l.Resolve(run.Machine, run.CAD),
		PFC:       l.Resolve(run.Machine, run.PFC),
		Outputs:   run.Outputs,
		OutputDir: l.OutputDir(run),
	}
	for _, ts := range run.Timesteps() {
		p.Steps = append(p.Steps, StepPlan{
			Line:   ts.Line,
			Time:   l.FormatTime(ts.Time),
			GEQDSK: l.Resolve(run.Machine, ts.GEQDSK),
			Input:  l.Resolve(run.Machine, ts.Input),
		})
	}
	return p
}

// Check reports referenced files that do not exist. Each missing path is
// reported once, at the first line that references it.
func Check(plans []RunPlan) []model.Diagnostic {
	var diags []model.Diagnostic
	seen := make(map[string]bool)
	missing := func(line int, kind, path string) {
		if seen[path] {
			return
		}
		seen[path] = true
		if _, err := os.Stat(path); err != nil {
			diags = append(diags, model.Diagnostic{
				Line:     line,
				Severity: model.SeverityError,
				Message:  fmt.Sprintf("%s file %s", kind, missingReason(path, err)),
			})
		}
	}
	for _, p := range plans {
		first := p.Run.FirstLine()
		missing(first, "CAD", p.CAD)
		missing(first, "PFC", p.PFC)
		for _, s := range p.Steps {
			missing(s.Line, "GEQDSK", s.GEQDSK)
			missing(s.Line, "Input", s.Input)
		}
	}
	return diags
}

func missingReason(path string, err error) string {
	if os.IsNotExist(err) {
		return path + " does not exist"
	}
	return err.Error()
}

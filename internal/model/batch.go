package model

// Header is the column sequence every batch file must declare before its first row.
var Header = []string{"MachFlag", "Tag", "Shot", "TimeStep", "GEQDSK", "CAD", "PFC", "Input", "Output"}

// Column positions within a batch row.
const (
	ColMachine = iota
	ColTag
	ColShot
	ColTimeStep
	ColGEQDSK
	ColCAD
	ColPFC
	ColInput
	ColOutput
	NumColumns
)

// BatchEntry represents one data row of a batch file.
type BatchEntry struct {
	Line     int      // Line number in the batch file (1-based)
	Raw      string   // The row as it appeared in the file
	Machine  string   // Machine tag (e.g., nstx)
	RunTag   string   // Groups rows into one logical run
	Shot     int      // Pulse number
	TimeStep float64  // Seconds
	GEQDSK   string   // Equilibrium file for this timestep
	CAD      string   // CAD file (first row of a tag wins)
	PFC      string   // PFC file (first row of a tag wins)
	Input    string   // Input file, re-read per timestep
	Outputs  []string // Output kinds in first-seen order
}

// Timestep is the time-varying slice of a run.
type Timestep struct {
	Line   int
	Time   float64
	GEQDSK string
	Input  string
}

// RunDescriptor is the unit of work handed to the simulation engine.
// Machine, Shot, CAD, PFC and Outputs come from the first row of the tag.
type RunDescriptor struct {
	Machine string
	Tag     string
	Shot    int
	CAD     string
	PFC     string
	Outputs []string
	Entries []BatchEntry // Chronological by timestep
}

// Timesteps returns the per-timestep file references in run order.
func (r RunDescriptor) Timesteps() []Timestep {
	steps := make([]Timestep, len(r.Entries))
	for i, e := range r.Entries {
		steps[i] = Timestep{Line: e.Line, Time: e.TimeStep, GEQDSK: e.GEQDSK, Input: e.Input}
	}
	return steps
}

// HasOutput reports whether the run requests the given output kind.
func (r RunDescriptor) HasOutput(kind string) bool {
	for _, o := range r.Outputs {
		if o == kind {
			return true
		}
	}
	return false
}

// FirstLine is the line of the row that defined the run.
func (r RunDescriptor) FirstLine() int {
	if len(r.Entries) == 0 {
		return 0
	}
	line := r.Entries[0].Line
	for _, e := range r.Entries[1:] {
		if e.Line < line {
			line = e.Line
		}
	}
	return line
}

// Severity classifies a Diagnostic.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Diagnostic is a message tied to a line of the batch file.
type Diagnostic struct {
	Line     int
	Severity Severity
	Message  string
	Raw      string
}

// Schedule is the parsed form of a whole batch file.
type Schedule struct {
	Source   string // Absolute path of the batch file, empty for in-memory input
	Dir      string // Directory that referenced files resolve against
	Runs     []RunDescriptor
	Warnings []Diagnostic
}

// Run looks up a run by tag.
func (s *Schedule) Run(tag string) (RunDescriptor, bool) {
	for _, r := range s.Runs {
		if r.Tag == tag {
			return r, true
		}
	}
	return RunDescriptor{}, false
}

// TimestepCount is the number of rows across all runs.
func (s *Schedule) TimestepCount() int {
	n := 0
	for _, r := range s.Runs {
		n += len(r.Entries)
	}
	return n
}

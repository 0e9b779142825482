package tui

import (
	"heatbatch/internal/batch"
	"heatbatch/internal/model"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// AppModel holds the TUI state.
type AppModel struct {
	// Data
	Path        string
	Parser      *batch.Parser
	Watcher     *batch.Watcher // nil unless --watch
	Schedule    *model.Schedule
	ParseErr    error
	Diagnostics []model.Diagnostic
	Loading     bool
	Err         error

	// UI State
	SelectedIdx int
	WindowSize  tea.WindowSizeMsg

	// Popups
	ShowDiagnostics bool
	DiagScrollY     int
	ShowHelp        bool
	HelpContent     string
	HelpScrollY     int

	// Filter State
	InputMode       bool
	InputBuffer     textinput.Model
	FilteredIndices []int // Indices into Schedule.Runs
	FilterActive    bool

	// Components
	DetailsViewport viewport.Model
}

// InitialModel returns the initial state for browsing the batch file at path.
func InitialModel(path string, parser *batch.Parser, watcher *batch.Watcher) AppModel {
	ti := textinput.New()
	ti.Placeholder = "Run tag..."
	ti.CharLimit = 50
	ti.Width = 20

	return AppModel{
		Path:        path,
		Parser:      parser,
		Watcher:     watcher,
		Loading:     true,
		InputBuffer: ti,
	}
}

// SelectedRun returns the run under the cursor.
func (m AppModel) SelectedRun() (model.RunDescriptor, bool) {
	if m.Schedule == nil || m.SelectedIdx < 0 || m.SelectedIdx >= len(m.FilteredIndices) {
		return model.RunDescriptor{}, false
	}
	return m.Schedule.Runs[m.FilteredIndices[m.SelectedIdx]], true
}

// runDiagnostics returns the diagnostics on lines belonging to run.
func (m AppModel) runDiagnostics(run model.RunDescriptor) []model.Diagnostic {
	lines := make(map[int]bool, len(run.Entries))
	for _, e := range run.Entries {
		lines[e.Line] = true
	}
	var out []model.Diagnostic
	for _, d := range m.Diagnostics {
		if lines[d.Line] {
			out = append(out, d)
		}
	}
	return out
}

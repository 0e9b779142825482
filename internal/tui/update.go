package tui

import (
	"strings"

	"heatbatch/internal/batch"
	"heatbatch/internal/model"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
)

// MsgScheduleReady carries a (re)parse of the batch file.
type MsgScheduleReady batch.Result

// MsgFileChanged carries a re-parse triggered by the file watcher.
type MsgFileChanged batch.Result

// MsgWatchClosed indicates the file watcher stopped delivering results.
type MsgWatchClosed struct{}

// Update handles events.
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.WindowSize = msg
		m.DetailsViewport.Width = msg.Width / 2
		m.DetailsViewport.Height = msg.Height - 8
		if m.DetailsViewport.Height < 1 {
			m.DetailsViewport.Height = 1
		}
		m.refreshDetails()
		return m, nil

	case MsgScheduleReady:
		m.applyResult(batch.Result(msg))
		return m, nil

	case MsgFileChanged:
		m.applyResult(batch.Result(msg))
		if m.Watcher == nil {
			return m, nil
		}
		return m, WatchCmd(m.Watcher)

	case MsgWatchClosed:
		m.Watcher = nil
		return m, nil

	case tea.KeyMsg:
		if m.InputMode {
			switch msg.Type {
			case tea.KeyEnter:
				m.InputMode = false
				m.InputBuffer.Blur()
				m.applyFilter()
				return m, nil
			case tea.KeyEsc:
				m.clearFilter()
				return m, nil
			}
			m.InputBuffer, cmd = m.InputBuffer.Update(msg)
			m.applyFilter()
			return m, cmd
		}

		if m.ShowHelp {
			switch msg.String() {
			case "esc", "?", "q":
				m.ShowHelp = false
			case "up", "k":
				if m.HelpScrollY > 0 {
					m.HelpScrollY--
				}
			case "down", "j":
				m.HelpScrollY = clampScroll(m.HelpScrollY+1, len(strings.Split(m.HelpContent, "\n")), m.helpContentHeight())
			}
			return m, nil
		}

		if m.ShowDiagnostics {
			switch msg.String() {
			case "esc", "d", "q":
				m.ShowDiagnostics = false
			case "up", "k":
				if m.DiagScrollY > 0 {
					m.DiagScrollY--
				}
			case "down", "j":
				m.DiagScrollY = clampScroll(m.DiagScrollY+1, len(m.diagnosticLines()), m.diagContentHeight())
			}
			return m, nil
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "esc":
			if m.FilterActive {
				m.clearFilter()
			}
		case "up", "k":
			if m.SelectedIdx > 0 {
				m.SelectedIdx--
				m.refreshDetails()
			}
		case "down", "j":
			if m.SelectedIdx < len(m.FilteredIndices)-1 {
				m.SelectedIdx++
				m.refreshDetails()
			}
		case "pgup", "pgdown":
			m.DetailsViewport, cmd = m.DetailsViewport.Update(msg)
			return m, cmd
		case "d":
			m.ShowDiagnostics = true
			m.DiagScrollY = 0
		case "?":
			m.ShowHelp = true
			m.HelpScrollY = 0
			m.HelpContent = renderHelp(m.WindowSize.Width * 80 / 100)
		case "r":
			m.Loading = true
			return m, LoadCmd(m.Path, m.Parser)
		case "/":
			m.InputMode = true
			m.InputBuffer.Focus()
			m.InputBuffer.SetValue("")
			return m, textinput.Blink
		}
	}

	return m, cmd
}

func (m *AppModel) applyResult(res batch.Result) {
	m.Loading = false
	m.Schedule = res.Schedule
	m.ParseErr = res.Err
	m.Err = nil
	m.Diagnostics = batch.Diagnostics(res.Err)
	if res.Schedule != nil {
		m.Diagnostics = append(m.Diagnostics, res.Schedule.Warnings...)
	} else if res.Err != nil && len(m.Diagnostics) == 1 && m.Diagnostics[0].Line == 0 {
		// Not a parse error: the file could not be read at all.
		m.Err = res.Err
	}
	m.applyFilter()
}

func (m *AppModel) clearFilter() {
	m.InputMode = false
	m.InputBuffer.Blur()
	m.InputBuffer.SetValue("")
	m.applyFilter()
}

// applyFilter keeps the runs whose tag contains the filter text.
func (m *AppModel) applyFilter() {
	term := strings.ToLower(strings.TrimSpace(m.InputBuffer.Value()))
	m.FilterActive = term != ""
	m.FilteredIndices = nil
	if m.Schedule != nil {
		for i, run := range m.Schedule.Runs {
			if term == "" || strings.Contains(strings.ToLower(run.Tag), term) {
				m.FilteredIndices = append(m.FilteredIndices, i)
			}
		}
	}

	if m.SelectedIdx >= len(m.FilteredIndices) {
		m.SelectedIdx = len(m.FilteredIndices) - 1
	}
	if m.SelectedIdx < 0 {
		m.SelectedIdx = 0
	}
	m.refreshDetails()
}

func (m *AppModel) refreshDetails() {
	run, ok := m.SelectedRun()
	if !ok {
		m.DetailsViewport.SetContent("")
		return
	}
	m.DetailsViewport.SetContent(m.renderDetails(run))
	m.DetailsViewport.GotoTop()
}

func renderHelp(width int) string {
	if width < 20 {
		width = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width-4),
	)
	if err != nil {
		return model.Help()
	}
	out, err := r.Render(model.Help())
	if err != nil {
		return model.Help()
	}
	return out
}

// LoadCmd parses the batch file in the background.
func LoadCmd(path string, parser *batch.Parser) tea.Cmd {
	return func() tea.Msg {
		sched, err := parser.Parse(path)
		return MsgScheduleReady{Schedule: sched, Err: err}
	}
}

// WatchCmd waits for the next re-parse from the watcher.
func WatchCmd(w *batch.Watcher) tea.Cmd {
	return func() tea.Msg {
		res, ok := <-w.Results()
		if !ok {
			return MsgWatchClosed{}
		}
		return MsgFileChanged(res)
	}
}

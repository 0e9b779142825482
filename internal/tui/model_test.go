package tui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heatbatch/internal/batch"
)

const batchText = `# two runs and a conflicting CAD
MachFlag, Tag, Shot, TimeStep, GEQDSK, CAD, PFC, Input, Output
nstx, alpha, 204118, 0.004, g1, A.step, pfc.csv, in.csv, hfOpt
nstx, alpha, 204118, 0.005, g2, B.step, pfc.csv, in.csv, hfOpt
d3d, beta, 1, 1.0, g3, c.step, pfc.csv, in.csv, psiN:T
`

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func loadedModel(t *testing.T, content string) AppModel {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batchFile.dat")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	parser := batch.NewParser(nil)
	m := InitialModel(path, parser, nil)
	assert.True(t, m.Loading)

	msg := LoadCmd(path, parser)()
	next, _ := m.Update(msg)
	next, _ = next.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(AppModel)
}

func TestLoadAndNavigate(t *testing.T) {
	m := loadedModel(t, batchText)
	require.False(t, m.Loading)
	require.NoError(t, m.Err)
	assert.Equal(t, []int{0, 1}, m.FilteredIndices)
	require.Len(t, m.Diagnostics, 1, "one ignored CAD warning")

	run, ok := m.SelectedRun()
	require.True(t, ok)
	assert.Equal(t, "alpha", run.Tag)
	assert.Len(t, m.runDiagnostics(run), 1)

	next, _ := m.Update(keyRunes("j"))
	m = next.(AppModel)
	run, _ = m.SelectedRun()
	assert.Equal(t, "beta", run.Tag)
	assert.Empty(t, m.runDiagnostics(run))

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(AppModel)
	assert.Equal(t, 1, m.SelectedIdx, "cursor stays on the last run")

	next, _ = m.Update(keyRunes("k"))
	m = next.(AppModel)
	assert.Equal(t, 0, m.SelectedIdx)

	view := m.View()
	assert.Contains(t, view, "alpha")
	assert.Contains(t, view, "2 runs, 3 timesteps")
	assert.Contains(t, view, "1 warnings")
}

func TestFilter(t *testing.T) {
	m := loadedModel(t, batchText)

	next, _ := m.Update(keyRunes("/"))
	m = next.(AppModel)
	require.True(t, m.InputMode)

	next, _ = m.Update(keyRunes("bet"))
	m = next.(AppModel)
	assert.Equal(t, []int{1}, m.FilteredIndices)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(AppModel)
	assert.False(t, m.InputMode)
	assert.True(t, m.FilterActive)
	run, _ := m.SelectedRun()
	assert.Equal(t, "beta", run.Tag)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(AppModel)
	assert.False(t, m.FilterActive)
	assert.Equal(t, []int{0, 1}, m.FilteredIndices)
}

func TestDiagnosticsPopup(t *testing.T) {
	m := loadedModel(t, batchText+"xyz, gamma, 1, 0, g, c, p, i, B\n")
	require.Len(t, m.Diagnostics, 2)
	assert.Len(t, m.Schedule.Runs, 2, "invalid run is dropped")

	next, _ := m.Update(keyRunes("d"))
	m = next.(AppModel)
	require.True(t, m.ShowDiagnostics)
	view := m.View()
	assert.Contains(t, view, "UnknownMachineError")
	assert.Contains(t, view, "xyz, gamma")

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, next.(AppModel).ShowDiagnostics)
}

func TestHeaderErrorIsShownAsDiagnostic(t *testing.T) {
	m := loadedModel(t, "MachFlag, Tag\n")
	assert.NoError(t, m.Err)
	assert.Nil(t, m.Schedule)
	require.Len(t, m.Diagnostics, 1)
	assert.True(t, strings.HasPrefix(m.Diagnostics[0].Message, "HeaderError"))
	assert.Contains(t, m.View(), "No runs in this batch file.")
}

func TestUnreadableFile(t *testing.T) {
	m := InitialModel("/nonexistent/batchFile.dat", batch.NewParser(nil), nil)
	next, _ := m.Update(MsgScheduleReady{Err: errors.New("open batch file: no such file")})
	m = next.(AppModel)
	require.Error(t, m.Err)
	assert.Contains(t, m.View(), "no such file")
}

func TestQuit(t *testing.T) {
	m := loadedModel(t, batchText)
	_, cmd := m.Update(keyRunes("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestEscCancelsFilterInput(t *testing.T) {
	m := loadedModel(t, batchText)

	next, _ := m.Update(keyRunes("/"))
	next, _ = next.Update(keyRunes("alp"))
	m = next.(AppModel)
	require.True(t, m.FilterActive)
	assert.Equal(t, []int{0}, m.FilteredIndices)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(AppModel)
	assert.False(t, m.InputMode)
	assert.False(t, m.FilterActive)
	assert.Empty(t, m.InputBuffer.Value())
	assert.Equal(t, []int{0, 1}, m.FilteredIndices)
}

func TestFileChangeReloads(t *testing.T) {
	m := loadedModel(t, batchText)
	w, err := batch.NewWatcher(m.Path, m.Parser)
	require.NoError(t, err)
	t.Cleanup(w.Stop)
	m.Watcher = w

	header := "MachFlag, Tag, Shot, TimeStep, GEQDSK, CAD, PFC, Input, Output\n"
	sched, err := m.Parser.ParseReader("changed", strings.NewReader(header+"west, gamma, 7, 2.5, g, c, p, i, T\n"))
	require.NoError(t, err)

	next, cmd := m.Update(MsgFileChanged{Schedule: sched})
	m = next.(AppModel)
	assert.NotNil(t, cmd, "the watch is re-armed")
	require.Len(t, m.Schedule.Runs, 1)
	assert.Equal(t, []int{0}, m.FilteredIndices)
	assert.Empty(t, m.Diagnostics)
	run, ok := m.SelectedRun()
	require.True(t, ok)
	assert.Equal(t, "gamma", run.Tag)
	assert.Contains(t, m.View(), "gamma")

	next, cmd = m.Update(MsgWatchClosed{})
	m = next.(AppModel)
	assert.Nil(t, m.Watcher)
	assert.Nil(t, cmd)

	_, cmd = m.Update(MsgFileChanged{Schedule: sched})
	assert.Nil(t, cmd, "no watcher left to wait on")
}

func TestWatchCmd(t *testing.T) {
	m := loadedModel(t, batchText)
	w, err := batch.NewWatcher(m.Path, m.Parser)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	msgs := make(chan tea.Msg, 1)
	go func() { msgs <- WatchCmd(w)() }()

	require.NoError(t, os.WriteFile(m.Path, []byte(batchText+"west, gamma, 7, 2.5, g, c, p, i, T\n"), 0o644))
	select {
	case msg := <-msgs:
		changed, ok := msg.(MsgFileChanged)
		require.True(t, ok, "got %T", msg)
		require.NoError(t, changed.Err)
		assert.Len(t, changed.Schedule.Runs, 3)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after write")
	}

	w.Stop()
	assert.Equal(t, MsgWatchClosed{}, WatchCmd(w)())
}

func TestHelpDialog(t *testing.T) {
	m := loadedModel(t, batchText)

	next, _ := m.Update(keyRunes("?"))
	m = next.(AppModel)
	require.True(t, m.ShowHelp)
	require.NotEmpty(t, m.HelpContent)
	assert.Contains(t, ansi.Strip(m.HelpContent), "Batch file")
	assert.Contains(t, ansi.Strip(m.View()), "Batch file")

	next, _ = m.Update(keyRunes("?"))
	assert.False(t, next.(AppModel).ShowHelp)
}

func TestPopupScrollIsClamped(t *testing.T) {
	m := loadedModel(t, batchText)

	next, _ := m.Update(keyRunes("?"))
	m = next.(AppModel)
	maxHelp := max(len(strings.Split(m.HelpContent, "\n"))-m.helpContentHeight(), 0)
	for range maxHelp + 50 {
		next, _ = m.Update(keyRunes("j"))
		m = next.(AppModel)
	}
	assert.Equal(t, maxHelp, m.HelpScrollY)
	if maxHelp > 0 {
		next, _ = m.Update(keyRunes("k"))
		assert.Equal(t, maxHelp-1, next.(AppModel).HelpScrollY, "one key moves the view back")
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	next, _ = next.Update(keyRunes("d"))
	m = next.(AppModel)
	require.True(t, m.ShowDiagnostics)
	for range 20 {
		next, _ = m.Update(keyRunes("j"))
		m = next.(AppModel)
	}
	assert.Equal(t, 0, m.DiagScrollY, "the popup body fits without scrolling")
}

package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"heatbatch/internal/batch"
	"heatbatch/internal/model"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	panelTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	selectedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	normalStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dimStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	labelStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("81")).Bold(true) // Sky Blue/Cyan
	warnStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))           // Orange
	errStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func (m AppModel) View() string {
	if m.Loading {
		return "\n  Reading batch file... please wait.\n"
	}
	if m.Err != nil {
		return fmt.Sprintf("\n  Error: %v\n\n  Press r to retry, q to quit.\n", m.Err)
	}
	if m.ShowHelp {
		return m.renderHelpDialog()
	}
	if m.ShowDiagnostics {
		return m.renderDiagnosticsPopup()
	}

	width := m.WindowSize.Width
	height := m.WindowSize.Height

	// Subtracting 6 for borders and buffer
	netWidth := width - 6
	if netWidth < 20 {
		netWidth = 20
	}
	leftWidth := netWidth / 2
	rightWidth := netWidth - leftWidth

	boxHeight := height - 6
	if boxHeight < 6 {
		boxHeight = 6
	}
	interiorHeight := boxHeight - 2

	// LEFT PANEL: runs
	var leftView strings.Builder
	leftView.WriteString(panelTitleStyle.Render("Runs"))
	leftView.WriteString("\n\n")

	visibleItems := interiorHeight - 2
	if visibleItems < 1 {
		visibleItems = 1
	}
	startIdx := 0
	endIdx := len(m.FilteredIndices)
	if len(m.FilteredIndices) > visibleItems {
		if m.SelectedIdx >= visibleItems/2 {
			startIdx = m.SelectedIdx - visibleItems/2
		}
		if startIdx+visibleItems > len(m.FilteredIndices) {
			startIdx = len(m.FilteredIndices) - visibleItems
		}
		endIdx = startIdx + visibleItems
	}

	if len(m.FilteredIndices) == 0 {
		if m.FilterActive {
			leftView.WriteString(dimStyle.Render("No run matches the filter."))
		} else {
			leftView.WriteString(dimStyle.Render("No runs in this batch file."))
		}
	}

	for i := startIdx; i < endIdx; i++ {
		idx := m.FilteredIndices[i]
		run := m.Schedule.Runs[idx]

		statusIcon := model.IconOK
		if len(m.runDiagnostics(run)) > 0 {
			statusIcon = model.IconWarning
		}
		line := fmt.Sprintf("%2d. %s %s  %s/%d  (%d ts)", idx+1, statusIcon, run.Tag, run.Machine, run.Shot, len(run.Entries))
		if r := []rune(line); len(r) > leftWidth-2 {
			line = string(r[:leftWidth-5]) + "..."
		}

		style := normalStyle
		if i == m.SelectedIdx {
			style = selectedStyle
		}
		leftView.WriteString(style.Render(line))
		leftView.WriteString("\n")
	}

	left := lipgloss.NewStyle().
		Width(leftWidth).
		Height(interiorHeight).
		Border(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("205")).
		Render(strings.TrimSuffix(leftView.String(), "\n"))

	// RIGHT PANEL: details of the selected run
	vp := m.DetailsViewport
	vp.Width = rightWidth
	vp.Height = interiorHeight - 2
	right := lipgloss.NewStyle().
		Width(rightWidth).
		Height(interiorHeight).
		Border(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("63")).
		Render(panelTitleStyle.Render("Details") + "\n\n" + vp.View())

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		lipgloss.JoinHorizontal(lipgloss.Top, left, right),
		m.renderFooter(),
	)
}

func (m AppModel) renderHeader() string {
	name := filepath.Base(m.Path)
	title := titleStyle.Render("heatbatch " + model.Version)

	var summary string
	if m.Schedule != nil {
		summary = fmt.Sprintf(" %s  %d runs, %d timesteps", name, len(m.Schedule.Runs), m.Schedule.TimestepCount())
	} else {
		summary = " " + name
	}

	var nErr, nWarn int
	for _, d := range m.Diagnostics {
		if d.Severity == model.SeverityError {
			nErr++
		} else {
			nWarn++
		}
	}
	if nErr > 0 {
		summary += "  " + errStyle.Render(fmt.Sprintf("%s %d errors", model.IconError, nErr))
	}
	if nWarn > 0 {
		summary += "  " + warnStyle.Render(fmt.Sprintf("%s %d warnings", model.IconWarning, nWarn))
	}
	if m.Watcher != nil {
		summary += dimStyle.Render("  (watching)")
	}
	return title + summary + "\n"
}

func (m AppModel) renderFooter() string {
	if m.InputMode {
		return "Filter: " + m.InputBuffer.View()
	}
	keys := "↑/↓ select • pgup/pgdn scroll • / filter • d diagnostics • r reload • ? help • q quit"
	if m.FilterActive {
		keys = fmt.Sprintf("filter %q (esc clears) • ", m.InputBuffer.Value()) + keys
	}
	return dimStyle.Render(keys)
}

// renderDetails formats one run for the details viewport.
func (m AppModel) renderDetails(run model.RunDescriptor) string {
	var b strings.Builder
	label := func(name, value string) {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-9s", name)) + value + "\n")
	}
	label("Tag", run.Tag)
	label("Machine", run.Machine)
	label("Shot", fmt.Sprint(run.Shot))
	label("CAD", run.CAD)
	label("PFC", run.PFC)

	b.WriteString(labelStyle.Render("Outputs") + "\n")
	for _, o := range run.Outputs {
		desc := ""
		if m.Parser != nil {
			desc = m.Parser.Registry().Describe(o)
		}
		b.WriteString(fmt.Sprintf("  %-7s %s\n", o, dimStyle.Render(desc)))
	}

	b.WriteString(labelStyle.Render(fmt.Sprintf("Timesteps (%d)", len(run.Entries))) + "\n")
	for _, ts := range run.Timesteps() {
		b.WriteString(fmt.Sprintf("  %s %-10s %s\n", model.IconTimestep, batch.FormatSeconds(ts.Time), ts.GEQDSK))
		b.WriteString(dimStyle.Render(fmt.Sprintf("      input %s  (line %d)", ts.Input, ts.Line)) + "\n")
	}

	if diags := m.runDiagnostics(run); len(diags) > 0 {
		b.WriteString("\n" + warnStyle.Render("Warnings") + "\n")
		for _, d := range diags {
			b.WriteString(warnStyle.Render(fmt.Sprintf("  %s line %d: %s", model.IconWarning, d.Line, d.Message)) + "\n")
		}
	}
	return b.String()
}

// diagnosticLines is the body of the diagnostics popup.
func (m AppModel) diagnosticLines() []string {
	var lines []string
	if len(m.Diagnostics) == 0 {
		lines = append(lines, "No problems found.")
	}
	for _, d := range m.Diagnostics {
		style, icon := warnStyle, model.IconWarning
		if d.Severity == model.SeverityError {
			style, icon = errStyle, model.IconError
		}
		if d.Line == 0 {
			lines = append(lines, style.Render(fmt.Sprintf("%s %s", icon, d.Message)), "")
			continue
		}
		lines = append(lines, style.Render(fmt.Sprintf("%s line %d: %s", icon, d.Line, d.Message)))

		ctx := model.GetLineContext(m.Path, d.Line, 1)
		if ctx.ErrorMsg != "" {
			lines = append(lines, dimStyle.Render("    "+ctx.ErrorMsg), "")
			continue
		}
		for _, l := range ctx.Before {
			lines = append(lines, dimStyle.Render(fmt.Sprintf("  %4d | %s", l.Number, l.Text)))
		}
		lines = append(lines, normalStyle.Render(fmt.Sprintf("> %4d | %s", ctx.LineNumber, ctx.Target)))
		for _, l := range ctx.After {
			lines = append(lines, dimStyle.Render(fmt.Sprintf("  %4d | %s", l.Number, l.Text)))
		}
		lines = append(lines, "")
	}
	return lines
}

func (m AppModel) diagContentHeight() int {
	return max(m.WindowSize.Height-6-4, 1)
}

func (m AppModel) helpContentHeight() int {
	return max(m.WindowSize.Height-6, 5) - 2
}

// clampScroll keeps a scroll offset within [0, total-visible].
func clampScroll(y, total, visible int) int {
	return max(min(y, total-visible), 0)
}

func (m AppModel) renderDiagnosticsPopup() string {
	w, h := m.WindowSize.Width, m.WindowSize.Height
	if w < 20 || h < 10 {
		return "Window too small"
	}
	popupWidth := w * 85 / 100
	popupHeight := h - 6

	lines := m.diagnosticLines()
	contentHeight := m.diagContentHeight()
	startY := clampScroll(m.DiagScrollY, len(lines), contentHeight)
	endY := min(startY+contentHeight, len(lines))

	title := titleStyle.Render("Diagnostics")
	footer := dimStyle.Render("\n↑/↓ scroll, 'd'/Esc to close")

	dialog := lipgloss.NewStyle().
		Width(popupWidth).
		Height(popupHeight).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("208")). // Orange
		Padding(0, 1).
		Render(title + "\n\n" + strings.Join(lines[startY:endY], "\n") + footer)

	return lipgloss.Place(w, h, lipgloss.Center, lipgloss.Center, dialog)
}

func (m AppModel) renderHelpDialog() string {
	w, h := m.WindowSize.Width, m.WindowSize.Height
	if w < 20 || h < 10 {
		return "Window too small"
	}

	helpWidth := w * 80 / 100
	if helpWidth < 40 {
		helpWidth = 40
	}
	if helpWidth > w-4 {
		helpWidth = w - 4
	}
	helpHeight := m.helpContentHeight() + 2

	lines := strings.Split(m.HelpContent, "\n")
	contentHeight := m.helpContentHeight()
	startY := clampScroll(m.HelpScrollY, len(lines), contentHeight)
	endY := min(startY+contentHeight, len(lines))

	dialog := lipgloss.NewStyle().
		Width(helpWidth).
		Height(helpHeight).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("63")).
		Padding(0, 1).
		Render(strings.Join(lines[startY:endY], "\n"))

	return lipgloss.Place(w, h, lipgloss.Center, lipgloss.Center, dialog)
}

func (m AppModel) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, LoadCmd(m.Path, m.Parser)}
	if m.Watcher != nil {
		cmds = append(cmds, WatchCmd(m.Watcher))
	}
	return tea.Batch(cmds...)
}

package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"

	"github.com/Dicklesworthstone/dmux/internal/action"
	"github.com/Dicklesworthstone/dmux/internal/state"
	"github.com/Dicklesworthstone/dmux/internal/tui/theme"
)

const (
	slugWidth       = 18
	dialogBoxWidth  = 56
	minDialogInside = 24
)

// glyphSet is the status iconography, with an ASCII fallback for terminals
// that cannot render the symbols.
type glyphSet struct {
	Pointer   string
	Working   string
	Waiting   string
	Idle      string
	Analyzing string
	Unknown   string
	Autopilot string
	Orphan    string
	Bullet    string
}

func currentGlyphs() glyphSet {
	if theme.SupportsUnicode() {
		return glyphSet{
			Pointer:   "❯",
			Working:   "●",
			Waiting:   "◐",
			Idle:      "○",
			Analyzing: "◌",
			Unknown:   "·",
			Autopilot: "⚡",
			Orphan:    "⊘",
			Bullet:    "•",
		}
	}
	return glyphSet{
		Pointer:   ">",
		Working:   "*",
		Waiting:   "?",
		Idle:      "o",
		Analyzing: "~",
		Unknown:   ".",
		Autopilot: "A",
		Orphan:    "x",
		Bullet:    "-",
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.viewHeader())
	b.WriteString("\n")

	if m.showHelp {
		b.WriteString(m.viewHelp())
		return b.String()
	}

	b.WriteString(m.viewPanes())
	if m.dialog.visible() {
		b.WriteString("\n")
		b.WriteString(m.viewDialog())
	}
	b.WriteString("\n")
	b.WriteString(m.viewFooter())
	return b.String()
}

func (m Model) viewHeader() string {
	t := m.theme
	title := m.styles.Title.Render("dmux")
	sep := m.styles.Border.Render(" │ ")
	project := m.styles.Subtitle.Render(m.store.ProjectName())

	count := fmt.Sprintf("%d pane", len(m.panes))
	if len(m.panes) != 1 {
		count += "s"
	}
	line := title + sep + project + sep + m.styles.Dim.Render(count)

	if m.busy {
		note := m.busyNote
		if note == "" {
			note = "Working"
		}
		line += "\n" + m.spinner.View() + " " + lipgloss.NewStyle().Foreground(t.Subtext).Render(note)
	}
	return line + "\n" + m.styles.Border.Render(strings.Repeat("─", m.rule()))
}

func (m Model) rule() int {
	w := m.width - 2
	if w < 20 {
		w = 20
	}
	if w > 60 {
		w = 60
	}
	return w
}

func (m Model) viewPanes() string {
	if len(m.panes) == 0 {
		return m.styles.Dim.Render("No panes yet. Press n to start an agent.") + "\n"
	}

	var b strings.Builder
	for i, p := range m.panes {
		b.WriteString(m.paneRow(i, p))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) paneRow(i int, p state.Pane) string {
	t := m.theme

	cursor := "  "
	if i == m.cursor {
		cursor = m.styles.Selected.Render(m.glyphs.Pointer) + " "
	}

	num := m.styles.Dim.Render(" ")
	if i < 9 {
		num = m.styles.Dim.Render(fmt.Sprintf("%d", i+1))
	}

	slug := runewidth.Truncate(p.Slug, slugWidth, "…")
	slug = runewidth.FillRight(slug, slugWidth)
	slugStyle := lipgloss.NewStyle().Foreground(t.Text)
	if i == m.cursor {
		slugStyle = slugStyle.Bold(true)
	}

	var badges []string
	if p.Autopilot {
		badges = append(badges, lipgloss.NewStyle().Foreground(t.Peach).Render(m.glyphs.Autopilot))
	}
	if p.Orphaned || !p.Live() {
		badges = append(badges, m.styles.Danger.Render(m.glyphs.Orphan))
	}
	if len(p.Options) > 0 {
		badges = append(badges, lipgloss.NewStyle().Foreground(t.Yellow).Render("?"))
	}

	agent := ""
	if p.Agent != "" {
		agent = m.styles.Dim.Render(runewidth.Truncate(p.Agent, 10, "…"))
	} else if p.Kind == state.KindShell {
		agent = m.styles.Dim.Render("shell")
	}

	parts := []string{cursor + num, m.statusGlyph(p), slugStyle.Render(slug), agent}
	if len(badges) > 0 {
		parts = append(parts, strings.Join(badges, ""))
	}
	return strings.Join(parts, " ")
}

func (m Model) statusGlyph(p state.Pane) string {
	t := m.theme
	if !p.Live() {
		return m.styles.Dim.Render(m.glyphs.Unknown)
	}
	switch p.AgentStatus {
	case state.StatusWorking:
		return lipgloss.NewStyle().Foreground(t.Green).Render(m.glyphs.Working)
	case state.StatusWaiting:
		return lipgloss.NewStyle().Foreground(t.Yellow).Render(m.glyphs.Waiting)
	case state.StatusAnalyzing:
		return lipgloss.NewStyle().Foreground(t.Blue).Render(m.glyphs.Analyzing)
	case state.StatusIdle:
		return m.styles.Dim.Render(m.glyphs.Idle)
	default:
		return m.styles.Dim.Render(m.glyphs.Unknown)
	}
}

func (m Model) viewDialog() string {
	res := m.dialog.active
	if res == nil {
		return ""
	}
	t := m.theme

	boxWidth := dialogBoxWidth
	if m.width-4 < boxWidth {
		boxWidth = m.width - 4
	}
	inside := boxWidth - 4
	if inside < minDialogInside {
		inside = minDialogInside
	}

	var b strings.Builder
	if res.Title != "" {
		b.WriteString(m.styles.Title.Render(res.Title))
		b.WriteString("\n")
	}
	if res.Message != "" {
		msg := wordwrap.String(res.Message, inside)
		b.WriteString(lipgloss.NewStyle().Foreground(t.Text).Render(msg))
		b.WriteString("\n")
	}

	switch res.Type {
	case action.TypeConfirm:
		b.WriteString("\n")
		b.WriteString(m.confirmRow(res))

	case action.TypeChoice:
		b.WriteString("\n")
		for i, opt := range res.Options {
			b.WriteString(m.optionRow(i, opt, inside))
			b.WriteString("\n")
		}
		b.WriteString(m.styles.Help.Render("enter select " + m.glyphs.Bullet + " esc cancel"))

	case action.TypeInput:
		b.WriteString("\n")
		b.WriteString(m.dialog.input.View())
		b.WriteString("\n")
		b.WriteString(m.styles.Help.Render("enter submit " + m.glyphs.Bullet + " esc cancel"))
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Surface2).
		Padding(0, 1).
		Width(boxWidth)
	return box.Render(b.String())
}

func (m Model) confirmRow(res *action.Result) string {
	confirm := res.ConfirmLabel
	if confirm == "" {
		confirm = "Confirm"
	}
	cancel := res.CancelLabel
	if cancel == "" {
		cancel = "Cancel"
	}
	return m.styles.Key.Render("[y] ") + confirm + "   " + m.styles.Key.Render("[n] ") + cancel
}

func (m Model) optionRow(i int, opt action.Option, width int) string {
	t := m.theme

	cursor := "  "
	if i == m.dialog.cursor {
		cursor = m.styles.Selected.Render(m.glyphs.Pointer) + " "
	}

	labelStyle := lipgloss.NewStyle().Foreground(t.Text)
	if opt.Danger {
		labelStyle = m.styles.Danger
	}
	if i == m.dialog.cursor {
		labelStyle = labelStyle.Bold(true)
	}

	row := cursor + m.styles.Dim.Render(fmt.Sprintf("%d ", i+1)) + labelStyle.Render(opt.Label)
	if opt.Description != "" {
		desc := runewidth.Truncate(opt.Description, width-runewidth.StringWidth(opt.Label)-8, "…")
		row += m.styles.Dim.Render("  " + desc)
	}
	return row
}

func (m Model) viewFooter() string {
	if m.flash != "" {
		style := m.styles.Flash
		if m.flashErr {
			style = m.styles.ErrorMsg
		}
		return style.Render(m.flash)
	}

	sep := " " + m.glyphs.Bullet + " "
	hints := []string{
		m.styles.Key.Render("↑/↓") + " move",
		m.styles.Key.Render("enter") + " view",
		m.styles.Key.Render("n") + " new",
		m.styles.Key.Render("o") + " actions",
		m.styles.Key.Render("?") + " help",
	}
	return m.styles.Help.Render(strings.Join(hints, sep))
}

func (m Model) viewHelp() string {
	bindings := []key.Binding{
		m.keys.Up, m.keys.Down, m.keys.Select, m.keys.New, m.keys.Shell,
		m.keys.Close, m.keys.Merge, m.keys.Rename, m.keys.Autopilot,
		m.keys.Actions, m.keys.Answer, m.keys.Help, m.keys.Quit,
	}

	var b strings.Builder
	b.WriteString(m.styles.Subtitle.Render("Keys") + "\n\n")
	for _, kb := range bindings {
		h := kb.Help()
		b.WriteString("  " + m.styles.Key.Render(runewidth.FillRight(h.Key, 8)) + m.styles.Help.Render(h.Desc) + "\n")
	}
	b.WriteString("\n" + m.styles.Help.Render("1-9 jump to pane "+m.glyphs.Bullet+" ? close help"))
	return b.String()
}

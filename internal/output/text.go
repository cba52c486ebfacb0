// Package output renders CLI results: status lines, aligned tables, and
// badges. Color engages only when stdout is a terminal and NO_COLOR is
// unset.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/Dicklesworthstone/dmux/internal/tui/theme"
)

// useColor reports whether w is a color-capable terminal.
func useColor(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd())) && os.Getenv("NO_COLOR") == ""
}

// TerminalWidth returns the column count of stdout, or fallback when stdout
// is not a terminal.
func TerminalWidth(fallback int) int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return fallback
}

// Successf prints a green check line to stdout.
func Successf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if useColor(os.Stdout) {
		t := theme.Current()
		check := lipgloss.NewStyle().Foreground(t.Success).Render("✓")
		fmt.Println(check + " " + msg)
		return
	}
	fmt.Println("ok: " + msg)
}

// Errorf prints a red cross line to stderr.
func Errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if useColor(os.Stderr) {
		t := theme.Current()
		cross := lipgloss.NewStyle().Foreground(t.Error).Render("✗")
		fmt.Fprintln(os.Stderr, cross+" "+msg)
		return
	}
	fmt.Fprintln(os.Stderr, "error: "+msg)
}

// Infof prints a dim note to stdout.
func Infof(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if useColor(os.Stdout) {
		t := theme.Current()
		fmt.Println(lipgloss.NewStyle().Foreground(t.Subtext).Render(msg))
		return
	}
	fmt.Println(msg)
}

// Table renders rows under a header rule with columns padded to the widest
// cell. Width accounting goes through lipgloss so styled cells measure by
// their visible width, not their byte length.
type Table struct {
	writer  io.Writer
	headers []string
	rows    [][]string
	widths  []int
	footer  string
	color   bool
}

// NewTable creates a table writing to stdout.
func NewTable(headers ...string) *Table {
	return NewTableWriter(os.Stdout, headers...)
}

// NewTableWriter creates a table with a custom writer.
func NewTableWriter(w io.Writer, headers ...string) *Table {
	t := &Table{writer: w, headers: headers, color: useColor(w)}
	t.widths = make([]int, len(headers))
	t.grow(headers)
	return t
}

// AddRow appends a row, growing column widths as needed.
func (t *Table) AddRow(cols ...string) *Table {
	t.grow(cols)
	t.rows = append(t.rows, cols)
	return t
}

// WithFooter adds a note below the table.
func (t *Table) WithFooter(footer string) *Table {
	t.footer = footer
	return t
}

// RowCount returns the number of data rows.
func (t *Table) RowCount() int {
	return len(t.rows)
}

func (t *Table) grow(cells []string) {
	for i, c := range cells {
		if i >= len(t.widths) {
			break
		}
		if w := lipgloss.Width(c); w > t.widths[i] {
			t.widths[i] = w
		}
	}
}

// writeLine pads each cell to its column width, styles it, and emits the
// row under a two-space indent and gutter.
func (t *Table) writeLine(cells []string, style lipgloss.Style) {
	var b strings.Builder
	b.WriteString("  ")
	for i, width := range t.widths {
		if i > 0 {
			b.WriteString("  ")
		}
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		if pad := width - lipgloss.Width(cell); pad > 0 {
			cell += strings.Repeat(" ", pad)
		}
		b.WriteString(style.Render(cell))
	}
	fmt.Fprintln(t.writer, b.String())
}

// Render writes the table.
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}
	th := theme.Current()

	headerStyle := lipgloss.NewStyle()
	ruleStyle := lipgloss.NewStyle()
	if t.color {
		headerStyle = headerStyle.Foreground(th.Text).Bold(true)
		ruleStyle = ruleStyle.Foreground(th.Surface2)
	}

	rule := make([]string, len(t.widths))
	for i, w := range t.widths {
		rule[i] = strings.Repeat("─", w)
	}

	t.writeLine(t.headers, headerStyle)
	t.writeLine(rule, ruleStyle)
	plain := lipgloss.NewStyle()
	for _, row := range t.rows {
		t.writeLine(row, plain)
	}

	if t.footer != "" {
		fmt.Fprintln(t.writer)
		if t.color {
			fmt.Fprintln(t.writer, lipgloss.NewStyle().Foreground(th.Subtext).Render(t.footer))
		} else {
			fmt.Fprintln(t.writer, t.footer)
		}
	}
}

// statusHue picks the badge color for a status word. Anything unlisted
// renders in the muted overlay tone.
func statusHue(th theme.Theme, status string) lipgloss.Color {
	switch strings.ToLower(status) {
	case "working", "running":
		return th.Green
	case "waiting":
		return th.Yellow
	case "analyzing", "starting":
		return th.Blue
	case "orphaned", "failed", "stopped":
		return th.Red
	default:
		return th.Overlay
	}
}

// StatusBadge colors a pane or agent status word for terminal output.
func StatusBadge(status string) string {
	if !useColor(os.Stdout) {
		return status
	}
	return lipgloss.NewStyle().Foreground(statusHue(theme.Current(), status)).Render(status)
}

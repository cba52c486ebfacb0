// Package theme holds the dmux color palette and shared lipgloss styles.
// Colors degrade from the Catppuccin Mocha truecolor set to ANSI when the
// terminal cannot do 24-bit color.
package theme

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme is the palette every dmux surface draws from.
type Theme struct {
	Base     lipgloss.Color
	Mantle   lipgloss.Color
	Surface0 lipgloss.Color
	Surface1 lipgloss.Color
	Surface2 lipgloss.Color
	Overlay  lipgloss.Color
	Subtext  lipgloss.Color
	Text     lipgloss.Color

	Primary  lipgloss.Color // mauve, the brand accent
	Lavender lipgloss.Color
	Blue     lipgloss.Color
	Teal     lipgloss.Color
	Green    lipgloss.Color
	Yellow   lipgloss.Color
	Peach    lipgloss.Color
	Red      lipgloss.Color
	Pink     lipgloss.Color

	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
}

// Mocha is the truecolor palette (Catppuccin Mocha).
func Mocha() Theme {
	t := Theme{
		Base:     lipgloss.Color("#1e1e2e"),
		Mantle:   lipgloss.Color("#181825"),
		Surface0: lipgloss.Color("#313244"),
		Surface1: lipgloss.Color("#45475a"),
		Surface2: lipgloss.Color("#585b70"),
		Overlay:  lipgloss.Color("#6c7086"),
		Subtext:  lipgloss.Color("#a6adc8"),
		Text:     lipgloss.Color("#cdd6f4"),
		Primary:  lipgloss.Color("#cba6f7"),
		Lavender: lipgloss.Color("#b4befe"),
		Blue:     lipgloss.Color("#89b4fa"),
		Teal:     lipgloss.Color("#94e2d5"),
		Green:    lipgloss.Color("#a6e3a1"),
		Yellow:   lipgloss.Color("#f9e2af"),
		Peach:    lipgloss.Color("#fab387"),
		Red:      lipgloss.Color("#f38ba8"),
		Pink:     lipgloss.Color("#f5c2e7"),
	}
	t.Success = t.Green
	t.Warning = t.Yellow
	t.Error = t.Red
	return t
}

// ANSI is the 16-color fallback used when truecolor is unavailable.
func ANSI() Theme {
	t := Theme{
		Base:     lipgloss.Color("0"),
		Mantle:   lipgloss.Color("0"),
		Surface0: lipgloss.Color("8"),
		Surface1: lipgloss.Color("8"),
		Surface2: lipgloss.Color("8"),
		Overlay:  lipgloss.Color("8"),
		Subtext:  lipgloss.Color("7"),
		Text:     lipgloss.Color("15"),
		Primary:  lipgloss.Color("5"),
		Lavender: lipgloss.Color("12"),
		Blue:     lipgloss.Color("4"),
		Teal:     lipgloss.Color("6"),
		Green:    lipgloss.Color("2"),
		Yellow:   lipgloss.Color("3"),
		Peach:    lipgloss.Color("11"),
		Red:      lipgloss.Color("1"),
		Pink:     lipgloss.Color("13"),
	}
	t.Success = t.Green
	t.Warning = t.Yellow
	t.Error = t.Red
	return t
}

var current *Theme

// Current returns the theme matching the terminal's color profile. The
// detection result is cached for the process lifetime.
func Current() Theme {
	if current != nil {
		return *current
	}
	t := ANSI()
	if termenv.EnvColorProfile() == termenv.TrueColor {
		t = Mocha()
	}
	current = &t
	return t
}

// SupportsUnicode reports whether the terminal can be trusted with
// box-drawing and glyph characters. Limited terminals get ASCII.
func SupportsUnicode() bool {
	term := strings.ToLower(os.Getenv("TERM"))
	switch {
	case term == "dumb", term == "linux":
		return false
	case strings.HasPrefix(term, "vt100"), strings.HasPrefix(term, "vt220"):
		return false
	}
	if strings.Contains(strings.ToLower(os.Getenv("LANG")), "utf") {
		return true
	}
	if strings.Contains(strings.ToLower(os.Getenv("LC_ALL")), "utf") {
		return true
	}
	// Modern TERM values imply UTF-8 even without locale hints.
	return term != ""
}

// Styles bundles the lipgloss styles shared across views.
type Styles struct {
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Selected lipgloss.Style
	Dim      lipgloss.Style
	Key      lipgloss.Style
	Help     lipgloss.Style
	ErrorMsg lipgloss.Style
	Flash    lipgloss.Style
	Border   lipgloss.Style
	Danger   lipgloss.Style
}

// NewStyles derives the shared styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Subtitle: lipgloss.NewStyle().Foreground(t.Subtext),
		Selected: lipgloss.NewStyle().Bold(true).Foreground(t.Pink),
		Dim:      lipgloss.NewStyle().Foreground(t.Overlay),
		Key:      lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Help:     lipgloss.NewStyle().Foreground(t.Overlay),
		ErrorMsg: lipgloss.NewStyle().Foreground(t.Error),
		Flash:    lipgloss.NewStyle().Foreground(t.Green),
		Border:   lipgloss.NewStyle().Foreground(t.Surface2),
		Danger:   lipgloss.NewStyle().Foreground(t.Red),
	}
}

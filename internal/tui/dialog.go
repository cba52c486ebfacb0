package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Dicklesworthstone/dmux/internal/action"
)

// paintDelay is roughly one frame. Swapping dialogs renders a cleared frame
// first; setting the new dialog in the same frame leaves remnants of the old
// one on screen.
const paintDelay = 16 * time.Millisecond

type paintTickMsg struct{}

func paintTick() tea.Cmd {
	return tea.Tick(paintDelay, func(time.Time) tea.Msg { return paintTickMsg{} })
}

// dialogState holds the single dialog the dashboard may show and the cursor
// or text input driving it.
type dialogState struct {
	active  *action.Result
	pending *action.Result
	cursor  int
	input   textinput.Model
}

// set shows res. When another dialog is already up it clears first and
// parks res as pending; the return value tells the caller to schedule a
// paint tick that will promote it.
func (d *dialogState) set(res *action.Result) bool {
	if d.active == nil {
		d.show(res)
		return false
	}
	d.active = nil
	d.pending = res
	return true
}

// painted promotes the pending dialog once the cleared frame has rendered.
func (d *dialogState) painted() {
	if d.pending == nil {
		return
	}
	d.show(d.pending)
	d.pending = nil
}

func (d *dialogState) show(res *action.Result) {
	d.active = res
	d.cursor = defaultCursor(res)
	if res.Type == action.TypeInput {
		ti := textinput.New()
		ti.Placeholder = res.Placeholder
		ti.SetValue(res.DefaultValue)
		ti.CharLimit = 400
		ti.Width = 48
		ti.Focus()
		d.input = ti
	}
}

func (d *dialogState) clear() {
	d.active = nil
	d.pending = nil
}

func (d *dialogState) visible() bool { return d.active != nil }

// move shifts the choice cursor, clamped to the option list.
func (d *dialogState) move(delta int) {
	if d.active == nil || len(d.active.Options) == 0 {
		return
	}
	d.cursor += delta
	if d.cursor < 0 {
		d.cursor = 0
	}
	if d.cursor > len(d.active.Options)-1 {
		d.cursor = len(d.active.Options) - 1
	}
}

// defaultCursor starts on the option flagged as default.
func defaultCursor(res *action.Result) int {
	for i, opt := range res.Options {
		if opt.Default {
			return i
		}
	}
	return 0
}

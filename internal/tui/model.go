// Package tui is the control-pane dashboard: the live pane list on the left
// of every dmux window, plus the dialog renderer for interactive action
// flows. All action work runs off the update loop; the dashboard only ever
// blocks on its own paint.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Dicklesworthstone/dmux/internal/action"
	"github.com/Dicklesworthstone/dmux/internal/state"
	"github.com/Dicklesworthstone/dmux/internal/tui/theme"
)

// flashFor is how long footer notices stay up.
const flashFor = 4 * time.Second

// ResultMsg carries a dialog step into the program from outside the update
// loop: async action commands and the merge orchestrator's Deliver hook both
// publish through it.
type ResultMsg struct {
	Result *action.Result
}

// storeChangedMsg fires when the pane store broadcasts a change.
type storeChangedMsg struct{}

// flashExpiredMsg clears the footer flash; seq drops stale timers.
type flashExpiredMsg struct{ seq int }

// control is the slice of the action dispatcher the dashboard drives.
type control interface {
	Dispatch(ctx context.Context, name action.Name, paneID string, params map[string]string) *action.Result
	AnswerDialog(ctx context.Context, paneID, optionAction string) *action.Result
	CreatePane(ctx context.Context, prompt, agentName string) *action.Result
	CreateShellPane(ctx context.Context) *action.Result
}

// paneFocuser moves tmux focus when a navigation result lands.
type paneFocuser interface {
	SelectPane(paneID string) error
}

// Model is the dashboard state. It renders the pane list and at most one
// dialog, and turns keystrokes into dispatcher calls.
type Model struct {
	store   *state.Store
	actions control
	focus   paneFocuser

	ctx     context.Context
	changes <-chan struct{}
	unsub   func()

	panes  []state.Pane
	cursor int
	width  int
	height int

	dialog   dialogState
	busy     bool
	busyNote string
	spinner  spinner.Model

	flash    string
	flashErr bool
	flashSeq int
	showHelp bool
	quitting bool

	keys   KeyMap
	theme  theme.Theme
	styles theme.Styles
	glyphs glyphSet
}

// New builds the dashboard. ctx bounds every action the dashboard
// dispatches; cancel it when tearing the program down.
func New(ctx context.Context, st *state.Store, actions control, focus paneFocuser) Model {
	ch, unsub := st.Subscribe()
	t := theme.Current()
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = lipgloss.NewStyle().Foreground(t.Primary)
	m := Model{
		store:   st,
		actions: actions,
		focus:   focus,
		ctx:     ctx,
		changes: ch,
		unsub:   unsub,
		spinner: sp,
		keys:    defaultKeys,
		theme:   t,
		styles:  theme.NewStyles(t),
		glyphs:  currentGlyphs(),
		width:   40,
		height:  24,
	}
	m.panes = st.ListPanes()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitForChange(), m.spinner.Tick)
}

// waitForChange blocks on the store subscription and wakes the program.
func (m Model) waitForChange() tea.Cmd {
	ch := m.changes
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return storeChangedMsg{}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case storeChangedMsg:
		m.refreshPanes()
		return m, m.waitForChange()

	case ResultMsg:
		cmd := m.applyResult(msg.Result)
		return m, cmd

	case paintTickMsg:
		m.dialog.painted()
		if m.dialog.visible() && m.dialog.active.Type == action.TypeInput {
			return m, textinput.Blink
		}
		return m, nil

	case flashExpiredMsg:
		if msg.seq == m.flashSeq {
			m.flash = ""
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.dialog.visible() {
			cmd := m.updateDialog(msg)
			return m, cmd
		}
		cmd := m.updateList(msg)
		return m, cmd
	}

	if m.dialog.visible() && m.dialog.active.Type == action.TypeInput {
		var cmd tea.Cmd
		m.dialog.input, cmd = m.dialog.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// refreshPanes reloads the list and keeps the cursor on the same pane when
// it survived the change.
func (m *Model) refreshPanes() {
	var keep string
	if m.cursor >= 0 && m.cursor < len(m.panes) {
		keep = m.panes[m.cursor].ID
	}
	m.panes = m.store.ListPanes()
	m.cursor = 0
	for i, p := range m.panes {
		if p.ID == keep {
			m.cursor = i
			break
		}
	}
	if m.cursor > len(m.panes)-1 {
		m.cursor = len(m.panes) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) selected() (state.Pane, bool) {
	if m.cursor < 0 || m.cursor >= len(m.panes) {
		return state.Pane{}, false
	}
	return m.panes[m.cursor], true
}

// updateList handles keys while no dialog is up.
func (m *Model) updateList(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		m.unsub()
		return tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.panes)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Select):
		return m.dispatchSelected(action.ActionView)

	case key.Matches(msg, m.keys.New):
		return m.applyResult(m.newPanePrompt())

	case key.Matches(msg, m.keys.Shell):
		return m.runBusy("Opening shell", m.actions.CreateShellPane)

	case key.Matches(msg, m.keys.Close):
		return m.dispatchSelected(action.ActionClose)

	case key.Matches(msg, m.keys.Merge):
		return m.dispatchSelected(action.ActionMerge)

	case key.Matches(msg, m.keys.Rename):
		return m.dispatchSelected(action.ActionRename)

	case key.Matches(msg, m.keys.Autopilot):
		return m.dispatchSelected(action.ActionToggleAutopilot)

	case key.Matches(msg, m.keys.Actions):
		return m.applyResult(m.actionMenu())

	case key.Matches(msg, m.keys.Answer):
		return m.applyResult(m.answerMenu())

	default:
		// 1-9 jump straight to that pane.
		if n := digit(msg.String()); n > 0 && n <= len(m.panes) {
			m.cursor = n - 1
			return m.dispatchSelected(action.ActionView)
		}
	}
	return nil
}

// updateDialog handles keys while a dialog is up.
func (m *Model) updateDialog(msg tea.KeyMsg) tea.Cmd {
	res := m.dialog.active

	switch res.Type {
	case action.TypeConfirm:
		switch {
		case key.Matches(msg, m.keys.Yes), key.Matches(msg, m.keys.Select):
			return m.finishDialog(res.OnConfirm)
		case key.Matches(msg, m.keys.No), key.Matches(msg, m.keys.Cancel):
			return m.finishDialog(res.OnCancel)
		}

	case action.TypeChoice:
		switch {
		case key.Matches(msg, m.keys.Up):
			m.dialog.move(-1)
		case key.Matches(msg, m.keys.Down):
			m.dialog.move(1)
		case key.Matches(msg, m.keys.Cancel):
			return m.finishDialog(res.OnCancel)
		case key.Matches(msg, m.keys.Select):
			return m.selectOption(res, m.dialog.cursor)
		default:
			if n := digit(msg.String()); n > 0 && n <= len(res.Options) {
				return m.selectOption(res, n-1)
			}
		}

	case action.TypeInput:
		switch {
		case key.Matches(msg, m.keys.Cancel):
			return m.finishDialog(res.OnCancel)
		case key.Matches(msg, m.keys.Select):
			submit := res.OnSubmit
			if submit == nil {
				m.dialog.clear()
				return nil
			}
			value := m.dialog.input.Value()
			return m.finishDialog(func(ctx context.Context) *action.Result {
				return submit(ctx, value)
			})
		default:
			var cmd tea.Cmd
			m.dialog.input, cmd = m.dialog.input.Update(msg)
			return cmd
		}
	}
	return nil
}

func (m *Model) selectOption(res *action.Result, idx int) tea.Cmd {
	if idx < 0 || idx >= len(res.Options) {
		return nil
	}
	sel := res.OnSelect
	if sel == nil {
		m.dialog.clear()
		return nil
	}
	id := res.Options[idx].ID
	return m.finishDialog(func(ctx context.Context) *action.Result {
		return sel(ctx, id)
	})
}

// finishDialog closes the dialog and runs its continuation off-loop. A nil
// continuation just dismisses.
func (m *Model) finishDialog(fn func(context.Context) *action.Result) tea.Cmd {
	m.dialog.clear()
	if fn == nil {
		return nil
	}
	return m.runBusy("Working", fn)
}

// dispatchSelected runs a catalog action against the pane under the cursor.
func (m *Model) dispatchSelected(name action.Name) tea.Cmd {
	p, ok := m.selected()
	if !ok {
		return nil
	}
	id := p.ID
	return m.runBusy(fmt.Sprintf("%s %s", name.Label(), p.Slug), func(ctx context.Context) *action.Result {
		return m.actions.Dispatch(ctx, name, id, nil)
	})
}

// runBusy dispatches fn off the update loop and reports its result back as
// a ResultMsg, so tmux and git work never stalls the paint.
func (m *Model) runBusy(note string, fn func(context.Context) *action.Result) tea.Cmd {
	m.busy = true
	m.busyNote = note
	ctx := m.ctx
	return func() tea.Msg {
		return ResultMsg{Result: fn(ctx)}
	}
}

// applyResult folds one dialog step into the model and returns any follow-up
// command (paint tick, flash expiry, focus move).
func (m *Model) applyResult(res *action.Result) tea.Cmd {
	m.busy = false
	m.busyNote = ""
	if res == nil {
		return nil
	}

	switch res.Type {
	case action.TypeSuccess, action.TypeInfo:
		m.dialog.clear()
		return m.setFlash(res.Message, false)

	case action.TypeError:
		m.dialog.clear()
		return m.setFlash(res.Message, true)

	case action.TypeProgress:
		m.busy = true
		m.busyNote = res.Message
		return nil

	case action.TypeNavigation:
		m.dialog.clear()
		var cmds []tea.Cmd
		if cmd := m.setFlash(res.Message, false); cmd != nil {
			cmds = append(cmds, cmd)
		}
		if cmd := m.focusPane(res.TargetPaneID); cmd != nil {
			cmds = append(cmds, cmd)
		}
		return tea.Batch(cmds...)

	case action.TypeConfirm, action.TypeChoice, action.TypeInput:
		if m.dialog.set(res) {
			return paintTick()
		}
		if res.Type == action.TypeInput {
			return textinput.Blink
		}
	}
	return nil
}

// focusPane moves tmux focus to the pane a navigation result points at.
func (m *Model) focusPane(paneID string) tea.Cmd {
	if paneID == "" || m.focus == nil {
		return nil
	}
	p, ok := m.store.Pane(paneID)
	if !ok || !p.Live() {
		return nil
	}
	slug, target := p.Slug, p.TerminalPaneID
	focus := m.focus
	return func() tea.Msg {
		if err := focus.SelectPane(target); err != nil {
			return ResultMsg{Result: action.Errorf("focusing %s: %v", slug, err)}
		}
		return nil
	}
}

func (m *Model) setFlash(msg string, isErr bool) tea.Cmd {
	if msg == "" {
		return nil
	}
	m.flash = msg
	m.flashErr = isErr
	m.flashSeq++
	seq := m.flashSeq
	return tea.Tick(flashFor, func(time.Time) tea.Msg { return flashExpiredMsg{seq: seq} })
}

// newPanePrompt is the input dialog behind the "n" key.
func (m *Model) newPanePrompt() *action.Result {
	actions := m.actions
	return &action.Result{
		Type:        action.TypeInput,
		Title:       "New Agent Pane",
		Message:     "What should the agent work on?",
		Placeholder: "Describe the task",
		OnSubmit: func(ctx context.Context, prompt string) *action.Result {
			if strings.TrimSpace(prompt) == "" {
				return action.Errorf("a task description is required")
			}
			return actions.CreatePane(ctx, prompt, "")
		},
	}
}

// actionMenu is the full action catalog for the pane under the cursor.
func (m *Model) actionMenu() *action.Result {
	p, ok := m.selected()
	if !ok {
		return nil
	}
	names := action.For(p)
	opts := make([]action.Option, 0, len(names))
	for i, n := range names {
		opts = append(opts, action.Option{ID: string(n), Label: n.Label(), Default: i == 0})
	}
	id := p.ID
	actions := m.actions
	return &action.Result{
		Type:    action.TypeChoice,
		Title:   p.Slug,
		Message: "Pane actions",
		Options: opts,
		OnSelect: func(ctx context.Context, choice string) *action.Result {
			return actions.Dispatch(ctx, action.Name(choice), id, nil)
		},
	}
}

// answerMenu forwards the agent's own dialog options for the pane under the
// cursor, when it is waiting on one.
func (m *Model) answerMenu() *action.Result {
	p, ok := m.selected()
	if !ok {
		return nil
	}
	if len(p.Options) == 0 {
		return action.Info("No question", "%s is not waiting on a dialog", p.Slug)
	}
	opts := make([]action.Option, 0, len(p.Options))
	for i, o := range p.Options {
		label := o.Action
		if len(o.Keys) > 0 {
			label = fmt.Sprintf("%s (%s)", o.Action, strings.Join(o.Keys, " "))
		}
		opts = append(opts, action.Option{ID: o.Action, Label: label, Default: i == 0})
	}
	question := p.OptionsQuestion
	if question == "" {
		question = "The agent is waiting on a choice."
	}
	if p.PotentialHarm != nil && p.PotentialHarm.HasRisk && p.PotentialHarm.Description != "" {
		question += "\nCaution: " + p.PotentialHarm.Description
	}
	id := p.ID
	actions := m.actions
	return &action.Result{
		Type:    action.TypeChoice,
		Title:   "Answer " + p.Slug,
		Message: question,
		Options: opts,
		OnSelect: func(ctx context.Context, choice string) *action.Result {
			return actions.AnswerDialog(ctx, id, choice)
		},
	}
}

func digit(s string) int {
	if len(s) == 1 && s[0] >= '1' && s[0] <= '9' {
		return int(s[0] - '0')
	}
	return 0
}

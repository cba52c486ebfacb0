package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/atotto/clipboard"

	"github.com/Dicklesworthstone/dmux/internal/agent"
	"github.com/Dicklesworthstone/dmux/internal/git"
	"github.com/Dicklesworthstone/dmux/internal/panes"
	"github.com/Dicklesworthstone/dmux/internal/state"
	"github.com/Dicklesworthstone/dmux/internal/tmux"
)

// Name identifies a registered pane action.
type Name string

const (
	ActionView            Name = "VIEW"
	ActionClose           Name = "CLOSE"
	ActionMerge           Name = "MERGE"
	ActionRename          Name = "RENAME"
	ActionDuplicate       Name = "DUPLICATE"
	ActionCopyPath        Name = "COPY_PATH"
	ActionOpenEditor      Name = "OPEN_EDITOR"
	ActionToggleAutopilot Name = "TOGGLE_AUTOPILOT"
	ActionOpenPR          Name = "OPEN_PR"
	ActionDevWindow       Name = "DEV_WINDOW"
	ActionTestWindow      Name = "TEST_WINDOW"
)

// Names lists the registered actions in presentation order.
func Names() []Name {
	return []Name{
		ActionView, ActionClose, ActionMerge, ActionRename, ActionDuplicate,
		ActionCopyPath, ActionOpenEditor, ActionToggleAutopilot, ActionOpenPR,
		ActionDevWindow, ActionTestWindow,
	}
}

// Merger is the slice of the merge orchestrator the dispatcher drives.
// ResolveUncommitted presents the commit flow for a dirty worktree and
// invokes then once the tree is clean.
type Merger interface {
	Start(ctx context.Context, paneID string) *Result
	ResolveUncommitted(ctx context.Context, paneID string, then func(context.Context) *Result) *Result
}

// Dispatcher executes pane actions and expresses every interactive step
// through the Result protocol, so each surface renders the same flows.
type Dispatcher struct {
	Store    *state.Store
	Settings *state.SettingsStore
	Panes    *panes.Manager
	Tmux     *tmux.Client
	Git      *git.Service
	Harness  *agent.Harness
	Merger   Merger
	Logger   *slog.Logger

	clipboardWrite func(string) error
	lookPath       func(string) (string, error)
	getenv         func(string) string
	startDetached  func(dir, name string, args ...string) error
	runCommand     func(ctx context.Context, dir, name string, args ...string) (string, error)
}

// NewDispatcher wires a dispatcher against the real system surfaces.
func NewDispatcher(st *state.Store, settings *state.SettingsStore, pm *panes.Manager, tm *tmux.Client, g *git.Service, h *agent.Harness, merger Merger) *Dispatcher {
	return &Dispatcher{
		Store:          st,
		Settings:       settings,
		Panes:          pm,
		Tmux:           tm,
		Git:            g,
		Harness:        h,
		Merger:         merger,
		clipboardWrite: clipboard.WriteAll,
		lookPath:       exec.LookPath,
		getenv:         os.Getenv,
		startDetached:  startDetached,
		runCommand:     runCommand,
	}
}

func startDetached(dir, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

func runCommand(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Dispatch runs one named action against a pane. params carries optional
// non-interactive overrides (close mode, new name) so CLI callers can skip
// the dialogs.
func (d *Dispatcher) Dispatch(ctx context.Context, name Name, paneID string, params map[string]string) *Result {
	pane, ok := d.Store.Pane(paneID)
	if !ok {
		return Errorf("pane %s not found", paneID)
	}
	d.logger().Debug("dispatching action", "action", string(name), "pane", paneID)

	switch name {
	case ActionView:
		if !pane.Live() {
			return d.reopenFlow(ctx, pane)
		}
		return Navigate(pane.ID, "")
	case ActionClose:
		return d.closeFlow(ctx, pane, params["mode"])
	case ActionMerge:
		if d.Merger == nil {
			return Errorf("merge is not available")
		}
		return d.Merger.Start(ctx, paneID)
	case ActionRename:
		return d.renameFlow(ctx, pane, params["name"])
	case ActionDuplicate:
		return d.duplicate(ctx, pane)
	case ActionCopyPath:
		return d.copyPath(pane)
	case ActionOpenEditor:
		return d.openEditor(pane)
	case ActionToggleAutopilot:
		return d.toggleAutopilot(pane)
	case ActionOpenPR:
		return d.openPR(ctx, pane)
	case ActionDevWindow:
		return d.sideWindowFlow(ctx, pane, panes.SideDev, params["command"])
	case ActionTestWindow:
		return d.sideWindowFlow(ctx, pane, panes.SideTest, params["command"])
	default:
		return Errorf("unknown action %q", string(name))
	}
}

// AnswerDialog sends the keystrokes of one of the pane's detected dialog
// options. The option must currently be offered on the pane.
func (d *Dispatcher) AnswerDialog(ctx context.Context, paneID, optionAction string) *Result {
	pane, ok := d.Store.Pane(paneID)
	if !ok {
		return Errorf("pane %s not found", paneID)
	}
	if !pane.Live() {
		return Errorf("pane %s has no terminal", pane.Slug)
	}
	for _, opt := range pane.Options {
		if opt.Action != optionAction {
			continue
		}
		for _, key := range opt.Keys {
			if err := d.Tmux.SendNamedKey(ctx, pane.TerminalPaneID, key); err != nil {
				return Errorf("sending keys: %v", err)
			}
		}
		d.logger().Info("dialog option sent", "pane", paneID, "option", optionAction)
		return Success("Sent %q to %s", optionAction, pane.Slug)
	}
	return Errorf("option %q is not offered by %s", optionAction, pane.Slug)
}

// CreatePane runs the create flow, turning an ambiguous agent choice into
// a choice dialog that retries with the picked agent.
func (d *Dispatcher) CreatePane(ctx context.Context, prompt, agentName string) *Result {
	created, err := d.Panes.Create(ctx, panes.CreateRequest{Prompt: prompt, Agent: agentName})
	var choice *panes.AgentChoiceError
	switch {
	case err == nil:
		return Navigate(created.ID, fmt.Sprintf("Created %s", created.Slug))
	case errors.As(err, &choice):
		opts := make([]Option, 0, len(choice.Available))
		for i, name := range choice.Available {
			opts = append(opts, Option{ID: name, Label: name, Default: i == 0})
		}
		return &Result{
			Type:    TypeChoice,
			Title:   "Choose an Agent",
			Message: "Several agents are installed. Which one should work on this?",
			Options: opts,
			OnSelect: func(ctx context.Context, id string) *Result {
				return d.CreatePane(ctx, prompt, id)
			},
		}
	case errors.Is(err, panes.ErrNoAgentAvailable):
		return Errorf("no agent CLI found; install claude, opencode, or codex")
	default:
		return Errorf("creating pane: %v", err)
	}
}

// CreateShellPane opens a plain shell pane in the project root.
func (d *Dispatcher) CreateShellPane(ctx context.Context) *Result {
	created, err := d.Panes.CreateShell(ctx)
	if err != nil {
		return Errorf("creating shell pane: %v", err)
	}
	return Navigate(created.ID, fmt.Sprintf("Created %s", created.Slug))
}

func (d *Dispatcher) closeFlow(ctx context.Context, pane state.Pane, mode string) *Result {
	if mode != "" {
		return d.doClose(ctx, pane.ID, panes.CloseMode(mode))
	}
	// only worktree panes own state worth a dialog
	if pane.Kind != state.KindWorktree || pane.WorktreePath == "" {
		return d.doClose(ctx, pane.ID, panes.CloseKillOnly)
	}
	return &Result{
		Type:    TypeChoice,
		Title:   "Close " + pane.Slug,
		Message: "What should happen to the worktree and branch?",
		Options: []Option{
			{ID: string(panes.CloseKillOnly), Label: "Kill pane only", Description: "Keep worktree and branch", Default: true},
			{ID: string(panes.CloseRemoveWorktree), Label: "Remove worktree", Description: "Keep the branch"},
			{ID: string(panes.CloseDeleteEverything), Label: "Delete everything", Description: "Remove worktree and branch", Danger: true},
			{ID: "cancel", Label: "Cancel"},
		},
		OnSelect: func(ctx context.Context, id string) *Result {
			if id == "cancel" {
				return Success("Close cancelled")
			}
			return d.doClose(ctx, pane.ID, panes.CloseMode(id))
		},
	}
}

func (d *Dispatcher) doClose(ctx context.Context, paneID string, mode panes.CloseMode) *Result {
	err := d.Panes.Close(ctx, paneID, mode)
	switch {
	case err == nil:
		return Success("Pane closed")
	case errors.Is(err, panes.ErrUncommittedChanges):
		if d.Merger == nil {
			return Errorf("worktree has uncommitted changes")
		}
		return d.Merger.ResolveUncommitted(ctx, paneID, func(ctx context.Context) *Result {
			return d.doClose(ctx, paneID, mode)
		})
	default:
		return Errorf("closing pane: %v", err)
	}
}

func (d *Dispatcher) renameFlow(ctx context.Context, pane state.Pane, name string) *Result {
	if name != "" {
		return d.rename(ctx, pane, name)
	}
	return &Result{
		Type:         TypeInput,
		Title:        "Rename " + pane.Slug,
		Message:      "New name for this pane",
		Placeholder:  "new-name",
		DefaultValue: pane.Slug,
		OnSubmit: func(ctx context.Context, value string) *Result {
			return d.rename(ctx, pane, value)
		},
	}
}

func (d *Dispatcher) rename(ctx context.Context, pane state.Pane, value string) *Result {
	slug := agent.SanitizeSlug(value)
	if slug == "" {
		return Errorf("%q is not a usable name", value)
	}
	if slug == pane.Slug {
		return Success("Name unchanged")
	}
	if d.Store.SlugInUse(slug) {
		return Errorf("name %q is already taken", slug)
	}

	prefix := d.settings().BranchPrefix
	if pane.Kind.HasWorktree() && pane.WorktreePath != "" {
		if err := d.Git.RenameBranch(ctx, pane.WorktreePath, prefix+pane.Slug, prefix+slug); err != nil {
			d.logger().Warn("branch rename failed", "pane", pane.ID, "error", err)
		}
	}
	if err := d.Store.UpdatePane(pane.ID, func(p *state.Pane) { p.Slug = slug }); err != nil {
		return Errorf("renaming pane: %v", err)
	}
	if pane.TerminalPaneID != "" {
		if err := d.Tmux.SetPaneTitle(pane.TerminalPaneID, slug); err != nil {
			d.logger().Debug("pane title update failed", "error", err)
		}
	}
	d.logger().Info("pane renamed", "pane", pane.ID, "from", pane.Slug, "to", slug)
	return Success("Renamed %s to %s", pane.Slug, slug)
}

func (d *Dispatcher) duplicate(ctx context.Context, pane state.Pane) *Result {
	if pane.Kind != state.KindWorktree {
		return Errorf("only worktree panes can be duplicated")
	}
	return d.CreatePane(ctx, pane.Prompt, pane.Agent)
}

func (d *Dispatcher) copyPath(pane state.Pane) *Result {
	if pane.WorktreePath == "" {
		return Errorf("pane %s has no worktree", pane.Slug)
	}
	if err := d.clipboardWrite(pane.WorktreePath); err != nil {
		// no clipboard on this system, at least show the path
		return Info("Worktree path", "%s", pane.WorktreePath)
	}
	return Success("Copied %s", pane.WorktreePath)
}

func (d *Dispatcher) openEditor(pane state.Pane) *Result {
	if pane.WorktreePath == "" {
		return Errorf("pane %s has no worktree", pane.Slug)
	}
	editor := d.resolveEditor()
	if editor == "" {
		return Errorf("no editor found; set $EDITOR or install code")
	}
	if err := d.startDetached(pane.WorktreePath, editor, pane.WorktreePath); err != nil {
		return Errorf("launching %s: %v", editor, err)
	}
	return Success("Opened %s in %s", pane.Slug, editor)
}

func (d *Dispatcher) resolveEditor() string {
	for _, env := range []string{"DMUX_EDITOR", "VISUAL", "EDITOR"} {
		if v := d.getenv(env); v != "" {
			return v
		}
	}
	for _, bin := range []string{"code", "cursor", "zed"} {
		if _, err := d.lookPath(bin); err == nil {
			return bin
		}
	}
	return ""
}

// sideWindowFlow runs a dev server or test runner in a helper window next
// to the pane. With no command it asks for one; if the window is already
// open it offers to close it instead. A provided command restarts in place.
func (d *Dispatcher) sideWindowFlow(ctx context.Context, pane state.Pane, kind panes.SideKind, command string) *Result {
	if pane.Kind != state.KindWorktree || pane.WorktreePath == "" {
		return Errorf("pane %s has no worktree to run a %s window in", pane.Slug, kind)
	}

	window := pane.DevWindowID
	placeholder := "npm run dev"
	if kind == panes.SideTest {
		window = pane.TestWindowID
		placeholder = "npm test"
	}

	if command == "" && window != "" {
		return &Result{
			Type:         TypeConfirm,
			Title:        "Close " + string(kind) + " window",
			Message:      fmt.Sprintf("A %s window is already running for %s. Close it?", kind, pane.Slug),
			ConfirmLabel: "Close window",
			OnConfirm: func(ctx context.Context) *Result {
				if err := d.Panes.CloseSideWindow(ctx, pane.ID, kind); err != nil {
					return Errorf("closing %s window: %v", kind, err)
				}
				return Success("Closed the %s window for %s", kind, pane.Slug)
			},
		}
	}
	if command == "" {
		return &Result{
			Type:        TypeInput,
			Title:       fmt.Sprintf("Run %s window for %s", kind, pane.Slug),
			Message:     "Command to run in the window",
			Placeholder: placeholder,
			OnSubmit: func(ctx context.Context, value string) *Result {
				return d.sideWindowFlow(ctx, pane, kind, value)
			},
		}
	}

	if err := d.Panes.OpenSideWindow(ctx, pane.ID, kind, command); err != nil {
		return Errorf("opening %s window: %v", kind, err)
	}
	return Success("Started %q for %s", command, pane.Slug)
}

// reopenFlow offers to bind a fresh terminal to a pane whose terminal is
// gone. The existing worktree is reused; panes without one cannot come back.
func (d *Dispatcher) reopenFlow(ctx context.Context, pane state.Pane) *Result {
	if pane.WorktreePath == "" {
		return Errorf("pane %s has no terminal to focus", pane.Slug)
	}
	return &Result{
		Type:         TypeConfirm,
		Title:        "Reopen " + pane.Slug,
		Message:      fmt.Sprintf("%s has no terminal. Open a fresh pane in its worktree?", pane.Slug),
		ConfirmLabel: "Reopen",
		OnConfirm: func(ctx context.Context) *Result {
			reopened, err := d.Panes.Reopen(ctx, pane.ID, "")
			if err != nil {
				return Errorf("reopening %s: %v", pane.Slug, err)
			}
			return Navigate(reopened.ID, fmt.Sprintf("Reopened %s", reopened.Slug))
		},
	}
}

func (d *Dispatcher) toggleAutopilot(pane state.Pane) *Result {
	var enabled bool
	err := d.Store.UpdatePane(pane.ID, func(p *state.Pane) {
		p.Autopilot = !p.Autopilot
		enabled = p.Autopilot
	})
	if err != nil {
		return Errorf("toggling autopilot: %v", err)
	}
	if enabled {
		return Success("Autopilot on for %s", pane.Slug)
	}
	return Success("Autopilot off for %s", pane.Slug)
}

func (d *Dispatcher) settings() state.Settings {
	s, err := d.Settings.Resolve()
	if err != nil {
		d.logger().Warn("settings unavailable, using defaults", "error", err)
	}
	return s
}

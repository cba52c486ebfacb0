// Package panes owns the authoritative pane create and close paths: tmux
// splits, git worktrees, agent launches, orphan reconciliation, and the
// welcome pane policy. Everything else in the system mutates panes only
// through the state store; this package is what brings them into and out
// of existence.
package panes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Dicklesworthstone/dmux/internal/agent"
	"github.com/Dicklesworthstone/dmux/internal/config"
	"github.com/Dicklesworthstone/dmux/internal/git"
	"github.com/Dicklesworthstone/dmux/internal/hooks"
	"github.com/Dicklesworthstone/dmux/internal/layout"
	"github.com/Dicklesworthstone/dmux/internal/state"
	"github.com/Dicklesworthstone/dmux/internal/tmux"
	"github.com/Dicklesworthstone/dmux/internal/util"
	"github.com/Dicklesworthstone/dmux/internal/worker"
)

const (
	// paneSettleDelay lets tmux finish the split before the pane is used.
	paneSettleDelay = 300 * time.Millisecond
	// agentStartDelay is how long the agent gets to draw its input box
	// before the prompt is pasted into it.
	agentStartDelay = 1200 * time.Millisecond
	// worktreeWait bounds the poll for the in-pane `git worktree add` to
	// produce the directory.
	worktreeWait     = 10 * time.Second
	worktreePollRate = 200 * time.Millisecond
)

var (
	// ErrNoAgentAvailable means no configured agent CLI is installed.
	ErrNoAgentAvailable = errors.New("no agent CLI available")
	// ErrUncommittedChanges blocks delete_everything until the worktree
	// is committed or the caller explicitly routes through the commit
	// flow.
	ErrUncommittedChanges = errors.New("worktree has uncommitted changes")
	// ErrPaneNotFound is returned for operations on unknown pane ids.
	ErrPaneNotFound = errors.New("pane not found")
)

// AgentChoiceError reports that several agents are installed and the
// caller must pick one.
type AgentChoiceError struct {
	Available []string
}

func (e *AgentChoiceError) Error() string {
	return "multiple agents available: " + strings.Join(e.Available, ", ")
}

// Manager wires the pane lifecycle together.
type Manager struct {
	Store    *state.Store
	Settings *state.SettingsStore
	Config   *config.Config
	Tmux     *tmux.Client
	Git      *git.Service
	Layout   *layout.Engine
	Harness  *agent.Harness
	Workers  *worker.Supervisor
	Hooks    *hooks.Runner
	Logger   *slog.Logger

	// ControlPane is the sidebar's tmux pane id, set at startup. When
	// empty the currently focused pane is treated as the control pane.
	ControlPane string

	// seams for tests
	lookPath    func(string) (string, error)
	settleDelay time.Duration
	startDelay  time.Duration
}

// NewManager builds a manager over the given services.
func NewManager(st *state.Store, settings *state.SettingsStore, cfg *config.Config, tm *tmux.Client, g *git.Service, eng *layout.Engine, h *agent.Harness) *Manager {
	return &Manager{
		Store:       st,
		Settings:    settings,
		Config:      cfg,
		Tmux:        tm,
		Git:         g,
		Layout:      eng,
		Harness:     h,
		lookPath:    exec.LookPath,
		settleDelay: paneSettleDelay,
		startDelay:  agentStartDelay,
	}
}

func (m *Manager) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

func (m *Manager) settings() state.Settings {
	s, err := m.Settings.Resolve()
	if err != nil {
		m.logger().Warn("settings unreadable, using defaults", "error", err)
	}
	return s
}

// AvailableAgents returns the configured agents whose CLI binary is
// installed, sorted by name.
func (m *Manager) AvailableAgents() []string {
	var avail []string
	for _, name := range m.Config.AgentNames() {
		spec, _ := m.Config.Agent(name)
		bin := strings.Fields(spec.Command)
		if len(bin) == 0 {
			continue
		}
		if _, err := m.lookPath(bin[0]); err == nil {
			avail = append(avail, name)
		}
	}
	sort.Strings(avail)
	return avail
}

// ResolveAgent picks the agent for a new pane: explicit choice, then the
// configured default, then the single installed agent. With several
// installed and nothing chosen it returns an AgentChoiceError listing
// them.
func (m *Manager) ResolveAgent(explicit string) (string, error) {
	if explicit != "" {
		if _, ok := m.Config.Agent(explicit); !ok {
			return "", fmt.Errorf("unknown agent %q", explicit)
		}
		return explicit, nil
	}

	avail := m.AvailableAgents()
	if def := m.settings().DefaultAgent; def != "" {
		for _, name := range avail {
			if name == def {
				return def, nil
			}
		}
		m.logger().Warn("default agent not installed", "agent", def)
	}

	switch len(avail) {
	case 0:
		return "", ErrNoAgentAvailable
	case 1:
		return avail[0], nil
	default:
		return "", &AgentChoiceError{Available: avail}
	}
}

// CreateRequest describes a new worktree pane.
type CreateRequest struct {
	Prompt string
	Agent  string // empty resolves per ResolveAgent
}

// Create runs the full pane creation path and returns the registered
// pane.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (state.Pane, error) {
	agentName, err := m.ResolveAgent(req.Agent)
	if err != nil {
		return state.Pane{}, err
	}
	spec, _ := m.Config.Agent(agentName)
	settings := m.settings()

	slug := m.newSlug(ctx, agentName, req.Prompt)
	root := m.Store.ProjectRoot()
	worktreePath := filepath.Join(util.WorktreesDir(root), slug)
	branch := settings.BranchPrefix + slug

	control, err := m.controlPane(ctx)
	if err != nil {
		return state.Pane{}, fmt.Errorf("locating control pane: %w", err)
	}

	target, err := m.Tmux.SplitWindow(ctx, control, root)
	if err != nil {
		return state.Pane{}, fmt.Errorf("splitting pane: %w", err)
	}
	m.sleep(ctx, m.settleDelay)
	if err := m.Tmux.SetPaneTitle(target, slug); err != nil {
		m.logger().Debug("setting pane title failed", "pane", target, "error", err)
	}

	m.applyLayout(ctx, control, target)

	if err := m.setupWorktree(ctx, target, worktreePath, branch); err != nil {
		// the split survives so the user can see what went wrong
		return state.Pane{}, err
	}

	m.launchAgent(ctx, target, spec, settings.PermissionMode, req.Prompt)

	pane := state.Pane{
		ID:             m.Store.NewPaneID(),
		Slug:           slug,
		Kind:           state.KindWorktree,
		Prompt:         req.Prompt,
		TerminalPaneID: target,
		WorktreePath:   worktreePath,
		Agent:          agentName,
		ProjectRoot:    root,
		ProjectName:    m.Store.ProjectName(),
		AgentStatus:    state.StatusWorking,
		Autopilot:      settings.EnableAutopilotByDefault,
	}
	if err := m.Store.AddPane(pane); err != nil {
		return state.Pane{}, fmt.Errorf("registering pane: %w", err)
	}

	// the acknowledger outlives the request; its window is self-bounded
	go worker.AcknowledgeTrustPrompts(context.WithoutCancel(ctx), m.Tmux, m.logger(), agentName, pane.ID, target)

	m.restoreControl(ctx, control)
	m.EnsureWelcomePolicy(ctx)

	if m.Hooks != nil {
		env := hooks.Env{
			PaneID:       pane.ID,
			Slug:         slug,
			WorktreePath: worktreePath,
			Branch:       branch,
			Agent:        agentName,
		}
		m.Hooks.Fire(ctx, hooks.PaneCreated, env)
		m.Hooks.Fire(ctx, hooks.WorktreeCreated, env)
	}

	m.logger().Info("pane created",
		"pane", pane.ID, "slug", slug, "agent", agentName, "target", target)
	return pane, nil
}

// CreateShell opens a plain shell pane at the project root, no worktree
// and no agent.
func (m *Manager) CreateShell(ctx context.Context) (state.Pane, error) {
	root := m.Store.ProjectRoot()
	control, err := m.controlPane(ctx)
	if err != nil {
		return state.Pane{}, fmt.Errorf("locating control pane: %w", err)
	}
	target, err := m.Tmux.SplitWindow(ctx, control, root)
	if err != nil {
		return state.Pane{}, fmt.Errorf("splitting pane: %w", err)
	}
	m.sleep(ctx, m.settleDelay)

	slug := agent.UniqueSlug("shell", m.Store.SlugInUse)
	if err := m.Tmux.SetPaneTitle(target, slug); err != nil {
		m.logger().Debug("setting pane title failed", "pane", target, "error", err)
	}
	m.applyLayout(ctx, control, target)

	pane := state.Pane{
		ID:             m.Store.NewPaneID(),
		Slug:           slug,
		Kind:           state.KindShell,
		TerminalPaneID: target,
		ProjectRoot:    root,
		ProjectName:    m.Store.ProjectName(),
	}
	if err := m.Store.AddPane(pane); err != nil {
		return state.Pane{}, fmt.Errorf("registering pane: %w", err)
	}
	m.EnsureWelcomePolicy(ctx)
	return pane, nil
}

// newSlug asks the harness for a label when a prompt exists, otherwise
// falls back to a timestamped one. Either way the result is made unique
// among live panes.
func (m *Manager) newSlug(ctx context.Context, agentName, prompt string) string {
	base := agent.FallbackSlug(time.Now())
	if prompt != "" && m.Harness != nil {
		base = m.Harness.GenerateSlug(ctx, agentName, prompt)
	}
	return agent.UniqueSlug(base, m.Store.SlugInUse)
}

func (m *Manager) controlPane(ctx context.Context) (string, error) {
	if m.ControlPane != "" {
		return m.ControlPane, nil
	}
	return m.Tmux.ActivePaneID(ctx)
}

// applyLayout recomputes the grid for every live pane plus the control
// sidebar. Layout failures are logged, never fatal: a misproportioned
// window beats a dead create path.
func (m *Manager) applyLayout(ctx context.Context, control string, extra ...string) {
	if m.Layout == nil {
		return
	}
	window, err := m.Tmux.WindowID(ctx, control)
	if err != nil {
		m.logger().Warn("window lookup failed, skipping layout", "error", err)
		return
	}
	content := m.contentPanes(extra...)
	if err := m.Layout.Apply(ctx, window, control, content); err != nil {
		m.logger().Warn("layout apply failed", "error", err)
	}
}

// contentPanes lists the live terminal pane ids in stable slug order,
// with extras appended if not already present.
func (m *Manager) contentPanes(extra ...string) []string {
	panes := m.Store.ListPanes()
	sort.Slice(panes, func(i, j int) bool { return panes[i].Slug < panes[j].Slug })
	var ids []string
	seen := make(map[string]bool)
	for _, p := range panes {
		if p.Live() {
			ids = append(ids, p.TerminalPaneID)
			seen[p.TerminalPaneID] = true
		}
	}
	for _, id := range extra {
		if id != "" && !seen[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

// setupWorktree runs the worktree add inside the new pane so the user
// sees it happen, then waits for the directory to exist.
func (m *Manager) setupWorktree(ctx context.Context, target, worktreePath, branch string) error {
	cmd := fmt.Sprintf("git worktree add %s -b %s && cd %s",
		tmux.ShellQuote(worktreePath), tmux.ShellQuote(branch), tmux.ShellQuote(worktreePath))
	if err := m.Tmux.SendText(ctx, target, cmd, true); err != nil {
		return fmt.Errorf("issuing worktree add: %w", err)
	}
	if err := m.waitForDir(ctx, worktreePath); err != nil {
		return fmt.Errorf("worktree %s: %w", worktreePath, err)
	}
	return nil
}

func (m *Manager) waitForDir(ctx context.Context, path string) error {
	deadline := time.Now().Add(worktreeWait)
	for {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.New("directory did not appear")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(worktreePollRate):
		}
	}
}

// launchAgent starts the agent CLI in the pane and pastes the prompt into
// its input. The prompt goes through the tmux buffer path so the shell
// never interprets it.
func (m *Manager) launchAgent(ctx context.Context, target string, spec config.AgentSpec, permissionMode, prompt string) {
	launch := spec.LaunchCommand(permissionMode)
	if launch == "" {
		return
	}
	if err := m.Tmux.SendText(ctx, target, launch, true); err != nil {
		m.logger().Warn("agent launch failed", "pane", target, "error", err)
		return
	}
	if prompt == "" {
		return
	}
	m.sleep(ctx, m.startDelay)
	if err := m.Tmux.PasteText(ctx, target, prompt); err != nil {
		m.logger().Warn("prompt injection failed", "pane", target, "error", err)
		return
	}
	if err := m.Tmux.SendNamedKey(ctx, target, "Enter"); err != nil {
		m.logger().Warn("prompt submit failed", "pane", target, "error", err)
	}
}

// restoreControl gives focus back to the sidebar and resets its title.
func (m *Manager) restoreControl(ctx context.Context, control string) {
	if err := m.Tmux.SelectPane(control); err != nil {
		m.logger().Debug("focus restore failed", "pane", control, "error", err)
	}
	if err := m.Tmux.SetPaneTitle(control, m.Store.ProjectName()); err != nil {
		m.logger().Debug("control title reset failed", "error", err)
	}
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

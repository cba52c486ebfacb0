package panes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Dicklesworthstone/dmux/internal/state"
	"github.com/Dicklesworthstone/dmux/internal/util"
	"github.com/Dicklesworthstone/dmux/internal/worker"
)

// ReconcileOrphans scans `.dmux/worktrees/*` and registers every valid
// git worktree no pane references as an orphaned pane, so work survives a
// crash or a killed tmux server. Runs on startup and after store reloads.
func (m *Manager) ReconcileOrphans(ctx context.Context) error {
	root := m.Store.ProjectRoot()
	dir := util.WorktreesDir(root)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading worktrees dir: %w", err)
	}

	registered, err := m.Git.ListWorktrees(ctx, root)
	if err != nil {
		return fmt.Errorf("listing worktrees: %w", err)
	}
	valid := make(map[string]bool, len(registered))
	for _, wt := range registered {
		valid[wt.Path] = true
	}

	known := make(map[string]bool)
	for _, p := range m.Store.ListPanes() {
		if p.WorktreePath != "" {
			known[p.WorktreePath] = true
		}
	}

	added := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if known[path] || !valid[path] {
			continue
		}
		pane := state.Pane{
			ID:           m.Store.NewPaneID(),
			Slug:         entry.Name(),
			Kind:         state.KindWorktree,
			WorktreePath: path,
			ProjectRoot:  root,
			ProjectName:  m.Store.ProjectName(),
			Orphaned:     true,
		}
		if err := m.Store.AddPane(pane); err != nil {
			m.logger().Warn("orphan registration failed", "slug", entry.Name(), "error", err)
			continue
		}
		added++
		m.logger().Info("orphaned worktree registered", "pane", pane.ID, "slug", pane.Slug)
	}
	if added > 0 {
		m.logger().Info("orphan reconciliation complete", "added", added)
	}
	return nil
}

// Reopen binds a fresh terminal pane to an orphan's existing worktree and
// relaunches its agent. The worktree is reused as-is, never re-created.
func (m *Manager) Reopen(ctx context.Context, paneID, prompt string) (state.Pane, error) {
	pane, ok := m.Store.Pane(paneID)
	if !ok {
		return state.Pane{}, fmt.Errorf("%w: %s", ErrPaneNotFound, paneID)
	}
	if pane.Live() {
		return state.Pane{}, fmt.Errorf("pane %s already has a terminal", paneID)
	}
	if pane.WorktreePath == "" {
		return state.Pane{}, fmt.Errorf("pane %s has no worktree to reopen", paneID)
	}

	agentName := pane.Agent
	if agentName == "" {
		resolved, err := m.ResolveAgent("")
		if err != nil {
			return state.Pane{}, err
		}
		agentName = resolved
	}
	spec, ok := m.Config.Agent(agentName)
	if !ok {
		return state.Pane{}, fmt.Errorf("unknown agent %q", agentName)
	}

	control, err := m.controlPane(ctx)
	if err != nil {
		return state.Pane{}, fmt.Errorf("locating control pane: %w", err)
	}
	target, err := m.Tmux.SplitWindow(ctx, control, pane.WorktreePath)
	if err != nil {
		return state.Pane{}, fmt.Errorf("splitting pane: %w", err)
	}
	m.sleep(ctx, m.settleDelay)
	if err := m.Tmux.SetPaneTitle(target, pane.Slug); err != nil {
		m.logger().Debug("setting pane title failed", "pane", target, "error", err)
	}
	m.applyLayout(ctx, control, target)

	m.launchAgent(ctx, target, spec, m.settings().PermissionMode, prompt)

	err = m.Store.UpdatePane(paneID, func(p *state.Pane) {
		p.TerminalPaneID = target
		p.Orphaned = false
		p.Agent = agentName
		p.AgentStatus = state.StatusWorking
		if prompt != "" {
			p.Prompt = prompt
		}
	})
	if err != nil {
		return state.Pane{}, err
	}

	go worker.AcknowledgeTrustPrompts(context.WithoutCancel(ctx), m.Tmux, m.logger(), agentName, paneID, target)

	m.restoreControl(ctx, control)
	m.EnsureWelcomePolicy(ctx)

	updated, _ := m.Store.Pane(paneID)
	m.logger().Info("orphan reopened", "pane", paneID, "slug", pane.Slug, "target", target)
	return updated, nil
}

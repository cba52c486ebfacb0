package panes

import (
	"context"
	"fmt"

	"github.com/Dicklesworthstone/dmux/internal/agent"
	"github.com/Dicklesworthstone/dmux/internal/hooks"
	"github.com/Dicklesworthstone/dmux/internal/state"
)

// CloseMode is a terminal outcome of the CLOSE flow.
type CloseMode string

const (
	// CloseKillOnly destroys the terminal pane; worktree and branch stay.
	CloseKillOnly CloseMode = "kill_only"
	// CloseRemoveWorktree also removes the worktree; the branch stays.
	CloseRemoveWorktree CloseMode = "remove_worktree"
	// CloseDeleteEverything removes pane, worktree, and branch.
	CloseDeleteEverything CloseMode = "delete_everything"
)

// CloseModes lists the selectable outcomes in presentation order.
func CloseModes() []CloseMode {
	return []CloseMode{CloseKillOnly, CloseRemoveWorktree, CloseDeleteEverything}
}

// Close executes one close outcome for a pane.
//
// delete_everything refuses a dirty worktree with ErrUncommittedChanges;
// the dispatcher routes that through the commit-message flow and calls
// Close again afterwards.
func (m *Manager) Close(ctx context.Context, paneID string, mode CloseMode) error {
	pane, ok := m.Store.Pane(paneID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPaneNotFound, paneID)
	}

	if mode == CloseDeleteEverything && pane.Kind == state.KindWorktree && pane.WorktreePath != "" {
		clean, err := m.Git.IsClean(ctx, pane.WorktreePath)
		if err == nil && !clean {
			return fmt.Errorf("%w: %s", ErrUncommittedChanges, pane.WorktreePath)
		}
	}

	// no further keystrokes may reach a pane being destroyed
	if m.Workers != nil {
		m.Workers.StopPane(paneID)
	}
	m.closeSideWindows(pane)

	if pane.TerminalPaneID != "" {
		if err := m.Tmux.KillPane(pane.TerminalPaneID); err != nil {
			m.logger().Debug("pane kill failed, assuming already gone",
				"pane", paneID, "target", pane.TerminalPaneID, "error", err)
		}
	}

	// conflict panes point their path at the parent repo; only real
	// worktree panes own something removable
	ownsWorktree := pane.Kind == state.KindWorktree && pane.WorktreePath != ""
	branch := m.settings().BranchPrefix + pane.Slug
	switch mode {
	case CloseKillOnly:
		if ownsWorktree {
			if err := m.orphanPane(paneID); err != nil {
				return err
			}
		} else if err := m.Store.RemovePane(paneID); err != nil {
			return err
		}
	case CloseRemoveWorktree, CloseDeleteEverything:
		if ownsWorktree {
			if err := m.Git.RemoveWorktree(ctx, m.Store.ProjectRoot(), pane.WorktreePath); err != nil {
				m.logger().Warn("worktree removal failed", "path", pane.WorktreePath, "error", err)
			}
			if mode == CloseDeleteEverything {
				m.Git.DeleteBranch(ctx, m.Store.ProjectRoot(), branch)
			}
		}
		if err := m.Store.RemovePane(paneID); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown close mode %q", mode)
	}

	if control, err := m.controlPane(ctx); err == nil {
		m.applyLayout(ctx, control)
	}
	m.EnsureWelcomePolicy(ctx)

	if m.Hooks != nil {
		m.Hooks.Fire(ctx, hooks.PaneClosed, hooks.Env{
			PaneID:       paneID,
			Slug:         pane.Slug,
			WorktreePath: pane.WorktreePath,
			Branch:       branch,
			Agent:        pane.Agent,
		})
	}

	m.logger().Info("pane closed", "pane", paneID, "slug", pane.Slug, "mode", string(mode))
	return nil
}

// orphanPane detaches a pane from its dead terminal but keeps the record
// so the worktree can be reopened later.
func (m *Manager) orphanPane(paneID string) error {
	return m.Store.UpdatePane(paneID, func(p *state.Pane) {
		p.TerminalPaneID = ""
		p.Orphaned = true
		p.AgentStatus = ""
		p.OptionsQuestion = ""
		p.Options = nil
		p.PotentialHarm = nil
		p.DevWindowID = ""
		p.TestWindowID = ""
		p.DevStatus = ""
		p.TestStatus = ""
		p.DevURL = ""
	})
}

func (m *Manager) closeSideWindows(pane state.Pane) {
	for _, window := range []string{pane.DevWindowID, pane.TestWindowID} {
		if window == "" {
			continue
		}
		if err := m.Tmux.KillWindow(window); err != nil {
			m.logger().Debug("side window kill failed", "window", window, "error", err)
		}
	}
}

// EnsureWelcomePolicy keeps exactly one welcome pane alive while the
// project has no live content panes, and none otherwise. Safe to call any
// number of times.
func (m *Manager) EnsureWelcomePolicy(ctx context.Context) {
	var (
		liveContent int
		welcome     *state.Pane
	)
	for _, p := range m.Store.ListPanes() {
		switch {
		case p.Kind == state.KindWelcome:
			if p.Live() {
				w := p
				welcome = &w
			}
		case p.Live():
			liveContent++
		}
	}

	switch {
	case liveContent == 0 && welcome == nil:
		m.spawnWelcome(ctx)
	case liveContent > 0 && welcome != nil:
		if err := m.Tmux.KillPane(welcome.TerminalPaneID); err != nil {
			m.logger().Debug("welcome kill failed", "error", err)
		}
		if err := m.Store.RemovePane(welcome.ID); err != nil {
			m.logger().Warn("welcome pane removal failed", "error", err)
		}
	}
}

func (m *Manager) spawnWelcome(ctx context.Context) {
	control, err := m.controlPane(ctx)
	if err != nil {
		m.logger().Debug("no control pane, skipping welcome", "error", err)
		return
	}
	target, err := m.Tmux.SplitWindow(ctx, control, m.Store.ProjectRoot())
	if err != nil {
		m.logger().Warn("welcome split failed", "error", err)
		return
	}
	m.sleep(ctx, m.settleDelay)
	// replace the shell with the welcome screen so quitting it closes the pane
	if err := m.Tmux.SendText(ctx, target, "exec dmux welcome", true); err != nil {
		m.logger().Debug("welcome launch failed", "error", err)
	}

	pane := state.Pane{
		ID:             m.Store.NewPaneID(),
		Slug:           agent.UniqueSlug("welcome", m.Store.SlugInUse),
		Kind:           state.KindWelcome,
		TerminalPaneID: target,
		ProjectRoot:    m.Store.ProjectRoot(),
		ProjectName:    m.Store.ProjectName(),
	}
	if err := m.Store.AddPane(pane); err != nil {
		m.logger().Warn("welcome pane registration failed", "error", err)
		return
	}
	m.applyLayout(ctx, control, target)
	m.restoreControl(ctx, control)
}

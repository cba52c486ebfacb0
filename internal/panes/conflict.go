package panes

import (
	"context"
	"fmt"

	"github.com/Dicklesworthstone/dmux/internal/agent"
	"github.com/Dicklesworthstone/dmux/internal/state"
	"github.com/Dicklesworthstone/dmux/internal/worker"
)

// ConflictRequest describes a conflict-resolution pane. Dir is the
// repository already stopped mid-merge; no worktree is created.
type ConflictRequest struct {
	Slug   string
	Dir    string
	Agent  string
	Prompt string
}

// OpenConflictPane splits a pane inside the conflicted repository and
// launches an agent there with instructions. The merge orchestrator owns
// the pane's lifecycle and closes it once the tree is clean again.
func (m *Manager) OpenConflictPane(ctx context.Context, req ConflictRequest) (state.Pane, error) {
	if req.Dir == "" {
		return state.Pane{}, fmt.Errorf("conflict pane needs a repository dir")
	}
	agentName := req.Agent
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
	target, err := m.Tmux.SplitWindow(ctx, control, req.Dir)
	if err != nil {
		return state.Pane{}, fmt.Errorf("splitting pane: %w", err)
	}
	m.sleep(ctx, m.settleDelay)

	slug := agent.UniqueSlug(req.Slug, m.Store.SlugInUse)
	if err := m.Tmux.SetPaneTitle(target, slug); err != nil {
		m.logger().Debug("setting pane title failed", "pane", target, "error", err)
	}
	m.applyLayout(ctx, control, target)

	m.launchAgent(ctx, target, spec, m.settings().PermissionMode, req.Prompt)

	pane := state.Pane{
		ID:             m.Store.NewPaneID(),
		Slug:           slug,
		Kind:           state.KindConflictResolution,
		Prompt:         req.Prompt,
		TerminalPaneID: target,
		WorktreePath:   req.Dir,
		Agent:          agentName,
		ProjectRoot:    m.Store.ProjectRoot(),
		ProjectName:    m.Store.ProjectName(),
		AgentStatus:    state.StatusWorking,
	}
	if err := m.Store.AddPane(pane); err != nil {
		return state.Pane{}, fmt.Errorf("registering conflict pane: %w", err)
	}

	go worker.AcknowledgeTrustPrompts(context.WithoutCancel(ctx), m.Tmux, m.logger(), agentName, pane.ID, target)

	m.restoreControl(ctx, control)
	m.EnsureWelcomePolicy(ctx)

	m.logger().Info("conflict resolution pane opened",
		"pane", pane.ID, "slug", slug, "dir", req.Dir, "agent", agentName)
	return pane, nil
}

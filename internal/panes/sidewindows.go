package panes

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/Dicklesworthstone/dmux/internal/state"
)

// SideKind selects which helper window an action targets.
type SideKind string

const (
	SideDev  SideKind = "dev"
	SideTest SideKind = "test"
)

const (
	urlDetectWindow = 30 * time.Second
	urlDetectPoll   = 1 * time.Second
)

var devURLPattern = regexp.MustCompile(`https?://(?:localhost|127\.0\.0\.1|0\.0\.0\.0|\[::1\])(?::\d+)?(?:/\S*)?`)

// OpenSideWindow starts a dev server or test runner in a dedicated tmux
// window bound to the pane's worktree. Reusing an existing window just
// restarts the command in it.
func (m *Manager) OpenSideWindow(ctx context.Context, paneID string, kind SideKind, command string) error {
	pane, ok := m.Store.Pane(paneID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPaneNotFound, paneID)
	}
	if pane.WorktreePath == "" {
		return fmt.Errorf("pane %s has no worktree for a %s window", paneID, kind)
	}
	if command == "" {
		return fmt.Errorf("no %s command given", kind)
	}

	window := pane.DevWindowID
	if kind == SideTest {
		window = pane.TestWindowID
	}
	if window == "" {
		created, err := m.Tmux.NewWindow(ctx, m.sessionName(), pane.Slug+"-"+string(kind), pane.WorktreePath)
		if err != nil {
			m.publishSideStatus(paneID, kind, state.SideFailed)
			return fmt.Errorf("creating %s window: %w", kind, err)
		}
		window = created
	}

	if err := m.Tmux.SendText(ctx, window, command, true); err != nil {
		m.publishSideStatus(paneID, kind, state.SideFailed)
		return fmt.Errorf("starting %s command: %w", kind, err)
	}

	err := m.Store.UpdatePane(paneID, func(p *state.Pane) {
		switch kind {
		case SideDev:
			p.DevWindowID = window
			p.DevStatus = state.SideStarting
		case SideTest:
			p.TestWindowID = window
			p.TestStatus = state.SideStarting
		}
	})
	if err != nil {
		return err
	}

	if kind == SideDev {
		go m.detectDevURL(context.WithoutCancel(ctx), paneID, window)
	} else {
		m.publishSideStatus(paneID, kind, state.SideRunning)
	}
	m.logger().Info("side window opened", "pane", paneID, "kind", string(kind), "window", window)
	return nil
}

// CloseSideWindow kills the helper window and clears its bookkeeping.
func (m *Manager) CloseSideWindow(ctx context.Context, paneID string, kind SideKind) error {
	pane, ok := m.Store.Pane(paneID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPaneNotFound, paneID)
	}
	window := pane.DevWindowID
	if kind == SideTest {
		window = pane.TestWindowID
	}
	if window == "" {
		return nil
	}
	if err := m.Tmux.KillWindow(window); err != nil {
		m.logger().Debug("side window kill failed", "window", window, "error", err)
	}
	return m.Store.UpdatePane(paneID, func(p *state.Pane) {
		switch kind {
		case SideDev:
			p.DevWindowID = ""
			p.DevStatus = state.SideStopped
			p.DevURL = ""
		case SideTest:
			p.TestWindowID = ""
			p.TestStatus = state.SideStopped
		}
	})
}

func (m *Manager) sessionName() string {
	return "dmux-" + m.Store.ProjectName()
}

func (m *Manager) publishSideStatus(paneID string, kind SideKind, status state.SideStatus) {
	update := state.StatusUpdate{}
	if kind == SideDev {
		update.DevStatus = status
	} else {
		update.TestStatus = status
	}
	if err := m.Store.UpdatePaneStatus(paneID, update); err != nil {
		m.logger().Debug("side status update failed", "pane", paneID, "error", err)
	}
}

// detectDevURL watches the dev window's output for a local URL for a
// bounded interval, marking the server running once one appears.
func (m *Manager) detectDevURL(ctx context.Context, paneID, window string) {
	deadline := time.After(urlDetectWindow)
	ticker := time.NewTicker(urlDetectPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			m.publishSideStatus(paneID, SideDev, state.SideRunning)
			return
		case <-ticker.C:
		}
		content, err := m.Tmux.CapturePane(ctx, window, 50)
		if err != nil {
			continue
		}
		if url := devURLPattern.FindString(content); url != "" {
			update := state.StatusUpdate{DevStatus: state.SideRunning, DevURL: &url}
			if err := m.Store.UpdatePaneStatus(paneID, update); err != nil {
				m.logger().Debug("dev url update failed", "pane", paneID, "error", err)
			}
			m.logger().Info("dev server detected", "pane", paneID, "url", url)
			return
		}
	}
}

package e2e

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Dicklesworthstone/dmux/internal/panes"
	"github.com/Dicklesworthstone/dmux/internal/state"
)

// TestPaneLifecycle creates a worktree pane from a prompt, checks every
// artifact it owns, and tears all of them down with delete_everything.
func TestPaneLifecycle(t *testing.T) {
	skipUnlessE2E(t)

	suite := NewTestSuite(t, "pane-lifecycle")
	if err := suite.Setup(); err != nil {
		t.Fatalf("[E2E-SETUP] %v", err)
	}
	defer suite.Teardown()

	ctx := context.Background()

	suite.logger.Log("[E2E-STEP] Creating a worktree pane from a prompt")
	pane, err := suite.panes.Create(ctx, panes.CreateRequest{Prompt: "fix the login flow", Agent: "claude"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	suite.logger.LogJSON("created pane", pane)

	if pane.Slug != "fix-login" {
		t.Errorf("slug = %q, want %q (the agent's label for the prompt)", pane.Slug, "fix-login")
	}
	if pane.Kind != state.KindWorktree {
		t.Errorf("kind = %q, want %q", pane.Kind, state.KindWorktree)
	}
	if pane.Agent != "claude" {
		t.Errorf("agent = %q, want claude", pane.Agent)
	}
	wantSuffix := filepath.Join(".dmux", "worktrees", pane.Slug)
	if !strings.HasSuffix(pane.WorktreePath, wantSuffix) {
		t.Errorf("worktree path %q does not end in %q", pane.WorktreePath, wantSuffix)
	}
	if fi, err := os.Stat(pane.WorktreePath); err != nil || !fi.IsDir() {
		t.Errorf("worktree directory missing: %v", err)
	}

	branch := "dmux/" + pane.Slug
	if !suite.git.BranchExists(ctx, suite.root, branch) {
		t.Errorf("branch %s was not created", branch)
	}

	ids, err := suite.tmux.ListSessionPaneIDs(ctx, suite.session)
	if err != nil {
		t.Fatalf("listing session panes: %v", err)
	}
	live := false
	for _, id := range ids {
		if id == pane.TerminalPaneID {
			live = true
		}
	}
	if !live {
		t.Errorf("terminal pane %s not in session panes %v", pane.TerminalPaneID, ids)
	}

	// The record must survive a reload by an independent store.
	fresh := state.NewStore(suite.root)
	if err := fresh.Load(ctx); err != nil {
		t.Fatalf("reloading store: %v", err)
	}
	reloaded, ok := fresh.Pane(pane.ID)
	if !ok {
		t.Fatal("pane missing from persisted snapshot")
	}
	if reloaded.Slug != pane.Slug || reloaded.WorktreePath != pane.WorktreePath {
		t.Errorf("persisted pane diverged: %+v", reloaded)
	}

	suite.logger.Log("[E2E-STEP] Creating a second pane with the same label")
	second, err := suite.panes.Create(ctx, panes.CreateRequest{Prompt: "fix the login flow again", Agent: "claude"})
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if second.Slug == pane.Slug {
		t.Errorf("second pane reused live slug %q", second.Slug)
	}
	suite.logger.Log("[E2E-STEP] Second pane slug: %s", second.Slug)

	suite.logger.Log("[E2E-STEP] Closing the first pane with delete_everything")
	if err := suite.panes.Close(ctx, pane.ID, panes.CloseDeleteEverything); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, ok := suite.store.Pane(pane.ID); ok {
		t.Error("pane record still present after close")
	}
	if _, err := os.Stat(pane.WorktreePath); !os.IsNotExist(err) {
		t.Errorf("worktree directory still present: %v", err)
	}
	if suite.git.BranchExists(ctx, suite.root, branch) {
		t.Errorf("branch %s still exists after delete_everything", branch)
	}

	// The second pane and its artifacts are untouched.
	if _, ok := suite.store.Pane(second.ID); !ok {
		t.Error("second pane disappeared with the first one")
	}
	if _, err := os.Stat(second.WorktreePath); err != nil {
		t.Errorf("second worktree gone: %v", err)
	}
}

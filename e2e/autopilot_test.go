package e2e

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Dicklesworthstone/dmux/internal/action"
	"github.com/Dicklesworthstone/dmux/internal/state"
)

// safeDialogScript draws a Claude-style numbered menu, waits for a single
// keystroke, then shows a busy indicator. The one-byte read makes the
// autopilot's answer observable: the busy line only ever appears after a
// key arrived.
const safeDialogScript = `#!/bin/sh
printf 'Do you want to create auth.ts?\n'
printf '\342\235\257 1. Yes, proceed\n'
printf '  2. No, exit\n'
dd bs=1 count=1 >/dev/null 2>&1
printf '\n* Crafting... (esc to interrupt)\n'
while read -r _; do :; done
`

// destructiveDialogScript asks a y/n question about deleting files. If any
// keystroke arrives the marker line appears, which the test treats as an
// autopilot violation.
const destructiveDialogScript = `#!/bin/sh
printf 'Delete the generated fixtures? [y/n]\n'
dd bs=1 count=1 >/dev/null 2>&1
printf 'ANSWERED\n'
while read -r _; do :; done
`

// registerScriptPane starts a script pane and adds a worktree pane record
// pointing at it, so the worker supervisor picks it up.
func registerScriptPane(ctx context.Context, t *testing.T, suite *TestSuite, slug, script string, autopilot bool) state.Pane {
	t.Helper()
	target, err := suite.ScriptPane(ctx, script)
	if err != nil {
		t.Fatalf("script pane: %v", err)
	}
	pane := state.Pane{
		ID:             suite.store.NewPaneID(),
		Slug:           slug,
		Kind:           state.KindWorktree,
		TerminalPaneID: target,
		ProjectRoot:    suite.root,
		ProjectName:    suite.store.ProjectName(),
		Agent:          "claude",
		AgentStatus:    state.StatusUnknown,
		Autopilot:      autopilot,
	}
	if err := suite.store.AddPane(pane); err != nil {
		t.Fatalf("registering pane: %v", err)
	}
	return pane
}

// TestAutopilotAnswersSafeDialog checks that a pane with autopilot on gets
// its default option accepted: the worker sends Enter once and the pane
// transitions back to working on the next tick.
func TestAutopilotAnswersSafeDialog(t *testing.T) {
	skipUnlessE2E(t)

	suite := NewTestSuite(t, "autopilot-safe")
	if err := suite.Setup(); err != nil {
		t.Fatalf("[E2E-SETUP] %v", err)
	}
	defer suite.Teardown()

	ctx := context.Background()
	pane := registerScriptPane(ctx, t, suite, "autopilot-safe", safeDialogScript, true)

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	suite.workers.Interval = 200 * time.Millisecond
	go suite.workers.Run(wctx)

	suite.logger.Log("[E2E-STEP] Waiting for the autopilot to accept the default option")
	waitFor(t, 15*time.Second, "the dialog to be answered and the agent to resume", func() bool {
		p, ok := suite.store.Pane(pane.ID)
		if !ok || p.AgentStatus != state.StatusWorking {
			return false
		}
		return strings.Contains(suite.Capture(ctx, pane.TerminalPaneID, 30), "esc to interrupt")
	})

	content := suite.Capture(ctx, pane.TerminalPaneID, 50)
	suite.logger.Log("[E2E-CAPTURE] final pane content:\n%s", content)
	if strings.Count(content, "Crafting") != 1 {
		t.Errorf("busy indicator printed %d times, want 1", strings.Count(content, "Crafting"))
	}

	p, _ := suite.store.Pane(pane.ID)
	if len(p.Options) != 0 || p.OptionsQuestion != "" {
		t.Errorf("options not cleared after the dialog resolved: %+v", p.Options)
	}
}

// TestAutopilotRefusesDestructiveDialog checks the other half of the
// policy: a dialog whose text proposes deleting something never receives
// an automatic keystroke, even with autopilot on. A human answer through
// the dispatcher still goes through.
func TestAutopilotRefusesDestructiveDialog(t *testing.T) {
	skipUnlessE2E(t)

	suite := NewTestSuite(t, "autopilot-destructive")
	if err := suite.Setup(); err != nil {
		t.Fatalf("[E2E-SETUP] %v", err)
	}
	defer suite.Teardown()

	ctx := context.Background()
	pane := registerScriptPane(ctx, t, suite, "autopilot-destructive", destructiveDialogScript, true)

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	suite.workers.Interval = 200 * time.Millisecond
	go suite.workers.Run(wctx)

	suite.logger.Log("[E2E-STEP] Waiting for the dialog to be published")
	waitFor(t, 15*time.Second, "the waiting status with options", func() bool {
		p, ok := suite.store.Pane(pane.ID)
		return ok && p.AgentStatus == state.StatusWaiting && len(p.Options) == 2
	})

	suite.logger.Log("[E2E-STEP] Verifying no keystroke arrives")
	stillBlocked := holdsFor(3*time.Second, func() bool {
		if strings.Contains(suite.Capture(ctx, pane.TerminalPaneID, 30), "ANSWERED") {
			return false
		}
		p, ok := suite.store.Pane(pane.ID)
		return ok && p.AgentStatus == state.StatusWaiting
	})
	if !stillBlocked {
		t.Fatalf("destructive dialog was answered automatically:\n%s",
			suite.Capture(ctx, pane.TerminalPaneID, 30))
	}

	suite.logger.Log("[E2E-STEP] Answering as the human")
	res := suite.dispatch.AnswerDialog(ctx, pane.ID, "Yes")
	if res.Type != action.TypeSuccess {
		t.Fatalf("AnswerDialog: %s", res.Message)
	}
	waitFor(t, 10*time.Second, "the human answer to reach the pane", func() bool {
		return strings.Contains(suite.Capture(ctx, pane.TerminalPaneID, 30), "ANSWERED")
	})
}

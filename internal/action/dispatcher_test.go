package action

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/Dicklesworthstone/dmux/internal/state"
	"github.com/Dicklesworthstone/dmux/internal/tmux"
)

func testStore(t *testing.T, panes ...state.Pane) *state.Store {
	t.Helper()
	st := state.NewStore(t.TempDir())
	if err := st.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, p := range panes {
		if err := st.AddPane(p); err != nil {
			t.Fatalf("AddPane: %v", err)
		}
	}
	return st
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatchUnknownAction(t *testing.T) {
	st := testStore(t, state.Pane{ID: "dmux-1", Slug: "one", Kind: state.KindShell, TerminalPaneID: "%1"})
	d := &Dispatcher{Store: st, Logger: discardLogger()}

	res := d.Dispatch(context.Background(), Name("EXPLODE"), "dmux-1", nil)
	if res.Type != TypeError {
		t.Fatalf("result = %+v, want error", res)
	}
}

func TestDispatchViewNavigates(t *testing.T) {
	st := testStore(t, state.Pane{ID: "dmux-1", Slug: "one", Kind: state.KindWorktree, TerminalPaneID: "%7"})
	d := &Dispatcher{Store: st, Logger: discardLogger()}

	res := d.Dispatch(context.Background(), ActionView, "dmux-1", nil)
	if res.Type != TypeNavigation || res.TargetPaneID != "dmux-1" {
		t.Fatalf("result = %+v, want navigation to dmux-1", res)
	}
}

func TestDispatchViewOrphanOffersReopen(t *testing.T) {
	st := testStore(t, state.Pane{
		ID: "dmux-1", Slug: "one", Kind: state.KindWorktree,
		WorktreePath: "/work/one", Orphaned: true,
	})
	d := &Dispatcher{Store: st, Logger: discardLogger()}

	res := d.Dispatch(context.Background(), ActionView, "dmux-1", nil)
	if res.Type != TypeConfirm {
		t.Fatalf("result = %+v, want reopen confirmation", res)
	}
	if res.ConfirmLabel != "Reopen" {
		t.Errorf("ConfirmLabel = %q", res.ConfirmLabel)
	}
	if res.OnConfirm == nil {
		t.Error("confirm dialog has no continuation")
	}
}

func TestDispatchViewDeadShellPane(t *testing.T) {
	st := testStore(t, state.Pane{ID: "dmux-1", Slug: "one", Kind: state.KindShell})
	d := &Dispatcher{Store: st, Logger: discardLogger()}

	res := d.Dispatch(context.Background(), ActionView, "dmux-1", nil)
	if res.Type != TypeError {
		t.Fatalf("result = %+v, want error for a dead pane with no worktree", res)
	}
}

func TestToggleAutopilotFlips(t *testing.T) {
	st := testStore(t, state.Pane{ID: "dmux-1", Slug: "one", Kind: state.KindWorktree, TerminalPaneID: "%1"})
	d := &Dispatcher{Store: st, Logger: discardLogger()}

	if res := d.Dispatch(context.Background(), ActionToggleAutopilot, "dmux-1", nil); res.Type != TypeSuccess {
		t.Fatalf("toggle on = %+v", res)
	}
	p, _ := st.Pane("dmux-1")
	if !p.Autopilot {
		t.Fatal("autopilot still off")
	}

	if res := d.Dispatch(context.Background(), ActionToggleAutopilot, "dmux-1", nil); res.Type != TypeSuccess {
		t.Fatalf("toggle off = %+v", res)
	}
	p, _ = st.Pane("dmux-1")
	if p.Autopilot {
		t.Fatal("autopilot still on")
	}
}

func TestCopyPathFallsBackToInfo(t *testing.T) {
	st := testStore(t, state.Pane{
		ID: "dmux-1", Slug: "one", Kind: state.KindWorktree,
		TerminalPaneID: "%1", WorktreePath: "/work/one",
	})
	d := &Dispatcher{Store: st, Logger: discardLogger()}
	d.clipboardWrite = func(string) error { return errors.New("no display") }

	res := d.Dispatch(context.Background(), ActionCopyPath, "dmux-1", nil)
	if res.Type != TypeInfo {
		t.Fatalf("result = %+v, want info fallback", res)
	}
	if res.Message != "/work/one" {
		t.Errorf("message = %q", res.Message)
	}
}

func TestAnswerDialogSendsOptionKeys(t *testing.T) {
	st := testStore(t, state.Pane{
		ID: "dmux-1", Slug: "one", Kind: state.KindWorktree, TerminalPaneID: "%9",
		AgentStatus:     state.StatusWaiting,
		OptionsQuestion: "Apply this edit?",
		Options: []state.DialogOption{
			{Action: "yes", Keys: []string{"1", "Enter"}},
			{Action: "no", Keys: []string{"2", "Enter"}},
		},
	})

	var sent [][]string
	client := tmux.NewClientWithRunner(func(_ context.Context, args []string) (string, string, error) {
		sent = append(sent, append([]string(nil), args...))
		return "", "", nil
	})
	d := &Dispatcher{Store: st, Tmux: client, Logger: discardLogger()}

	res := d.AnswerDialog(context.Background(), "dmux-1", "yes")
	if res.Type != TypeSuccess {
		t.Fatalf("result = %+v", res)
	}
	if len(sent) != 2 {
		t.Fatalf("sent %d key commands, want 2", len(sent))
	}
	if sent[0][len(sent[0])-1] != "1" || sent[1][len(sent[1])-1] != "Enter" {
		t.Errorf("keys = %v", sent)
	}
}

func TestAnswerDialogUnknownOption(t *testing.T) {
	st := testStore(t, state.Pane{
		ID: "dmux-1", Slug: "one", Kind: state.KindWorktree, TerminalPaneID: "%9",
		Options: []state.DialogOption{{Action: "yes", Keys: []string{"1"}}},
	})
	d := &Dispatcher{Store: st, Logger: discardLogger()}

	res := d.AnswerDialog(context.Background(), "dmux-1", "maybe")
	if res.Type != TypeError {
		t.Fatalf("result = %+v, want error", res)
	}
}

func TestSideWindowFlowAsksForCommand(t *testing.T) {
	st := testStore(t, state.Pane{
		ID: "dmux-1", Slug: "one", Kind: state.KindWorktree,
		TerminalPaneID: "%1", WorktreePath: "/work/one",
	})
	d := &Dispatcher{Store: st, Logger: discardLogger()}

	res := d.Dispatch(context.Background(), ActionDevWindow, "dmux-1", nil)
	if res.Type != TypeInput {
		t.Fatalf("result = %+v, want input", res)
	}
	if res.Placeholder != "npm run dev" {
		t.Errorf("placeholder = %q", res.Placeholder)
	}
	if res.OnSubmit == nil {
		t.Fatal("input step has no continuation")
	}
}

func TestSideWindowFlowOffersCloseWhenOpen(t *testing.T) {
	st := testStore(t, state.Pane{
		ID: "dmux-1", Slug: "one", Kind: state.KindWorktree,
		TerminalPaneID: "%1", WorktreePath: "/work/one", TestWindowID: "@4",
	})
	d := &Dispatcher{Store: st, Logger: discardLogger()}

	res := d.Dispatch(context.Background(), ActionTestWindow, "dmux-1", nil)
	if res.Type != TypeConfirm {
		t.Fatalf("result = %+v, want confirm", res)
	}
	if res.OnConfirm == nil {
		t.Fatal("confirm step has no continuation")
	}
}

func TestSideWindowFlowRejectsShellPane(t *testing.T) {
	st := testStore(t, state.Pane{ID: "dmux-1", Slug: "sh", Kind: state.KindShell, TerminalPaneID: "%1"})
	d := &Dispatcher{Store: st, Logger: discardLogger()}

	if res := d.Dispatch(context.Background(), ActionDevWindow, "dmux-1", nil); res.Type != TypeError {
		t.Fatalf("result = %+v, want error", res)
	}
}

func TestActionCatalog(t *testing.T) {
	if got := ActionOpenPR.Label(); got != "Open PR" {
		t.Errorf("OPEN_PR label = %q", got)
	}
	if got := Name("CUSTOM").Label(); got != "CUSTOM" {
		t.Errorf("unknown label = %q", got)
	}

	worktree := For(state.Pane{Kind: state.KindWorktree})
	if len(worktree) != len(Names()) {
		t.Errorf("worktree actions = %d, want all %d", len(worktree), len(Names()))
	}
	welcome := For(state.Pane{Kind: state.KindWelcome})
	if len(welcome) != 2 {
		t.Errorf("welcome actions = %v", welcome)
	}
	for _, n := range For(state.Pane{Kind: state.KindShell}) {
		if n == ActionMerge || n == ActionOpenPR {
			t.Errorf("shell pane offers %s", n)
		}
	}
}

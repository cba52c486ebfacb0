package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/Dicklesworthstone/dmux/internal/agent"
	"github.com/Dicklesworthstone/dmux/internal/state"
)

// fakeTerminal serves captures from a script and records every key sent.
type fakeTerminal struct {
	mu         sync.Mutex
	captures   []string
	idx        int
	sent       []string
	captureErr error
}

func (f *fakeTerminal) CapturePane(ctx context.Context, target string, lines int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.captureErr != nil {
		return "", f.captureErr
	}
	if len(f.captures) == 0 {
		return "", nil
	}
	c := f.captures[f.idx]
	if f.idx < len(f.captures)-1 {
		f.idx++
	}
	return c, nil
}

func (f *fakeTerminal) SendNamedKey(ctx context.Context, target, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, key)
	return nil
}

func (f *fakeTerminal) sentKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// fakeStore records status updates and serves one configurable pane.
type fakeStore struct {
	mu      sync.Mutex
	pane    state.Pane
	found   bool
	updates []state.StatusUpdate
}

func (f *fakeStore) Pane(id string) (state.Pane, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pane.Clone(), f.found
}

func (f *fakeStore) UpdatePaneStatus(id string, u state.StatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
	return nil
}

func (f *fakeStore) statuses() []state.AgentStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]state.AgentStatus, 0, len(f.updates))
	for _, u := range f.updates {
		out = append(out, u.AgentStatus)
	}
	return out
}

func (f *fakeStore) lastUpdate(t *testing.T) state.StatusUpdate {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.updates) == 0 {
		t.Fatal("no status updates published")
	}
	return f.updates[len(f.updates)-1]
}

func newTestMonitor(term *fakeTerminal, st *fakeStore, llm llmFunc) *Monitor {
	return &Monitor{
		PaneID:  "dmux-1",
		Agent:   "claude",
		Target:  "%5",
		Tmux:    term,
		Store:   st,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		analyze: llm,
		cache:   newAnalysisCache(cacheCapacity, cacheTTL),
	}
}

const dialogCapture = `Do you want to create the file?
❯ 1. Yes
  2. No
`

const workingCapture = `Compiling project...
esc to interrupt
`

const unclassifiedCapture = `copied 14 files
linking objects
build artifacts written
`

func TestTickPublishesWorkingFromPatterns(t *testing.T) {
	term := &fakeTerminal{captures: []string{workingCapture}}
	st := &fakeStore{pane: state.Pane{ID: "dmux-1"}, found: true}
	m := newTestMonitor(term, st, nil)

	m.tick(context.Background())

	got := st.lastUpdate(t)
	if got.AgentStatus != state.StatusWorking {
		t.Fatalf("status = %q, want working", got.AgentStatus)
	}
	if got.Options == nil || len(got.Options) != 0 {
		t.Errorf("options not cleared: %v", got.Options)
	}
	if !got.ClearHarm {
		t.Error("harm not cleared on working")
	}
	if len(term.sentKeys()) != 0 {
		t.Errorf("keys sent while working: %v", term.sentKeys())
	}
}

func TestTickPublishesDialog(t *testing.T) {
	term := &fakeTerminal{captures: []string{dialogCapture}}
	st := &fakeStore{pane: state.Pane{ID: "dmux-1"}, found: true}
	m := newTestMonitor(term, st, nil)

	m.tick(context.Background())

	got := st.lastUpdate(t)
	if got.AgentStatus != state.StatusWaiting {
		t.Fatalf("status = %q, want waiting", got.AgentStatus)
	}
	if got.OptionsQuestion == nil || *got.OptionsQuestion != "Do you want to create the file?" {
		t.Errorf("question = %v", got.OptionsQuestion)
	}
	if len(got.Options) != 2 || got.Options[0].Action != "Yes" || got.Options[0].Keys[0] != "Enter" {
		t.Errorf("options = %+v", got.Options)
	}
	if len(term.sentKeys()) != 0 {
		t.Errorf("autopilot fired without the flag: %v", term.sentKeys())
	}
}

func TestAutopilotAnswersDialogOnce(t *testing.T) {
	term := &fakeTerminal{captures: []string{dialogCapture, dialogCapture, workingCapture, dialogCapture}}
	st := &fakeStore{pane: state.Pane{ID: "dmux-1", Autopilot: true}, found: true}
	m := newTestMonitor(term, st, nil)

	ctx := context.Background()
	m.tick(ctx) // dialog: answer
	m.tick(ctx) // same dialog: no repeat
	m.tick(ctx) // working: resets the one-shot guard
	m.tick(ctx) // dialog again: answer again

	keys := term.sentKeys()
	if len(keys) != 2 || keys[0] != "Enter" || keys[1] != "Enter" {
		t.Fatalf("sent = %v, want [Enter Enter]", keys)
	}
}

func TestAutopilotRefusesDestructiveDialog(t *testing.T) {
	const deleteCapture = `Delete the generated fixtures? [y/n]
`
	term := &fakeTerminal{captures: []string{deleteCapture}}
	st := &fakeStore{pane: state.Pane{ID: "dmux-1", Autopilot: true}, found: true}
	m := newTestMonitor(term, st, nil)

	m.tick(context.Background())

	if len(term.sentKeys()) != 0 {
		t.Fatalf("destructive dialog was auto-answered: %v", term.sentKeys())
	}
	got := st.lastUpdate(t)
	if got.AgentStatus != state.StatusWaiting {
		t.Fatalf("status = %q, want waiting", got.AgentStatus)
	}
	if len(got.Options) != 2 {
		t.Errorf("options not published for the human: %+v", got.Options)
	}
}

func TestAutopilotBlockedByRiskFlag(t *testing.T) {
	term := &fakeTerminal{captures: []string{dialogCapture}}
	st := &fakeStore{
		pane: state.Pane{
			ID:            "dmux-1",
			Autopilot:     true,
			PotentialHarm: &state.PotentialHarm{HasRisk: true, Description: "overwrites prod config"},
		},
		found: true,
	}
	m := newTestMonitor(term, st, nil)

	m.tick(context.Background())

	if len(term.sentKeys()) != 0 {
		t.Fatalf("risky dialog was auto-answered: %v", term.sentKeys())
	}
	if got := st.lastUpdate(t); got.AgentStatus != state.StatusWaiting {
		t.Fatalf("status = %q, want waiting", got.AgentStatus)
	}
}

func TestModelOptionsAreNeverSent(t *testing.T) {
	llm := func(ctx context.Context, agentName, content string) (*agent.LLMAnalysis, error) {
		return &agent.LLMAnalysis{
			State:    "waiting",
			Question: "Deploy to production?",
			Options:  []agent.Option{{Action: "Deploy", Keys: []string{"d"}}},
		}, nil
	}
	term := &fakeTerminal{captures: []string{unclassifiedCapture}}
	st := &fakeStore{pane: state.Pane{ID: "dmux-1", Autopilot: true}, found: true}
	m := newTestMonitor(term, st, llm)

	m.tick(context.Background())

	if len(term.sentKeys()) != 0 {
		t.Fatalf("model-suggested keys reached the terminal: %v", term.sentKeys())
	}
	got := st.lastUpdate(t)
	if got.AgentStatus != state.StatusWaiting {
		t.Fatalf("status = %q, want waiting", got.AgentStatus)
	}
	if len(got.Options) != 1 || got.Options[0].Action != "Deploy" {
		t.Errorf("options = %+v", got.Options)
	}
}

func TestModelHarmIsPublished(t *testing.T) {
	llm := func(ctx context.Context, agentName, content string) (*agent.LLMAnalysis, error) {
		return &agent.LLMAnalysis{
			State:         "waiting",
			Question:      "Run rm -rf build?",
			Options:       []agent.Option{{Action: "Yes", Keys: []string{"y"}}},
			PotentialHarm: &agent.Harm{HasRisk: true, Description: "deletes files"},
		}, nil
	}
	term := &fakeTerminal{captures: []string{unclassifiedCapture}}
	st := &fakeStore{pane: state.Pane{ID: "dmux-1"}, found: true}
	m := newTestMonitor(term, st, llm)

	m.tick(context.Background())

	got := st.lastUpdate(t)
	if got.PotentialHarm == nil || !got.PotentialHarm.HasRisk {
		t.Fatalf("harm = %+v, want flagged", got.PotentialHarm)
	}
}

func TestModelIdlePublishesSummary(t *testing.T) {
	llm := func(ctx context.Context, agentName, content string) (*agent.LLMAnalysis, error) {
		return &agent.LLMAnalysis{State: "idle", Summary: "Finished refactoring the parser."}, nil
	}
	term := &fakeTerminal{captures: []string{unclassifiedCapture}}
	st := &fakeStore{pane: state.Pane{ID: "dmux-1"}, found: true}
	m := newTestMonitor(term, st, llm)

	m.tick(context.Background())

	got := st.lastUpdate(t)
	if got.AgentStatus != state.StatusIdle {
		t.Fatalf("status = %q, want idle", got.AgentStatus)
	}
	if got.AgentSummary == nil || *got.AgentSummary != "Finished refactoring the parser." {
		t.Errorf("summary = %v", got.AgentSummary)
	}
}

func TestAnalyzingPublishedWhileModelRuns(t *testing.T) {
	llm := func(ctx context.Context, agentName, content string) (*agent.LLMAnalysis, error) {
		return &agent.LLMAnalysis{State: "working"}, nil
	}
	term := &fakeTerminal{captures: []string{unclassifiedCapture}}
	st := &fakeStore{pane: state.Pane{ID: "dmux-1"}, found: true}
	m := newTestMonitor(term, st, llm)

	m.tick(context.Background())

	statuses := st.statuses()
	if len(statuses) != 2 || statuses[0] != state.StatusAnalyzing || statuses[1] != state.StatusWorking {
		t.Fatalf("statuses = %v, want [analyzing working]", statuses)
	}
}

func TestCacheSkipsRepeatModelCalls(t *testing.T) {
	calls := 0
	llm := func(ctx context.Context, agentName, content string) (*agent.LLMAnalysis, error) {
		calls++
		return &agent.LLMAnalysis{State: "idle", Summary: "Done."}, nil
	}
	term := &fakeTerminal{captures: []string{unclassifiedCapture, unclassifiedCapture}}
	st := &fakeStore{pane: state.Pane{ID: "dmux-1"}, found: true}
	m := newTestMonitor(term, st, llm)

	ctx := context.Background()
	m.tick(ctx)
	m.tick(ctx)

	if calls != 1 {
		t.Fatalf("model calls = %d, want 1", calls)
	}
	if got := st.lastUpdate(t); got.AgentStatus != state.StatusIdle {
		t.Fatalf("cached status = %q, want idle", got.AgentStatus)
	}
}

func TestModelFailurePublishesUnknown(t *testing.T) {
	llm := func(ctx context.Context, agentName, content string) (*agent.LLMAnalysis, error) {
		return nil, errors.New("model timeout")
	}
	term := &fakeTerminal{captures: []string{unclassifiedCapture}}
	st := &fakeStore{pane: state.Pane{ID: "dmux-1"}, found: true}
	m := newTestMonitor(term, st, llm)

	m.tick(context.Background())

	if got := st.lastUpdate(t); got.AgentStatus != state.StatusUnknown {
		t.Fatalf("status = %q, want unknown", got.AgentStatus)
	}
}

func TestNoPublishAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	llm := func(ctx context.Context, agentName, content string) (*agent.LLMAnalysis, error) {
		cancel()
		return &agent.LLMAnalysis{State: "idle"}, nil
	}
	term := &fakeTerminal{captures: []string{unclassifiedCapture}}
	st := &fakeStore{pane: state.Pane{ID: "dmux-1"}, found: true}
	m := newTestMonitor(term, st, llm)

	m.tick(ctx)

	statuses := st.statuses()
	if len(statuses) != 1 || statuses[0] != state.StatusAnalyzing {
		t.Fatalf("statuses = %v, want only analyzing before cancel", statuses)
	}
}

func TestBlankCapturePublishesNothing(t *testing.T) {
	term := &fakeTerminal{captures: []string{"   \n  \n"}}
	st := &fakeStore{pane: state.Pane{ID: "dmux-1"}, found: true}
	m := newTestMonitor(term, st, nil)

	m.tick(context.Background())

	if n := len(st.statuses()); n != 0 {
		t.Fatalf("updates = %d, want 0", n)
	}
}

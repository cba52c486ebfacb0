package panes

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Dicklesworthstone/dmux/internal/agent"
	"github.com/Dicklesworthstone/dmux/internal/config"
	"github.com/Dicklesworthstone/dmux/internal/git"
	"github.com/Dicklesworthstone/dmux/internal/layout"
	"github.com/Dicklesworthstone/dmux/internal/state"
	"github.com/Dicklesworthstone/dmux/internal/tmux"
)

var worktreeAddPattern = regexp.MustCompile(`git worktree add '([^']+)'`)

// tmuxScript is a scripted tmux server: splits hand out sequential pane
// ids, display-message answers standard formats, and an in-pane
// `git worktree add` actually creates the directory.
type tmuxScript struct {
	mu       sync.Mutex
	calls    [][]string
	nextPane int
	capture  string
	override func(args []string) (string, string, error, bool)
}

func (s *tmuxScript) run(_ context.Context, args []string) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, append([]string(nil), args...))

	if s.override != nil {
		if out, stderr, err, handled := s.override(args); handled {
			return out, stderr, err
		}
	}

	switch args[0] {
	case "split-window":
		s.nextPane++
		return "%" + strconv.Itoa(9+s.nextPane), "", nil
	case "new-window":
		s.nextPane++
		return "@" + strconv.Itoa(4+s.nextPane), "", nil
	case "display-message":
		format := args[len(args)-1]
		switch {
		case strings.Contains(format, "window_width"):
			return "200 50", "", nil
		case format == "#{pane_id}":
			return "%0", "", nil
		case format == "#{window_id}":
			return "@1", "", nil
		}
		return "", "", nil
	case "capture-pane":
		if s.capture != "" {
			return s.capture, "", nil
		}
		return "esc to interrupt", "", nil
	case "send-keys":
		text := args[len(args)-1]
		if m := worktreeAddPattern.FindStringSubmatch(text); m != nil {
			if err := os.MkdirAll(m[1], 0o755); err != nil {
				return "", err.Error(), err
			}
		}
		return "", "", nil
	}
	return "", "", nil
}

func (s *tmuxScript) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var texts []string
	for _, call := range s.calls {
		if call[0] == "send-keys" || call[0] == "set-buffer" {
			texts = append(texts, call[len(call)-1])
		}
	}
	return texts
}

func (s *tmuxScript) count(command string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, call := range s.calls {
		if call[0] == command {
			n++
		}
	}
	return n
}

func (s *tmuxScript) snapshot() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.calls))
	copy(out, s.calls)
	return out
}

// gitScript answers git invocations from a small table.
type gitScript struct {
	mu      sync.Mutex
	calls   [][]string
	status  string
	listOut string
}

func (g *gitScript) run(_ context.Context, dir string, args []string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, append([]string(nil), args...))
	switch args[0] {
	case "status":
		return g.status, nil
	case "worktree":
		if len(args) > 1 && args[1] == "list" {
			return g.listOut, nil
		}
	}
	return "", nil
}

func (g *gitScript) called(sub ...string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, call := range g.calls {
		if len(call) < len(sub) {
			continue
		}
		match := true
		for i := range sub {
			if call[i] != sub[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

type testEnv struct {
	mgr  *Manager
	st   *state.Store
	tm   *tmuxScript
	gi   *gitScript
	root string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	st := state.NewStore(root)
	if err := st.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	script := &tmuxScript{}
	client := tmux.NewClientWithRunner(script.run)
	gi := &gitScript{}
	gitSvc := git.NewServiceWithRunner(gi.run)

	slugExec := func(ctx context.Context, name string, args []string) (string, error) {
		return "fix-auth", nil
	}
	harness := agent.NewHarnessWithExec(config.Default(), slugExec)

	mgr := NewManager(st, state.NewSettingsStore(root), config.Default(), client, gitSvc, layout.NewEngine(client), harness)
	mgr.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr.ControlPane = "%0"
	mgr.lookPath = func(string) (string, error) { return "/usr/bin/agent", nil }
	mgr.settleDelay = 0
	mgr.startDelay = 0
	return &testEnv{mgr: mgr, st: st, tm: script, gi: gi, root: root}
}

func TestCreateRegistersWorktreePane(t *testing.T) {
	env := newTestEnv(t)

	pane, err := env.mgr.Create(context.Background(), CreateRequest{Prompt: "fix the auth flow", Agent: "claude"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if pane.Slug != "fix-auth" {
		t.Errorf("slug = %q, want fix-auth", pane.Slug)
	}
	if pane.Kind != state.KindWorktree {
		t.Errorf("kind = %q", pane.Kind)
	}
	wantPath := filepath.Join(env.root, ".dmux", "worktrees", "fix-auth")
	if pane.WorktreePath != wantPath {
		t.Errorf("worktreePath = %q, want %q", pane.WorktreePath, wantPath)
	}
	if pane.TerminalPaneID == "" {
		t.Error("pane has no terminal")
	}
	if pane.Agent != "claude" {
		t.Errorf("agent = %q", pane.Agent)
	}

	stored, ok := env.st.Pane(pane.ID)
	if !ok {
		t.Fatal("pane not in store")
	}
	if stored.Slug != "fix-auth" {
		t.Errorf("stored slug = %q", stored.Slug)
	}
	if info, err := os.Stat(wantPath); err != nil || !info.IsDir() {
		t.Errorf("worktree dir missing: %v", err)
	}
}

func TestCreateSendsWorktreeAddAndLaunch(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.mgr.Create(context.Background(), CreateRequest{Prompt: "fix the auth flow", Agent: "claude"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	sent := env.tm.sent()
	var sawWorktree, sawLaunch, sawPrompt bool
	for _, text := range sent {
		if strings.Contains(text, "git worktree add") && strings.Contains(text, "-b 'dmux/fix-auth'") {
			sawWorktree = true
		}
		if text == "claude" {
			sawLaunch = true
		}
		if text == "fix the auth flow" {
			sawPrompt = true
		}
	}
	if !sawWorktree {
		t.Errorf("worktree add not issued, sent: %q", sent)
	}
	if !sawLaunch {
		t.Errorf("agent launch not issued, sent: %q", sent)
	}
	if !sawPrompt {
		t.Errorf("prompt not pasted, sent: %q", sent)
	}
	// the prompt must travel through a buffer, never send-keys
	for _, call := range env.tm.snapshot() {
		if call[0] == "send-keys" && call[len(call)-1] == "fix the auth flow" {
			t.Error("prompt went through send-keys")
		}
	}
	if env.tm.count("paste-buffer") != 1 || env.tm.count("delete-buffer") != 1 {
		t.Error("paste-buffer path incomplete")
	}
}

func TestCreateAppliesPermissionMode(t *testing.T) {
	env := newTestEnv(t)
	if err := env.mgr.Settings.Set(state.ScopeProject, "permissionMode", "plan"); err != nil {
		t.Fatalf("set permissionMode: %v", err)
	}

	if _, err := env.mgr.Create(context.Background(), CreateRequest{Agent: "claude"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	var sawLaunch bool
	for _, text := range env.tm.sent() {
		if text == "claude --permission-mode plan" {
			sawLaunch = true
		}
	}
	if !sawLaunch {
		t.Errorf("launch lacks permission flags, sent: %q", env.tm.sent())
	}
}

func TestCreateWithoutPromptUsesFallbackSlug(t *testing.T) {
	env := newTestEnv(t)

	pane, err := env.mgr.Create(context.Background(), CreateRequest{Agent: "claude"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.HasPrefix(pane.Slug, "dmux-") {
		t.Errorf("slug = %q, want dmux- prefix", pane.Slug)
	}
	if pane.Prompt != "" {
		t.Errorf("prompt = %q, want empty", pane.Prompt)
	}
}

func TestCreateDeduplicatesSlug(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.mgr.Create(ctx, CreateRequest{Prompt: "fix the auth flow", Agent: "claude"})
	if err != nil {
		t.Fatalf("first Create: %v", err)
	}
	second, err := env.mgr.Create(ctx, CreateRequest{Prompt: "fix the auth flow again", Agent: "claude"})
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if first.Slug != "fix-auth" || second.Slug != "fix-auth-2" {
		t.Fatalf("slugs = %q, %q", first.Slug, second.Slug)
	}
}

func TestResolveAgent(t *testing.T) {
	env := newTestEnv(t)

	t.Run("explicit wins", func(t *testing.T) {
		got, err := env.mgr.ResolveAgent("codex")
		if err != nil || got != "codex" {
			t.Fatalf("got %q, %v", got, err)
		}
	})

	t.Run("explicit unknown rejected", func(t *testing.T) {
		if _, err := env.mgr.ResolveAgent("clippy"); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("default agent preferred", func(t *testing.T) {
		got, err := env.mgr.ResolveAgent("")
		if err != nil || got != "claude" {
			t.Fatalf("got %q, %v", got, err)
		}
	})

	t.Run("single available chosen", func(t *testing.T) {
		env.mgr.lookPath = func(bin string) (string, error) {
			if bin == "codex" {
				return "/usr/bin/codex", nil
			}
			return "", errors.New("not found")
		}
		got, err := env.mgr.ResolveAgent("")
		if err != nil || got != "codex" {
			t.Fatalf("got %q, %v", got, err)
		}
	})

	t.Run("several available needs a choice", func(t *testing.T) {
		env.mgr.lookPath = func(bin string) (string, error) {
			if bin == "codex" || bin == "opencode" {
				return "/usr/bin/" + bin, nil
			}
			return "", errors.New("not found")
		}
		_, err := env.mgr.ResolveAgent("")
		var choice *AgentChoiceError
		if !errors.As(err, &choice) {
			t.Fatalf("err = %v, want AgentChoiceError", err)
		}
		if len(choice.Available) != 2 {
			t.Fatalf("available = %v", choice.Available)
		}
	})

	t.Run("none available", func(t *testing.T) {
		env.mgr.lookPath = func(string) (string, error) { return "", errors.New("not found") }
		if _, err := env.mgr.ResolveAgent(""); !errors.Is(err, ErrNoAgentAvailable) {
			t.Fatalf("err = %v, want ErrNoAgentAvailable", err)
		}
	})
}

func TestCreateShell(t *testing.T) {
	env := newTestEnv(t)

	pane, err := env.mgr.CreateShell(context.Background())
	if err != nil {
		t.Fatalf("CreateShell: %v", err)
	}
	if pane.Kind != state.KindShell {
		t.Errorf("kind = %q", pane.Kind)
	}
	if pane.WorktreePath != "" {
		t.Errorf("shell pane has worktree %q", pane.WorktreePath)
	}
	if pane.Slug != "shell" {
		t.Errorf("slug = %q", pane.Slug)
	}
}

func waitForCondition(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

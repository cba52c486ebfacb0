// Package e2e contains end-to-end tests for dmux against real tmux
// sessions and real git repositories. Each scenario builds the same
// service stack the dashboard wires, pointed at a throwaway project
// repo, and drives it through the public entry points.
package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Dicklesworthstone/dmux/internal/action"
	"github.com/Dicklesworthstone/dmux/internal/agent"
	"github.com/Dicklesworthstone/dmux/internal/config"
	"github.com/Dicklesworthstone/dmux/internal/git"
	"github.com/Dicklesworthstone/dmux/internal/hooks"
	"github.com/Dicklesworthstone/dmux/internal/layout"
	"github.com/Dicklesworthstone/dmux/internal/merge"
	"github.com/Dicklesworthstone/dmux/internal/panes"
	"github.com/Dicklesworthstone/dmux/internal/server"
	"github.com/Dicklesworthstone/dmux/internal/state"
	"github.com/Dicklesworthstone/dmux/internal/stream"
	"github.com/Dicklesworthstone/dmux/internal/tmux"
	"github.com/Dicklesworthstone/dmux/internal/util"
	"github.com/Dicklesworthstone/dmux/internal/worker"
)

// TestLogger mirrors every scenario message to the test output and to a
// per-run file under E2E_LOG_DIR, so a failed run can be replayed after
// the tmux session is gone.
type TestLogger struct {
	t        *testing.T
	scenario string
	started  time.Time

	mu   sync.Mutex
	file *os.File
}

// NewTestLogger opens the scenario's log file and stamps the run header.
func NewTestLogger(t *testing.T, scenario string) *TestLogger {
	dir := os.Getenv("E2E_LOG_DIR")
	if dir == "" {
		dir = "/tmp/dmux-e2e-logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("[E2E-SETUP] log directory: %v", err)
	}

	name := fmt.Sprintf("%s-%s.log", util.SanitizeFilename(scenario), time.Now().Format("20060102-150405"))
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("[E2E-SETUP] log file: %v", err)
	}

	l := &TestLogger{t: t, scenario: scenario, started: time.Now(), file: f}
	l.Log("[E2E-START] %s (log: %s)", scenario, f.Name())
	return l
}

// Log formats a message and writes it to both sinks, prefixed in the file
// with the elapsed time since the scenario started.
func (l *TestLogger) Log(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.t.Log(msg)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		fmt.Fprintf(l.file, "%8.3fs %s\n", time.Since(l.started).Seconds(), msg)
	}
}

// LogJSON pretty-prints a value into the log under a label.
func (l *TestLogger) LogJSON(label string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		l.Log("[E2E-JSON] %s: %v", label, v)
		return
	}
	l.Log("[E2E-JSON] %s:\n%s", label, data)
}

// Writer exposes the log file so the service stack's slog output lands in
// the same place as the scenario narration.
func (l *TestLogger) Writer() io.Writer {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return io.Discard
	}
	return l.file
}

// Close stamps the run footer and releases the file.
func (l *TestLogger) Close() {
	l.Log("[E2E-END] %s finished after %s", l.scenario, time.Since(l.started).Round(time.Millisecond))
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}

// TestSuite manages one E2E scenario: a throwaway project repository, a
// dedicated tmux session, and the wired dmux service stack on top of both.
type TestSuite struct {
	t       *testing.T
	logger  *TestLogger
	session string

	// root is the project repository the suite drives; agentBin is the
	// stand-in agent CLI registered in the config.
	root     string
	agentBin string

	tmux     *tmux.Client
	store    *state.Store
	settings *state.SettingsStore
	git      *git.Service
	harness  *agent.Harness
	layout   *layout.Engine
	panes    *panes.Manager
	workers  *worker.Supervisor
	merger   *merge.Orchestrator
	registry *action.Registry
	streamer *stream.Streamer
	dispatch *action.Dispatcher
	server   *server.Server

	// controlPane is the session's first pane, standing in for the
	// dashboard sidebar.
	controlPane string

	cleanup []func()
}

// NewTestSuite prepares a suite for one scenario. Setup does the heavy
// lifting; this only names the tmux session and opens the log.
func NewTestSuite(t *testing.T, scenario string) *TestSuite {
	s := &TestSuite{
		t:       t,
		logger:  NewTestLogger(t, scenario),
		session: fmt.Sprintf("e2e_%s_%d", scenario, time.Now().Unix()),
	}
	s.logger.Log("[E2E-SUITE] tmux session: %s", s.session)
	return s
}

// Setup creates the project repository, the tmux session, and the service
// stack. Call Teardown afterwards regardless of the outcome.
func (s *TestSuite) Setup() error {
	s.logger.Log("[E2E-SETUP] Setting up test environment")

	if !tmux.IsInstalled() {
		return fmt.Errorf("tmux not found")
	}
	if _, err := exec.LookPath("git"); err != nil {
		return fmt.Errorf("git not found: %w", err)
	}

	root, err := initProjectRepo(s.t.TempDir())
	if err != nil {
		return fmt.Errorf("init project repo: %w", err)
	}
	s.root = root
	s.logger.Log("[E2E-SETUP] Project repository: %s", root)

	agentBin, err := writeFakeAgent(s.t.TempDir())
	if err != nil {
		return fmt.Errorf("install fake agent: %w", err)
	}
	s.agentBin = agentBin
	s.logger.Log("[E2E-SETUP] Fake agent CLI: %s", agentBin)

	out, err := exec.Command(tmux.BinaryPath(), "new-session", "-d",
		"-s", s.session, "-x", "200", "-y", "50", "-c", root).CombinedOutput()
	if err != nil {
		return fmt.Errorf("create session: %w, output: %s", err, string(out))
	}
	s.cleanup = append(s.cleanup, func() {
		s.logger.Log("[E2E-CLEANUP] Killing session %s", s.session)
		exec.Command(tmux.BinaryPath(), "kill-session", "-t", s.session).Run()
	})
	s.logger.Log("[E2E-SETUP] Session created")

	if err := s.buildStack(); err != nil {
		return err
	}
	s.logger.Log("[E2E-SETUP] Service stack wired, control pane %s", s.controlPane)
	return nil
}

// buildStack wires the same services the dashboard builds, pointed at the
// suite's repository, session, and fake agent.
func (s *TestSuite) buildStack() error {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(s.logger.Writer(), &slog.HandlerOptions{Level: slog.LevelDebug}))

	cfg := &config.Config{
		DefaultAgent: "claude",
		Server:       config.ServerConfig{Host: "127.0.0.1"},
		Agents: map[string]config.AgentSpec{
			"claude": {
				Command:         s.agentBin,
				HarnessArgs:     []string{"prompt"},
				PermissionFlags: map[string]string{"": ""},
			},
		},
	}

	tm := tmux.NewClient()
	tm.Logger = logger.With(slog.String("component", "tmux"))
	s.tmux = tm

	ids, err := tm.ListSessionPaneIDs(ctx, s.session)
	if err != nil || len(ids) == 0 {
		return fmt.Errorf("locating control pane: %v", err)
	}
	s.controlPane = ids[0]

	st := state.NewStore(s.root)
	st.Logger = logger.With(slog.String("component", "state"))
	st.LivePanes = func(ctx context.Context) ([]string, error) {
		if !tm.SessionExists(s.session) {
			return nil, nil
		}
		return tm.ListSessionPaneIDs(ctx, s.session)
	}
	if err := st.Load(ctx); err != nil {
		return fmt.Errorf("loading pane state: %w", err)
	}
	s.store = st

	s.settings = state.NewSettingsStore(s.root)

	g := git.NewService()
	g.Logger = logger.With(slog.String("component", "git"))
	s.git = g

	h := agent.NewHarness(cfg)
	h.Logger = logger.With(slog.String("component", "agent"))
	s.harness = h

	eng := layout.NewEngine(tm)
	eng.Logger = logger.With(slog.String("component", "layout"))
	s.layout = eng

	pm := panes.NewManager(st, s.settings, cfg, tm, g, eng, h)
	pm.Logger = logger.With(slog.String("component", "panes"))
	pm.ControlPane = s.controlPane
	s.panes = pm

	hk := hooks.NewRunner(s.root)
	hk.Logger = logger.With(slog.String("component", "hooks"))
	pm.Hooks = hk

	sup := worker.NewSupervisor(tm, st, h)
	sup.Logger = logger.With(slog.String("component", "worker"))
	pm.Workers = sup
	s.workers = sup

	orch := merge.NewOrchestrator(st, s.settings, g, h, pm, hk)
	orch.Logger = logger.With(slog.String("component", "merge"))
	s.merger = orch

	d := action.NewDispatcher(st, s.settings, pm, tm, g, h, orch)
	d.Logger = logger.With(slog.String("component", "action"))
	s.dispatch = d

	reg := action.NewRegistry()
	reg.Logger = logger.With(slog.String("component", "action"))
	s.registry = reg

	sm := stream.NewStreamer(tm)
	sm.Logger = logger.With(slog.String("component", "stream"))
	s.streamer = sm

	s.server = server.New(st, d, reg, sm, tm)
	s.server.Logger = logger.With(slog.String("component", "server"))
	return nil
}

// Teardown runs the cleanup stack in reverse and closes the log.
func (s *TestSuite) Teardown() {
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		s.cleanup[i]()
	}
	s.logger.Close()
}

// StartServer serves the HTTP API on an ephemeral port and returns the
// base URL. The server stops during Teardown.
func (s *TestSuite) StartServer() (string, error) {
	ln, err := server.Listen("127.0.0.1", 0)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.server.Serve(ctx, ln)
	}()
	s.cleanup = append(s.cleanup, func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			s.logger.Log("[E2E-CLEANUP] Server did not stop in time")
		}
	})
	base := "http://" + ln.Addr().String()
	s.logger.Log("[E2E-SETUP] HTTP server at %s", base)
	return base, nil
}

// ScriptPane splits a new pane off the control pane and replaces its shell
// with the given script, returning the tmux pane id.
func (s *TestSuite) ScriptPane(ctx context.Context, script string) (string, error) {
	path := filepath.Join(s.t.TempDir(), "pane-script.sh")
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		return "", err
	}
	target, err := s.tmux.SplitWindow(ctx, s.controlPane, s.root)
	if err != nil {
		return "", err
	}
	if err := s.tmux.SendText(ctx, target, "exec sh "+path, true); err != nil {
		return "", err
	}
	s.logger.Log("[E2E-SPAWN] Script pane %s running %s", target, path)
	return target, nil
}

// Capture returns the last lines of a pane's rendered content.
func (s *TestSuite) Capture(ctx context.Context, target string, lines int) string {
	content, err := s.tmux.CapturePane(ctx, target, lines)
	if err != nil {
		s.logger.Log("[E2E-CAPTURE] capture %s failed: %v", target, err)
		return ""
	}
	return content
}

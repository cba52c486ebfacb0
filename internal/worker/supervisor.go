package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Dicklesworthstone/dmux/internal/agent"
	"github.com/Dicklesworthstone/dmux/internal/state"
)

// Supervisor keeps exactly one monitor running per live agent pane,
// starting and stopping them as the store changes.
type Supervisor struct {
	Tmux    terminal
	Store   *state.Store
	Harness *agent.Harness
	Logger  *slog.Logger

	// Interval overrides the monitor tick, mainly for tests.
	Interval time.Duration

	// KickOnChange forwards store changes to the monitors as early ticks,
	// so external writes (tmux hooks, CLI) get picked up without waiting
	// out the interval.
	KickOnChange bool

	mu      sync.Mutex
	running map[string]*runningMonitor
}

type runningMonitor struct {
	target string
	cancel context.CancelFunc
	done   chan struct{}
	kick   chan struct{}
}

// NewSupervisor wires a supervisor over the store and terminal.
func NewSupervisor(tm terminal, st *state.Store, harness *agent.Harness) *Supervisor {
	return &Supervisor{
		Tmux:    tm,
		Store:   st,
		Harness: harness,
		running: make(map[string]*runningMonitor),
	}
}

func (s *Supervisor) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Run reconciles monitors against the store until ctx ends, then stops
// everything.
func (s *Supervisor) Run(ctx context.Context) {
	changes, cancel := s.Store.Subscribe()
	defer cancel()

	s.Reconcile(ctx)
	for {
		select {
		case <-ctx.Done():
			s.StopAll()
			return
		case <-changes:
			s.Reconcile(ctx)
			if s.KickOnChange {
				s.kickAll()
			}
		}
	}
}

// kickAll nudges every monitor without blocking; a monitor mid-tick just
// coalesces the pending kick.
func (s *Supervisor) kickAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.running {
		select {
		case r.kick <- struct{}{}:
		default:
		}
	}
}

// Reconcile diffs the desired monitor set (live worktree and
// conflict-resolution panes) against what is running.
func (s *Supervisor) Reconcile(ctx context.Context) {
	desired := make(map[string]state.Pane)
	for _, p := range s.Store.ListPanes() {
		if p.Kind.HasWorktree() && p.Live() {
			desired[p.ID] = p
		}
	}

	var stale []*runningMonitor
	s.mu.Lock()
	for id, r := range s.running {
		p, ok := desired[id]
		if !ok || p.TerminalPaneID != r.target {
			stale = append(stale, r)
			delete(s.running, id)
		}
	}
	for id, p := range desired {
		if _, ok := s.running[id]; ok {
			continue
		}
		s.startLocked(ctx, p)
		s.logger().Debug("monitor started", "pane", id, "target", p.TerminalPaneID)
	}
	s.mu.Unlock()

	for _, r := range stale {
		r.cancel()
		<-r.done
	}
}

func (s *Supervisor) startLocked(ctx context.Context, p state.Pane) {
	mctx, cancel := context.WithCancel(ctx)
	r := &runningMonitor{
		target: p.TerminalPaneID,
		cancel: cancel,
		done:   make(chan struct{}),
		kick:   make(chan struct{}, 1),
	}
	s.running[p.ID] = r

	m := NewMonitor(p, s.Tmux, s.Store, s.Harness)
	m.Logger = s.logger()
	m.Interval = s.Interval
	m.Kick = r.kick
	go func() {
		defer close(r.done)
		m.Run(mctx)
	}()
}

// StopPane cancels a pane's monitor and waits for it to return. The pane
// must not receive keystrokes once this returns, so callers invoke it
// before killing the terminal pane.
func (s *Supervisor) StopPane(id string) {
	s.mu.Lock()
	r, ok := s.running[id]
	if ok {
		delete(s.running, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	r.cancel()
	<-r.done
	s.logger().Debug("monitor stopped", "pane", id)
}

// StopAll cancels every monitor and waits for them.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	stale := make([]*runningMonitor, 0, len(s.running))
	for id, r := range s.running {
		stale = append(stale, r)
		delete(s.running, id)
	}
	s.mu.Unlock()
	for _, r := range stale {
		r.cancel()
		<-r.done
	}
}

// Running reports how many monitors are active.
func (s *Supervisor) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

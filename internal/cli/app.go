package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Dicklesworthstone/dmux/internal/action"
	"github.com/Dicklesworthstone/dmux/internal/agent"
	"github.com/Dicklesworthstone/dmux/internal/git"
	"github.com/Dicklesworthstone/dmux/internal/hooks"
	"github.com/Dicklesworthstone/dmux/internal/layout"
	"github.com/Dicklesworthstone/dmux/internal/merge"
	"github.com/Dicklesworthstone/dmux/internal/panes"
	"github.com/Dicklesworthstone/dmux/internal/state"
	"github.com/Dicklesworthstone/dmux/internal/tmux"
	"github.com/Dicklesworthstone/dmux/internal/worker"
)

// app is the wired service stack for one project. Commands build it on
// demand; the dashboard keeps one alive for the session's lifetime.
type app struct {
	root     string
	session  string
	logger   *slog.Logger
	store    *state.Store
	settings *state.SettingsStore
	tmux     *tmux.Client
	git      *git.Service
	harness  *agent.Harness
	layout   *layout.Engine
	panes    *panes.Manager
	workers  *worker.Supervisor
	hooks    *hooks.Runner
	merger   *merge.Orchestrator
	dispatch *action.Dispatcher
}

// buildApp wires the service stack for the resolved project root, loads the
// pane store, and registers worktrees that no longer have a pane as orphans.
func buildApp(ctx context.Context) (*app, error) {
	root, err := resolveProjectRoot(ctx)
	if err != nil {
		return nil, err
	}

	logger := slog.Default()
	session := sessionName(state.ProjectNameFromRoot(root))

	tm := tmux.NewClient()
	tm.Logger = logger.With(slog.String("component", "tmux"))

	st := state.NewStore(root)
	st.Logger = logger.With(slog.String("component", "state"))
	if tmux.IsInstalled() {
		st.LivePanes = func(ctx context.Context) ([]string, error) {
			if !tm.SessionExists(session) {
				return nil, nil
			}
			return tm.ListSessionPaneIDs(ctx, session)
		}
	}
	if err := st.Load(ctx); err != nil {
		return nil, fmt.Errorf("loading pane state: %w", err)
	}

	settings := state.NewSettingsStore(root)

	g := git.NewService()
	g.Logger = logger.With(slog.String("component", "git"))

	h := agent.NewHarness(cfg)
	h.Logger = logger.With(slog.String("component", "agent"))

	eng := layout.NewEngine(tm)
	eng.Logger = logger.With(slog.String("component", "layout"))

	pm := panes.NewManager(st, settings, cfg, tm, g, eng, h)
	pm.Logger = logger.With(slog.String("component", "panes"))

	hk := hooks.NewRunner(root)
	hk.Logger = logger.With(slog.String("component", "hooks"))
	pm.Hooks = hk

	sup := worker.NewSupervisor(tm, st, h)
	sup.Logger = logger.With(slog.String("component", "worker"))
	if resolved, err := settings.Resolve(); err == nil {
		sup.KickOnChange = resolved.UseTmuxHooks
	}
	pm.Workers = sup

	// Pick up worktrees that lost their pane record, now and whenever
	// another process rewrites the store.
	reconcile := func(ctx context.Context) {
		if err := pm.ReconcileOrphans(ctx); err != nil {
			logger.Warn("orphan reconciliation failed", slog.Any("error", err))
		}
	}
	reconcile(ctx)
	st.OnExternalReload = reconcile

	orch := merge.NewOrchestrator(st, settings, g, h, pm, hk)
	orch.Logger = logger.With(slog.String("component", "merge"))

	d := action.NewDispatcher(st, settings, pm, tm, g, h, orch)
	d.Logger = logger.With(slog.String("component", "action"))

	return &app{
		root:     root,
		session:  session,
		logger:   logger,
		store:    st,
		settings: settings,
		tmux:     tm,
		git:      g,
		harness:  h,
		layout:   eng,
		panes:    pm,
		workers:  sup,
		hooks:    hk,
		merger:   orch,
		dispatch: d,
	}, nil
}

// resolveProjectRoot picks the project directory: the --project flag when
// given, otherwise the enclosing git repository, otherwise the working
// directory.
func resolveProjectRoot(ctx context.Context) (string, error) {
	if projectFlag != "" {
		abs, err := filepath.Abs(projectFlag)
		if err != nil {
			return "", fmt.Errorf("resolving --project: %w", err)
		}
		if _, err := os.Stat(abs); err != nil {
			return "", fmt.Errorf("project root %s: %w", abs, err)
		}
		return abs, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	if root, err := git.NewService().FindRoot(ctx, cwd); err == nil && root != "" {
		return root, nil
	}
	return cwd, nil
}

// sessionName derives a tmux-safe session name from the project name.
func sessionName(project string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case ':', '.', ' ':
			return '-'
		}
		return r
	}, project)
	if name == "" {
		name = "dmux"
	}
	return name
}

// paneByRef looks a pane up by id or by slug.
func (a *app) paneByRef(ref string) (state.Pane, bool) {
	if p, ok := a.store.Pane(ref); ok {
		return p, true
	}
	return a.store.PaneBySlug(ref)
}

func requireTmux() error {
	if !tmux.IsInstalled() {
		return fmt.Errorf("tmux not found in PATH; dmux drives tmux and cannot run without it")
	}
	return nil
}

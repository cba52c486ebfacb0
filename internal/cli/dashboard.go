package cli

import (
	"context"
	"fmt"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/dmux/internal/action"
	"github.com/Dicklesworthstone/dmux/internal/server"
	"github.com/Dicklesworthstone/dmux/internal/stream"
	"github.com/Dicklesworthstone/dmux/internal/tui"
)

func newDashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "dashboard",
		Short:  "Run the sidebar dashboard in the current pane",
		Hidden: true, // attach starts this inside the control pane
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboard(cmd.Context())
		},
	}
}

func runDashboard(ctx context.Context) error {
	if err := requireTmux(); err != nil {
		return err
	}
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The dashboard owns the control pane. New panes split against it, so
	// record our own id before anything changes focus.
	if id, err := a.tmux.ActivePaneID(ctx); err == nil {
		a.panes.ControlPane = id
	} else {
		a.logger.Warn("could not resolve control pane", "error", err)
	}

	// Pick up writes from other dmux processes (CLI, server callbacks).
	go func() {
		if err := a.store.Watch(ctx); err != nil && ctx.Err() == nil {
			a.logger.Warn("state watcher stopped", "error", err)
		}
	}()

	go a.workers.Run(ctx)

	reg := action.NewRegistry()
	sm := stream.NewStreamer(a.tmux)
	sm.Logger = a.logger.With(slog.String("component", "stream"))
	srv := server.New(a.store, a.dispatch, reg, sm, a.tmux)
	srv.Logger = a.logger.With(slog.String("component", "server"))

	ln, err := server.Listen(cfg.Server.Host, cfg.Server.Port)
	if err != nil {
		return fmt.Errorf("binding api server: %w", err)
	}
	go func() {
		if err := srv.Serve(ctx, ln); err != nil {
			a.logger.Error("api server failed", "error", err)
		}
	}()
	// Publish the bound address so other tools can find the API.
	if err := a.tmux.SetOption(ctx, a.session, "@dmux_server", ln.Addr().String()); err != nil {
		a.logger.Debug("could not publish server address", "error", err)
	}

	p := tea.NewProgram(tui.New(ctx, a.store, a.dispatch, a.tmux), tea.WithAltScreen())

	// Merge progress lands in the dashboard as if the user had dispatched
	// it: conflict prompts and completion notices become dialogs.
	a.merger.Deliver = func(res *action.Result) {
		p.Send(tui.ResultMsg{Result: res})
	}

	_, err = p.Run()
	cancel()
	a.workers.StopAll()
	if err != nil {
		return fmt.Errorf("running dashboard: %w", err)
	}
	return nil
}

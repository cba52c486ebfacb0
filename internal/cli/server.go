package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/dmux/internal/action"
	"github.com/Dicklesworthstone/dmux/internal/server"
	"github.com/Dicklesworthstone/dmux/internal/stream"
)

func newServerCmd() *cobra.Command {
	var host string
	var port int
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the HTTP API without the dashboard",
		Long: `Serve the pane list, actions, and terminal streams over HTTP for
remote clients. Pane monitors run here too, so agents keep being
tracked while no dashboard is attached.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("host") {
				host = cfg.Server.Host
			}
			if !cmd.Flags().Changed("port") {
				port = cfg.Server.Port
			}
			return runServer(cmd.Context(), host, port)
		},
	}
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "address to bind")
	cmd.Flags().IntVar(&port, "port", 0, "port to bind (0 picks one)")
	return cmd
}

func runServer(ctx context.Context, host string, port int) error {
	if err := requireTmux(); err != nil {
		return err
	}
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := a.store.Watch(ctx); err != nil && ctx.Err() == nil {
			a.logger.Warn("state watcher stopped", "error", err)
		}
	}()
	go a.workers.Run(ctx)
	defer a.workers.StopAll()

	reg := action.NewRegistry()
	sm := stream.NewStreamer(a.tmux)
	sm.Logger = a.logger.With(slog.String("component", "stream"))
	srv := server.New(a.store, a.dispatch, reg, sm, a.tmux)
	srv.Logger = a.logger.With(slog.String("component", "server"))

	ln, err := server.Listen(host, port)
	if err != nil {
		return fmt.Errorf("binding api server: %w", err)
	}
	fmt.Printf("dmux api listening on %s\n", ln.Addr())
	if a.tmux.SessionExists(a.session) {
		if err := a.tmux.SetOption(ctx, a.session, "@dmux_server", ln.Addr().String()); err != nil {
			a.logger.Debug("could not publish server address", "error", err)
		}
	}

	return srv.Serve(ctx, ln)
}

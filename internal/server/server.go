// Package server exposes the pane list, the action protocol, and live
// terminal streams over HTTP. One server runs per project session, bound
// to loopback by default; interactive dialog steps travel as callback ids
// that remote clients answer via /api/callbacks.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/Dicklesworthstone/dmux/internal/action"
	"github.com/Dicklesworthstone/dmux/internal/state"
	"github.com/Dicklesworthstone/dmux/internal/stream"
	"github.com/Dicklesworthstone/dmux/internal/tmux"
)

// shutdownGrace bounds connection draining once the context ends.
const shutdownGrace = 5 * time.Second

// Server serves the HTTP API for one project session.
type Server struct {
	Store      *state.Store
	Dispatcher *action.Dispatcher
	Registry   *action.Registry
	Streamer   *stream.Streamer
	Tmux       *tmux.Client
	Logger     *slog.Logger
}

// New wires a server against the shared session components.
func New(st *state.Store, d *action.Dispatcher, reg *action.Registry, sm *stream.Streamer, tm *tmux.Client) *Server {
	return &Server{
		Store:      st,
		Dispatcher: d,
		Registry:   reg,
		Streamer:   sm,
		Tmux:       tm,
	}
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/panes", s.handlePanes)
	mux.HandleFunc("POST /api/panes", s.handleCreatePane)
	mux.HandleFunc("GET /api/actions", s.handleActions)
	mux.HandleFunc("GET /api/panes/{id}/actions", s.handlePaneActions)
	mux.HandleFunc("POST /api/panes/{id}/actions/{actionId}", s.handleDispatch)
	mux.HandleFunc("POST /api/callbacks/{kind}/{id}", s.handleCallback)
	mux.HandleFunc("POST /api/keys/{id}", s.handleKeys)
	mux.HandleFunc("GET /api/stream/{id}", s.handleStream)
	return mux
}

// Listen binds the configured address. Port 0 picks an ephemeral port; the
// chosen one is in the listener's Addr.
func Listen(host string, port int) (net.Listener, error) {
	return net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
}

// Serve runs the server on ln until the context ends, then drains
// connections. Request contexts derive from ctx, so active SSE streams
// shut down with the server.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger().Info("http server listening",
		slog.String("component", "server"),
		slog.String("addr", ln.Addr().String()))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

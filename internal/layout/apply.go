package layout

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/Dicklesworthstone/dmux/internal/tmux"
)

// Engine computes and applies layouts for one window.
type Engine struct {
	Tmux   *tmux.Client
	Logger *slog.Logger
}

func NewEngine(client *tmux.Client) *Engine {
	return &Engine{Tmux: client}
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// Apply recomputes the layout for the window and applies it. The custom
// layout string is preferred; if tmux rejects it the engine falls back to
// the built-in main-vertical layout with the sidebar pinned, and as a last
// resort pins the sidebar width directly.
func (e *Engine) Apply(ctx context.Context, window, controlPane string, contentPanes []string) error {
	if len(contentPanes) == 0 {
		if err := e.Tmux.ResizePaneWidth(ctx, controlPane, SidebarWidth); err != nil {
			return fmt.Errorf("pin sidebar width: %w", err)
		}
		return nil
	}

	width, height, err := e.Tmux.WindowDimensions(ctx, window)
	if err != nil {
		return fmt.Errorf("window dimensions: %w", err)
	}

	custom, err := Build(controlPane, contentPanes, width, height)
	if err == nil {
		err = e.Tmux.SelectLayout(ctx, window, custom)
		if err == nil {
			e.logger().Debug("applied custom layout",
				slog.String("window", window),
				slog.Int("panes", len(contentPanes)),
				slog.Int("width", width),
				slog.Int("height", height))
			return nil
		}
	}
	e.logger().Warn("custom layout rejected, falling back to main-vertical",
		slog.String("window", window),
		slog.Any("error", err))

	fbErr := e.applyMainVertical(ctx, window, controlPane)
	if fbErr == nil {
		return nil
	}
	e.logger().Warn("main-vertical fallback failed, resizing sidebar directly",
		slog.String("window", window),
		slog.Any("error", fbErr))

	if resizeErr := e.Tmux.ResizePaneWidth(ctx, controlPane, SidebarWidth); resizeErr != nil {
		return fmt.Errorf("all layout strategies failed: %w", resizeErr)
	}
	return nil
}

func (e *Engine) applyMainVertical(ctx context.Context, window, controlPane string) error {
	if err := e.Tmux.SetWindowOption(ctx, window, "main-pane-width", strconv.Itoa(SidebarWidth)); err != nil {
		return err
	}
	if err := e.Tmux.SelectLayout(ctx, window, "main-vertical"); err != nil {
		return err
	}
	return e.Tmux.ResizePaneWidth(ctx, controlPane, SidebarWidth)
}

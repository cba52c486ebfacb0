package tmux

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// PaneInfo is one line of list-panes output.
type PaneInfo struct {
	ID      string
	Index   int
	Title   string
	Command string
	Width   int
	Height  int
	Active  bool
}

// CursorPos is the cursor location inside a pane, zero-based.
type CursorPos struct {
	Row int
	Col int
}

// ValidateSessionName checks if a session name is valid.
func ValidateSessionName(name string) error {
	if name == "" {
		return errors.New("session name cannot be empty")
	}
	if strings.ContainsAny(name, ":.") {
		return errors.New("session name cannot contain ':' or '.'")
	}
	return nil
}

// SessionExists checks if a session exists. The "=" prefix forces an exact
// match instead of tmux's default prefix matching.
func (c *Client) SessionExists(name string) bool {
	err := c.RunSilent(RetryIdempotent, "has-session", "-t", "="+name)
	return err == nil
}

// CreateSession creates a new detached session rooted at directory.
func (c *Client) CreateSession(name, directory string) error {
	return c.RunSilent(RetryFast, "new-session", "-d", "-s", name, "-c", directory)
}

// KillSession kills a session. Destructive, never retried.
func (c *Client) KillSession(name string) error {
	return c.RunSilent(RetryNone, "kill-session", "-t", name)
}

// AttachOrSwitch attaches to a session, or switches the current client if
// already inside tmux. Attach execs interactively and inherits our stdio.
func (c *Client) AttachOrSwitch(session string) error {
	if InTmux() {
		return c.RunSilent(RetryFast, "switch-client", "-t", session)
	}

	cmd := exec.Command(BinaryPath(), "attach", "-t", session)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// SplitWindow splits the target pane and returns the new pane's id.
func (c *Client) SplitWindow(ctx context.Context, target, directory string) (string, error) {
	args := []string{"split-window", "-t", target, "-P", "-F", "#{pane_id}"}
	if directory != "" {
		args = append(args, "-c", directory)
	}
	return c.RunContext(ctx, RetryFast, args...)
}

// NewWindow creates a window in the session and returns its id.
func (c *Client) NewWindow(ctx context.Context, session, name, directory string) (string, error) {
	args := []string{"new-window", "-t", session, "-P", "-F", "#{window_id}"}
	if name != "" {
		args = append(args, "-n", name)
	}
	if directory != "" {
		args = append(args, "-c", directory)
	}
	return c.RunContext(ctx, RetryFast, args...)
}

// KillPane kills a pane. Destructive, never retried.
func (c *Client) KillPane(paneID string) error {
	return c.RunSilent(RetryNone, "kill-pane", "-t", paneID)
}

// KillWindow kills a window. Destructive, never retried.
func (c *Client) KillWindow(windowID string) error {
	return c.RunSilent(RetryNone, "kill-window", "-t", windowID)
}

// ListPanes returns all panes of the window holding target.
func (c *Client) ListPanes(ctx context.Context, target string) ([]PaneInfo, error) {
	sep := "|#|"
	format := fmt.Sprintf("#{pane_id}%[1]s#{pane_index}%[1]s#{pane_title}%[1]s#{pane_current_command}%[1]s#{pane_width}%[1]s#{pane_height}%[1]s#{pane_active}", sep)
	output, err := c.RunContext(ctx, RetryIdempotent, "list-panes", "-t", target, "-F", format)
	if err != nil {
		return nil, err
	}

	var panes []PaneInfo
	for _, line := range strings.Split(output, "\n") {
		if line == "" {
			continue
		}
		parts := strings.Split(line, sep)
		if len(parts) < 7 {
			continue
		}

		index, _ := strconv.Atoi(parts[1])
		width, _ := strconv.Atoi(parts[4])
		height, _ := strconv.Atoi(parts[5])

		panes = append(panes, PaneInfo{
			ID:      parts[0],
			Index:   index,
			Title:   parts[2],
			Command: parts[3],
			Width:   width,
			Height:  height,
			Active:  parts[6] == "1",
		})
	}
	return panes, nil
}

// ListSessionPaneIDs returns the ids of every pane in the session, across
// all windows.
func (c *Client) ListSessionPaneIDs(ctx context.Context, session string) ([]string, error) {
	output, err := c.RunContext(ctx, RetryIdempotent, "list-panes", "-s", "-t", session, "-F", "#{pane_id}")
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, line := range strings.Split(output, "\n") {
		if line != "" {
			ids = append(ids, line)
		}
	}
	return ids, nil
}

// WaitForPane polls until the pane id appears in the window's pane list.
// Used right after split-window instead of a fixed sleep.
func (c *Client) WaitForPane(ctx context.Context, paneID string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		panes, err := c.ListPanes(ctx, paneID)
		if err == nil {
			for _, p := range panes {
				if p.ID == paneID {
					return nil
				}
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("pane %s did not appear within %s: %w", paneID, timeout, ErrPaneNotFound)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(25 * time.Millisecond):
		}
	}
}

// SetPaneTitle sets the title of a pane.
func (c *Client) SetPaneTitle(paneID, title string) error {
	return c.RunSilent(RetryFast, "select-pane", "-t", paneID, "-T", title)
}

// SelectPane focuses a pane.
func (c *Client) SelectPane(paneID string) error {
	return c.RunSilent(RetryFast, "select-pane", "-t", paneID)
}

// SendText sends literal text to a pane. The -l flag prevents tmux from
// interpreting the text as key names; Enter is sent as a separate key press.
func (c *Client) SendText(ctx context.Context, target, text string, enter bool) error {
	if err := c.RunSilentContext(ctx, RetryFast, "send-keys", "-t", target, "-l", "--", text); err != nil {
		return err
	}
	if enter {
		return c.RunSilentContext(ctx, RetryFast, "send-keys", "-t", target, "C-m")
	}
	return nil
}

// SendNamedKey sends a tmux key name (Enter, Escape, C-c, Up, ...) to a pane.
func (c *Client) SendNamedKey(ctx context.Context, target, key string) error {
	return c.RunSilentContext(ctx, RetryFast, "send-keys", "-t", target, key)
}

// SendInterrupt sends Ctrl+C to a pane.
func (c *Client) SendInterrupt(target string) error {
	return c.RunSilent(RetryFast, "send-keys", "-t", target, "C-c")
}

// PasteText injects text into a pane through a tmux buffer. Unlike send-keys,
// the pane's shell never interprets the content, so this is the required path
// for prompts and other untrusted multi-line text.
func (c *Client) PasteText(ctx context.Context, target, text string) error {
	buf := fmt.Sprintf("dmux-%d", time.Now().UnixNano())
	if err := c.RunSilentContext(ctx, RetryFast, "set-buffer", "-b", buf, "--", text); err != nil {
		return err
	}
	if err := c.RunSilentContext(ctx, RetryFast, "paste-buffer", "-b", buf, "-t", target); err != nil {
		_ = c.RunSilent(RetryNone, "delete-buffer", "-b", buf)
		return err
	}
	return c.RunSilentContext(ctx, RetryNone, "delete-buffer", "-b", buf)
}

// CapturePane captures the last lines of a pane's buffer including
// scrollback, without escape sequences.
func (c *Client) CapturePane(ctx context.Context, target string, lines int) (string, error) {
	return c.RunContext(ctx, RetryIdempotent, "capture-pane", "-t", target, "-p", "-S", fmt.Sprintf("-%d", lines))
}

// CapturePaneEscapes captures the visible pane content preserving ANSI escape
// sequences. Used by the terminal streamer.
func (c *Client) CapturePaneEscapes(ctx context.Context, target string) (string, error) {
	return c.RunContext(ctx, RetryIdempotent, "capture-pane", "-t", target, "-p", "-e")
}

// ActivePaneID returns the id of the currently focused pane.
func (c *Client) ActivePaneID(ctx context.Context) (string, error) {
	return c.RunContext(ctx, RetryIdempotent, "display-message", "-p", "#{pane_id}")
}

// WindowID returns the id of the window containing target.
func (c *Client) WindowID(ctx context.Context, target string) (string, error) {
	return c.RunContext(ctx, RetryIdempotent, "display-message", "-p", "-t", target, "#{window_id}")
}

// CursorPosition queries the pane's cursor location.
func (c *Client) CursorPosition(ctx context.Context, target string) (CursorPos, error) {
	out, err := c.RunContext(ctx, RetryIdempotent, "display-message", "-p", "-t", target, "#{cursor_y} #{cursor_x}")
	if err != nil {
		return CursorPos{}, err
	}
	fields := strings.Fields(out)
	if len(fields) != 2 {
		return CursorPos{}, fmt.Errorf("unexpected cursor output %q", out)
	}
	row, err := strconv.Atoi(fields[0])
	if err != nil {
		return CursorPos{}, fmt.Errorf("parsing cursor row: %w", err)
	}
	col, err := strconv.Atoi(fields[1])
	if err != nil {
		return CursorPos{}, fmt.Errorf("parsing cursor col: %w", err)
	}
	return CursorPos{Row: row, Col: col}, nil
}

// PaneDimensions returns a pane's width and height in cells.
func (c *Client) PaneDimensions(ctx context.Context, target string) (int, int, error) {
	return c.dimensions(ctx, target, "#{pane_width} #{pane_height}")
}

// WindowDimensions returns the window's width and height in cells.
func (c *Client) WindowDimensions(ctx context.Context, target string) (int, int, error) {
	return c.dimensions(ctx, target, "#{window_width} #{window_height}")
}

func (c *Client) dimensions(ctx context.Context, target, format string) (int, int, error) {
	out, err := c.RunContext(ctx, RetryIdempotent, "display-message", "-p", "-t", target, format)
	if err != nil {
		return 0, 0, err
	}
	fields := strings.Fields(out)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("unexpected dimensions output %q", out)
	}
	w, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("parsing width: %w", err)
	}
	h, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("parsing height: %w", err)
	}
	return w, h, nil
}

// SelectLayout applies a layout to the window holding target. The layout may
// be a preset name or a custom layout string.
func (c *Client) SelectLayout(ctx context.Context, target, layout string) error {
	return c.RunSilentContext(ctx, RetryFast, "select-layout", "-t", target, layout)
}

// ResizePaneWidth resizes a pane to an absolute width.
func (c *Client) ResizePaneWidth(ctx context.Context, target string, width int) error {
	return c.RunSilentContext(ctx, RetryFast, "resize-pane", "-t", target, "-x", strconv.Itoa(width))
}

// ResizeWindow resizes the window to absolute dimensions.
func (c *Client) ResizeWindow(ctx context.Context, target string, width, height int) error {
	return c.RunSilentContext(ctx, RetryFast, "resize-window", "-t", target, "-x", strconv.Itoa(width), "-y", strconv.Itoa(height))
}

// SetOption sets a session option.
func (c *Client) SetOption(ctx context.Context, target, option, value string) error {
	return c.RunSilentContext(ctx, RetryFast, "set-option", "-t", target, option, value)
}

// SetWindowOption sets a window option.
func (c *Client) SetWindowOption(ctx context.Context, target, option, value string) error {
	return c.RunSilentContext(ctx, RetryFast, "set-window-option", "-t", target, option, value)
}

// DisplayMessage shows a transient message in the tmux status line.
func (c *Client) DisplayMessage(target, msg string, durationMs int) error {
	return c.RunSilent(RetryFast, "display-message", "-t", target, "-d", strconv.Itoa(durationMs), msg)
}

// RefreshClient forces a redraw of attached clients.
func (c *Client) RefreshClient(ctx context.Context) error {
	return c.RunSilentContext(ctx, RetryFast, "refresh-client")
}

// SanitizePaneCommand rejects control characters that could inject unintended
// key sequences (e.g., newlines, carriage returns, escapes) when sending
// commands into tmux panes.
func SanitizePaneCommand(cmd string) (string, error) {
	for _, r := range cmd {
		switch {
		case r == '\n', r == '\r', r == 0:
			return "", fmt.Errorf("command contains disallowed control characters")
		case r < 0x20 && r != ' ' && r != '\t':
			return "", fmt.Errorf("command contains disallowed control character 0x%02x", r)
		}
	}
	return cmd, nil
}

// BuildPaneCommand constructs a safe cd+command string for execution inside a
// tmux pane, rejecting commands with unsafe control characters.
func BuildPaneCommand(dir, command string) (string, error) {
	safe, err := SanitizePaneCommand(command)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("cd %s && %s", ShellQuote(dir), safe), nil
}

package tmux

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for conditions callers branch on. Command failures are
// wrapped so errors.Is works through the full chain.
var (
	// ErrNotInstalled means no usable tmux binary was found.
	ErrNotInstalled = errors.New("tmux is not installed")

	// ErrNoServer means the tmux server is not running.
	ErrNoServer = errors.New("no tmux server running")

	// ErrSessionNotFound means the target session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrPaneNotFound means the target pane or window does not exist.
	ErrPaneNotFound = errors.New("pane not found")

	// ErrBadLayout means tmux rejected a custom layout string.
	ErrBadLayout = errors.New("invalid layout")
)

// permanentMarkers are stderr fragments that identify failures retrying can
// never fix. Matching is case-insensitive.
var permanentMarkers = []string{
	"no such session",
	"session not found",
	"can't find session",
	"can't find pane",
	"can't find window",
	"no such pane",
	"no such window",
	"command not found",
	"permission denied",
	"invalid",
	"unknown command",
	"bad layout",
	"no server running",
	"error connecting to",
}

// classifyStderr maps tmux stderr output to a sentinel error, or nil when the
// output carries no recognized condition.
func classifyStderr(stderr string) error {
	s := strings.ToLower(stderr)
	switch {
	case strings.Contains(s, "no server running"), strings.Contains(s, "error connecting to"):
		return ErrNoServer
	case strings.Contains(s, "no such session"), strings.Contains(s, "can't find session"),
		strings.Contains(s, "session not found"):
		return ErrSessionNotFound
	case strings.Contains(s, "can't find pane"), strings.Contains(s, "no such pane"),
		strings.Contains(s, "can't find window"), strings.Contains(s, "no such window"):
		return ErrPaneNotFound
	case strings.Contains(s, "bad layout"), strings.Contains(s, "invalid layout"):
		return ErrBadLayout
	}
	return nil
}

// IsPermanent reports whether err (or the stderr text it wraps) describes a
// failure that must not be retried.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoServer) || errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrPaneNotFound) || errors.Is(err, ErrBadLayout) ||
		errors.Is(err, ErrNotInstalled) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// wrapCommandError builds the canonical command failure error: sentinel (when
// classifiable) plus the full command line and stderr for logs.
func wrapCommandError(args []string, runErr error, stderr string) error {
	stderr = strings.TrimSpace(stderr)
	if sentinel := classifyStderr(stderr); sentinel != nil {
		return fmt.Errorf("tmux %s: %w: %s", strings.Join(args, " "), sentinel, stderr)
	}
	return fmt.Errorf("tmux %s: %w: %s", strings.Join(args, " "), runErr, stderr)
}

// Package tmux is the only component that issues commands to the terminal
// multiplexer. It centralizes binary resolution, error classification,
// per-command deadlines, and the retry policy.
package tmux

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// DefaultCommandTimeout bounds every tmux invocation that the caller did not
// already bound with its own context deadline.
const DefaultCommandTimeout = 5 * time.Second

// RetryClass selects the retry budget for a command.
type RetryClass int

const (
	// RetryNone is for destructive commands (kill, delete). Never retried.
	RetryNone RetryClass = iota
	// RetryFast is for UI mutations (split, resize, layout).
	RetryFast
	// RetryIdempotent is for reads (list, capture, dimensions).
	RetryIdempotent
)

// Retry budgets. Each class caps both the attempt count and the total time
// spent waiting between attempts.
const (
	fastMaxRetries  = 2
	fastBudget      = 200 * time.Millisecond
	fastBackoff     = 50 * time.Millisecond
	idemMaxRetries  = 3
	idemBudget      = 500 * time.Millisecond
	idemBackoff     = 75 * time.Millisecond
)

func (c RetryClass) String() string {
	switch c {
	case RetryNone:
		return "none"
	case RetryFast:
		return "fast"
	case RetryIdempotent:
		return "idempotent"
	default:
		return "unknown"
	}
}

// runnerFunc executes a tmux command line and returns stdout, stderr, and the
// process error. Tests swap it out for a fake.
type runnerFunc func(ctx context.Context, args []string) (string, string, error)

// Client issues tmux commands with classification and retry.
type Client struct {
	Logger *slog.Logger

	runner runnerFunc
}

// NewClient creates a client that executes against the local tmux binary.
func NewClient() *Client {
	return &Client{runner: execRunner}
}

// NewClientWithRunner creates a client using a custom command runner. Used by
// tests to script tmux behavior without a live server.
func NewClientWithRunner(runner runnerFunc) *Client {
	return &Client{runner: runner}
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// wellKnownPaths are checked before PATH so a shadowed or wrapped tmux
// in the user's PATH does not hijack pane control.
var wellKnownPaths = []string{
	"/usr/bin/tmux",
	"/usr/local/bin/tmux",
	"/opt/homebrew/bin/tmux",
}

var binary struct {
	once sync.Once
	path string
}

// BinaryPath returns the tmux binary all client commands invoke. Resolution
// happens once per process.
func BinaryPath() string {
	binary.once.Do(func() {
		for _, p := range wellKnownPaths {
			if isExecutableFile(p) {
				binary.path = p
				return
			}
		}
		if p, err := exec.LookPath("tmux"); err == nil {
			binary.path = p
			return
		}
		binary.path = "tmux"
	})
	return binary.path
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// IsInstalled reports whether a usable tmux binary was found.
func IsInstalled() bool {
	return isExecutableFile(BinaryPath())
}

// InTmux returns true if the current process runs inside a tmux session.
func InTmux() bool {
	return os.Getenv("TMUX") != ""
}

func execRunner(ctx context.Context, args []string) (string, string, error) {
	cmd := exec.CommandContext(ctx, BinaryPath(), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return strings.TrimSpace(stdout.String()), stderr.String(), err
}

// Run executes a tmux command with the given retry class and the default
// deadline. Returns trimmed stdout.
func (c *Client) Run(class RetryClass, args ...string) (string, error) {
	return c.RunContext(context.Background(), class, args...)
}

// RunSilent executes a tmux command ignoring stdout.
func (c *Client) RunSilent(class RetryClass, args ...string) error {
	_, err := c.Run(class, args...)
	return err
}

// RunSilentContext executes a tmux command with cancellation support,
// ignoring stdout.
func (c *Client) RunSilentContext(ctx context.Context, class RetryClass, args ...string) error {
	_, err := c.RunContext(ctx, class, args...)
	return err
}

// RunContext executes a tmux command with cancellation support, applying the
// class's retry budget. Permanent errors are returned immediately.
func (c *Client) RunContext(ctx context.Context, class RetryClass, args ...string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	maxRetries, budget, backoff := retryBudget(class)
	start := time.Now()

	var lastErr error
	for attempt := 0; ; attempt++ {
		out, err := c.runOnce(ctx, args)
		if err == nil {
			if attempt > 0 {
				c.logger().Debug("tmux command succeeded after retry",
					slog.String("component", "tmux"),
					slog.String("cmd", args[0]),
					slog.Int("attempt", attempt+1))
			}
			return out, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if IsPermanent(err) || attempt >= maxRetries {
			break
		}
		if time.Since(start)+backoff > budget {
			break
		}

		c.logger().Debug("tmux command failed, retrying",
			slog.String("component", "tmux"),
			slog.String("cmd", args[0]),
			slog.String("class", class.String()),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}
	return "", lastErr
}

func retryBudget(class RetryClass) (maxRetries int, budget, backoff time.Duration) {
	switch class {
	case RetryFast:
		return fastMaxRetries, fastBudget, fastBackoff
	case RetryIdempotent:
		return idemMaxRetries, idemBudget, idemBackoff
	default:
		return 0, 0, 0
	}
}

// runOnce executes a single attempt, bounding it with the default timeout
// when the caller's context has no deadline.
func (c *Client) runOnce(ctx context.Context, args []string) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultCommandTimeout)
		defer cancel()
	}

	stdout, stderr, err := c.runner(ctx, args)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && classifyStderr(stderr) == nil {
			return "", ctxErr
		}
		return "", wrapCommandError(args, err, stderr)
	}
	return stdout, nil
}

// ShellQuote returns a POSIX-shell-safe single-quoted string.
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}

	// Close-quote, escape single quote, reopen: ' -> '\''.
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

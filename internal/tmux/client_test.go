package tmux

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

// fakeRunner scripts tmux responses and records every invocation.
type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	// respond is consulted per call; returning handled=false falls through
	// to the default empty success.
	respond func(call int, args []string) (stdout, stderr string, err error, handled bool)
}

func (f *fakeRunner) run(_ context.Context, args []string) (string, string, error) {
	f.mu.Lock()
	call := len(f.calls)
	f.calls = append(f.calls, args)
	respond := f.respond
	f.mu.Unlock()

	if respond != nil {
		if out, errOut, err, handled := respond(call, args); handled {
			return out, errOut, err
		}
	}
	return "", "", nil
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeRunner) call(i int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

func newFakeClient(respond func(call int, args []string) (string, string, error, bool)) (*Client, *fakeRunner) {
	f := &fakeRunner{respond: respond}
	return NewClientWithRunner(f.run), f
}

func TestRetryClasses(t *testing.T) {
	failTwice := func(call int, args []string) (string, string, error, bool) {
		if call < 2 {
			return "", "server busy", errors.New("exit status 1"), true
		}
		return "ok", "", nil, true
	}

	t.Run("idempotent retries transient failures", func(t *testing.T) {
		c, f := newFakeClient(failTwice)
		out, err := c.Run(RetryIdempotent, "list-panes", "-t", "%1")
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if out != "ok" {
			t.Errorf("expected ok, got %q", out)
		}
		if got := f.callCount(); got != 3 {
			t.Errorf("expected 3 attempts, got %d", got)
		}
	})

	t.Run("none never retries", func(t *testing.T) {
		c, f := newFakeClient(func(int, []string) (string, string, error, bool) {
			return "", "server busy", errors.New("exit status 1"), true
		})
		if err := c.RunSilent(RetryNone, "kill-pane", "-t", "%1"); err == nil {
			t.Fatal("expected error")
		}
		if got := f.callCount(); got != 1 {
			t.Errorf("expected 1 attempt, got %d", got)
		}
	})

	t.Run("fast caps at two retries", func(t *testing.T) {
		c, f := newFakeClient(func(int, []string) (string, string, error, bool) {
			return "", "server busy", errors.New("exit status 1"), true
		})
		if err := c.RunSilent(RetryFast, "resize-pane", "-t", "%1", "-x", "40"); err == nil {
			t.Fatal("expected error")
		}
		if got := f.callCount(); got != 3 {
			t.Errorf("expected 3 attempts (1 + 2 retries), got %d", got)
		}
	})

	t.Run("permanent errors are never retried", func(t *testing.T) {
		c, f := newFakeClient(func(int, []string) (string, string, error, bool) {
			return "", "can't find pane: %9", errors.New("exit status 1"), true
		})
		_, err := c.Run(RetryIdempotent, "capture-pane", "-t", "%9", "-p")
		if !errors.Is(err, ErrPaneNotFound) {
			t.Fatalf("expected ErrPaneNotFound, got %v", err)
		}
		if got := f.callCount(); got != 1 {
			t.Errorf("expected 1 attempt, got %d", got)
		}
	})
}

func TestClassifyStderr(t *testing.T) {
	tests := []struct {
		stderr string
		want   error
	}{
		{"no server running on /tmp/tmux-1000/default", ErrNoServer},
		{"can't find session: work", ErrSessionNotFound},
		{"can't find pane: %42", ErrPaneNotFound},
		{"no such window: @3", ErrPaneNotFound},
		{"bad layout: a1b2,200x50", ErrBadLayout},
		{"some transient condition", nil},
	}

	for _, tt := range tests {
		t.Run(tt.stderr, func(t *testing.T) {
			got := classifyStderr(tt.stderr)
			if !errors.Is(got, tt.want) && !(got == nil && tt.want == nil) {
				t.Errorf("classifyStderr(%q) = %v, want %v", tt.stderr, got, tt.want)
			}
		})
	}
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", ErrSessionNotFound, true},
		{"wrapped sentinel", fmt.Errorf("context: %w", ErrPaneNotFound), true},
		{"stderr marker", errors.New("tmux send-keys: exit status 1: permission denied"), true},
		{"invalid marker", errors.New("invalid option -q"), true},
		{"transient", errors.New("resource temporarily unavailable"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPermanent(tt.err); got != tt.want {
				t.Errorf("IsPermanent(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "''"},
		{"simple", "'simple'"},
		{"with space", "'with space'"},
		{"it's", `'it'\''s'`},
	}

	for _, tt := range tests {
		if got := ShellQuote(tt.in); got != tt.want {
			t.Errorf("ShellQuote(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSendText(t *testing.T) {
	c, f := newFakeClient(nil)
	if err := c.SendText(context.Background(), "%3", "echo hi", true); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}

	if f.callCount() != 2 {
		t.Fatalf("expected 2 tmux calls, got %d", f.callCount())
	}
	first := strings.Join(f.call(0), " ")
	if !strings.Contains(first, "-l") || !strings.Contains(first, "echo hi") {
		t.Errorf("first call should send literal text, got %q", first)
	}
	second := strings.Join(f.call(1), " ")
	if !strings.Contains(second, "C-m") {
		t.Errorf("second call should press Enter, got %q", second)
	}
}

func TestPasteTextUsesBufferPath(t *testing.T) {
	c, f := newFakeClient(nil)
	if err := c.PasteText(context.Background(), "%3", "multi\nline $(dangerous)"); err != nil {
		t.Fatalf("PasteText failed: %v", err)
	}

	if f.callCount() != 3 {
		t.Fatalf("expected set/paste/delete buffer calls, got %d", f.callCount())
	}
	if f.call(0)[0] != "set-buffer" {
		t.Errorf("first call = %v, want set-buffer", f.call(0)[0])
	}
	if f.call(1)[0] != "paste-buffer" {
		t.Errorf("second call = %v, want paste-buffer", f.call(1)[0])
	}
	if f.call(2)[0] != "delete-buffer" {
		t.Errorf("third call = %v, want delete-buffer", f.call(2)[0])
	}
}

func TestListPanes(t *testing.T) {
	sep := "|#|"
	out := strings.Join([]string{
		strings.Join([]string{"%1", "0", "dmux", "dmux", "40", "50", "1"}, sep),
		strings.Join([]string{"%2", "1", "fix-login", "node", "80", "50", "0"}, sep),
	}, "\n")

	c, _ := newFakeClient(func(_ int, args []string) (string, string, error, bool) {
		if args[0] == "list-panes" {
			return out, "", nil, true
		}
		return "", "", nil, false
	})

	panes, err := c.ListPanes(context.Background(), "%1")
	if err != nil {
		t.Fatalf("ListPanes failed: %v", err)
	}
	if len(panes) != 2 {
		t.Fatalf("expected 2 panes, got %d", len(panes))
	}
	if panes[0].ID != "%1" || !panes[0].Active || panes[0].Width != 40 {
		t.Errorf("unexpected first pane: %+v", panes[0])
	}
	if panes[1].Title != "fix-login" || panes[1].Height != 50 {
		t.Errorf("unexpected second pane: %+v", panes[1])
	}
}

func TestCursorPosition(t *testing.T) {
	c, _ := newFakeClient(func(_ int, args []string) (string, string, error, bool) {
		if args[0] == "display-message" {
			return "12 7", "", nil, true
		}
		return "", "", nil, false
	})

	pos, err := c.CursorPosition(context.Background(), "%2")
	if err != nil {
		t.Fatalf("CursorPosition failed: %v", err)
	}
	if pos.Row != 12 || pos.Col != 7 {
		t.Errorf("expected 12,7 got %d,%d", pos.Row, pos.Col)
	}
}

func TestSanitizePaneCommand(t *testing.T) {
	tests := []struct {
		name    string
		cmd     string
		wantErr bool
	}{
		{"plain", "npm run dev", false},
		{"with tab", "echo\ta", false},
		{"newline injection", "echo hi\nrm -rf /", true},
		{"carriage return", "echo hi\r", true},
		{"escape char", "echo \x1b[31mred", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SanitizePaneCommand(tt.cmd)
			if (err != nil) != tt.wantErr {
				t.Errorf("SanitizePaneCommand(%q) error = %v, wantErr %v", tt.cmd, err, tt.wantErr)
			}
		})
	}
}

func TestValidateSessionName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"myproject", false},
		{"my-project", false},
		{"my_project", false},
		{"", true},
		{"my.project", true},
		{"my:project", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSessionName(tt.name)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSessionName(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
		})
	}
}

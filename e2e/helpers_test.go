package e2e

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/Dicklesworthstone/dmux/internal/tmux"
)

// skipUnlessE2E skips the test when the environment cannot run a full
// scenario: short mode, or no tmux or git on the machine.
func skipUnlessE2E(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("short mode")
	}
	if !tmux.IsInstalled() {
		t.Skip("tmux not installed")
	}
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

// gitRun executes one git command in dir.
func gitRun(dir string, args ...string) error {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git %v: %w: %s", args, err, string(out))
	}
	return nil
}

// gitOutput executes one git command in dir and returns its stdout.
func gitOutput(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %v: %w", args, err)
	}
	return string(out), nil
}

// initProjectRepo turns dir into a git repository with one commit on main
// and a local committer identity, mirroring a real project checkout.
func initProjectRepo(dir string) (string, error) {
	steps := [][]string{
		{"init"},
		{"config", "user.email", "e2e@example.com"},
		{"config", "user.name", "dmux e2e"},
	}
	for _, args := range steps {
		if err := gitRun(dir, args...); err != nil {
			return "", err
		}
	}
	readme := filepath.Join(dir, "README.md")
	if err := os.WriteFile(readme, []byte("# e2e project\n"), 0644); err != nil {
		return "", err
	}
	if err := gitRun(dir, "add", "."); err != nil {
		return "", err
	}
	if err := gitRun(dir, "commit", "-m", "initial commit"); err != nil {
		return "", err
	}
	if err := gitRun(dir, "branch", "-M", "main"); err != nil {
		return "", err
	}
	return dir, nil
}

// fakeAgentScript is the stand-in agent CLI. Invoked with the harness args
// it answers from the prompt's wording; launched interactively it draws an
// idle input box like a real agent TUI and swallows whatever is typed.
const fakeAgentScript = `#!/bin/sh
if [ "$1" = "prompt" ]; then
	prompt=""
	for arg; do prompt=$arg; done
	case "$prompt" in
	*kebab-case*)
		echo "fix-login" ;;
	*"commit message"*)
		echo "chore: save work in progress" ;;
	*"pull request"*)
		echo '{"title": "Fix login", "body": "Fixes the login flow."}' ;;
	*"terminal pane"*)
		echo '{"state": "working", "summary": "running the test suite"}' ;;
	*)
		echo "ok" ;;
	esac
	exit 0
fi
printf '%s agent ready\n' "fake"
printf '> \n'
while read -r _; do :; done
`

// writeFakeAgent installs the fake agent CLI into dir and returns its path.
func writeFakeAgent(dir string) (string, error) {
	path := filepath.Join(dir, "fake-agent")
	if err := os.WriteFile(path, []byte(fakeAgentScript), 0755); err != nil {
		return "", err
	}
	return path, nil
}

// waitFor polls cond until it succeeds or the timeout passes.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out after %s waiting for %s", timeout, what)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// holdsFor reports whether cond stays true for the whole duration, polling
// at the same cadence as waitFor. Used to assert that something does NOT
// happen.
func holdsFor(d time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if !cond() {
			return false
		}
		time.Sleep(100 * time.Millisecond)
	}
	return cond()
}

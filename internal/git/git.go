// Package git shells out to the git CLI for everything the pane and merge
// orchestrators need: worktree lifecycle, status, staging, merging, and
// branch bookkeeping. All operations take the repository directory
// explicitly; nothing depends on the process working directory.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
)

var (
	// ErrNotRepo is returned when a directory is not inside a git
	// repository.
	ErrNotRepo = errors.New("not a git repository")
	// ErrMergeConflict is returned when a merge stops on conflicts.
	ErrMergeConflict = errors.New("merge conflict")
)

// GitError carries the exit code and stderr of a failed git command so
// callers can distinguish "conflict" from "broken".
type GitError struct {
	Args     []string
	ExitCode int
	Stderr   string
}

func (e *GitError) Error() string {
	msg := fmt.Sprintf("git %s: exit %d", strings.Join(e.Args, " "), e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// runFunc executes one git invocation in dir and returns stdout.
type runFunc func(ctx context.Context, dir string, args []string) (string, error)

// Service wraps the git CLI.
type Service struct {
	Logger *slog.Logger

	run runFunc
}

// NewService creates a service backed by the installed git binary.
func NewService() *Service {
	return &Service{run: execGit}
}

// NewServiceWithRunner injects a fake git for tests.
func NewServiceWithRunner(run runFunc) *Service {
	return &Service{run: run}
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func execGit(ctx context.Context, dir string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		gitErr := &GitError{Args: args, ExitCode: -1, Stderr: strings.TrimSpace(stderr.String())}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			gitErr.ExitCode = exitErr.ExitCode()
		}
		return stdout.String(), gitErr
	}
	return stdout.String(), nil
}

// git runs one command and trims the output.
func (s *Service) git(ctx context.Context, dir string, args ...string) (string, error) {
	out, err := s.run(ctx, dir, args)
	if err != nil {
		return strings.TrimSpace(out), err
	}
	return strings.TrimSpace(out), nil
}

// FindRoot resolves the repository root containing dir.
func (s *Service) FindRoot(ctx context.Context, dir string) (string, error) {
	out, err := s.git(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotRepo, dir)
	}
	return out, nil
}

// IsRepo reports whether dir is inside a git repository.
func (s *Service) IsRepo(ctx context.Context, dir string) bool {
	_, err := s.git(ctx, dir, "rev-parse", "--git-dir")
	return err == nil
}

// CurrentBranch returns the checked-out branch name, or the literal "HEAD"
// when detached.
func (s *Service) CurrentBranch(ctx context.Context, dir string) (string, error) {
	return s.git(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
}

// BranchExists reports whether a local branch exists.
func (s *Service) BranchExists(ctx context.Context, dir, branch string) bool {
	_, err := s.git(ctx, dir, "rev-parse", "--verify", "--quiet", "refs/heads/"+branch)
	return err == nil
}

// StatusEntry is one line of porcelain status.
type StatusEntry struct {
	Code string
	Path string
}

// Status returns the porcelain v1 status entries for dir.
func (s *Service) Status(ctx context.Context, dir string) ([]StatusEntry, error) {
	out, err := s.git(ctx, dir, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	var entries []StatusEntry
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		entries = append(entries, StatusEntry{
			Code: line[:2],
			Path: strings.TrimSpace(line[3:]),
		})
	}
	return entries, nil
}

// IsClean reports whether the working tree has no uncommitted changes.
func (s *Service) IsClean(ctx context.Context, dir string) (bool, error) {
	entries, err := s.Status(ctx, dir)
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}

// StageAll stages every change in dir.
func (s *Service) StageAll(ctx context.Context, dir string) error {
	_, err := s.git(ctx, dir, "add", "-A")
	return err
}

// Commit records the staged changes with the given message.
func (s *Service) Commit(ctx context.Context, dir, message string) error {
	_, err := s.git(ctx, dir, "commit", "-m", message)
	return err
}

// DiffSummary produces a short human-readable summary of staged changes,
// used to seed commit-message prompts.
func (s *Service) DiffSummary(ctx context.Context, dir string) (string, error) {
	stat, err := s.git(ctx, dir, "diff", "--cached", "--stat")
	if err != nil {
		return "", err
	}
	if stat == "" {
		stat, err = s.git(ctx, dir, "diff", "--stat")
		if err != nil {
			return "", err
		}
	}
	return stat, nil
}

// DiffRange summarizes what branch adds over base, for PR descriptions.
func (s *Service) DiffRange(ctx context.Context, dir, base string) (string, error) {
	return s.git(ctx, dir, "diff", base+"...HEAD", "--stat")
}

// Stash saves the working tree with a label so it can be found again.
func (s *Service) Stash(ctx context.Context, dir, label string) error {
	_, err := s.git(ctx, dir, "stash", "push", "-u", "-m", label)
	return err
}

// StashPop restores the most recent stash.
func (s *Service) StashPop(ctx context.Context, dir string) error {
	_, err := s.git(ctx, dir, "stash", "pop")
	return err
}

// CommitsAhead counts commits on branch that base does not have.
func (s *Service) CommitsAhead(ctx context.Context, dir, base, branch string) (int, error) {
	out, err := s.git(ctx, dir, "rev-list", "--count", base+".."+branch)
	if err != nil {
		return 0, err
	}
	n, convErr := strconv.Atoi(out)
	if convErr != nil {
		return 0, fmt.Errorf("parse rev-list count %q: %w", out, convErr)
	}
	return n, nil
}

// MergeWouldConflict checks whether merging branch into base would stop on
// conflicts, without touching the working tree.
func (s *Service) MergeWouldConflict(ctx context.Context, dir, base, branch string) (bool, error) {
	_, err := s.git(ctx, dir, "merge-tree", "--write-tree", "--name-only", base, branch)
	if err == nil {
		return false, nil
	}
	var gitErr *GitError
	if errors.As(err, &gitErr) && gitErr.ExitCode == 1 {
		return true, nil
	}
	return false, err
}

// Merge merges branch into the branch checked out in dir. A conflict stop
// is reported as ErrMergeConflict with the working tree left mid-merge for
// resolution.
func (s *Service) Merge(ctx context.Context, dir, branch string) error {
	out, err := s.git(ctx, dir, "merge", branch, "--no-edit")
	if err == nil {
		return nil
	}
	var gitErr *GitError
	combined := out
	if errors.As(err, &gitErr) {
		combined += "\n" + gitErr.Stderr
	}
	if strings.Contains(combined, "CONFLICT") || strings.Contains(combined, "Automatic merge failed") {
		return fmt.Errorf("%w: merging %s: %s", ErrMergeConflict, branch, firstLine(combined))
	}
	return err
}

// MergeAbort abandons an in-progress merge. Safe to call when none is in
// progress.
func (s *Service) MergeAbort(ctx context.Context, dir string) error {
	_, err := s.git(ctx, dir, "merge", "--abort")
	var gitErr *GitError
	if errors.As(err, &gitErr) && strings.Contains(gitErr.Stderr, "MERGE_HEAD missing") {
		return nil
	}
	return err
}

// MergeInProgress reports whether dir has an unfinished merge.
func (s *Service) MergeInProgress(ctx context.Context, dir string) bool {
	_, err := s.git(ctx, dir, "rev-parse", "--verify", "--quiet", "MERGE_HEAD")
	return err == nil
}

// Checkout switches dir to the given branch.
func (s *Service) Checkout(ctx context.Context, dir, branch string) error {
	_, err := s.git(ctx, dir, "checkout", branch)
	return err
}

// RenameBranch renames a local branch.
func (s *Service) RenameBranch(ctx context.Context, dir, oldName, newName string) error {
	_, err := s.git(ctx, dir, "branch", "-m", oldName, newName)
	return err
}

// Push pushes the branch to origin, creating the upstream on first push.
func (s *Service) Push(ctx context.Context, dir, branch string) error {
	_, err := s.git(ctx, dir, "push", "-u", "origin", branch)
	return err
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return ""
}

package git

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Worktree is one entry from `git worktree list`.
type Worktree struct {
	Path   string
	Head   string
	Branch string
}

// AddWorktree creates a worktree at path on a new branch forked from the
// current HEAD of repoDir.
func (s *Service) AddWorktree(ctx context.Context, repoDir, path, branch string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	_, err := s.git(ctx, repoDir, "worktree", "add", path, "-b", branch)
	return err
}

// AddWorktreeAt creates a worktree at path checked out to an existing
// branch or commit.
func (s *Service) AddWorktreeAt(ctx context.Context, repoDir, path, ref string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	_, err := s.git(ctx, repoDir, "worktree", "add", path, ref)
	return err
}

// RemoveWorktree removes a worktree, falling back to pruning plus a direct
// directory delete when git refuses. The worktree's branch is untouched.
func (s *Service) RemoveWorktree(ctx context.Context, repoDir, path string) error {
	if path == "" || filepath.Clean(path) == filepath.Clean(repoDir) {
		return fmt.Errorf("refusing to remove %q: not a linked worktree", path)
	}
	_, err := s.git(ctx, repoDir, "worktree", "remove", path, "--force")
	if err == nil {
		return nil
	}
	s.logger().Warn("worktree remove failed, pruning", "path", path, "error", err)
	if _, pruneErr := s.git(ctx, repoDir, "worktree", "prune"); pruneErr != nil {
		s.logger().Warn("worktree prune failed", "error", pruneErr)
	}
	if _, statErr := os.Stat(path); statErr == nil {
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return rmErr
		}
		_, _ = s.git(ctx, repoDir, "worktree", "prune")
	}
	return nil
}

// DeleteBranch force-deletes a local branch. Failures are logged and
// swallowed; a leftover branch is harmless.
func (s *Service) DeleteBranch(ctx context.Context, repoDir, branch string) {
	if _, err := s.git(ctx, repoDir, "branch", "-D", branch); err != nil {
		s.logger().Debug("branch delete failed", "branch", branch, "error", err)
	}
}

// ListWorktrees parses `git worktree list --porcelain` for repoDir.
func (s *Service) ListWorktrees(ctx context.Context, repoDir string) ([]Worktree, error) {
	out, err := s.git(ctx, repoDir, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	var (
		trees []Worktree
		cur   *Worktree
	)
	flush := func() {
		if cur != nil {
			trees = append(trees, *cur)
			cur = nil
		}
	}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "worktree "):
			flush()
			cur = &Worktree{Path: strings.TrimPrefix(line, "worktree ")}
		case cur == nil:
			continue
		case strings.HasPrefix(line, "HEAD "):
			cur.Head = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			ref := strings.TrimPrefix(line, "branch ")
			cur.Branch = strings.TrimPrefix(ref, "refs/heads/")
		}
	}
	flush()
	return trees, nil
}

// PruneWorktrees drops stale worktree registrations.
func (s *Service) PruneWorktrees(ctx context.Context, repoDir string) error {
	_, err := s.git(ctx, repoDir, "worktree", "prune")
	return err
}

// HasWorktree reports whether repoDir has a registered worktree at path.
func (s *Service) HasWorktree(ctx context.Context, repoDir, path string) (bool, error) {
	trees, err := s.ListWorktrees(ctx, repoDir)
	if err != nil {
		return false, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	for _, wt := range trees {
		if wt.Path == abs || wt.Path == path {
			return true, nil
		}
	}
	return false, nil
}

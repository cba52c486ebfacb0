package merge

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/Dicklesworthstone/dmux/internal/state"
	"github.com/Dicklesworthstone/dmux/internal/util"
)

// maxNestDepth bounds nested worktree discovery.
const maxNestDepth = 5

// item is one repository merge in the queue: branch, taken from worktree,
// merges into the checkout at repoDir which is on base.
type item struct {
	repoDir  string
	worktree string
	branch   string
	base     string
	depth    int
}

// buildQueue lists the pane's merge plus every nested sub-worktree under
// it, ordered deepest first so a child lands in its parent before the
// parent merges upward.
func (o *Orchestrator) buildQueue(ctx context.Context, pane state.Pane) ([]item, error) {
	branch, err := o.Git.CurrentBranch(ctx, pane.WorktreePath)
	if err != nil || branch == "" || branch == "HEAD" {
		branch = o.settings().BranchPrefix + pane.Slug
	}
	queue := []item{{
		repoDir:  o.Store.ProjectRoot(),
		worktree: pane.WorktreePath,
		branch:   branch,
		base:     o.settings().BaseBranch,
		depth:    0,
	}}
	o.collectNested(ctx, &queue, pane.WorktreePath, 1)

	sort.SliceStable(queue, func(i, j int) bool { return queue[i].depth > queue[j].depth })
	return queue, nil
}

func (o *Orchestrator) collectNested(ctx context.Context, queue *[]item, repoDir string, depth int) {
	if depth > maxNestDepth {
		o.logger().Warn("nested worktrees too deep, stopping discovery", "dir", repoDir)
		return
	}
	entries, err := os.ReadDir(util.WorktreesDir(repoDir))
	if err != nil {
		return
	}

	registered, err := o.Git.ListWorktrees(ctx, repoDir)
	if err != nil {
		o.logger().Warn("listing nested worktrees failed", "dir", repoDir, "error", err)
		return
	}
	byPath := make(map[string]string, len(registered))
	for _, wt := range registered {
		byPath[wt.Path] = wt.Branch
	}

	parentBranch, err := o.Git.CurrentBranch(ctx, repoDir)
	if err != nil || parentBranch == "" {
		o.logger().Warn("cannot determine parent branch, skipping nested worktrees", "dir", repoDir, "error", err)
		return
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(util.WorktreesDir(repoDir), entry.Name())
		branch, ok := byPath[path]
		if !ok || branch == "" {
			continue
		}
		*queue = append(*queue, item{
			repoDir:  repoDir,
			worktree: path,
			branch:   branch,
			base:     parentBranch,
			depth:    depth,
		})
		o.collectNested(ctx, queue, path, depth+1)
	}
}

package action

import (
	"context"
	"strings"

	"github.com/Dicklesworthstone/dmux/internal/state"
)

// openPR pushes the pane's branch and opens a pull request through the gh
// CLI. Title and body come from the harness; on failure the user gets an
// input dialog with the branch name prefilled.
func (d *Dispatcher) openPR(ctx context.Context, pane state.Pane) *Result {
	if !pane.Kind.HasWorktree() || pane.WorktreePath == "" {
		return Errorf("pane %s has no branch to open a PR from", pane.Slug)
	}
	if _, err := d.lookPath("gh"); err != nil {
		return Errorf("GitHub CLI (gh) not found; install it to open PRs")
	}

	clean, err := d.Git.IsClean(ctx, pane.WorktreePath)
	if err == nil && !clean {
		if d.Merger == nil {
			return Errorf("worktree has uncommitted changes")
		}
		return d.Merger.ResolveUncommitted(ctx, pane.ID, func(ctx context.Context) *Result {
			return d.pushAndCreatePR(ctx, pane)
		})
	}
	return d.pushAndCreatePR(ctx, pane)
}

func (d *Dispatcher) pushAndCreatePR(ctx context.Context, pane state.Pane) *Result {
	branch, err := d.Git.CurrentBranch(ctx, pane.WorktreePath)
	if err != nil {
		return Errorf("reading branch: %v", err)
	}
	if err := d.Git.Push(ctx, pane.WorktreePath, branch); err != nil {
		return Errorf("pushing %s: %v", branch, err)
	}

	base := d.settings().BaseBranch
	summary, err := d.Git.DiffRange(ctx, pane.WorktreePath, base)
	if err != nil {
		d.logger().Debug("diff summary unavailable", "error", err)
	}

	agentName := pane.Agent
	if agentName == "" {
		agentName, _ = d.Panes.ResolveAgent("")
	}
	if agentName != "" && d.Harness != nil {
		title, body, err := d.Harness.PRDescription(ctx, agentName, branch, summary)
		if err == nil {
			return d.createPR(ctx, pane, branch, base, title, body)
		}
		d.logger().Warn("PR description generation failed", "agent", agentName, "error", err)
	}

	return &Result{
		Type:         TypeInput,
		Title:        "Pull Request Title",
		Message:      "Could not generate a title. Enter one to continue.",
		Placeholder:  "Add feature ...",
		DefaultValue: branch,
		OnSubmit: func(ctx context.Context, value string) *Result {
			return d.createPR(ctx, pane, branch, base, value, summary)
		},
	}
}

func (d *Dispatcher) createPR(ctx context.Context, pane state.Pane, branch, base, title, body string) *Result {
	out, err := d.runCommand(ctx, pane.WorktreePath, "gh", "pr", "create",
		"--base", base, "--head", branch, "--title", title, "--body", body)
	if err != nil {
		return Errorf("gh pr create failed: %v: %s", err, firstLine(out))
	}
	d.logger().Info("pull request opened", "pane", pane.ID, "branch", branch)
	if url := lastLine(out); url != "" {
		return Success("Pull request created: %s", url)
	}
	return Success("Pull request created for %s", branch)
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

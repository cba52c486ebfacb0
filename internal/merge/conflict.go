package merge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dicklesworthstone/dmux/internal/action"
	"github.com/Dicklesworthstone/dmux/internal/git"
	"github.com/Dicklesworthstone/dmux/internal/hooks"
	"github.com/Dicklesworthstone/dmux/internal/panes"
	"github.com/Dicklesworthstone/dmux/internal/util"
)

const conflictPromptTemplate = `The repository you are in has a merge of %q stopped on conflicts. Resolve every conflict, keeping the intent of both sides. Then stage the files and complete the merge with "git commit --no-edit". Do not push. Do not create new branches.`

const (
	conflictCaptureLines = 80
	conflictLogBytes     = 400
)

// resolveConflict offers the resolution paths for a conflicted merge.
// preflight is true when the conflict was predicted before running it.
func (r *runner) resolveConflict(ctx context.Context, preflight bool) *action.Result {
	it := r.current()
	message := fmt.Sprintf("Merging %s into %s stopped on conflicts.", it.branch, it.base)
	if preflight {
		message = fmt.Sprintf("Merging %s into %s will conflict.", it.branch, it.base)
	}
	return &action.Result{
		Type:    action.TypeChoice,
		Title:   "Merge Conflicts Detected",
		Message: message,
		Options: []action.Option{
			{ID: "ai_resolve", Label: "Resolve with an agent", Description: "Opens a pane where an agent resolves the conflicts", Default: true},
			{ID: "manual", Label: "Resolve manually", Description: "Jump to your worktree and reconcile by hand"},
			{ID: optCancel, Label: "Cancel merge"},
		},
		OnSelect: func(ctx context.Context, id string) *action.Result {
			switch id {
			case "ai_resolve":
				return r.startAIResolution(ctx)
			case "manual":
				return r.manualResolution(ctx)
			default:
				return r.cancelConflict(ctx)
			}
		},
	}
}

// startAIResolution materializes the conflict markers in the target repo
// and hands them to an agent in a dedicated pane. A monitor resumes the
// flow once the merge commit exists.
func (r *runner) startAIResolution(ctx context.Context) *action.Result {
	it := r.current()
	o := r.o

	if err := o.Git.MergeAbort(ctx, it.repoDir); err != nil {
		o.logger().Debug("no leftover merge to abort", "dir", it.repoDir, "error", err)
	}
	err := o.Git.Merge(ctx, it.repoDir, it.branch)
	if err == nil {
		// the predicted conflict did not materialize
		r.fireHook(ctx, hooks.PostMerge)
		return r.cleanup(ctx)
	}
	if !errors.Is(err, git.ErrMergeConflict) {
		return r.itemFailure(ctx, fmt.Sprintf("Merging %s failed: %v", it.branch, err))
	}

	pane, err := o.Panes.OpenConflictPane(ctx, panes.ConflictRequest{
		Slug:   "merge-" + r.pane.Slug,
		Dir:    it.repoDir,
		Agent:  r.pane.Agent,
		Prompt: fmt.Sprintf(conflictPromptTemplate, it.branch),
	})
	if err != nil {
		if abortErr := o.Git.MergeAbort(ctx, it.repoDir); abortErr != nil {
			o.logger().Warn("merge abort failed", "dir", it.repoDir, "error", abortErr)
		}
		return action.Errorf("opening conflict pane: %v", err)
	}

	go o.monitorConflict(context.WithoutCancel(ctx), pane.ID, r)

	return &action.Result{
		Type:        action.TypeProgress,
		Title:       "Resolving Conflicts",
		Message:     fmt.Sprintf("An agent is resolving the conflicts in %s. The merge resumes automatically.", pane.Slug),
		Dismissable: true,
	}
}

// manualResolution leaves the target repo clean and sends the user to
// their worktree to reconcile against the base branch.
func (r *runner) manualResolution(ctx context.Context) *action.Result {
	it := r.current()
	if err := r.o.Git.MergeAbort(ctx, it.repoDir); err != nil {
		r.o.logger().Debug("no merge to abort", "dir", it.repoDir, "error", err)
	}
	message := fmt.Sprintf("Reconcile %s with %s in the worktree, then merge again.", it.branch, it.base)
	if r.pane.Live() {
		return action.Navigate(r.pane.ID, message)
	}
	return action.Info("Manual Resolution", "%s", message)
}

func (r *runner) cancelConflict(ctx context.Context) *action.Result {
	it := r.current()
	if r.o.Git.MergeInProgress(ctx, it.repoDir) {
		if err := r.o.Git.MergeAbort(ctx, it.repoDir); err != nil {
			r.o.logger().Warn("merge abort failed", "dir", it.repoDir, "error", err)
		}
	}
	return r.cancel(ctx)
}

// monitorConflict polls the conflicted repository until the agent has
// completed the merge commit, then closes the resolution pane and
// resumes the flow. An aborted merge does not count as resolved; the
// branch must actually be contained in the target.
func (o *Orchestrator) monitorConflict(ctx context.Context, paneID string, r *runner) {
	it := r.current()
	deadline := time.After(o.resolveWait)
	ticker := time.NewTicker(o.resolvePoll)
	defer ticker.Stop()

	var seen string
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			o.logger().Warn("conflict resolution timed out", "pane", paneID, "dir", it.repoDir)
			o.deliver(action.Errorf("Conflict resolution in %s timed out. Finish the merge manually.", it.repoDir))
			return
		case <-ticker.C:
		}

		seen = o.logResolutionProgress(ctx, paneID, seen)

		clean, err := o.Git.IsClean(ctx, it.repoDir)
		if err != nil || !clean {
			continue
		}
		if o.Git.MergeInProgress(ctx, it.repoDir) {
			continue
		}
		ahead, err := o.Git.CommitsAhead(ctx, it.repoDir, it.base, it.branch)
		if err != nil || ahead > 0 {
			continue
		}
		break
	}

	o.logger().Info("conflicts resolved", "pane", paneID, "branch", it.branch)
	if err := o.Panes.Close(ctx, paneID, panes.CloseKillOnly); err != nil {
		o.logger().Warn("closing conflict pane failed", "pane", paneID, "error", err)
	}
	r.fireHook(ctx, hooks.PostMerge)
	o.deliver(r.cleanup(ctx))
}

// logResolutionProgress records what the resolution agent printed since the
// previous poll and returns the capture for the next comparison. Purely
// observational; only the git checks decide when the merge is done.
func (o *Orchestrator) logResolutionProgress(ctx context.Context, paneID, prev string) string {
	pane, ok := o.Store.Pane(paneID)
	if !ok || !pane.Live() {
		return prev
	}
	content, err := o.Panes.Tmux.CapturePane(ctx, pane.TerminalPaneID, conflictCaptureLines)
	if err != nil {
		return prev
	}
	if delta := util.ExtractNewOutput(prev, content); delta != "" {
		o.logger().Debug("resolution agent output", "pane", pane.Slug, "output", util.Truncate(delta, conflictLogBytes))
	}
	return content
}

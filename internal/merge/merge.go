// Package merge drives a pane's worktree branch back into its target
// branch: validation, commit-message generation for dirty trees, the
// merge itself, conflict resolution, and cleanup. Every interactive step
// is expressed as an action.Result continuation, so the same flow runs
// under the TUI and the HTTP API.
package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dicklesworthstone/dmux/internal/action"
	"github.com/Dicklesworthstone/dmux/internal/agent"
	"github.com/Dicklesworthstone/dmux/internal/git"
	"github.com/Dicklesworthstone/dmux/internal/hooks"
	"github.com/Dicklesworthstone/dmux/internal/panes"
	"github.com/Dicklesworthstone/dmux/internal/state"
)

const (
	defaultResolvePoll = 2 * time.Second
	defaultResolveWait = 15 * time.Minute
)

// Orchestrator runs merge flows. Deliver publishes results that arrive
// outside a dialog exchange, such as the resumption after a background
// conflict resolution; nil falls back to logging.
type Orchestrator struct {
	Store    *state.Store
	Settings *state.SettingsStore
	Git      *git.Service
	Harness  *agent.Harness
	Panes    *panes.Manager
	Hooks    *hooks.Runner
	Logger   *slog.Logger
	Deliver  func(*action.Result)

	resolvePoll time.Duration
	resolveWait time.Duration
}

// NewOrchestrator wires an orchestrator against the real services.
func NewOrchestrator(st *state.Store, settings *state.SettingsStore, g *git.Service, h *agent.Harness, pm *panes.Manager, hk *hooks.Runner) *Orchestrator {
	return &Orchestrator{
		Store:       st,
		Settings:    settings,
		Git:         g,
		Harness:     h,
		Panes:       pm,
		Hooks:       hk,
		resolvePoll: defaultResolvePoll,
		resolveWait: defaultResolveWait,
	}
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o *Orchestrator) settings() state.Settings {
	s, err := o.Settings.Resolve()
	if err != nil {
		o.logger().Warn("settings unavailable, using defaults", "error", err)
	}
	return s
}

func (o *Orchestrator) deliver(res *action.Result) {
	if res == nil {
		return
	}
	if o.Deliver != nil {
		o.Deliver(res)
		return
	}
	o.logger().Info("merge update", "type", string(res.Type), "message", res.Message)
}

// Start begins the merge flow for a pane's worktree branch. With nested
// sub-worktrees present the whole tree merges deepest first.
func (o *Orchestrator) Start(ctx context.Context, paneID string) *action.Result {
	pane, ok := o.Store.Pane(paneID)
	if !ok {
		return action.Errorf("pane %s not found", paneID)
	}
	if pane.Kind != state.KindWorktree || pane.WorktreePath == "" {
		return action.Errorf("pane %s has no worktree branch to merge", pane.Slug)
	}

	queue, err := o.buildQueue(ctx, pane)
	if err != nil {
		return action.Errorf("preparing merge: %v", err)
	}
	r := &runner{o: o, pane: pane, queue: queue}
	if len(queue) > 1 {
		return r.confirmBatch(ctx)
	}
	return r.validate(ctx)
}

// ResolveUncommitted presents the commit flow for a pane's dirty worktree
// and calls then once the tree is clean. Used by close and PR flows that
// refuse to proceed over uncommitted changes.
func (o *Orchestrator) ResolveUncommitted(ctx context.Context, paneID string, then func(context.Context) *action.Result) *action.Result {
	pane, ok := o.Store.Pane(paneID)
	if !ok {
		return action.Errorf("pane %s not found", paneID)
	}
	if pane.WorktreePath == "" {
		return action.Errorf("pane %s has no worktree", pane.Slug)
	}
	r := &runner{o: o, pane: pane, queue: []item{{worktree: pane.WorktreePath}}}
	message := fmt.Sprintf("%s has uncommitted changes that must be committed first.", pane.Slug)
	return r.commitChoice("Uncommitted Changes", message, pane.WorktreePath, false, then)
}

// summary counts item outcomes for the multi-repository report.
type summary struct {
	merged  int
	skipped int
	failed  int
}

// runner carries one merge flow across its continuations.
type runner struct {
	o       *Orchestrator
	pane    state.Pane
	queue   []item
	idx     int
	batch   bool
	stashed bool
	counts  summary
}

func (r *runner) current() item { return r.queue[r.idx] }

// root reports whether the current item merges into the project root.
func (r *runner) root() bool { return r.current().depth == 0 }

func (r *runner) confirmBatch(ctx context.Context) *action.Result {
	nested := len(r.queue) - 1
	return &action.Result{
		Type:         action.TypeConfirm,
		Title:        "Merge Nested Worktrees",
		Message:      fmt.Sprintf("%s contains %d nested worktree(s). Merge all %d repositories deepest first?", r.pane.Slug, nested, len(r.queue)),
		ConfirmLabel: "Merge all",
		CancelLabel:  "Cancel",
		OnConfirm: func(ctx context.Context) *action.Result {
			r.batch = true
			return r.validate(ctx)
		},
		OnCancel: r.cancel,
	}
}

// validate classifies the current item and routes to the matching
// resolution, the confirmation, or straight to done.
func (r *runner) validate(ctx context.Context) *action.Result {
	it := r.current()
	o := r.o

	wtClean, err := o.Git.IsClean(ctx, it.worktree)
	if err != nil {
		return r.itemFailure(ctx, fmt.Sprintf("Inspecting %s failed: %v", it.worktree, err))
	}
	if !wtClean {
		return r.resolveWorktree(ctx)
	}

	repoClean, err := o.Git.IsClean(ctx, it.repoDir)
	if err != nil {
		return r.itemFailure(ctx, fmt.Sprintf("Inspecting %s failed: %v", it.repoDir, err))
	}
	if !repoClean {
		return r.resolveTarget(ctx)
	}

	ahead, err := o.Git.CommitsAhead(ctx, it.repoDir, it.base, it.branch)
	if err != nil {
		return r.itemFailure(ctx, fmt.Sprintf("Comparing %s with %s failed: %v", it.branch, it.base, err))
	}
	if ahead == 0 {
		return r.nothingToMerge(ctx)
	}

	conflict, err := o.Git.MergeWouldConflict(ctx, it.repoDir, it.base, it.branch)
	if err != nil {
		// the probe is advisory, the merge itself will tell the truth
		o.logger().Warn("conflict probe failed", "branch", it.branch, "error", err)
		conflict = false
	}
	if conflict {
		return r.resolveConflict(ctx, true)
	}
	return r.confirm(ctx)
}

func (r *runner) confirm(ctx context.Context) *action.Result {
	if r.batch {
		// the batch was confirmed up front
		return r.run(ctx)
	}
	it := r.current()
	return &action.Result{
		Type:         action.TypeConfirm,
		Title:        "Merge " + r.pane.Slug,
		Message:      fmt.Sprintf("Merge %s into %s?", it.branch, it.base),
		ConfirmLabel: "Merge",
		CancelLabel:  "Cancel",
		OnConfirm:    r.run,
		OnCancel:     r.cancel,
	}
}

func (r *runner) run(ctx context.Context) *action.Result {
	it := r.current()
	o := r.o
	r.fireHook(ctx, hooks.PreMerge)

	err := o.Git.Merge(ctx, it.repoDir, it.branch)
	switch {
	case err == nil:
		o.logger().Info("merge complete", "branch", it.branch, "into", it.base, "dir", it.repoDir)
		r.fireHook(ctx, hooks.PostMerge)
		return r.cleanup(ctx)
	case errors.Is(err, git.ErrMergeConflict):
		o.logger().Info("merge stopped on conflicts", "branch", it.branch, "into", it.base)
		return r.resolveConflict(ctx, false)
	default:
		return r.itemFailure(ctx, fmt.Sprintf("Merging %s failed: %v", it.branch, err))
	}
}

// cleanup finishes the current item, restoring a stash when one was
// taken, then either advances the queue or offers to close the pane.
func (r *runner) cleanup(ctx context.Context) *action.Result {
	it := r.current()
	if r.stashed {
		if err := r.o.Git.StashPop(ctx, it.repoDir); err != nil {
			r.o.logger().Warn("stash pop failed, changes remain stashed", "dir", it.repoDir, "error", err)
		}
		r.stashed = false
	}
	r.counts.merged++
	if r.batch {
		return r.advance(ctx)
	}
	return r.confirmClose(ctx, fmt.Sprintf("%s merged into %s.", it.branch, it.base))
}

func (r *runner) confirmClose(ctx context.Context, note string) *action.Result {
	return &action.Result{
		Type:         action.TypeConfirm,
		Title:        "Merge Complete",
		Message:      note + " Close the pane and delete its worktree?",
		ConfirmLabel: "Close pane",
		CancelLabel:  "Keep it",
		OnConfirm: func(ctx context.Context) *action.Result {
			if err := r.o.Panes.Close(ctx, r.pane.ID, panes.CloseDeleteEverything); err != nil {
				return action.Errorf("closing pane: %v", err)
			}
			return action.Success("Merged and cleaned up %s", r.pane.Slug)
		},
		OnCancel: func(ctx context.Context) *action.Result {
			return action.Success("%s", note)
		},
	}
}

func (r *runner) nothingToMerge(ctx context.Context) *action.Result {
	it := r.current()
	if r.batch {
		r.o.logger().Info("nothing to merge", "branch", it.branch, "into", it.base)
		r.counts.skipped++
		return r.advance(ctx)
	}
	return action.Info("Nothing to Merge", "%s has no commits ahead of %s.", it.branch, it.base)
}

func (r *runner) advance(ctx context.Context) *action.Result {
	r.idx++
	r.stashed = false
	if r.idx >= len(r.queue) {
		return r.finish(ctx)
	}
	return r.validate(ctx)
}

func (r *runner) finish(ctx context.Context) *action.Result {
	c := r.counts
	note := fmt.Sprintf("%d merged, %d skipped, %d failed.", c.merged, c.skipped, c.failed)
	r.o.logger().Info("merge queue finished",
		"merged", c.merged, "skipped", c.skipped, "failed", c.failed)
	if c.failed == 0 && c.merged > 0 {
		return r.confirmClose(ctx, note)
	}
	return action.Info("Merge Summary", "%s", note)
}

// itemFailure reports one failed item. In batch mode the user chooses how
// the queue continues.
func (r *runner) itemFailure(ctx context.Context, msg string) *action.Result {
	if !r.batch {
		return action.Errorf("%s", msg)
	}
	return &action.Result{
		Type:    action.TypeChoice,
		Title:   "Merge Failed",
		Message: msg,
		Options: []action.Option{
			{ID: "retry", Label: "Retry", Default: true},
			{ID: "skip", Label: "Skip this repository"},
			{ID: "abort", Label: "Abort remaining merges", Danger: true},
		},
		OnSelect: func(ctx context.Context, id string) *action.Result {
			switch id {
			case "retry":
				return r.validate(ctx)
			case "skip":
				r.counts.skipped++
				return r.advance(ctx)
			default:
				r.counts.failed += len(r.queue) - r.idx
				r.idx = len(r.queue)
				return r.finish(ctx)
			}
		},
	}
}

func (r *runner) cancel(ctx context.Context) *action.Result {
	if r.stashed {
		it := r.current()
		if err := r.o.Git.StashPop(ctx, it.repoDir); err != nil {
			r.o.logger().Warn("stash pop failed on cancel", "dir", it.repoDir, "error", err)
		}
		r.stashed = false
	}
	return action.Success("Merge cancelled")
}

func (r *runner) fireHook(ctx context.Context, ev hooks.Event) {
	if r.o.Hooks == nil {
		return
	}
	it := r.current()
	r.o.Hooks.Fire(ctx, ev, hooks.Env{
		PaneID:       r.pane.ID,
		Slug:         r.pane.Slug,
		WorktreePath: it.worktree,
		Branch:       it.branch,
		TargetBranch: it.base,
		Agent:        r.pane.Agent,
	})
}

package merge

import (
	"context"
	"fmt"
	"strings"

	"github.com/Dicklesworthstone/dmux/internal/action"
)

const (
	optCommitAutomatic = "commit_automatic"
	optCommitEditable  = "commit_editable"
	optCommitManual    = "commit_manual"
	optStash           = "stash"
	optCancel          = "cancel"
)

// resolveWorktree handles uncommitted changes in the worktree being
// merged. They must become a commit; stashing would merge a stale tree.
func (r *runner) resolveWorktree(ctx context.Context) *action.Result {
	it := r.current()
	message := fmt.Sprintf("%s has uncommitted changes. Commit them so they are part of the merge.", r.pane.Slug)
	return r.commitChoice("Worktree Has Uncommitted Changes", message, it.worktree, false, r.validate)
}

// resolveTarget handles uncommitted changes in the repository receiving
// the merge. Stashing is offered here since the changes are unrelated to
// the branch being merged.
func (r *runner) resolveTarget(ctx context.Context) *action.Result {
	it := r.current()
	title := "Main Branch Has Uncommitted Changes"
	if !r.root() {
		title = "Parent Worktree Has Uncommitted Changes"
	}
	message := fmt.Sprintf("The checkout at %s must be clean before %s can merge into it.", it.repoDir, it.branch)
	return r.commitChoice(title, message, it.repoDir, true, r.validate)
}

// commitChoice presents the resolution options for a dirty tree and
// routes the picked one into the commit flow, then back into then.
func (r *runner) commitChoice(title, message, dir string, withStash bool, then func(context.Context) *action.Result) *action.Result {
	options := []action.Option{
		{ID: optCommitAutomatic, Label: "Commit with an AI message", Default: true},
		{ID: optCommitEditable, Label: "Commit with an editable AI message"},
		{ID: optCommitManual, Label: "Commit with my own message"},
	}
	if withStash {
		options = append(options, action.Option{ID: optStash, Label: "Stash changes and restore after the merge"})
	}
	options = append(options, action.Option{ID: optCancel, Label: "Cancel"})

	return &action.Result{
		Type:    action.TypeChoice,
		Title:   title,
		Message: message,
		Options: options,
		OnSelect: func(ctx context.Context, id string) *action.Result {
			switch id {
			case optCancel:
				return r.cancel(ctx)
			case optStash:
				if err := r.o.Git.Stash(ctx, dir, "dmux merge "+r.pane.Slug); err != nil {
					return action.Errorf("stashing changes: %v", err)
				}
				r.stashed = true
				return then(ctx)
			default:
				return r.commitFlow(ctx, dir, id, then)
			}
		},
	}
}

// commitFlow stages everything in dir and produces a commit using the
// chosen mode, then re-enters then. Generation failures degrade to an
// input dialog seeded with the diff summary.
func (r *runner) commitFlow(ctx context.Context, dir, mode string, then func(context.Context) *action.Result) *action.Result {
	o := r.o
	if err := o.Git.StageAll(ctx, dir); err != nil {
		return action.Errorf("staging changes: %v", err)
	}
	diffSummary, err := o.Git.DiffSummary(ctx, dir)
	if err != nil {
		o.logger().Warn("diff summary failed", "dir", dir, "error", err)
	}

	generated := ""
	if mode != optCommitManual {
		agentName := r.agentName()
		if agentName != "" && o.Harness != nil {
			msg, err := o.Harness.CommitMessage(ctx, agentName, diffSummary)
			if err != nil {
				o.logger().Warn("commit message generation failed", "agent", agentName, "error", err)
			} else {
				generated = msg
			}
		}
	}

	commit := func(ctx context.Context, message string) *action.Result {
		message = strings.TrimSpace(message)
		if message == "" {
			return action.Errorf("commit message cannot be empty")
		}
		if err := o.Git.Commit(ctx, dir, message); err != nil {
			return action.Errorf("committing: %v", err)
		}
		o.logger().Info("changes committed", "dir", dir)
		return then(ctx)
	}

	switch {
	case mode == optCommitAutomatic && generated != "":
		return commit(ctx, generated)
	case mode == optCommitManual:
		return &action.Result{
			Type:        action.TypeInput,
			Title:       "Commit Message",
			Message:     "Enter the commit message.",
			Placeholder: "feat: ...",
			OnSubmit:    commit,
		}
	default:
		// editable mode, or automatic whose generation failed
		defaultValue := generated
		message := "Edit the generated commit message."
		if defaultValue == "" {
			defaultValue = diffSummary
			message = "Could not generate a message. The diff summary is prefilled."
		}
		return &action.Result{
			Type:         action.TypeInput,
			Title:        "Commit Message",
			Message:      message,
			DefaultValue: defaultValue,
			OnSubmit:     commit,
		}
	}
}

// agentName picks the agent used for message generation.
func (r *runner) agentName() string {
	if r.pane.Agent != "" {
		return r.pane.Agent
	}
	name, err := r.o.Panes.ResolveAgent("")
	if err != nil {
		return ""
	}
	return name
}

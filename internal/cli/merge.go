package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/dmux/internal/action"
)

func newMergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge <pane>",
		Short: "Merge a pane's branch back into the base branch",
		Long: `Commit outstanding work in the pane's worktree, then merge its branch
into the base branch. Conflicts hand off to a conflict-resolution pane
where an agent works through them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			pane, ok := a.paneByRef(args[0])
			if !ok {
				return fmt.Errorf("no pane named %q", args[0])
			}
			return a.resolveResult(ctx, a.dispatch.Dispatch(ctx, action.ActionMerge, pane.ID, nil))
		},
	}
}

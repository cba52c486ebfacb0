package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/dmux/internal/action"
)

func newCloseCmd() *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "close <pane>",
		Short: "Close a pane by slug or id",
		Long: `Close a pane. Worktree panes prompt for what to do with the worktree
and branch unless --mode is given.`,
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
			params := map[string]string{}
			if mode != "" {
				params["mode"] = mode
			}
			return a.resolveResult(ctx, a.dispatch.Dispatch(ctx, action.ActionClose, pane.ID, params))
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "kill_only, remove_worktree, or delete_everything")
	return cmd
}

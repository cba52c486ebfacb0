package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
)

func newCreateCmd() *cobra.Command {
	var agentName string
	var shell bool
	cmd := &cobra.Command{
		Use:   "create [prompt]",
		Short: "Create a pane with its own worktree and start an agent on the prompt",
		Example: `  dmux create "fix the flaky login test"
  dmux create --agent opencode "add a --json flag to the panes command"
  dmux create --shell`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTmux(); err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}

			if shell {
				if len(args) > 0 || agentName != "" {
					return errors.New("--shell takes no prompt or agent")
				}
				return a.resolveResult(ctx, a.dispatch.CreateShellPane(ctx))
			}

			prompt := strings.TrimSpace(strings.Join(args, " "))
			if prompt == "" {
				return errors.New("a task prompt is required (or pass --shell)")
			}
			return a.resolveResult(ctx, a.dispatch.CreatePane(ctx, prompt, agentName))
		},
	}
	cmd.Flags().StringVar(&agentName, "agent", "", "agent CLI to run (default from settings)")
	cmd.Flags().BoolVar(&shell, "shell", false, "open a plain shell pane without a worktree")
	return cmd
}

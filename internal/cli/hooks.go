package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/dmux/internal/hooks"
	"github.com/Dicklesworthstone/dmux/internal/output"
	"github.com/Dicklesworthstone/dmux/internal/util"
)

const hooksTemplate = `# dmux hooks: shell commands run on pane and merge lifecycle events.
# Each entry is one command or a list of commands. Hooks run from the
# pane's worktree (project root when there is none) with DMUX_PROJECT_ROOT,
# DMUX_PANE_ID, DMUX_SLUG, DMUX_WORKTREE_PATH, DMUX_BRANCH, DMUX_AGENT and
# DMUX_TARGET_BRANCH in the environment. A failing hook is logged and
# skipped.
#
# worktree_created:
#   - npm install
# pane_closed: echo "$DMUX_SLUG closed"
# post_merge:
#   - npm test
`

func newHooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hooks",
		Short: "Manage lifecycle hooks for this project",
	}

	path := &cobra.Command{
		Use:   "path",
		Short: "Print the hooks file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveProjectRoot(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(hooks.NewRunner(root).Path())
			return nil
		},
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented starter hooks file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveProjectRoot(cmd.Context())
			if err != nil {
				return err
			}
			p := hooks.NewRunner(root).Path()
			if _, err := os.Stat(p); err == nil {
				return fmt.Errorf("%s already exists", p)
			}
			if err := util.EnsureDir(util.ProjectDir(root)); err != nil {
				return err
			}
			if err := util.AtomicWriteFile(p, []byte(hooksTemplate), 0o644); err != nil {
				return err
			}
			output.Successf("Wrote %s", p)
			return nil
		},
	}

	fire := &cobra.Command{
		Use:   "fire <event> [pane]",
		Short: "Run an event's hooks by hand",
		Long: `Run the hooks registered for an event, mainly to test a hooks file.
With a pane argument the hook environment carries that pane's id, slug,
worktree and branch.`,
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: hookEventNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev := hooks.Event(args[0])
			if !validHookEvent(ev) {
				return fmt.Errorf("unknown event %q (events: %v)", args[0], hookEventNames())
			}
			ctx := cmd.Context()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			env := hooks.Env{}
			if len(args) == 2 {
				pane, ok := a.paneByRef(args[1])
				if !ok {
					return fmt.Errorf("no pane named %q", args[1])
				}
				settings, err := a.settings.Resolve()
				if err != nil {
					return err
				}
				env = hooks.Env{
					PaneID:       pane.ID,
					Slug:         pane.Slug,
					WorktreePath: pane.WorktreePath,
					Branch:       settings.BranchPrefix + pane.Slug,
					Agent:        pane.Agent,
					TargetBranch: settings.BaseBranch,
				}
			}
			a.hooks.Fire(ctx, ev, env)
			return nil
		},
	}

	cmd.AddCommand(path, initCmd, fire)
	return cmd
}

func hookEventNames() []string {
	return []string{
		string(hooks.PaneCreated),
		string(hooks.WorktreeCreated),
		string(hooks.PaneClosed),
		string(hooks.PreMerge),
		string(hooks.PostMerge),
	}
}

func validHookEvent(ev hooks.Event) bool {
	switch ev {
	case hooks.PaneCreated, hooks.WorktreeCreated, hooks.PaneClosed, hooks.PreMerge, hooks.PostMerge:
		return true
	}
	return false
}

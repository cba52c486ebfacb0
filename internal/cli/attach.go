package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/dmux/internal/layout"
	"github.com/Dicklesworthstone/dmux/internal/tmux"
)

func newAttachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attach",
		Short: "Create or attach the project's tmux session",
		Long: `Create the project's tmux session if it does not exist, bootstrap the
control pane running the dashboard, and attach. Inside tmux the current
client switches instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAttach(cmd.Context())
		},
	}
}

func runAttach(ctx context.Context) error {
	if err := requireTmux(); err != nil {
		return err
	}
	if !interactive() {
		return errors.New("attach needs a terminal")
	}

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}

	if a.tmux.SessionExists(a.session) {
		return a.tmux.AttachOrSwitch(a.session)
	}

	fmt.Printf("Creating session %q for %s\n", a.session, a.root)
	if err := a.tmux.CreateSession(a.session, a.root); err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	ids, err := a.tmux.ListSessionPaneIDs(ctx, a.session)
	if err != nil || len(ids) == 0 {
		return fmt.Errorf("finding control pane: %w", err)
	}
	control := ids[0]

	// exec replaces the shell so quitting the dashboard closes the pane.
	launch, err := tmux.BuildPaneCommand(a.root, "exec "+tmux.ShellQuote(selfExe())+" dashboard")
	if err != nil {
		return err
	}
	if err := a.tmux.SendText(ctx, control, launch, true); err != nil {
		return fmt.Errorf("starting dashboard: %w", err)
	}
	if err := a.tmux.ResizePaneWidth(ctx, control, layout.SidebarWidth); err != nil {
		a.logger.Debug("could not pin sidebar width", "error", err)
	}
	if err := a.tmux.SetPaneTitle(control, "dmux"); err != nil {
		a.logger.Debug("could not set control pane title", "error", err)
	}

	return a.tmux.AttachOrSwitch(a.session)
}

func selfExe() string {
	exe, err := os.Executable()
	if err != nil {
		return "dmux"
	}
	return exe
}

package cli

import (
	"bufio"
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/dmux/internal/output"
)

const welcomeDoc = `# Welcome to dmux

No panes are running yet. Each pane you create gets its own git worktree
and branch, so agents work in parallel without stepping on each other.

## Start something

- Press **n** in the sidebar and describe a task
- Or from a shell: ` + "`dmux create \"fix the login bug\"`" + `

## While agents work

- **Enter** jumps to the selected pane, **o** opens its actions
- **y** answers a waiting agent's question from the sidebar
- **a** toggles autopilot: safe dialog choices get answered for you
- **m** merges a pane's branch back; conflicts hand off to a fresh agent

## When you're done

- **x** closes a pane and asks what to keep
- ` + "`dmux panes`" + ` lists everything, including orphans to resume

This pane closes on its own once real work starts. Press q to dismiss it.
`

func newWelcomeCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "welcome",
		Short:  "Show the quick-start screen",
		Hidden: true, // spawned in the welcome pane
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isatty.IsTerminal(os.Stdout.Fd()) {
				fmt.Print(welcomeDoc)
				return nil
			}

			width := output.TerminalWidth(80)
			if width > 80 {
				width = 80
			}
			r, err := glamour.NewTermRenderer(
				glamour.WithAutoStyle(),
				glamour.WithWordWrap(width),
			)
			if err != nil {
				return err
			}
			out, err := r.Render(welcomeDoc)
			if err != nil {
				return err
			}
			fmt.Print(out)

			// Stay up until dismissed; the pane policy replaces this pane
			// once real content exists.
			done := make(chan struct{})
			go func() {
				defer close(done)
				in := bufio.NewReader(os.Stdin)
				for {
					r, _, err := in.ReadRune()
					if err != nil || r == 'q' {
						return
					}
				}
			}()
			select {
			case <-cmd.Context().Done():
			case <-done:
			}
			return nil
		},
	}
}

package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/dmux/internal/output"
	"github.com/Dicklesworthstone/dmux/internal/state"
)

func newPanesCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "panes",
		Aliases: []string{"ls"},
		Short:   "List the project's panes",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			panes := a.store.ListPanes()
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(panes)
			}

			if len(panes) == 0 {
				output.Infof("No panes. Run `dmux create <prompt>` or press n in the dashboard.")
				return nil
			}

			t := output.NewTable("SLUG", "AGENT", "STATUS", "PANE", "WORKTREE")
			orphans := 0
			for _, p := range panes {
				if p.Orphaned {
					orphans++
				}
				t.AddRow(p.Slug, agentLabel(p), output.StatusBadge(paneStatus(p)), paneTarget(p), p.WorktreePath)
			}
			footer := fmt.Sprintf("%d pane(s)", t.RowCount())
			if orphans > 0 {
				footer += fmt.Sprintf(", %d orphaned", orphans)
			}
			t.WithFooter(footer).Render()
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the pane list as JSON")
	return cmd
}

func agentLabel(p state.Pane) string {
	if p.Kind == state.KindShell {
		return "shell"
	}
	if p.Agent == "" {
		return "-"
	}
	if p.Autopilot {
		return p.Agent + " (auto)"
	}
	return p.Agent
}

func paneStatus(p state.Pane) string {
	if p.Orphaned {
		return "orphaned"
	}
	if !p.Live() {
		return "stopped"
	}
	if p.AgentStatus == "" {
		return "-"
	}
	return p.AgentStatus.String()
}

func paneTarget(p state.Pane) string {
	if p.TerminalPaneID == "" {
		return "-"
	}
	return p.TerminalPaneID
}

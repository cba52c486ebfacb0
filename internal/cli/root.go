// Package cli is the dmux command tree. Commands build the service stack on
// demand and drive everything through the action dispatcher, so the terminal,
// the TUI, and the HTTP API all run the same flows.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/dmux/internal/config"
)

var (
	cfgFile     string
	projectFlag string
	logLevel    string
	cfg         *config.Config

	// Set by goreleaser.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "dmux",
	Short: "Run parallel AI coding agents in tmux panes with git worktrees",
	Long: `dmux turns one terminal window into a control pane plus a grid of AI
coding agents, each working on its own git worktree and branch.

Quick Start:
  dmux attach                       # Create or attach the project session
  dmux create "fix the login bug"   # Start an agent on a task
  dmux panes                        # List panes and agent status
  dmux merge agent-login-fix        # Merge a finished branch back

Inside the session the left sidebar is the dashboard: n starts an agent,
m merges its branch, y answers a waiting agent, ? shows all keys.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		if cmd.Name() == "version" || cmd.Name() == "completion" {
			return nil
		}
		cfg = config.LoadOrDefault(cfgFile)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command. ctx ends on SIGINT/SIGTERM so long
// running commands (dashboard, server) shut down cleanly.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.config/dmux/dmux.toml)")
	rootCmd.PersistentFlags().StringVar(&projectFlag, "project", "", "project root (default: enclosing git repo)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		// Session
		newAttachCmd(),
		newDashboardCmd(),
		newServerCmd(),

		// Panes
		newPanesCmd(),
		newCreateCmd(),
		newCloseCmd(),
		newMergeCmd(),

		// Configuration
		newSettingsCmd(),
		newHooksCmd(),

		// Utilities
		newWelcomeCmd(),
		newVersionCmd(),
	)
}

func setupLogging() {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dmux version %s (commit %s, built %s)\n", Version, Commit, Date)
		},
	}
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/dmux/internal/output"
	"github.com/Dicklesworthstone/dmux/internal/state"
)

func newSettingsCmd() *cobra.Command {
	var global bool
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and write dmux settings",
		Long: `Settings layer project values over global values over built-in
defaults. Writes go to the project file unless --global is set.`,
	}
	cmd.PersistentFlags().BoolVar(&global, "global", false, "operate on the global settings file")

	scope := func() state.Scope {
		if global {
			return state.ScopeGlobal
		}
		return state.ScopeProject
	}

	settingsStore := func(cmd *cobra.Command) (*state.SettingsStore, error) {
		root, err := resolveProjectRoot(cmd.Context())
		if err != nil {
			return nil, err
		}
		return state.NewSettingsStore(root), nil
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Show all resolved settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ss, err := settingsStore(cmd)
			if err != nil {
				return err
			}
			t := output.NewTable("KEY", "VALUE")
			for _, key := range state.Keys() {
				val, err := ss.Get(key)
				if err != nil {
					return err
				}
				if val == "" {
					val = "-"
				}
				t.AddRow(key, val)
			}
			t.Render()
			return nil
		},
	}

	get := &cobra.Command{
		Use:   "get <key>",
		Short: "Print one resolved setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ss, err := settingsStore(cmd)
			if err != nil {
				return err
			}
			val, err := ss.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Println(val)
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Write one setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ss, err := settingsStore(cmd)
			if err != nil {
				return err
			}
			if err := ss.Set(scope(), args[0], args[1]); err != nil {
				return err
			}
			output.Successf("%s = %s (%s)", args[0], args[1], scope())
			return nil
		},
	}

	unset := &cobra.Command{
		Use:   "unset <key>",
		Short: "Remove one setting from a scope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ss, err := settingsStore(cmd)
			if err != nil {
				return err
			}
			if err := ss.Unset(scope(), args[0]); err != nil {
				return err
			}
			output.Successf("%s unset (%s)", args[0], scope())
			return nil
		},
	}

	cmd.AddCommand(list, get, set, unset)
	return cmd
}

// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ctrprep/ctrprep/internal/config"
)

// newConfigCommand creates the `ctrprep config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect ctrprep configuration",
		Long: `Inspect ctrprep configuration.

Configuration is read from, in increasing precedence:
  - built-in defaults
  - config.cue in the configuration directory
    (Linux: ~/.config/ctrprep, macOS: ~/Library/Application Support/ctrprep,
    Windows: %APPDATA%\ctrprep), or the file given with --config
  - CTRPREP_<KEY> environment variables, e.g. CTRPREP_LOCK_TIMEOUT=10m
  - command-line flags`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	var defaults bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as CUE",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := app.cfg
			if defaults {
				cfg = config.DefaultConfig()
			}
			fmt.Fprint(app.stdout, config.GenerateCUE(cfg))
			return nil
		},
	}
	show.Flags().BoolVar(&defaults, "defaults", false, "print the built-in defaults instead")

	path := &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file in use",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, resolved, err := config.Load(cmd.Context(), config.LoadOptions{ConfigFilePath: app.flags.configPath})
			if err != nil {
				return err
			}
			if resolved == "" {
				fmt.Fprintln(app.stdout, SubtitleStyle.Render("(none, using defaults)"))
				return nil
			}
			fmt.Fprintln(app.stdout, resolved)
			return nil
		},
	}

	cfgCmd.AddCommand(show, path)
	return cfgCmd
}

// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCommand(app *App) *cobra.Command {
	var engine bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the ctrprep version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(app.stdout, "ctrprep %s\n", versionString())
			if !engine {
				return nil
			}
			e, err := app.Engines(app.cfg)
			if err != nil {
				return err
			}
			v, err := e.Version(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(app.stdout, "%s %s\n", e.Name(), v)
			return nil
		},
	}
	cmd.Flags().BoolVar(&engine, "engine-info", false, "also print the container engine version")
	return cmd
}

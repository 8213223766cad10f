// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ctrprep/ctrprep/internal/lock"
	"github.com/ctrprep/ctrprep/internal/prepare"
	"github.com/ctrprep/ctrprep/pkg/containerspec"
)

func newFingerprintCommand(app *App) *cobra.Command {
	var flags specFlags

	cmd := &cobra.Command{
		Use:   "fingerprint [flags] [image names...]",
		Short: "Print the lock identity of images without preparing them",
		RunE: func(cmd *cobra.Command, args []string) error {
			images, err := flags.resolve(cmd, app, args)
			if err != nil {
				return err
			}
			locks := app.lockManager()
			for i, img := range images {
				if i > 0 {
					fmt.Fprintln(app.stdout)
				}
				if err := printFingerprint(app.stdout, locks, img.Name, img.Spec); err != nil {
					return err
				}
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func printFingerprint(w io.Writer, locks *lock.Manager, name string, spec containerspec.Spec) error {
	fp := spec.LockIdentity()
	path, err := locks.Path(fp)
	if err != nil {
		return err
	}

	field := func(key, value string) {
		fmt.Fprintf(w, "%s %s\n", KeyStyle.Render(fmt.Sprintf("%-12s", key+":")), value)
	}
	field("image", name)
	field("fingerprint", fp)
	field("lock", path)
	switch s := spec.(type) {
	case *containerspec.DirectContainer:
		field("reference", s.URL())
		field("local", fmt.Sprint(s.LocalImage()))
	case *containerspec.DerivedContainer:
		field("reference", prepare.ImageTag(fp))
		field("format", s.Format().String())
		field("media type", s.Format().MediaType())
		field("depth", fmt.Sprint(len(containerspec.Chain(s))))
	}
	return nil
}

func newLockPathCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "lock-path [fingerprint]",
		Short: "Print the lock directory, or the lock file of a fingerprint",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			locks := app.lockManager()
			if len(args) == 0 {
				fmt.Fprintln(app.stdout, locks.Dir())
				return nil
			}
			path, err := locks.Path(args[0])
			if err != nil {
				return &ExitError{Code: exitUsage, Err: err}
			}
			fmt.Fprintln(app.stdout, path)
			return nil
		},
	}
}

// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ctrprep/ctrprep/internal/container"
	"github.com/ctrprep/ctrprep/internal/lock"
	"github.com/ctrprep/ctrprep/internal/prepare"
	"github.com/ctrprep/ctrprep/pkg/containerspec"
	"github.com/ctrprep/ctrprep/pkg/manifest"
)

func newRemoveCommand(app *App) *cobra.Command {
	var (
		flags specFlags
		force bool
	)

	cmd := &cobra.Command{
		Use:   "remove [flags] [image names...]",
		Short: "Remove built images from local storage",
		Long: `Remove the localhost/ctrprep:<fingerprint> tag of built images, so the
next prepare builds them again.

The removal holds the fingerprint lock, so it never races a preparation of the
same image. Pulled images are left alone.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			images, err := flags.resolve(cmd, app, args)
			if err != nil {
				return err
			}
			engine, err := app.Engines(app.cfg)
			if err != nil {
				return err
			}
			locks := app.lockManager()
			for _, img := range images {
				if err := app.removeImage(cmd.Context(), engine, locks, img, force); err != nil {
					return fmt.Errorf("%s: %w", img.Name, err)
				}
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&force, "force", false, "remove the image even if containers use it")
	return cmd
}

func (app *App) removeImage(ctx context.Context, engine container.Engine, locks *lock.Manager, img manifest.Resolved, force bool) error {
	if _, ok := img.Spec.(*containerspec.DerivedContainer); !ok {
		fmt.Fprintf(app.stdout, "%s %s %s\n", WarningStyle.Render("-"), TitleStyle.Render(img.Name), SubtitleStyle.Render("(not built, skipped)"))
		return nil
	}

	fp := img.Spec.LockIdentity()
	ref := prepare.ImageTag(fp)
	status := "removed"
	err := locks.With(ctx, fp, app.cfg.LockTimeout, func() error {
		exists, err := engine.ImageExists(ctx, ref)
		if err != nil {
			return err
		}
		if !exists {
			status = "not present"
			return nil
		}
		return engine.RemoveImage(ctx, ref, force)
	})
	if err != nil {
		return err
	}
	app.logger.Debug("removed built image", "ref", ref, "status", status)
	fmt.Fprintf(app.stdout, "%s %s %s %s\n", SuccessStyle.Render("✓"), TitleStyle.Render(img.Name), ref, SubtitleStyle.Render("("+status+")"))
	return nil
}

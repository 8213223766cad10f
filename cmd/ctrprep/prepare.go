// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ctrprep/ctrprep/internal/container"
	"github.com/ctrprep/ctrprep/internal/issue"
	"github.com/ctrprep/ctrprep/internal/prepare"
	"github.com/ctrprep/ctrprep/pkg/containerspec"
	"github.com/ctrprep/ctrprep/pkg/manifest"
)

const retryBaseBackoff = 2 * time.Second

type prepareFlags struct {
	spec           specFlags
	buildArgs      []string
	lockTimeout    time.Duration
	commandTimeout time.Duration
	reuseExisting  bool
	workDir        string
	parallel       int
	retries        int
	quiet          bool
}

func newPrepareCommand(app *App) *cobra.Command {
	var flags prepareFlags

	cmd := &cobra.Command{
		Use:   "prepare [flags] [image names...]",
		Short: "Pull or build images so they exist in local storage",
		Long: `Pull or build images so they exist in local storage.

A --url image is pulled unless it carries the ` + containerspec.LocalStoragePrefix + ` prefix.
A --base image is prepared first, then a Containerfile made of
"FROM <base>" and the given instructions is built with the working directory
as build context. Built images are tagged localhost/ctrprep:<fingerprint>.

With --file, every image in the manifest (or only the named ones) is
prepared, up to --parallel at a time.

Exit codes: 1 failure, 2 invalid input, 3 lock timeout, 4 pull failed,
5 build failed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrepare(cmd, app, &flags, args)
		},
	}

	flags.spec.register(cmd)
	fs := cmd.Flags()
	fs.StringArrayVar(&flags.buildArgs, "build-arg", nil, "KEY=VALUE build argument (repeatable)")
	fs.DurationVar(&flags.lockTimeout, "lock-timeout", 0, "maximum wait for another process preparing the same image (0 waits forever)")
	fs.DurationVar(&flags.commandTimeout, "command-timeout", 0, "maximum duration of each pull or build (0 is unbounded)")
	fs.BoolVar(&flags.reuseExisting, "reuse-existing", false, "skip the pull or build when the image already exists locally")
	fs.StringVar(&flags.workDir, "work-dir", "", "build context directory (default is the current directory)")
	fs.IntVar(&flags.parallel, "parallel", 0, "manifest images prepared at once")
	fs.IntVar(&flags.retries, "retries", 0, "retries after transient engine failures")
	fs.BoolVarP(&flags.quiet, "quiet", "q", false, "print only the image references")
	return cmd
}

func runPrepare(cmd *cobra.Command, app *App, flags *prepareFlags, args []string) error {
	images, err := flags.spec.resolve(cmd, app, args)
	if err != nil {
		return err
	}

	cfg := app.cfg
	if cmd.Flags().Changed("lock-timeout") {
		cfg.LockTimeout = flags.lockTimeout
	}
	if cmd.Flags().Changed("command-timeout") {
		cfg.CommandTimeout = flags.commandTimeout
	}
	if cmd.Flags().Changed("reuse-existing") {
		cfg.ReuseExisting = flags.reuseExisting
	}
	if cmd.Flags().Changed("work-dir") {
		cfg.WorkDir = flags.workDir
	}
	if cmd.Flags().Changed("parallel") {
		cfg.Parallel = flags.parallel
	}
	if err := cfg.Validate(); err != nil {
		return &ExitError{Code: exitUsage, Err: err}
	}
	if flags.retries < 0 {
		return usageError("--retries must not be negative")
	}

	engine, err := app.Engines(cfg)
	if err != nil {
		return err
	}
	app.logger.Debug("using container engine", "engine", engine.Name())

	var buildOut io.Writer = app.stderr
	if flags.quiet {
		buildOut = io.Discard
	}
	pipeline := prepare.New(
		prepare.NewEngineRuntime(engine, prepare.WithBuildOutput(buildOut, buildOut)),
		app.lockManager(),
		prepare.WithLockTimeout(cfg.LockTimeout),
		prepare.WithCommandTimeout(cfg.CommandTimeout),
		prepare.WithReuseExisting(cfg.ReuseExisting),
		prepare.WithLogger(app.logger),
		prepare.WithObserver(func(t prepare.Transition) {
			if flags.quiet {
				return
			}
			switch t.To {
			case prepare.StatePulling, prepare.StateBuilding:
				app.progress("%s %s", t.To, t.Spec)
			}
		}),
	)

	results := make([]*prepare.PreparedContainer, len(images))
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(cfg.Parallel)
	for i, img := range images {
		g.Go(func() error {
			res, err := prepareWithRetry(ctx, app, pipeline, img, cfg.WorkDir, flags)
			if err != nil {
				return fmt.Errorf("%s: %w", img.Name, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		app.reportFailure(err)
		return err
	}

	for i, res := range results {
		printPrepared(app.stdout, images[i].Name, res, flags.quiet)
	}
	return nil
}

func prepareWithRetry(ctx context.Context, app *App, p *prepare.Pipeline, img manifest.Resolved, workDir string, flags *prepareFlags) (*prepare.PreparedContainer, error) {
	var res *prepare.PreparedContainer
	err := container.RetryWithBackoff(ctx, flags.retries+1, retryBaseBackoff, func(attempt int) (bool, error) {
		if attempt > 0 {
			app.logger.Warn("retrying after transient failure", "image", img.Name, "attempt", attempt+1)
		}
		var err error
		res, err = p.Prepare(ctx, img.Spec, workDir, flags.buildArgs...)
		return container.IsTransientError(err), err
	})
	return res, err
}

// reportFailure writes the engine output of a failed pull, which is not
// streamed, and in verbose mode the full error with suggestions.
func (app *App) reportFailure(err error) {
	var pullErr *prepare.PullError
	if errors.As(err, &pullErr) && pullErr.Output != "" {
		app.errMu.Lock()
		fmt.Fprint(app.stderr, pullErr.Output)
		app.errMu.Unlock()
	}
	if app.flags.verbose {
		app.progress("%s", issue.FormatForDisplay(err, true))
	}
}

func printPrepared(w io.Writer, name string, res *prepare.PreparedContainer, quiet bool) {
	if quiet {
		fmt.Fprintln(w, res.ImageRef)
		return
	}
	fmt.Fprintf(w, "%s %s %s %s\n",
		SuccessStyle.Render("✓"),
		TitleStyle.Render(name),
		res.ImageRef,
		SubtitleStyle.Render(fmt.Sprintf("(%s, %s)", outcome(res), shortID(res.ImageID))),
	)
}

// outcome names how res was obtained.
func outcome(res *prepare.PreparedContainer) string {
	switch {
	case res.Reused:
		return "reused"
	case res.LocalImage && res.Base == nil:
		return "local"
	case res.Base != nil:
		return "built"
	default:
		return "pulled"
	}
}

func shortID(id string) string {
	if id == "" {
		return "no id"
	}
	if d, err := digest.Parse(id); err == nil {
		id = d.Encoded()
	}
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

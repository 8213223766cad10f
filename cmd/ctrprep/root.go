// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

func versionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

func newRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "ctrprep",
		Short: "Prepare container images once, however many processes ask for them",
		Long: TitleStyle.Render("ctrprep") + SubtitleStyle.Render(" - container image preparation") + `

ctrprep pulls or builds container images described by a url, a base image
plus Containerfile instructions, or a manifest of such images. Requests for
the same image are serialized across processes with a lock file keyed by the
image's fingerprint, so parallel test runs never pull or build twice at once.

` + SubtitleStyle.Render("Examples:") + `
  ctrprep prepare --url docker.io/library/alpine:3.20
  ctrprep prepare --base alpine:3.20 --containerfile 'RUN apk add git'
  ctrprep prepare -f images.toml tools
  ctrprep fingerprint --base alpine:3.20 --containerfile-file Containerfile`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.loadConfig(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&app.flags.configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/ctrprep/config.cue)")
	pf.BoolVarP(&app.flags.verbose, "verbose", "v", false, "enable debug logging")
	pf.StringVar(&app.flags.engine, "engine", "", "container engine: podman or docker")
	pf.StringVar(&app.flags.lockDir, "lock-dir", "", "directory holding fingerprint lock files")

	root.AddCommand(
		newPrepareCommand(app),
		newRemoveCommand(app),
		newFingerprintCommand(app),
		newLockPathCommand(app),
		newConfigCommand(app),
		newVersionCommand(app),
	)
	return root
}

// Run executes the command line args and returns the process exit code.
func (app *App) Run(ctx context.Context, args []string) int {
	root := newRootCommand(app)
	root.SetArgs(args)
	root.SetOut(app.stdout)
	root.SetErr(app.stderr)

	err := fang.Execute(ctx, root,
		fang.WithVersion(versionString()),
		fang.WithNotifySignal(os.Interrupt),
	)
	return exitCodeFor(err)
}

// Main runs ctrprep with the process arguments.
func Main() int {
	return NewApp(Dependencies{}).Run(context.Background(), os.Args[1:])
}

// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/ctrprep/ctrprep/internal/config"
	"github.com/ctrprep/ctrprep/internal/container"
	"github.com/ctrprep/ctrprep/internal/lock"
)

type (
	// App wires CLI services and shared state for one invocation.
	App struct {
		Config  ConfigProvider
		Engines EngineFactory
		stdout  io.Writer
		stderr  io.Writer

		// errMu serializes progress lines written from concurrent preparations.
		errMu sync.Mutex

		flags  globalFlags
		cfg    *config.Config
		logger *slog.Logger
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config  ConfigProvider
		Engines EngineFactory
		Stdout  io.Writer
		Stderr  io.Writer
	}

	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Config, error)
	}

	// EngineFactory selects the container engine for cfg.
	EngineFactory func(cfg *config.Config) (container.Engine, error)

	globalFlags struct {
		configPath string
		verbose    bool
		engine     string
		lockDir    string
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.Engines == nil {
		deps.Engines = DefaultEngineFactory
	}
	return &App{
		Config:  deps.Config,
		Engines: deps.Engines,
		stdout:  deps.Stdout,
		stderr:  deps.Stderr,
		logger:  slog.New(slog.DiscardHandler),
	}
}

// DefaultEngineFactory picks the configured engine, falling back to the
// other one. Inside a Flatpak or Snap sandbox commands run on the host unless
// engine_command sets an explicit prefix.
func DefaultEngineFactory(cfg *config.Config) (container.Engine, error) {
	opts := []container.BaseCLIEngineOption{container.WithHostSpawn()}
	if cfg.EngineCommand != "" {
		prefix, err := container.ParseCommandPrefix(cfg.EngineCommand)
		if err != nil {
			return nil, fmt.Errorf("engine_command: %w", err)
		}
		opts = append(opts, container.WithCommandPrefix(prefix...))
	}
	return container.NewEngine(container.EngineType(cfg.ContainerEngine), opts...)
}

// loadConfig resolves configuration and applies global flag overrides.
func (app *App) loadConfig(cmd *cobra.Command) error {
	cfg, err := app.Config.Load(cmd.Context(), config.LoadOptions{ConfigFilePath: app.flags.configPath})
	if err != nil {
		return &ExitError{Code: exitUsage, Err: err}
	}

	if cmd.Flags().Changed("engine") {
		engine := config.ContainerEngine(app.flags.engine)
		if err := engine.Validate(); err != nil {
			return usageError("--engine: %w", err)
		}
		cfg.ContainerEngine = engine
	}
	if cmd.Flags().Changed("lock-dir") {
		cfg.LockDir = app.flags.lockDir
	}

	app.cfg = cfg
	app.logger = newLogger(app.stderr, cfg.LogLevel, app.flags.verbose)
	slog.SetDefault(app.logger)
	return nil
}

func (app *App) lockManager() *lock.Manager {
	dir := app.cfg.LockDir
	if dir == "" {
		dir = lock.DefaultDir()
	}
	return lock.NewManager(dir, lock.WithLogger(app.logger))
}

// progress writes a status line to stderr.
func (app *App) progress(format string, args ...any) {
	app.errMu.Lock()
	defer app.errMu.Unlock()
	fmt.Fprintln(app.stderr, SubtitleStyle.Render(fmt.Sprintf(format, args...)))
}

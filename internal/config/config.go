// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"github.com/ctrprep/ctrprep/internal/issue"
	"github.com/ctrprep/ctrprep/pkg/cueutil"
)

const (
	// AppName is the application name.
	AppName = "ctrprep"
	// ConfigFileName is the name of the config file without extension.
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// EnvPrefix prefixes environment overrides, e.g. CTRPREP_LOCK_TIMEOUT.
	EnvPrefix = "CTRPREP"
)

//go:embed config_schema.cue
var configSchema []byte

// ConfigDir returns the per-user configuration directory: %APPDATA%\ctrprep
// on Windows, ~/Library/Application Support/ctrprep on macOS and
// $XDG_CONFIG_HOME/ctrprep elsewhere.
//
//nolint:revive // ConfigDir reads better than Dir at call sites
func ConfigDir() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		base = filepath.Join(home, "Library", "Application Support")
	default:
		base = os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			base = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(base, AppName), nil
}

// Load resolves the configuration and returns it together with the path of
// the file it was read from, which is empty when only defaults and the
// environment applied.
func Load(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	return loadWithOptions(ctx, opts)
}

func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", fmt.Errorf("load config canceled: %w", err)
	}

	v := viper.New()
	defaults := DefaultConfig()
	v.SetDefault("container_engine", defaults.ContainerEngine)
	v.SetDefault("engine_command", defaults.EngineCommand)
	v.SetDefault("lock_dir", defaults.LockDir)
	v.SetDefault("lock_timeout", defaults.LockTimeout)
	v.SetDefault("command_timeout", defaults.CommandTimeout)
	v.SetDefault("reuse_existing", defaults.ReuseExisting)
	v.SetDefault("work_dir", defaults.WorkDir)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("parallel", defaults.Parallel)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	path, err := resolveConfigPath(opts)
	if err != nil {
		return nil, "", err
	}
	if path != "" {
		if err := loadCUEIntoViper(v, path); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(path).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Run 'ctrprep config show --defaults' to see the expected keys").
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(path).
			WithSuggestion("Check CTRPREP_* environment variables for typos").
			Wrap(err).
			BuildError()
	}
	return &cfg, path, nil
}

// resolveConfigPath returns the explicit file, or the first of
// <config dir>/config.cue and ./config.cue that exists, or "".
func resolveConfigPath(opts LoadOptions) (string, error) {
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		return opts.ConfigFilePath, nil
	}

	dir := opts.ConfigDirPath
	if dir == "" {
		var err error
		if dir, err = ConfigDir(); err != nil {
			return "", err
		}
	}
	name := ConfigFileName + "." + ConfigFileExt
	for _, candidate := range []string{filepath.Join(dir, name), name} {
		if fileExists(candidate) {
			return candidate, nil
		}
	}
	return "", nil
}

// loadCUEIntoViper validates a CUE file against #Config and merges its
// values over the defaults. Fields are optional, so concreteness is not
// required.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	res, err := cueutil.ParseAndDecode[map[string]any](configSchema, data, "#Config",
		cueutil.WithFilename(path),
		cueutil.WithConcrete(false),
	)
	if err != nil {
		return err
	}

	if err := v.MergeConfigMap(*res.Value); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// GenerateCUE renders cfg as a config file accepted by Load.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder
	sb.WriteString("// ctrprep configuration\n\n")
	fmt.Fprintf(&sb, "container_engine: %q\n", cfg.ContainerEngine)
	if cfg.EngineCommand != "" {
		fmt.Fprintf(&sb, "engine_command:   %q\n", cfg.EngineCommand)
	}
	if cfg.LockDir != "" {
		fmt.Fprintf(&sb, "lock_dir:         %q\n", cfg.LockDir)
	}
	fmt.Fprintf(&sb, "lock_timeout:     %q\n", cfg.LockTimeout.String())
	fmt.Fprintf(&sb, "command_timeout:  %q\n", cfg.CommandTimeout.String())
	fmt.Fprintf(&sb, "reuse_existing:   %v\n", cfg.ReuseExisting)
	if cfg.WorkDir != "" {
		fmt.Fprintf(&sb, "work_dir:         %q\n", cfg.WorkDir)
	}
	fmt.Fprintf(&sb, "log_level:        %q\n", cfg.LogLevel)
	fmt.Fprintf(&sb, "parallel:         %d\n", cfg.Parallel)
	return sb.String()
}

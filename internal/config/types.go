// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"time"
)

const (
	// ContainerEnginePodman selects Podman.
	ContainerEnginePodman ContainerEngine = "podman"
	// ContainerEngineDocker selects Docker.
	ContainerEngineDocker ContainerEngine = "docker"

	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"

	// DefaultLockTimeout bounds the wait for another process preparing the same image.
	DefaultLockTimeout = 30 * time.Minute
	// DefaultParallel is the number of manifest entries prepared at once.
	DefaultParallel = 4
)

var (
	// ErrInvalidContainerEngine is returned for an unrecognized engine name.
	ErrInvalidContainerEngine = errors.New("invalid container engine")
	// ErrInvalidLogLevel is returned for an unrecognized log level.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidConfig is the sentinel wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// ContainerEngine names the container runtime CLI.
	ContainerEngine string

	// LogLevel is the minimum level written by the CLI logger.
	LogLevel string

	// Config is the resolved ctrprep configuration.
	Config struct {
		// ContainerEngine is the preferred engine; the other one is used when
		// it is not installed.
		ContainerEngine ContainerEngine `json:"container_engine" mapstructure:"container_engine"`
		// EngineCommand is a wrapper prepended to every engine invocation,
		// such as "sudo -n".
		EngineCommand string `json:"engine_command" mapstructure:"engine_command"`
		// LockDir holds the fingerprint lock files. Empty means lock.DefaultDir.
		LockDir string `json:"lock_dir" mapstructure:"lock_dir"`
		// LockTimeout bounds the wait for a fingerprint lock. Zero waits forever.
		LockTimeout time.Duration `json:"lock_timeout" mapstructure:"lock_timeout"`
		// CommandTimeout bounds every pull or build. Zero disables the bound.
		CommandTimeout time.Duration `json:"command_timeout" mapstructure:"command_timeout"`
		// ReuseExisting skips pulls and builds whose target image already exists.
		ReuseExisting bool `json:"reuse_existing" mapstructure:"reuse_existing"`
		// WorkDir is the build context for derived images. Empty means the
		// current directory.
		WorkDir  string   `json:"work_dir" mapstructure:"work_dir"`
		LogLevel LogLevel `json:"log_level" mapstructure:"log_level"`
		Parallel int      `json:"parallel" mapstructure:"parallel"`
	}

	// InvalidConfigError collects every invalid field of a Config.
	InvalidConfigError struct {
		FieldErrors []error
	}
)

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		ContainerEngine: ContainerEnginePodman,
		LockTimeout:     DefaultLockTimeout,
		LogLevel:        LogLevelInfo,
		Parallel:        DefaultParallel,
	}
}

// Validate checks a ContainerEngine value.
func (e ContainerEngine) Validate() error {
	switch e {
	case ContainerEnginePodman, ContainerEngineDocker:
		return nil
	default:
		return fmt.Errorf("%w: %q (valid: podman, docker)", ErrInvalidContainerEngine, string(e))
	}
}

// Validate checks a LogLevel value.
func (l LogLevel) Validate() error {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return nil
	default:
		return fmt.Errorf("%w: %q (valid: debug, info, warn, error)", ErrInvalidLogLevel, string(l))
	}
}

// Validate reports every invalid field as an *InvalidConfigError.
func (c *Config) Validate() error {
	var errs []error
	if err := c.ContainerEngine.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.LogLevel.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.LockTimeout < 0 {
		errs = append(errs, fmt.Errorf("lock_timeout must not be negative, got %s", c.LockTimeout))
	}
	if c.CommandTimeout < 0 {
		errs = append(errs, fmt.Errorf("command_timeout must not be negative, got %s", c.CommandTimeout))
	}
	if c.Parallel < 1 {
		errs = append(errs, fmt.Errorf("parallel must be at least 1, got %d", c.Parallel))
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// Error implements the error interface.
func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("%s: %v", ErrInvalidConfig, errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidConfig followed by the field errors.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}

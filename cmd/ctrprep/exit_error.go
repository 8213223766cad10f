// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"

	"github.com/ctrprep/ctrprep/internal/config"
	"github.com/ctrprep/ctrprep/internal/lock"
	"github.com/ctrprep/ctrprep/internal/prepare"
	"github.com/ctrprep/ctrprep/pkg/containerspec"
	"github.com/ctrprep/ctrprep/pkg/manifest"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitUsage       = 2
	exitLockTimeout = 3
	exitPull        = 4
	exitBuild       = 5
)

// ExitError signals a non-zero exit code without forcing os.Exit in RunE handlers.
type ExitError struct {
	Code int
	Err  error
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Unwrap returns the wrapped error.
func (e *ExitError) Unwrap() error {
	return e.Err
}

func usageError(format string, args ...any) error {
	return &ExitError{Code: exitUsage, Err: fmt.Errorf(format, args...)}
}

// exitCodeFor classifies err into one of the documented exit codes.
func exitCodeFor(err error) int {
	var exitErr *ExitError
	var specErr *containerspec.ValidationError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &exitErr):
		return exitErr.Code
	case errors.Is(err, lock.ErrLockTimeout):
		return exitLockTimeout
	case errors.Is(err, prepare.ErrPull):
		return exitPull
	case errors.Is(err, prepare.ErrBuild):
		return exitBuild
	case errors.As(err, &specErr),
		errors.Is(err, manifest.ErrInvalidManifest),
		errors.Is(err, manifest.ErrUnsupportedFormat),
		errors.Is(err, config.ErrInvalidConfig):
		return exitUsage
	default:
		return exitFailure
	}
}

// SPDX-License-Identifier: MPL-2.0

package prepare

import (
	"errors"
	"fmt"

	"github.com/ctrprep/ctrprep/internal/container"
)

var (
	// ErrPull is the sentinel error wrapped by PullError.
	ErrPull = errors.New("pull failed")

	// ErrBuild is the sentinel error wrapped by BuildError.
	ErrBuild = errors.New("build failed")

	// ErrNilSpec is returned when Prepare is called without a specification.
	ErrNilSpec = errors.New("no container specification given")
)

type (
	// PullError is returned when the runtime could not pull (or, after a
	// pull, inspect) an image.
	PullError struct {
		Ref    string
		Output string
		Err    error
	}

	// BuildError is returned when the runtime could not build a derived image.
	BuildError struct {
		Fingerprint   string
		Containerfile string
		Output        string
		Err           error
	}
)

func newPullError(ref string, err error) *PullError {
	return &PullError{Ref: ref, Output: commandOutput(err), Err: err}
}

func newBuildError(fingerprint, containerfile string, err error) *BuildError {
	return &BuildError{Fingerprint: fingerprint, Containerfile: containerfile, Output: commandOutput(err), Err: err}
}

// Error implements the error interface.
func (e *PullError) Error() string {
	return fmt.Sprintf("pull %s: %v", e.Ref, e.Err)
}

// Unwrap returns ErrPull and the runtime error.
func (e *PullError) Unwrap() []error { return []error{ErrPull, e.Err} }

// Error implements the error interface.
func (e *BuildError) Error() string {
	return fmt.Sprintf("build %s: %v", e.Fingerprint, e.Err)
}

// Unwrap returns ErrBuild and the runtime error.
func (e *BuildError) Unwrap() []error { return []error{ErrBuild, e.Err} }

// commandOutput extracts the diagnostic output of a failed engine command.
func commandOutput(err error) string {
	var cmdErr *container.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Output
	}
	return ""
}

// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ctrprep/ctrprep/internal/config"
	"github.com/ctrprep/ctrprep/internal/lock"
	"github.com/ctrprep/ctrprep/internal/prepare"
	"github.com/ctrprep/ctrprep/pkg/containerspec"
	"github.com/ctrprep/ctrprep/pkg/manifest"
)

func TestExitCodeFor(t *testing.T) {
	t.Parallel()

	_, specErr := containerspec.NewDirectContainer("")

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"explicit", &ExitError{Code: 42}, 42},
		{"wrapped explicit", fmt.Errorf("outer: %w", &ExitError{Code: 7}), 7},
		{"lock timeout", fmt.Errorf("prepare: %w", &lock.TimeoutError{Fingerprint: "ab"}), exitLockTimeout},
		{"pull", &prepare.PullError{Ref: "alpine", Err: errors.New("boom")}, exitPull},
		{"build", &prepare.BuildError{Fingerprint: "ab", Err: errors.New("boom")}, exitBuild},
		{"invalid spec", specErr, exitUsage},
		{"invalid manifest", fmt.Errorf("x.toml: %w", manifest.ErrInvalidManifest), exitUsage},
		{"invalid config", &config.InvalidConfigError{FieldErrors: []error{errors.New("bad")}}, exitUsage},
		{"other", errors.New("boom"), exitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := exitCodeFor(tt.err); got != tt.want {
				t.Errorf("exitCodeFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestExitError_Error(t *testing.T) {
	t.Parallel()

	if got := (&ExitError{Code: 3}).Error(); got != "exit status 3" {
		t.Errorf("Error() = %q", got)
	}
	inner := errors.New("inner")
	e := &ExitError{Code: 2, Err: inner}
	if e.Error() != "inner" || !errors.Is(e, inner) {
		t.Errorf("ExitError should expose its cause, got %q", e.Error())
	}
}

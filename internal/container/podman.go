// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"slices"
	"strings"
)

// PodmanEngine implements the Engine interface using Podman CLI.
// It embeds BaseCLIEngine for common CLI operations.
type PodmanEngine struct {
	*BaseCLIEngine
}

// NewPodmanEngine creates a new Podman engine.
func NewPodmanEngine(opts ...BaseCLIEngineOption) *PodmanEngine {
	path := lookupBinary("podman", opts)
	return &PodmanEngine{
		BaseCLIEngine: NewBaseCLIEngine(path, opts...),
	}
}

// Name returns the engine name.
func (e *PodmanEngine) Name() string {
	return string(EngineTypePodman)
}

// Available checks if Podman is available.
func (e *PodmanEngine) Available() bool {
	if e.BinaryPath() == "" {
		return false
	}
	cmd := e.CreateCommand(context.Background(), "version", "--format", "{{.Version}}")
	return cmd.Run() == nil
}

// Version returns the Podman version.
func (e *PodmanEngine) Version(ctx context.Context) (string, error) {
	out, err := e.RunCommandWithOutput(ctx, "version", "--format", "{{.Version}}")
	if err != nil {
		return "", fmt.Errorf("failed to get podman version: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Pull pulls an image.
func (e *PodmanEngine) Pull(ctx context.Context, ref string) error {
	return e.pull(ctx, e.Name(), ref)
}

// Build builds an image, passing opts.Format through as --format.
func (e *PodmanEngine) Build(ctx context.Context, opts BuildOptions) (string, error) {
	return e.build(ctx, e.Name(), opts, e.BuildArgs(opts))
}

// BuildArgs extends the common build arguments with --format.
func (e *PodmanEngine) BuildArgs(opts BuildOptions) []string {
	args := e.BaseCLIEngine.BuildArgs(opts)
	if opts.Format != "" {
		args = slices.Insert(args, 1, "--format", opts.Format)
	}
	return args
}

// InspectID returns the image ID.
func (e *PodmanEngine) InspectID(ctx context.Context, ref string) (string, error) {
	return e.inspectID(ctx, ref)
}

// ImageExists checks if an image exists. Podman reports a missing image with
// exit status 1; any other failure is returned as an error.
func (e *PodmanEngine) ImageExists(ctx context.Context, ref string) (bool, error) {
	err := e.RunCommandStatus(ctx, "image", "exists", ref)
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, fmt.Errorf("check image %s: %w", ref, err)
}

// RemoveImage removes an image.
func (e *PodmanEngine) RemoveImage(ctx context.Context, ref string, force bool) error {
	return e.removeImage(ctx, ref, force)
}

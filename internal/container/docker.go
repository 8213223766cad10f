// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"fmt"
	"strings"
)

// DockerEngine implements the Engine interface using Docker CLI.
// It embeds BaseCLIEngine for common CLI operations.
type DockerEngine struct {
	*BaseCLIEngine
}

// NewDockerEngine creates a new Docker engine.
func NewDockerEngine(opts ...BaseCLIEngineOption) *DockerEngine {
	path := lookupBinary("docker", opts)
	return &DockerEngine{
		BaseCLIEngine: NewBaseCLIEngine(path, opts...),
	}
}

// Name returns the engine name.
func (e *DockerEngine) Name() string {
	return string(EngineTypeDocker)
}

// Available checks if Docker is available.
func (e *DockerEngine) Available() bool {
	if e.BinaryPath() == "" {
		return false
	}
	cmd := e.CreateCommand(context.Background(), "version", "--format", "{{.Server.Version}}")
	return cmd.Run() == nil
}

// Version returns the Docker version.
func (e *DockerEngine) Version(ctx context.Context) (string, error) {
	out, err := e.RunCommandWithOutput(ctx, "version", "--format", "{{.Server.Version}}")
	if err != nil {
		return "", fmt.Errorf("failed to get docker version: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Pull pulls an image.
func (e *DockerEngine) Pull(ctx context.Context, ref string) error {
	return e.pull(ctx, e.Name(), ref)
}

// Build builds an image. Docker has no --format flag, so opts.Format is ignored.
func (e *DockerEngine) Build(ctx context.Context, opts BuildOptions) (string, error) {
	return e.build(ctx, e.Name(), opts, e.BuildArgs(opts))
}

// InspectID returns the image ID, including its "sha256:" prefix.
func (e *DockerEngine) InspectID(ctx context.Context, ref string) (string, error) {
	return e.inspectID(ctx, ref)
}

// ImageExists checks if an image exists.
func (e *DockerEngine) ImageExists(ctx context.Context, ref string) (bool, error) {
	err := e.RunCommandStatus(ctx, "image", "inspect", ref)
	return err == nil, nil
}

// RemoveImage removes an image.
func (e *DockerEngine) RemoveImage(ctx context.Context, ref string, force bool) error {
	return e.removeImage(ctx, ref, force)
}

// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"io"
)

const (
	// EngineTypePodman selects the podman CLI.
	EngineTypePodman EngineType = "podman"
	// EngineTypeDocker selects the docker CLI.
	EngineTypeDocker EngineType = "docker"
)

// ErrUnknownEngineType is returned by NewEngine for an unrecognized EngineType.
var ErrUnknownEngineType = errors.New("unknown container engine type")

type (
	// Engine defines the image operations used to prepare containers.
	Engine interface {
		// Name returns the engine name (docker or podman).
		Name() string
		// Available checks if the engine is available on the system.
		Available() bool
		// Version returns the engine version.
		Version(ctx context.Context) (string, error)

		// Pull fetches ref from its registry.
		Pull(ctx context.Context, ref string) error
		// Build builds an image and returns its ID when BuildOptions.IIDFile is set.
		Build(ctx context.Context, opts BuildOptions) (string, error)
		// InspectID returns the image ID of ref.
		InspectID(ctx context.Context, ref string) (string, error)
		// ImageExists checks if ref is present in local storage.
		ImageExists(ctx context.Context, ref string) (bool, error)
		// RemoveImage removes ref from local storage.
		RemoveImage(ctx context.Context, ref string, force bool) error
	}

	// BuildOptions contains options for building an image.
	BuildOptions struct {
		// ContextDir is the build context directory.
		ContextDir string
		// Containerfile is the path to the Containerfile (relative to ContextDir).
		Containerfile string
		// Tags are applied to the built image.
		Tags []string
		// Format is the manifest format token (oci or docker).
		// Only Podman honors it; Docker always produces its own format.
		Format string
		// BuildArgs are passed through as --build-arg values in KEY=VALUE form.
		BuildArgs []string
		// IIDFile receives the built image ID.
		IIDFile string
		// NoCache disables the build cache.
		NoCache bool
		// Stdout is where to write build output.
		Stdout io.Writer
		// Stderr is where to write build errors.
		Stderr io.Writer
	}

	// EngineType identifies the container engine type.
	EngineType string

	// EngineNotAvailableError is returned when no usable container engine binary was found.
	EngineNotAvailableError struct {
		Engine string
		Reason string
	}
)

// Error implements the error interface.
func (e *EngineNotAvailableError) Error() string {
	return fmt.Sprintf("container engine '%s' is not available: %s", e.Engine, e.Reason)
}

// String returns the engine type name.
func (t EngineType) String() string { return string(t) }

// NewEngine creates a new container engine based on preference, falling back
// to the other engine when the preferred one is unavailable.
func NewEngine(preferredType EngineType, opts ...BaseCLIEngineOption) (Engine, error) {
	switch preferredType {
	case EngineTypePodman:
		if engine := NewPodmanEngine(opts...); engine.Available() {
			return engine, nil
		}
		if dockerEngine := NewDockerEngine(opts...); dockerEngine.Available() {
			return dockerEngine, nil
		}
		return nil, &EngineNotAvailableError{
			Engine: "podman",
			Reason: "podman is not installed or not accessible, and docker fallback is also not available",
		}

	case EngineTypeDocker:
		if engine := NewDockerEngine(opts...); engine.Available() {
			return engine, nil
		}
		if podmanEngine := NewPodmanEngine(opts...); podmanEngine.Available() {
			return podmanEngine, nil
		}
		return nil, &EngineNotAvailableError{
			Engine: "docker",
			Reason: "docker is not installed or not accessible, and podman fallback is also not available",
		}

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEngineType, preferredType)
	}
}

// AutoDetectEngine tries to find an available container engine.
func AutoDetectEngine(opts ...BaseCLIEngineOption) (Engine, error) {
	// Podman is tried first.
	if podman := NewPodmanEngine(opts...); podman.Available() {
		return podman, nil
	}
	if docker := NewDockerEngine(opts...); docker.Available() {
		return docker, nil
	}
	return nil, &EngineNotAvailableError{
		Engine: "any",
		Reason: "no container engine (podman or docker) is available on this system",
	}
}

// SPDX-License-Identifier: MPL-2.0

package prepare

import (
	"context"
	"fmt"
	"io"

	"github.com/ctrprep/ctrprep/internal/container"
	"github.com/ctrprep/ctrprep/pkg/containerspec"
)

// Compile-time interface check
var _ Runtime = (*EngineRuntime)(nil)

type (
	// Runtime executes the external image commands the pipeline depends on.
	// Only success, failure and the returned identifiers matter to the pipeline.
	Runtime interface {
		// Pull fetches ref and returns the reference to use for it.
		Pull(ctx context.Context, ref string) (string, error)
		// Build builds an image and returns its ID.
		Build(ctx context.Context, req BuildRequest) (string, error)
		// Inspect returns the ID of an image in local storage.
		Inspect(ctx context.Context, ref string) (string, error)
		// ImageExists reports whether ref is present in local storage.
		ImageExists(ctx context.Context, ref string) (bool, error)
	}

	// BuildRequest describes one image build.
	BuildRequest struct {
		// ContextDir is the build context, the caller's working directory.
		ContextDir string
		// Containerfile is the absolute path of the generated Containerfile.
		Containerfile string
		// Format is the manifest format of the built image.
		Format containerspec.ImageFormat
		// Tags are applied to the built image; the first is the fingerprint tag.
		Tags []string
		// BuildArgs are extra KEY=VALUE build arguments.
		BuildArgs []string
		// IIDFile is where the runtime writes the image ID.
		IIDFile string
	}

	// EngineRuntime runs the pipeline's commands through a container.Engine.
	EngineRuntime struct {
		engine container.Engine
		stdout io.Writer
		stderr io.Writer
	}

	// EngineRuntimeOption configures an EngineRuntime.
	EngineRuntimeOption func(*EngineRuntime)
)

// WithBuildOutput streams build output to stdout and stderr.
func WithBuildOutput(stdout, stderr io.Writer) EngineRuntimeOption {
	return func(r *EngineRuntime) {
		r.stdout = stdout
		r.stderr = stderr
	}
}

// NewEngineRuntime wraps engine as a Runtime.
func NewEngineRuntime(engine container.Engine, opts ...EngineRuntimeOption) *EngineRuntime {
	r := &EngineRuntime{engine: engine}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Engine returns the wrapped engine.
func (r *EngineRuntime) Engine() container.Engine { return r.engine }

// Pull pulls ref and returns it as the reference to inspect.
func (r *EngineRuntime) Pull(ctx context.Context, ref string) (string, error) {
	if err := r.engine.Pull(ctx, ref); err != nil {
		return "", err
	}
	return ref, nil
}

// Build builds req and returns the image ID read from req.IIDFile.
func (r *EngineRuntime) Build(ctx context.Context, req BuildRequest) (string, error) {
	return r.engine.Build(ctx, container.BuildOptions{
		ContextDir:    req.ContextDir,
		Containerfile: req.Containerfile,
		Tags:          req.Tags,
		Format:        req.Format.String(),
		BuildArgs:     req.BuildArgs,
		IIDFile:       req.IIDFile,
		Stdout:        r.stdout,
		Stderr:        r.stderr,
	})
}

// Inspect returns the image ID of ref.
func (r *EngineRuntime) Inspect(ctx context.Context, ref string) (string, error) {
	id, err := r.engine.InspectID(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("%s: %w", r.engine.Name(), err)
	}
	return id, nil
}

// ImageExists reports whether ref is in local storage.
func (r *EngineRuntime) ImageExists(ctx context.Context, ref string) (bool, error) {
	return r.engine.ImageExists(ctx, ref)
}

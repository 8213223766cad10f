// SPDX-License-Identifier: MPL-2.0

package prepare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/ctrprep/ctrprep/internal/lock"
	"github.com/ctrprep/ctrprep/pkg/containerspec"
)

type (
	// Pipeline prepares container specifications through a Runtime, holding
	// the fingerprint lock for the whole critical section.
	Pipeline struct {
		runtime        Runtime
		locks          *lock.Manager
		logger         *slog.Logger
		observer       Observer
		lockTimeout    time.Duration
		commandTimeout time.Duration
		reuseExisting  bool
		scratchDir     string
	}

	// Option configures a Pipeline.
	Option func(*Pipeline)

	// PreparedContainer is the result of a successful preparation.
	PreparedContainer struct {
		// Spec is the prepared specification.
		Spec containerspec.Spec
		// Fingerprint is the lock identity of Spec.
		Fingerprint string
		// ImageRef is the reference that resolves to the prepared image:
		// the url for direct containers, the fingerprint tag for derived ones.
		ImageRef string
		// ImageID is the runtime's image ID. It may be empty for local images
		// whose inspection failed.
		ImageID string
		// LocalImage reports whether the root image came from local storage.
		LocalImage bool
		// Reused reports that an existing image was used instead of pulling or building.
		Reused bool
		// Base is the prepared base of a derived container.
		Base *PreparedContainer
		// State is always StatePrepared.
		State State
	}
)

// WithLockTimeout bounds the wait for a fingerprint lock. Zero waits until
// the context is done.
func WithLockTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.lockTimeout = d
	}
}

// WithCommandTimeout bounds every runtime command. Zero disables the bound.
func WithCommandTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.commandTimeout = d
	}
}

// WithReuseExisting skips the pull or build when the target image already
// exists in local storage. The check runs while the lock is held.
func WithReuseExisting(reuse bool) Option {
	return func(p *Pipeline) {
		p.reuseExisting = reuse
	}
}

// WithScratchDir sets the parent of the per-build directories holding the
// generated Containerfile. The default is the system temporary directory.
// It must not lie inside a build context.
func WithScratchDir(dir string) Option {
	return func(p *Pipeline) {
		p.scratchDir = dir
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithObserver registers fn to receive every state transition.
func WithObserver(fn Observer) Option {
	return func(p *Pipeline) {
		p.observer = fn
	}
}

// New creates a Pipeline running commands through runtime and locking in locks.
// A nil locks uses a Manager in lock.DefaultDir.
func New(runtime Runtime, locks *lock.Manager, opts ...Option) *Pipeline {
	if locks == nil {
		locks = lock.NewManager(lock.DefaultDir())
	}
	p := &Pipeline{
		runtime: runtime,
		locks:   locks,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Prepare makes the image described by spec available in local storage.
//
// Derived specifications are built with workDir as the build context, so
// COPY instructions can refer to files below it. The generated Containerfile
// lives in a scratch directory outside the context, unique to each build. extraBuildArgs are passed
// to every build in the chain as KEY=VALUE build arguments.
//
// Requests for the same fingerprint are serialized across goroutines and
// processes. The lock is released before Prepare returns, on success and on
// failure.
func (p *Pipeline) Prepare(ctx context.Context, spec containerspec.Spec, workDir string, extraBuildArgs ...string) (*PreparedContainer, error) {
	if spec == nil {
		return nil, ErrNilSpec
	}
	if workDir == "" {
		workDir = "."
	}
	absWorkDir, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("resolve working directory %s: %w", workDir, err)
	}
	return p.prepare(ctx, spec, absWorkDir, extraBuildArgs)
}

func (p *Pipeline) prepare(ctx context.Context, spec containerspec.Spec, workDir string, buildArgs []string) (*PreparedContainer, error) {
	var base *PreparedContainer
	if derived, ok := spec.(*containerspec.DerivedContainer); ok {
		// The base is prepared under its own lock before the leaf lock is
		// taken, so no goroutine ever holds two fingerprint locks.
		var err error
		if base, err = p.prepare(ctx, derived.Base(), workDir, buildArgs); err != nil {
			return nil, err
		}
	}

	req := &request{
		pipeline:    p,
		spec:        spec,
		fingerprint: spec.LockIdentity(),
		state:       StateUnprepared,
	}
	req.logger = p.logger.With("fingerprint", req.fingerprint, "spec", spec.String())
	return req.run(ctx, base, workDir, buildArgs)
}

// request is one preparation moving through the state machine.
type request struct {
	pipeline    *Pipeline
	spec        containerspec.Spec
	fingerprint string
	state       State
	logger      *slog.Logger
}

func (r *request) run(ctx context.Context, base *PreparedContainer, workDir string, buildArgs []string) (result *PreparedContainer, err error) {
	p := r.pipeline

	r.transition(StateLockWait)
	handle, err := p.locks.Acquire(ctx, r.fingerprint, p.lockTimeout)
	if err != nil {
		r.transition(StateFailed)
		return nil, fmt.Errorf("prepare %s: %w", r.spec, err)
	}
	defer func() {
		if releaseErr := handle.Release(); releaseErr != nil {
			r.logger.Warn("failed to release lock", "error", releaseErr)
			if err == nil {
				result, err = nil, releaseErr
			}
		}
	}()

	result = &PreparedContainer{
		Spec:        r.spec,
		Fingerprint: r.fingerprint,
		LocalImage:  r.spec.LocalImage(),
		Base:        base,
	}

	switch spec := r.spec.(type) {
	case *containerspec.DirectContainer:
		result.ImageRef = spec.URL()
		if spec.LocalImage() {
			r.transition(StateReusingLocal)
			result.ImageID = r.inspectLocal(ctx, result.ImageRef)
			break
		}
		if r.reuse(ctx, result) {
			break
		}
		r.transition(StatePulling)
		if err := r.pull(ctx, result); err != nil {
			r.transition(StateFailed)
			return nil, err
		}

	case *containerspec.DerivedContainer:
		result.ImageRef = ImageTag(r.fingerprint)
		if r.reuse(ctx, result) {
			break
		}
		r.transition(StateBuilding)
		if err := r.build(ctx, spec, base.ImageRef, workDir, buildArgs, result); err != nil {
			r.transition(StateFailed)
			return nil, err
		}
	}

	r.transition(StatePrepared)
	result.State = StatePrepared
	return result, nil
}

// reuse reports whether result.ImageRef already exists and, if so, records
// it as reused. Lookup failures fall through to a regular pull or build.
func (r *request) reuse(ctx context.Context, result *PreparedContainer) bool {
	if !r.pipeline.reuseExisting {
		return false
	}

	cmdCtx, cancel := r.pipeline.commandContext(ctx)
	defer cancel()

	exists, err := r.pipeline.runtime.ImageExists(cmdCtx, result.ImageRef)
	if err != nil {
		r.logger.Debug("image existence check failed", "ref", result.ImageRef, "error", err)
		return false
	}
	if !exists {
		return false
	}

	r.transition(StateReusingLocal)
	result.Reused = true
	result.ImageID = r.inspectLocal(ctx, result.ImageRef)
	return true
}

// inspectLocal resolves the ID of an image that is expected to be local.
// Failure is tolerated; the ID stays empty.
func (r *request) inspectLocal(ctx context.Context, ref string) string {
	cmdCtx, cancel := r.pipeline.commandContext(ctx)
	defer cancel()

	id, err := r.pipeline.runtime.Inspect(cmdCtx, ref)
	if err != nil {
		r.logger.Debug("inspect of local image failed", "ref", ref, "error", err)
		return ""
	}
	return id
}

func (r *request) pull(ctx context.Context, result *PreparedContainer) error {
	cmdCtx, cancel := r.pipeline.commandContext(ctx)
	defer cancel()

	start := time.Now()
	ref, err := r.pipeline.runtime.Pull(cmdCtx, result.ImageRef)
	if err != nil {
		return newPullError(result.ImageRef, err)
	}
	if ref != "" {
		result.ImageRef = ref
	}

	id, err := r.pipeline.runtime.Inspect(cmdCtx, result.ImageRef)
	if err != nil {
		return newPullError(result.ImageRef, fmt.Errorf("inspect pulled image: %w", err))
	}
	result.ImageID = id

	r.logger.Info("pulled image", "ref", result.ImageRef, "id", id, "duration", time.Since(start))
	return nil
}

func (r *request) build(ctx context.Context, spec *containerspec.DerivedContainer, baseRef, workDir string, buildArgs []string, result *PreparedContainer) error {
	dir, err := newBuildDir(r.pipeline.scratchDir, r.fingerprint, renderContainerfile(baseRef, spec.Containerfile()))
	if err != nil {
		return newBuildError(r.fingerprint, "", err)
	}
	defer dir.remove()

	cmdCtx, cancel := r.pipeline.commandContext(ctx)
	defer cancel()

	start := time.Now()
	id, err := r.pipeline.runtime.Build(cmdCtx, BuildRequest{
		ContextDir:    workDir,
		Containerfile: dir.containerfile(),
		Format:        spec.Format(),
		Tags:          append([]string{result.ImageRef}, spec.Tags()...),
		BuildArgs:     buildArgs,
		IIDFile:       dir.iidFile(),
	})
	if err != nil {
		return newBuildError(r.fingerprint, dir.containerfile(), err)
	}
	if id == "" {
		return newBuildError(r.fingerprint, dir.containerfile(), errors.New("runtime returned no image ID"))
	}
	result.ImageID = id

	r.logger.Info("built image", "tag", result.ImageRef, "id", id, "duration", time.Since(start))
	return nil
}

func (r *request) transition(to State) {
	from := r.state
	if !from.CanTransition(to) {
		// Programming error in the pipeline itself.
		panic(fmt.Sprintf("prepare: invalid transition %s -> %s", from, to))
	}
	r.state = to
	r.logger.Debug("state transition", "from", from, "to", to)
	if obs := r.pipeline.observer; obs != nil {
		obs(Transition{Fingerprint: r.fingerprint, Spec: r.spec.String(), From: from, To: to})
	}
}

func (p *Pipeline) commandContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.commandTimeout > 0 {
		return context.WithTimeout(ctx, p.commandTimeout)
	}
	return context.WithCancel(ctx)
}

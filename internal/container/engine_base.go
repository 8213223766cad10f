// SPDX-License-Identifier: MPL-2.0

package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"mvdan.cc/sh/v3/shell"

	"github.com/ctrprep/ctrprep/internal/issue"
)

// ErrEmptyIIDFile is returned when a build succeeded but wrote no image ID.
var ErrEmptyIIDFile = errors.New("image ID file is empty")

type (
	// ExecCommandFunc is the function signature for creating exec.Cmd.
	// This allows injection of mock implementations for testing.
	ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// BaseCLIEngineOption configures a BaseCLIEngine.
	BaseCLIEngineOption func(*BaseCLIEngine)

	// BaseCLIEngine provides common implementation for CLI-based container engines.
	// Docker and Podman engines embed this struct; engine-specific behavior
	// (Available, Version, ImageExists, Build flags) stays on the concrete types.
	BaseCLIEngine struct {
		binaryPath  string
		prefix      []string
		hostSpawn   bool
		env         map[string]string
		execCommand ExecCommandFunc
	}

	// CommandError is a failed engine invocation together with its combined
	// output, which usually holds the engine's diagnostic message.
	CommandError struct {
		Command []string
		Output  string
		Err     error
	}
)

// Error implements the error interface.
func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", strings.Join(e.Command, " "), e.Err)
}

// Unwrap returns the underlying exec error.
func (e *CommandError) Unwrap() error { return e.Err }

// WithExecCommand sets a custom exec command function for testing.
func WithExecCommand(fn ExecCommandFunc) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.execCommand = fn
	}
}

// WithCommandPrefix runs every engine command through a wrapper, for example
// "sudo" or "systemd-run --user --scope".
func WithCommandPrefix(args ...string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.prefix = append([]string(nil), args...)
		e.hostSpawn = false
	}
}

// WithEnv adds an environment variable applied to every command created by the engine.
func WithEnv(key, value string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		if e.env == nil {
			e.env = make(map[string]string)
		}
		e.env[key] = value
	}
}

// ParseCommandPrefix splits a shell-quoted wrapper command line into arguments.
// Variable references are expanded from the process environment.
func ParseCommandPrefix(line string) ([]string, error) {
	fields, err := shell.Fields(line, os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("parse engine command prefix %q: %w", line, err)
	}
	return fields, nil
}

// NewBaseCLIEngine creates a new base engine with the given binary path.
func NewBaseCLIEngine(binaryPath string, opts ...BaseCLIEngineOption) *BaseCLIEngine {
	e := &BaseCLIEngine{
		binaryPath:  binaryPath,
		execCommand: exec.CommandContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BinaryPath returns the path to the container engine binary.
func (e *BaseCLIEngine) BinaryPath() string {
	return e.binaryPath
}

// BuildArgs constructs arguments for a container build command.
//
// Generated command: <binary> build [options] <context>
func (e *BaseCLIEngine) BuildArgs(opts BuildOptions) []string {
	args := []string{"build"}

	if opts.Containerfile != "" {
		containerfilePath := opts.Containerfile
		if !filepath.IsAbs(containerfilePath) && opts.ContextDir != "" {
			containerfilePath = filepath.Join(opts.ContextDir, containerfilePath)
		}
		args = append(args, "-f", containerfilePath)
	}

	for _, tag := range opts.Tags {
		args = append(args, "-t", tag)
	}

	if opts.IIDFile != "" {
		args = append(args, "--iidfile", opts.IIDFile)
	}

	if opts.NoCache {
		args = append(args, "--no-cache")
	}

	for _, arg := range opts.BuildArgs {
		args = append(args, "--build-arg", arg)
	}

	args = append(args, opts.ContextDir)

	return args
}

// PullArgs constructs arguments for an image pull command.
func (e *BaseCLIEngine) PullArgs(ref string) []string {
	return []string{"pull", ref}
}

// InspectIDArgs constructs arguments that print only the image ID of ref.
func (e *BaseCLIEngine) InspectIDArgs(ref string) []string {
	return []string{"image", "inspect", "--format", "{{.Id}}", ref}
}

// RemoveImageArgs constructs arguments for an image remove command.
func (e *BaseCLIEngine) RemoveImageArgs(ref string, force bool) []string {
	args := []string{"rmi"}
	if force {
		args = append(args, "-f")
	}
	return append(args, ref)
}

// RunCommandCombined executes a command and returns combined stdout/stderr.
// On failure the error is a *CommandError carrying that output.
func (e *BaseCLIEngine) RunCommandCombined(ctx context.Context, args ...string) ([]byte, error) {
	cmd := e.CreateCommand(ctx, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, &CommandError{Command: cmd.Args, Output: string(out), Err: err}
	}
	return out, nil
}

// RunCommandStatus executes a command and returns only the error status.
func (e *BaseCLIEngine) RunCommandStatus(ctx context.Context, args ...string) error {
	cmd := e.CreateCommand(ctx, args...)
	if err := cmd.Run(); err != nil {
		return &CommandError{Command: cmd.Args, Err: err}
	}
	return nil
}

// RunCommandWithOutput executes a command with stdout captured to a buffer.
// Stderr is kept for the error.
func (e *BaseCLIEngine) RunCommandWithOutput(ctx context.Context, args ...string) (string, error) {
	cmd := e.CreateCommand(ctx, args...)
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut

	if err := cmd.Run(); err != nil {
		return "", &CommandError{Command: cmd.Args, Output: errOut.String(), Err: err}
	}

	return out.String(), nil
}

// CreateCommand creates an exec.Cmd for the given arguments, applying the
// command prefix and environment overrides.
func (e *BaseCLIEngine) CreateCommand(ctx context.Context, args ...string) *exec.Cmd {
	name := e.binaryPath
	if len(e.prefix) > 0 {
		name = e.prefix[0]
		args = append(append(append([]string(nil), e.prefix[1:]...), e.binaryPath), args...)
	}
	cmd := e.execCommand(ctx, name, args...)
	if len(e.env) > 0 {
		// A non-nil Env replaces the inherited environment.
		if cmd.Env == nil {
			cmd.Env = os.Environ()
		}
		for k, v := range e.env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	return cmd
}

// pull runs the pull command, wrapping failures in an actionable error.
func (e *BaseCLIEngine) pull(ctx context.Context, engine, ref string) error {
	if _, err := e.RunCommandCombined(ctx, e.PullArgs(ref)...); err != nil {
		return pullImageError(engine, ref, err)
	}
	return nil
}

// build runs a build command with args, streaming output to opts.Stdout and
// opts.Stderr while keeping a copy for the error, and returns the ID from the
// iidfile when one was requested.
func (e *BaseCLIEngine) build(ctx context.Context, engine string, opts BuildOptions, args []string) (string, error) {
	cmd := e.CreateCommand(ctx, args...)
	var output lockedBuffer
	cmd.Stdout = teeWriter(opts.Stdout, &output)
	cmd.Stderr = teeWriter(opts.Stderr, &output)

	if err := cmd.Run(); err != nil {
		return "", buildContainerError(engine, opts, &CommandError{Command: cmd.Args, Output: output.String(), Err: err})
	}

	if opts.IIDFile == "" {
		return "", nil
	}
	return ReadIIDFile(opts.IIDFile)
}

func (e *BaseCLIEngine) inspectID(ctx context.Context, ref string) (string, error) {
	out, err := e.RunCommandWithOutput(ctx, e.InspectIDArgs(ref)...)
	if err != nil {
		return "", fmt.Errorf("inspect image %s: %w", ref, err)
	}
	return strings.TrimSpace(out), nil
}

func (e *BaseCLIEngine) removeImage(ctx context.Context, ref string, force bool) error {
	if _, err := e.RunCommandCombined(ctx, e.RemoveImageArgs(ref, force)...); err != nil {
		return fmt.Errorf("remove image %s: %w", ref, err)
	}
	return nil
}

// ReadIIDFile reads an image ID written by --iidfile.
func ReadIIDFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image ID file: %w", err)
	}
	id := strings.TrimSpace(string(data))
	if id == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyIIDFile, path)
	}
	return id, nil
}

// teeWriter writes to w when set and always to buf.
func teeWriter(w, buf io.Writer) io.Writer {
	if w == nil {
		return buf
	}
	return io.MultiWriter(w, buf)
}

// lockedBuffer is a bytes.Buffer shared by a command's stdout and stderr copiers.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// pullImageError creates an actionable error for image pull failures.
func pullImageError(engine, ref string, cause error) error {
	return issue.NewErrorContext().
		WithOperation("pull image").
		WithResource(ref).
		WithSuggestion("Check that the image reference is spelled correctly").
		WithSuggestion("Verify the registry is reachable and you are logged in (try: " + engine + " login <registry>)").
		WithSuggestion("Use the containers-storage: prefix for images that only exist locally").
		Wrap(cause).
		BuildError()
}

// buildContainerError creates an actionable error for image build failures.
func buildContainerError(engine string, opts BuildOptions, cause error) error {
	ctx := issue.NewErrorContext().
		WithOperation("build container image")

	switch {
	case opts.Containerfile != "":
		ctx.WithResource(opts.Containerfile)
	case len(opts.Tags) > 0:
		ctx.WithResource(opts.Tags[0])
	}

	ctx.WithSuggestion("Check Containerfile syntax for errors")
	ctx.WithSuggestion("Verify the build context path exists and is accessible")
	ctx.WithSuggestion("Ensure base images are available (try: " + engine + " pull <base-image>)")
	ctx.WithSuggestion("Run with --verbose to see full build output")

	return ctx.Wrap(cause).BuildError()
}

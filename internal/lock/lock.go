// SPDX-License-Identifier: MPL-2.0

package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// lockFileSuffix is appended to the fingerprint to form the lock file name.
	lockFileSuffix = ".lock"

	defaultInitialInterval = 10 * time.Millisecond
	defaultMaxInterval     = 500 * time.Millisecond
)

type (
	// Manager hands out exclusive locks keyed by fingerprint inside one directory.
	// A Manager holds no lock state itself and is safe for concurrent use.
	Manager struct {
		dir             string
		logger          *slog.Logger
		initialInterval time.Duration
		maxInterval     time.Duration
	}

	// Option configures a Manager.
	Option func(*Manager)

	// Handle is a held lock. Release must be called exactly once per successful
	// Acquire; further calls are no-ops.
	Handle struct {
		mu          sync.Mutex
		file        *os.File
		path        string
		fingerprint string
		logger      *slog.Logger
	}
)

// WithLogger sets the logger used for lock diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithPollInterval sets the initial and maximum delay between attempts on a
// contended lock.
func WithPollInterval(initial, maxInterval time.Duration) Option {
	return func(m *Manager) {
		m.initialInterval = initial
		m.maxInterval = maxInterval
	}
}

// NewManager returns a Manager that keeps its lock files in dir.
// The directory is created on first use.
func NewManager(dir string, opts ...Option) *Manager {
	m := &Manager{
		dir:             dir,
		logger:          slog.Default(),
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DefaultDir returns the default lock directory.
// Prefers $XDG_RUNTIME_DIR (per-user tmpfs), falls back to os.TempDir().
func DefaultDir() string {
	return defaultDirWith(os.Getenv)
}

// defaultDirWith returns the lock directory using the provided getenv function.
func defaultDirWith(getenv func(string) string) string {
	dir := getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "ctrprep", "locks")
}

// Dir returns the lock directory.
func (m *Manager) Dir() string { return m.dir }

// Path returns the lock file path for fingerprint.
func (m *Manager) Path(fingerprint string) (string, error) {
	if err := validateFingerprint(fingerprint); err != nil {
		return "", err
	}
	return filepath.Join(m.dir, fingerprint+lockFileSuffix), nil
}

// Acquire blocks the calling goroutine until the lock for fingerprint is held,
// timeout elapses or ctx is done. A timeout <= 0 waits until ctx is done.
// On timeout the returned error is a *TimeoutError.
func (m *Manager) Acquire(ctx context.Context, fingerprint string, timeout time.Duration) (*Handle, error) {
	path, err := m.Path(fingerprint)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", fingerprint, err)
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory %s: %w", m.dir, err)
	}

	// O_CREATE without O_EXCL: concurrent first acquirers all open the same inode.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	contended := false
	op := func() error {
		ok, lockErr := tryLock(f)
		if lockErr != nil {
			return backoff.Permanent(lockErr)
		}
		if !ok {
			if !contended {
				contended = true
				m.logger.Debug("waiting for lock", "fingerprint", fingerprint, "path", path)
			}
			return errContended
		}
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(m.newBackOff(), waitCtx)); err != nil {
		_ = f.Close() // never locked; close error non-critical
		switch {
		case ctx.Err() != nil:
			return nil, fmt.Errorf("acquire lock %s: %w", fingerprint, ctx.Err())
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, errContended):
			return nil, &TimeoutError{Fingerprint: fingerprint, Path: path, Timeout: timeout}
		default:
			return nil, fmt.Errorf("lock %s: %w", path, err)
		}
	}

	m.logger.Debug("lock acquired", "fingerprint", fingerprint, "waited", time.Since(start))
	return &Handle{file: f, path: path, fingerprint: fingerprint, logger: m.logger}, nil
}

// With runs fn while holding the lock for fingerprint. The lock is released on
// every exit path, including a panic in fn.
func (m *Manager) With(ctx context.Context, fingerprint string, timeout time.Duration, fn func() error) (err error) {
	h, err := m.Acquire(ctx, fingerprint, timeout)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := h.Release(); releaseErr != nil && err == nil {
			err = releaseErr
		}
	}()
	return fn()
}

func (m *Manager) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.initialInterval
	b.MaxInterval = m.maxInterval
	b.MaxElapsedTime = 0 // bounded by the wait context
	return b
}

// Path returns the lock file path.
func (h *Handle) Path() string { return h.path }

// Fingerprint returns the fingerprint this handle locks.
func (h *Handle) Fingerprint() string { return h.fingerprint }

// Release unlocks and closes the lock file. The file itself is left in place.
// It is safe to call on a nil Handle and more than once.
func (h *Handle) Release() error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.file == nil {
		return nil
	}
	// Unlock before Close for explicitness; Close also drops the lock.
	unlockErr := unlock(h.file)
	if unlockErr != nil {
		h.logger.Debug("unlock failed", "path", h.path, "error", unlockErr)
	}
	closeErr := h.file.Close()
	h.file = nil

	if err := errors.Join(unlockErr, closeErr); err != nil {
		return fmt.Errorf("release lock %s: %w", h.path, err)
	}
	return nil
}

func validateFingerprint(fingerprint string) error {
	if strings.TrimSpace(fingerprint) == "" ||
		strings.ContainsAny(fingerprint, `/\`) ||
		fingerprint == "." || fingerprint == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidFingerprint, fingerprint)
	}
	return nil
}

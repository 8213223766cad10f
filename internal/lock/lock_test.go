// SPDX-License-Identifier: MPL-2.0

//go:build unix || windows

package lock

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

const testFingerprint = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(filepath.Join(t.TempDir(), "locks"), WithPollInterval(time.Millisecond, 20*time.Millisecond))
}

func mustAcquire(t *testing.T, m *Manager, fp string) *Handle {
	t.Helper()
	h, err := m.Acquire(context.Background(), fp, 5*time.Second)
	if err != nil {
		t.Fatalf("Acquire(%s) error: %v", fp, err)
	}
	return h
}

func TestAcquire_CreatesZeroByteFile(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	h := mustAcquire(t, m, testFingerprint)

	want := filepath.Join(m.Dir(), testFingerprint+".lock")
	if h.Path() != want {
		t.Errorf("Path() = %q, want %q", h.Path(), want)
	}
	if h.Fingerprint() != testFingerprint {
		t.Errorf("Fingerprint() = %q", h.Fingerprint())
	}

	info, err := os.Stat(want)
	if err != nil {
		t.Fatalf("lock file not found: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("lock file size = %d, want 0", info.Size())
	}

	if err := h.Release(); err != nil {
		t.Fatalf("Release() error: %v", err)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("lock file must survive release: %v", err)
	}
}

func TestAcquire_BlocksConcurrent(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	lockA := mustAcquire(t, m, testFingerprint)

	var acquired atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		lockB, err := m.Acquire(context.Background(), testFingerprint, 10*time.Second)
		if err != nil {
			t.Errorf("Acquire B: %v", err)
			return
		}
		acquired.Store(true)
		_ = lockB.Release()
	}()

	time.Sleep(100 * time.Millisecond)
	if acquired.Load() {
		t.Fatal("goroutine B acquired the lock while A still held it")
	}

	if err := lockA.Release(); err != nil {
		t.Fatalf("Release A: %v", err)
	}

	select {
	case <-done:
		if !acquired.Load() {
			t.Fatal("goroutine B never acquired the lock after A released")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for goroutine B to acquire the lock")
	}
}

func TestAcquire_Timeout(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	held := mustAcquire(t, m, testFingerprint)
	defer func() { _ = held.Release() }()

	start := time.Now()
	_, err := m.Acquire(context.Background(), testFingerprint, 50*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("error should wrap ErrLockTimeout, got: %v", err)
	}
	var tErr *TimeoutError
	if !errors.As(err, &tErr) {
		t.Fatalf("expected *TimeoutError, got %T", err)
	}
	if tErr.Fingerprint != testFingerprint || tErr.Timeout != 50*time.Millisecond {
		t.Errorf("unexpected TimeoutError fields: %+v", tErr)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took %s", elapsed)
	}
}

func TestAcquire_ContextCanceled(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	held := mustAcquire(t, m, testFingerprint)
	defer func() { _ = held.Release() }()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := m.Acquire(ctx, testFingerprint, 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrLockTimeout) {
		t.Error("cancellation must not be reported as a lock timeout")
	}
}

func TestAcquire_DistinctFingerprintsDoNotBlock(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	a := mustAcquire(t, m, "aaaa")
	defer func() { _ = a.Release() }()

	b, err := m.Acquire(context.Background(), "bbbb", 100*time.Millisecond)
	if err != nil {
		t.Fatalf("unrelated fingerprint blocked: %v", err)
	}
	_ = b.Release()
}

func TestAcquire_ReacquireAfterRelease(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	for i := range 3 {
		h, err := m.Acquire(context.Background(), testFingerprint, 100*time.Millisecond)
		if err != nil {
			t.Fatalf("acquisition %d: %v", i, err)
		}
		if err := h.Release(); err != nil {
			t.Fatalf("release %d: %v", i, err)
		}
	}
}

func TestAcquire_InvalidFingerprint(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	for _, fp := range []string{"", "  ", "a/b", `a\b`, ".", ".."} {
		_, err := m.Acquire(context.Background(), fp, time.Second)
		if !errors.Is(err, ErrInvalidFingerprint) {
			t.Errorf("Acquire(%q) error = %v, want ErrInvalidFingerprint", fp, err)
		}
	}
}

func TestHandle_Release_Idempotent(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	h := mustAcquire(t, m, testFingerprint)

	if err := h.Release(); err != nil {
		t.Fatalf("first Release() error: %v", err)
	}
	if err := h.Release(); err != nil {
		t.Fatalf("second Release() error: %v", err)
	}
}

func TestHandle_Release_NilReceiver(t *testing.T) {
	t.Parallel()

	var h *Handle
	if err := h.Release(); err != nil {
		t.Fatalf("nil Release() error: %v", err)
	}
}

func TestWith_ReleasesOnErrorAndPanic(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	boom := errors.New("boom")

	err := m.With(context.Background(), testFingerprint, time.Second, func() error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("With() error = %v, want %v", err, boom)
	}

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Error("expected panic to propagate")
			}
		}()
		_ = m.With(context.Background(), testFingerprint, time.Second, func() error { panic("critical section") })
	}()

	h, err := m.Acquire(context.Background(), testFingerprint, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("lock still held after With returned: %v", err)
	}
	_ = h.Release()
}

// TestWith_SerializedAccess verifies that goroutines locking the same
// fingerprint get serialized access to a shared file.
func TestWith_SerializedAccess(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	counterPath := filepath.Join(t.TempDir(), "counter")
	if err := os.WriteFile(counterPath, []byte("0"), 0o600); err != nil {
		t.Fatalf("failed to write initial counter: %v", err)
	}

	const numGoroutines = 8
	done := make(chan struct{}, numGoroutines)

	for range numGoroutines {
		go func() {
			defer func() { done <- struct{}{} }()

			err := m.With(context.Background(), testFingerprint, 10*time.Second, func() error {
				data, err := os.ReadFile(counterPath)
				if err != nil {
					return err
				}
				var n int
				if _, err := fmt.Sscanf(string(data), "%d", &n); err != nil {
					return err
				}
				time.Sleep(time.Millisecond)
				return os.WriteFile(counterPath, fmt.Appendf(nil, "%d", n+1), 0o600)
			})
			if err != nil {
				t.Errorf("With() error: %v", err)
			}
		}()
	}

	for range numGoroutines {
		select {
		case <-done:
		case <-time.After(30 * time.Second):
			t.Fatal("timed out waiting for goroutines")
		}
	}

	data, err := os.ReadFile(counterPath)
	if err != nil {
		t.Fatalf("read final counter: %v", err)
	}
	if string(data) != fmt.Sprint(numGoroutines) {
		t.Errorf("counter = %s, want %d (serialization failure)", data, numGoroutines)
	}
}

func TestDefaultDir_FallbackToTempDir(t *testing.T) {
	t.Parallel()

	got := defaultDirWith(func(string) string { return "" })
	want := filepath.Join(os.TempDir(), "ctrprep", "locks")
	if got != want {
		t.Errorf("defaultDirWith() = %q, want %q", got, want)
	}
}

func TestDefaultDir_UsesXDGRuntimeDir(t *testing.T) {
	t.Parallel()

	customDir := t.TempDir()
	got := defaultDirWith(func(key string) string {
		if key == "XDG_RUNTIME_DIR" {
			return customDir
		}
		return ""
	})
	want := filepath.Join(customDir, "ctrprep", "locks")
	if got != want {
		t.Errorf("defaultDirWith() = %q, want %q", got, want)
	}
}

// TestAcquire_CrossProcess holds the lock in a child process and checks that
// this process cannot take it until the child releases.
func TestAcquire_CrossProcess(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping multi-process test in short mode")
	}
	t.Parallel()

	m := newTestManager(t)

	cmd := exec.Command(os.Args[0], "-test.run=^TestLockHelperProcess$") //nolint:noctx // child is bounded by stdin
	cmd.Env = append(os.Environ(),
		"GO_WANT_LOCK_HELPER=1",
		"LOCK_HELPER_DIR="+m.Dir(),
		"LOCK_HELPER_FP="+testFingerprint,
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		t.Fatalf("stdin pipe: %v", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.Fatalf("stdout pipe: %v", err)
	}
	if err := cmd.Start(); err != nil {
		t.Fatalf("start helper: %v", err)
	}
	defer func() { _ = cmd.Wait() }()

	line, err := bufio.NewReader(stdout).ReadString('\n')
	if err != nil || line != "locked\n" {
		_ = stdin.Close()
		t.Fatalf("helper did not report the lock: %q, %v", line, err)
	}

	if _, err := m.Acquire(context.Background(), testFingerprint, 100*time.Millisecond); !errors.Is(err, ErrLockTimeout) {
		_ = stdin.Close()
		t.Fatalf("Acquire while child holds lock: error = %v, want ErrLockTimeout", err)
	}

	_ = stdin.Close()

	h, err := m.Acquire(context.Background(), testFingerprint, 10*time.Second)
	if err != nil {
		t.Fatalf("Acquire after child release: %v", err)
	}
	_ = h.Release()
}

// TestLockHelperProcess is the child side of TestAcquire_CrossProcess. It holds
// the lock until its stdin is closed.
func TestLockHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_LOCK_HELPER") != "1" {
		return
	}

	m := NewManager(os.Getenv("LOCK_HELPER_DIR"))
	h, err := m.Acquire(context.Background(), os.Getenv("LOCK_HELPER_FP"), 10*time.Second)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	fmt.Println("locked")

	_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
	_ = h.Release()
	os.Exit(0)
}

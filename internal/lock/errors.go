// SPDX-License-Identifier: MPL-2.0

package lock

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrLockTimeout is the sentinel error wrapped by TimeoutError.
	ErrLockTimeout = errors.New("lock acquisition timed out")

	// ErrInvalidFingerprint is returned when a fingerprint cannot be used as a file name.
	ErrInvalidFingerprint = errors.New("invalid lock fingerprint")

	// errLockUnsupported is returned on platforms without advisory file locks.
	errLockUnsupported = errors.New("advisory file locks are not available on this platform")

	// errContended signals a held lock to the retry loop; it never escapes Acquire.
	errContended = errors.New("lock is held by another owner")
)

// TimeoutError is returned when a lock could not be acquired within the
// caller's timeout. Retrying is left to the caller.
type TimeoutError struct {
	Fingerprint string
	Path        string
	Timeout     time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for lock %s (%s)", e.Timeout, e.Fingerprint, e.Path)
}

// Unwrap returns ErrLockTimeout for errors.Is() compatibility.
func (e *TimeoutError) Unwrap() error { return ErrLockTimeout }

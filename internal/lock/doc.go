// SPDX-License-Identifier: MPL-2.0

// Package lock provides named, filesystem-backed exclusive locks shared by all
// processes on a host.
//
// Each lock is a zero-byte file named after a fingerprint inside a lock
// directory. Mutual exclusion comes from an OS advisory lock on that file
// (flock on Unix, LockFileEx on Windows), so it holds between goroutines of one
// process and between independent processes alike. The file is created with an
// atomic create-or-open and is never deleted; only its lock state changes. The
// kernel drops the lock when the descriptor is closed, including on a crash.
//
//	m := lock.NewManager(lock.DefaultDir())
//	err := m.With(ctx, spec.LockIdentity(), time.Minute, func() error {
//		// critical section
//		return nil
//	})
package lock

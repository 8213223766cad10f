// SPDX-License-Identifier: MPL-2.0

//go:build !unix && !windows

package lock

import "os"

// tryLock always fails on platforms without advisory file locks.
func tryLock(*os.File) (bool, error) {
	return false, errLockUnsupported
}

func unlock(*os.File) error { return nil }

// SPDX-License-Identifier: MPL-2.0

// Package prepare turns a container specification into an image that is
// present in local storage.
//
// Every preparation runs inside the cross-process lock keyed by the
// specification's fingerprint, so concurrent requests for the same image
// (from goroutines or separate processes) are serialized. Each request moves
// through the states Unprepared, LockWait, one of ReusingLocal, Pulling or
// Building, and finally Prepared or Failed.
//
// Derived specifications prepare their base first, each level under its own
// lock, and are then built with the caller's working directory as context. The
// generated Containerfile lives in a temporary directory outside that context.
package prepare

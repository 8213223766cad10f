// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helpers for tests: filesystem setup that fails
// the test on error, and gating plus throttling of tests that need a real
// container engine.
package testutil

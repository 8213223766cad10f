// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable errors: failures carrying the operation,
// the resource involved, and remediation suggestions for the terminal.
package issue

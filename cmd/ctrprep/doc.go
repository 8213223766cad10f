// SPDX-License-Identifier: MPL-2.0

// Package cmd implements the ctrprep command line.
package cmd

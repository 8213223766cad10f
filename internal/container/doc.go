// SPDX-License-Identifier: MPL-2.0

// Package container drives the Docker and Podman command-line clients for
// image preparation: pulling, building, inspecting and removing images.
//
// The Engine interface is implemented by DockerEngine and PodmanEngine, both
// embedding BaseCLIEngine for argument construction and command execution.
// NewEngine selects an engine with fallback to the other one when the
// preferred binary is unavailable; AutoDetectEngine tries Podman first.
//
// Engines never retry on their own. Callers that want retries combine
// IsTransientError with RetryWithBackoff.
package container

// SPDX-License-Identifier: MPL-2.0

// Package manifest reads declarative lists of container images to prepare.
//
// A manifest is a CUE or TOML file whose entries are either direct images
// (url) or images derived from another entry or image (base):
//
//	[[images]]
//	name = "python"
//	url  = "docker.io/library/python:3.12-slim"
//
//	[[images]]
//	name          = "tools"
//	base          = "python"
//	containerfile = "RUN pip install ruff"
//	tags          = ["localhost/tools:latest"]
//
// Resolve turns the entries into containerspec values, sharing the Spec of
// an entry used as a base by several others.
package manifest

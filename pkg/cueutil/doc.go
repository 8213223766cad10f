// SPDX-License-Identifier: MPL-2.0

// Package cueutil decodes user-written CUE documents against embedded schemas.
//
// Configuration files and image manifests share the same flow: compile the
// schema, unify the document with one of its definitions, validate and decode.
//
//	//go:embed manifest_schema.cue
//	var schema []byte
//
//	res, err := cueutil.ParseAndDecode[Manifest](schema, data, "#Manifest",
//		cueutil.WithFilename("images.cue"))
package cueutil

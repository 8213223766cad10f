// SPDX-License-Identifier: MPL-2.0

package cueutil_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/ctrprep/ctrprep/pkg/cueutil"
)

const testSchema = `
#Image: {
	name:    string & =~"^[a-z][a-z0-9-]*$"
	url:     string
	format?: "oci" | "docker"
	tags?: [...string]
}
`

type testImage struct {
	Name   string   `json:"name"`
	URL    string   `json:"url"`
	Format string   `json:"format,omitempty"`
	Tags   []string `json:"tags,omitempty"`
}

func TestParseAndDecode(t *testing.T) {
	t.Parallel()

	data := []byte(`
name: "tools"
url:  "docker.io/library/alpine:3.20"
tags: ["tools:latest"]
`)
	res, err := cueutil.ParseAndDecode[testImage]([]byte(testSchema), data, "#Image")
	if err != nil {
		t.Fatalf("ParseAndDecode: %v", err)
	}
	if res.Value.Name != "tools" || res.Value.URL != "docker.io/library/alpine:3.20" {
		t.Errorf("decoded %+v", res.Value)
	}
	if len(res.Value.Tags) != 1 || res.Value.Tags[0] != "tools:latest" {
		t.Errorf("tags = %v", res.Value.Tags)
	}
	if !res.Unified.Exists() {
		t.Error("unified value should exist")
	}
}

func TestParseAndDecode_ValidationError(t *testing.T) {
	t.Parallel()

	data := []byte(`
name:   "tools"
url:    "alpine"
format: "tar"
`)
	_, err := cueutil.ParseAndDecode[testImage]([]byte(testSchema), data, "#Image",
		cueutil.WithFilename("images.cue"))
	if err == nil {
		t.Fatal("expected validation error")
	}

	var verr *cueutil.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error %T is not *ValidationError: %v", err, err)
	}
	if verr.FilePath != "images.cue" {
		t.Errorf("FilePath = %q", verr.FilePath)
	}
	if !strings.Contains(err.Error(), "format") {
		t.Errorf("error should name the field, got %q", err)
	}
}

func TestParseAndDecode_Concrete(t *testing.T) {
	t.Parallel()

	data := []byte(`name: "tools"`)

	if _, err := cueutil.ParseAndDecode[testImage]([]byte(testSchema), data, "#Image"); err == nil {
		t.Error("missing url should fail concrete validation")
	}
}

func TestParseAndDecode_SyntaxError(t *testing.T) {
	t.Parallel()

	_, err := cueutil.ParseAndDecode[testImage]([]byte(testSchema), []byte(`name: "unterminated`), "#Image",
		cueutil.WithFilename("broken.cue"))
	if err == nil {
		t.Fatal("expected syntax error")
	}
	if !strings.Contains(err.Error(), "broken.cue") {
		t.Errorf("error should name the file, got %q", err)
	}
}

func TestParseAndDecode_FileSize(t *testing.T) {
	t.Parallel()

	data := []byte(`name: "tools"` + "\n" + `url: "alpine"`)
	_, err := cueutil.ParseAndDecode[testImage]([]byte(testSchema), data, "#Image",
		cueutil.WithMaxFileSize(8))
	if err == nil || !strings.Contains(err.Error(), "exceeds maximum") {
		t.Errorf("expected size error, got %v", err)
	}
}

func TestParseAndDecode_UnknownDefinition(t *testing.T) {
	t.Parallel()

	_, err := cueutil.ParseAndDecode[testImage]([]byte(testSchema), []byte(`name: "x"`), "#Missing")
	if err == nil {
		t.Fatal("expected error for missing definition")
	}
	var verr *cueutil.ValidationError
	if errors.As(err, &verr) {
		t.Error("schema errors should not be reported as validation errors")
	}
}

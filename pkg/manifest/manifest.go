// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/distribution/reference"
	"github.com/pelletier/go-toml/v2"
	"github.com/samber/lo"

	"github.com/ctrprep/ctrprep/pkg/containerspec"
	"github.com/ctrprep/ctrprep/pkg/cueutil"
)

//go:embed manifest_schema.cue
var manifestSchema []byte

var (
	// ErrUnsupportedFormat is returned for files that are neither .cue nor .toml.
	ErrUnsupportedFormat = errors.New("unsupported manifest format")
	// ErrInvalidManifest is the sentinel wrapped by every validation failure.
	ErrInvalidManifest = errors.New("invalid manifest")
)

type (
	// Manifest is a parsed manifest file.
	Manifest struct {
		Images []Entry `json:"images" toml:"images"`

		// Path is the file the manifest was loaded from, if any.
		Path string `json:"-" toml:"-"`
	}

	// Entry declares one image. Exactly one of URL and Base is set.
	Entry struct {
		Name string `json:"name" toml:"name"`
		// URL is an image reference, optionally with the containers-storage: prefix.
		URL string `json:"url,omitempty" toml:"url,omitempty"`
		// Base is the name of another entry or an image reference.
		Base              string   `json:"base,omitempty" toml:"base,omitempty"`
		Containerfile     string   `json:"containerfile,omitempty" toml:"containerfile,omitempty"`
		ContainerfileFile string   `json:"containerfile_file,omitempty" toml:"containerfile_file,omitempty"`
		Format            string   `json:"format,omitempty" toml:"format,omitempty"`
		Tags              []string `json:"tags,omitempty" toml:"tags,omitempty"`
	}

	// EntryError reports a problem with one entry.
	EntryError struct {
		Entry string
		Field string
		Err   error
	}
)

// Error implements the error interface.
func (e *EntryError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("image %q: %v", e.Entry, e.Err)
	}
	return fmt.Sprintf("image %q: %s: %v", e.Entry, e.Field, e.Err)
}

// Unwrap returns ErrInvalidManifest and the underlying cause.
func (e *EntryError) Unwrap() []error { return []error{ErrInvalidManifest, e.Err} }

// Load reads and validates the manifest at path. The format is chosen by
// file extension.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := Parse(data, path)
	if err != nil {
		return nil, err
	}
	m.Path = path
	return m, nil
}

// Parse decodes and validates data. filename selects the format and names
// the document in errors.
func Parse(data []byte, filename string) (*Manifest, error) {
	var m Manifest
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".cue":
		res, err := cueutil.ParseAndDecode[Manifest](manifestSchema, data, "#Manifest",
			cueutil.WithFilename(filename))
		if err != nil {
			return nil, err
		}
		m = *res.Value
	case ".toml":
		if err := cueutil.CheckFileSize(data, cueutil.DefaultMaxFileSize, filename); err != nil {
			return nil, err
		}
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&m); err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
	default:
		return nil, fmt.Errorf("%w: %q (use .cue or .toml)", ErrUnsupportedFormat, ext)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return &m, nil
}

// Validate checks constraints across entries: unique names, exactly one of
// url and base, a single Containerfile source, known formats and well-formed
// tags. Image references are checked by Resolve.
func (m *Manifest) Validate() error {
	if dups := lo.FindDuplicatesBy(m.Images, func(e Entry) string { return e.Name }); len(dups) > 0 {
		return fmt.Errorf("%w: duplicate image names %q", ErrInvalidManifest,
			lo.Map(dups, func(e Entry, _ int) string { return e.Name }))
	}

	var errs []error
	for _, e := range m.Images {
		if err := e.validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Entry) validate() error {
	switch {
	case strings.TrimSpace(e.Name) == "":
		return &EntryError{Entry: e.Name, Field: "name", Err: errors.New("must not be empty")}
	case e.URL == "" && e.Base == "":
		return &EntryError{Entry: e.Name, Err: errors.New("one of url or base is required")}
	case e.URL != "" && e.Base != "":
		return &EntryError{Entry: e.Name, Err: errors.New("url and base are mutually exclusive")}
	case e.URL != "" && (e.Containerfile != "" || e.ContainerfileFile != "" || e.Format != "" || len(e.Tags) > 0):
		return &EntryError{Entry: e.Name, Err: errors.New("build settings only apply to entries with a base")}
	case e.Containerfile != "" && e.ContainerfileFile != "":
		return &EntryError{Entry: e.Name, Err: errors.New("containerfile and containerfile_file are mutually exclusive")}
	}
	if e.Format != "" {
		if _, err := containerspec.ParseImageFormat(e.Format); err != nil {
			return &EntryError{Entry: e.Name, Field: "format", Err: err}
		}
	}
	for _, tag := range e.Tags {
		if _, err := reference.ParseNormalizedNamed(tag); err != nil {
			return &EntryError{Entry: e.Name, Field: "tags", Err: fmt.Errorf("%q: %w", tag, err)}
		}
	}
	return nil
}

// Names returns the entry names in file order.
func (m *Manifest) Names() []string {
	return lo.Map(m.Images, func(e Entry, _ int) string { return e.Name })
}

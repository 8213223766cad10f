// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/distribution/reference"
	"github.com/samber/lo"

	"github.com/ctrprep/ctrprep/pkg/containerspec"
)

var (
	// ErrUnknownBase is returned when base is neither an entry name nor an
	// image reference.
	ErrUnknownBase = errors.New("unknown base")
	// ErrCycle is returned when entries derive from each other.
	ErrCycle = errors.New("base cycle")
	// ErrUnknownImage is returned by Select for a name not in the manifest.
	ErrUnknownImage = errors.New("unknown image")
)

type (
	// Resolved is a manifest entry turned into a container specification.
	Resolved struct {
		Name string
		Spec containerspec.Spec
	}

	// ResolveOption configures Resolve.
	ResolveOption func(*resolver)

	resolver struct {
		entries map[string]Entry
		baseDir string
		logger  *slog.Logger
		specs   map[string]containerspec.Spec
		visited map[string]bool
	}
)

// WithBaseDir sets the directory containerfile_file paths are relative to.
// Defaults to the manifest's directory, or the current directory.
func WithBaseDir(dir string) ResolveOption {
	return func(r *resolver) {
		r.baseDir = dir
	}
}

// WithLogger sets the logger that receives reference warnings.
func WithLogger(logger *slog.Logger) ResolveOption {
	return func(r *resolver) {
		r.logger = logger
	}
}

// Resolve builds a Spec for every entry, in file order.
//
// A base naming another entry derives from that entry's Spec. A base that is
// not an entry name must look like an image reference (contain '/', ':' or
// '@', or carry the local-storage prefix), otherwise it is ErrUnknownBase.
// Remote references must parse as image references; malformed local ones
// are only logged, since local storage accepts names registries do not.
func Resolve(m *Manifest, opts ...ResolveOption) ([]Resolved, error) {
	r := &resolver{
		entries: lo.KeyBy(m.Images, func(e Entry) string { return e.Name }),
		logger:  slog.Default(),
		specs:   make(map[string]containerspec.Spec, len(m.Images)),
		visited: make(map[string]bool, len(m.Images)),
	}
	if m.Path != "" {
		r.baseDir = filepath.Dir(m.Path)
	}
	for _, opt := range opts {
		opt(r)
	}

	out := make([]Resolved, 0, len(m.Images))
	for _, e := range m.Images {
		spec, err := r.resolve(e.Name, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, Resolved{Name: e.Name, Spec: spec})
	}
	return out, nil
}

// Select returns the entries with the given names, in the given order. No
// names selects everything.
func Select(all []Resolved, names ...string) ([]Resolved, error) {
	if len(names) == 0 {
		return all, nil
	}
	byName := lo.KeyBy(all, func(r Resolved) string { return r.Name })
	out := make([]Resolved, 0, len(names))
	for _, name := range lo.Uniq(names) {
		res, ok := byName[name]
		if !ok {
			available := lo.Keys(byName)
			slices.Sort(available)
			return nil, fmt.Errorf("%w %q (available: %s)", ErrUnknownImage, name, strings.Join(available, ", "))
		}
		out = append(out, res)
	}
	return out, nil
}

// resolve returns the Spec for entry name. path holds the chain of entries
// currently being resolved.
func (r *resolver) resolve(name string, path []string) (containerspec.Spec, error) {
	if spec, ok := r.specs[name]; ok {
		return spec, nil
	}
	if r.visited[name] {
		cycle := slices.Concat(path[lo.IndexOf(path, name):], []string{name})
		return nil, &EntryError{Entry: name, Field: "base", Err: fmt.Errorf("%w: %s", ErrCycle, strings.Join(cycle, " -> "))}
	}
	r.visited[name] = true
	path = append(path, name)

	e := r.entries[name]
	var (
		spec containerspec.Spec
		err  error
	)
	if e.URL != "" {
		if err := r.checkReference(e.Name, "url", e.URL); err != nil {
			return nil, err
		}
		spec, err = containerspec.NewDirectContainer(e.URL)
	} else {
		spec, err = r.derive(e, path)
	}
	if err != nil {
		var entryErr *EntryError
		if errors.As(err, &entryErr) {
			return nil, err
		}
		return nil, &EntryError{Entry: name, Err: err}
	}

	r.specs[name] = spec
	return spec, nil
}

func (r *resolver) derive(e Entry, path []string) (containerspec.Spec, error) {
	var base containerspec.Spec
	if _, ok := r.entries[e.Base]; ok {
		var err error
		if base, err = r.resolve(e.Base, path); err != nil {
			return nil, err
		}
	} else {
		if !looksLikeReference(e.Base) {
			return nil, &EntryError{Entry: e.Name, Field: "base",
				Err: fmt.Errorf("%w %q: not an image in this manifest", ErrUnknownBase, e.Base)}
		}
		if err := r.checkReference(e.Name, "base", e.Base); err != nil {
			return nil, err
		}
		var err error
		if base, err = containerspec.NewDirectContainer(e.Base); err != nil {
			return nil, err
		}
	}

	containerfile := e.Containerfile
	if e.ContainerfileFile != "" {
		path := e.ContainerfileFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(r.baseDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &EntryError{Entry: e.Name, Field: "containerfile_file", Err: err}
		}
		containerfile = string(data)
	}

	opts := []containerspec.DerivedOption{
		containerspec.WithContainerfile(containerfile),
		containerspec.WithTags(e.Tags...),
	}
	if e.Format != "" {
		format, err := containerspec.ParseImageFormat(e.Format)
		if err != nil {
			return nil, err
		}
		opts = append(opts, containerspec.WithFormat(format))
	}
	return containerspec.NewDerivedContainer(base, opts...)
}

func (r *resolver) checkReference(entry, field, url string) error {
	name, local := strings.CutPrefix(url, containerspec.LocalStoragePrefix)
	if _, err := reference.ParseNormalizedNamed(name); err != nil {
		if local {
			r.logger.Warn("local image name is not a valid reference", "image", entry, field, url, "error", err)
			return nil
		}
		return &EntryError{Entry: entry, Field: field, Err: fmt.Errorf("%q: %w", url, err)}
	}
	return nil
}

func looksLikeReference(s string) bool {
	return strings.HasPrefix(s, containerspec.LocalStoragePrefix) || strings.ContainsAny(s, "/:@")
}

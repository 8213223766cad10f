// SPDX-License-Identifier: MPL-2.0

package containerspec

import (
	"fmt"
	"slices"
	"strings"
)

// LocalStoragePrefix marks an image url that already exists in the runtime's
// local storage and must never be pulled.
const LocalStoragePrefix = "containers-storage:"

type (
	// Spec is the declarative description of a container image. It is
	// implemented only by *DirectContainer and *DerivedContainer.
	Spec interface {
		// URL returns the image reference of the root image with the
		// local-storage prefix stripped.
		URL() string
		// RawURL returns the root image reference exactly as given.
		RawURL() string
		// LocalImage reports whether the root image lives in local storage.
		LocalImage() bool
		// LockIdentity returns the fingerprint computed at construction.
		LockIdentity() string
		// String returns a short human-readable description.
		String() string

		sealed()
	}

	// DirectContainer is an existing image, either pullable or already local.
	DirectContainer struct {
		rawURL      string
		url         string
		local       bool
		fingerprint string
	}

	// DerivedContainer is an image built from a base Spec and Containerfile
	// instructions. An empty Containerfile only re-tags the base.
	DerivedContainer struct {
		base          Spec
		containerfile string
		format        ImageFormat
		tags          []string
		fingerprint   string
	}

	// DerivedOption configures a DerivedContainer at construction.
	DerivedOption func(*DerivedContainer)
)

// NewDirectContainer returns a DirectContainer for url. A url starting with
// LocalStoragePrefix is treated as already present in local storage.
func NewDirectContainer(url string) (*DirectContainer, error) {
	if strings.TrimSpace(url) == "" {
		return nil, &ValidationError{Field: "url", Message: msgMissingURL}
	}

	c := &DirectContainer{rawURL: url, url: url}
	if name, ok := strings.CutPrefix(url, LocalStoragePrefix); ok {
		if strings.TrimSpace(name) == "" {
			return nil, &ValidationError{
				Field:   "url",
				Message: fmt.Sprintf("local image url %q has no image name after the %s prefix", url, LocalStoragePrefix),
			}
		}
		c.url = name
		c.local = true
	}
	c.fingerprint = Fingerprint(c)
	return c, nil
}

// WithContainerfile sets the build instructions appended after the FROM line.
func WithContainerfile(containerfile string) DerivedOption {
	return func(c *DerivedContainer) {
		c.containerfile = containerfile
	}
}

// WithFormat sets the manifest format of the built image. Defaults to FormatOCIv1.
func WithFormat(format ImageFormat) DerivedOption {
	return func(c *DerivedContainer) {
		c.format = format
	}
}

// WithTags adds extra tags to the built image. Tags do not affect the lock identity.
func WithTags(tags ...string) DerivedOption {
	return func(c *DerivedContainer) {
		c.tags = append(c.tags, tags...)
	}
}

// NewDerivedContainer returns a DerivedContainer built on top of base.
func NewDerivedContainer(base Spec, opts ...DerivedOption) (*DerivedContainer, error) {
	if isNilSpec(base) {
		return nil, &ValidationError{Field: "base", Message: msgMissingBase}
	}

	c := &DerivedContainer{base: base, format: FormatOCIv1}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.format.Validate(); err != nil {
		return nil, &ValidationError{Field: "format", Message: err.Error(), Cause: err}
	}
	for _, tag := range c.tags {
		if strings.TrimSpace(tag) == "" {
			return nil, &ValidationError{Field: "tags", Message: "image tags must not be empty"}
		}
	}

	c.fingerprint = Fingerprint(c)
	return c, nil
}

// NewDerivedContainerFromURL wraps baseURL in a DirectContainer and derives from it.
// An empty baseURL is reported as a missing base.
func NewDerivedContainerFromURL(baseURL string, opts ...DerivedOption) (*DerivedContainer, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, &ValidationError{Field: "base", Message: msgMissingBase}
	}
	base, err := NewDirectContainer(baseURL)
	if err != nil {
		return nil, err
	}
	return NewDerivedContainer(base, opts...)
}

// URL returns the image reference without the local storage prefix.
func (c *DirectContainer) URL() string { return c.url }

// RawURL returns the url as given, including any local storage prefix.
func (c *DirectContainer) RawURL() string { return c.rawURL }

// LocalImage reports whether the url carries the local storage prefix.
func (c *DirectContainer) LocalImage() bool { return c.local }

// LockIdentity returns the fingerprint computed at construction.
func (c *DirectContainer) LockIdentity() string { return c.fingerprint }

// String returns the raw url.
func (c *DirectContainer) String() string { return c.rawURL }

func (*DirectContainer) sealed() {}

// Base returns the immediate base this container is derived from.
func (c *DerivedContainer) Base() Spec { return c.base }

// Containerfile returns the build instructions.
func (c *DerivedContainer) Containerfile() string { return c.containerfile }

// Format returns the manifest format of the built image.
func (c *DerivedContainer) Format() ImageFormat { return c.format }

// Tags returns a copy of the extra tags.
func (c *DerivedContainer) Tags() []string { return slices.Clone(c.tags) }

// URL returns the url of the root image.
func (c *DerivedContainer) URL() string { return Root(c).URL() }

// RawURL returns the raw url of the root image.
func (c *DerivedContainer) RawURL() string { return Root(c).RawURL() }

// LocalImage reports whether the root image comes from local storage.
func (c *DerivedContainer) LocalImage() bool { return Root(c).LocalImage() }

// LockIdentity returns the fingerprint computed at construction.
func (c *DerivedContainer) LockIdentity() string { return c.fingerprint }

func (*DerivedContainer) sealed() {}

// String returns the root url followed by the short fingerprint.
func (c *DerivedContainer) String() string {
	return fmt.Sprintf("%s+%s", Root(c).RawURL(), shortID(c.fingerprint))
}

// Root follows the base chain of s down to its DirectContainer.
func Root(s Spec) *DirectContainer {
	for {
		switch v := s.(type) {
		case *DirectContainer:
			return v
		case *DerivedContainer:
			s = v.base
		default:
			panic(fmt.Sprintf("containerspec: unknown Spec type %T", s))
		}
	}
}

// Chain returns the derived levels of s ordered from the root outwards.
// It is empty for a DirectContainer.
func Chain(s Spec) []*DerivedContainer {
	var levels []*DerivedContainer
	for {
		d, ok := s.(*DerivedContainer)
		if !ok {
			break
		}
		levels = append(levels, d)
		s = d.base
	}
	slices.Reverse(levels)
	return levels
}

// Equal reports whether a and b describe the same container structurally.
func Equal(a, b Spec) bool {
	switch av := a.(type) {
	case *DirectContainer:
		bv, ok := b.(*DirectContainer)
		return ok && av.rawURL == bv.rawURL
	case *DerivedContainer:
		bv, ok := b.(*DerivedContainer)
		return ok &&
			av.containerfile == bv.containerfile &&
			av.format == bv.format &&
			slices.Equal(av.tags, bv.tags) &&
			Equal(av.base, bv.base)
	default:
		return false
	}
}

func isNilSpec(s Spec) bool {
	switch v := s.(type) {
	case nil:
		return true
	case *DirectContainer:
		return v == nil
	case *DerivedContainer:
		return v == nil
	default:
		return false
	}
}

func shortID(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

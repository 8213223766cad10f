// SPDX-License-Identifier: MPL-2.0

package containerspec

import (
	"errors"
	"fmt"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

const (
	// FormatDocker builds images with the Docker v2 schema 2 manifest format.
	FormatDocker ImageFormat = "docker"
	// FormatOCIv1 builds images with the OCI image manifest format.
	FormatOCIv1 ImageFormat = "oci"

	// MediaTypeDockerManifest is the media type of a Docker v2 schema 2 manifest.
	MediaTypeDockerManifest = "application/vnd.docker.distribution.manifest.v2+json"
)

// ErrInvalidImageFormat is the sentinel error wrapped by InvalidImageFormatError.
var ErrInvalidImageFormat = errors.New("invalid image format")

type (
	// ImageFormat is the manifest format a derived image is built with.
	// The String form is the token passed to the runtime's --format flag.
	ImageFormat string

	// InvalidImageFormatError is returned when an ImageFormat is not one of the
	// supported formats.
	InvalidImageFormatError struct {
		Value ImageFormat
	}
)

// String returns the canonical runtime-facing token ("docker" or "oci").
func (f ImageFormat) String() string { return string(f) }

// Validate returns an error if the format is not FormatDocker or FormatOCIv1.
func (f ImageFormat) Validate() error {
	switch f {
	case FormatDocker, FormatOCIv1:
		return nil
	default:
		return &InvalidImageFormatError{Value: f}
	}
}

// MediaType returns the manifest media type that images of this format carry.
func (f ImageFormat) MediaType() string {
	switch f {
	case FormatDocker:
		return MediaTypeDockerManifest
	case FormatOCIv1:
		return ocispec.MediaTypeImageManifest
	default:
		return ""
	}
}

// ParseImageFormat parses a format token or a manifest media type.
func ParseImageFormat(s string) (ImageFormat, error) {
	switch s {
	case string(FormatDocker), MediaTypeDockerManifest:
		return FormatDocker, nil
	case string(FormatOCIv1), "ociv1", ocispec.MediaTypeImageManifest:
		return FormatOCIv1, nil
	default:
		return "", &InvalidImageFormatError{Value: ImageFormat(s)}
	}
}

// Error implements the error interface.
func (e *InvalidImageFormatError) Error() string {
	return fmt.Sprintf("invalid image format %q (valid: %s, %s)", e.Value, FormatDocker, FormatOCIv1)
}

// Unwrap returns ErrInvalidImageFormat for errors.Is() compatibility.
func (e *InvalidImageFormatError) Unwrap() error { return ErrInvalidImageFormat }

// SPDX-License-Identifier: MPL-2.0

package prepare

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	containerfileName = "Containerfile"
	iidFileName       = "image-id"

	// TagRepository is the repository every derived image is tagged into.
	TagRepository = "localhost/ctrprep"
)

// buildDir is the scratch directory of one build. It never lives inside the
// build context.
type buildDir struct {
	path string
}

// ImageTag returns the tag a derived image with fingerprint is built under.
// The whole fingerprint is used, so distinct specifications never share a tag.
func ImageTag(fingerprint string) string {
	return TagRepository + ":" + fingerprint
}

// renderContainerfile prefixes the user's instructions with the FROM line.
func renderContainerfile(baseRef, instructions string) string {
	var b strings.Builder
	b.WriteString("FROM ")
	b.WriteString(baseRef)
	b.WriteString("\n")
	b.WriteString(instructions)
	if instructions != "" && !strings.HasSuffix(instructions, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}

// newBuildDir creates a fresh scratch directory for fingerprint below parent
// (the system temporary directory when empty) and writes the Containerfile
// into it.
func newBuildDir(parent, fingerprint, containerfile string) (*buildDir, error) {
	short := fingerprint
	if len(short) > 12 {
		short = short[:12]
	}
	path, err := os.MkdirTemp(parent, "ctrprep-"+short+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create build directory: %w", err)
	}

	d := &buildDir{path: path}
	if err := os.WriteFile(d.containerfile(), []byte(containerfile), 0o644); err != nil {
		d.remove()
		return nil, fmt.Errorf("failed to write Containerfile: %w", err)
	}
	return d, nil
}

func (d *buildDir) containerfile() string { return filepath.Join(d.path, containerfileName) }

func (d *buildDir) iidFile() string { return filepath.Join(d.path, iidFileName) }

func (d *buildDir) remove() {
	_ = os.RemoveAll(d.path) // best-effort; the directory is unique to this build
}

// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ctrprep/ctrprep/pkg/containerspec"
	"github.com/ctrprep/ctrprep/pkg/manifest"
)

// specFlags describes one image on the command line, or selects entries
// from a manifest file.
type specFlags struct {
	url               string
	base              string
	containerfile     string
	containerfileFile string
	format            string
	tags              []string
	manifest          string
}

func (f *specFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.url, "url", "", "image to pull (prefix with "+containerspec.LocalStoragePrefix+" for a local image)")
	fs.StringVar(&f.base, "base", "", "base image to build on")
	fs.StringVar(&f.containerfile, "containerfile", "", "instructions appended after FROM <base>")
	fs.StringVar(&f.containerfileFile, "containerfile-file", "", "read the instructions from a file")
	fs.StringVar(&f.format, "format", string(containerspec.FormatOCIv1), "manifest format of built images: oci or docker")
	fs.StringArrayVar(&f.tags, "tag", nil, "extra tag for the built image (repeatable)")
	fs.StringVarP(&f.manifest, "file", "f", "", "manifest file (.cue or .toml) listing images")

	cmd.MarkFlagsMutuallyExclusive("url", "base", "file")
	cmd.MarkFlagsOneRequired("url", "base", "file")
	cmd.MarkFlagsMutuallyExclusive("containerfile", "containerfile-file")
}

// resolve returns the selected images. names select manifest entries and
// are only valid with --file.
func (f *specFlags) resolve(cmd *cobra.Command, app *App, names []string) ([]manifest.Resolved, error) {
	if f.manifest != "" {
		m, err := manifest.Load(f.manifest)
		if err != nil {
			return nil, err
		}
		all, err := manifest.Resolve(m, manifest.WithLogger(app.logger))
		if err != nil {
			return nil, err
		}
		return manifest.Select(all, names...)
	}

	if len(names) > 0 {
		return nil, usageError("image names %q require --file", names)
	}
	for _, name := range []string{"containerfile", "containerfile-file", "format", "tag"} {
		if f.url != "" && cmd.Flags().Changed(name) {
			return nil, usageError("--%s requires --base", name)
		}
	}

	spec, err := f.spec()
	if err != nil {
		return nil, err
	}
	return []manifest.Resolved{{Name: spec.String(), Spec: spec}}, nil
}

func (f *specFlags) spec() (containerspec.Spec, error) {
	if f.url != "" {
		return containerspec.NewDirectContainer(f.url)
	}

	format, err := containerspec.ParseImageFormat(f.format)
	if err != nil {
		return nil, usageError("--format: %w", err)
	}
	containerfile := f.containerfile
	if f.containerfileFile != "" {
		data, err := os.ReadFile(f.containerfileFile)
		if err != nil {
			return nil, usageError("--containerfile-file: %w", err)
		}
		containerfile = string(data)
	}
	spec, err := containerspec.NewDerivedContainerFromURL(f.base,
		containerspec.WithContainerfile(containerfile),
		containerspec.WithFormat(format),
		containerspec.WithTags(f.tags...),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid image: %w", err)
	}
	return spec, nil
}

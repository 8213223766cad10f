// SPDX-License-Identifier: MPL-2.0

package config

import "context"

type (
	// LoadOptions selects where configuration is read from.
	LoadOptions struct {
		// ConfigFilePath forces a specific file, which must exist.
		ConfigFilePath string
		// ConfigDirPath replaces ConfigDir in the default lookup.
		ConfigDirPath string
	}

	// Provider loads configuration.
	Provider interface {
		Load(ctx context.Context, opts LoadOptions) (*Config, error)
	}

	fileProvider struct{}

	// StaticProvider returns a fixed configuration.
	StaticProvider struct {
		Config *Config
	}
)

// NewProvider returns a Provider reading files and the environment.
func NewProvider() Provider {
	return &fileProvider{}
}

func (p *fileProvider) Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	cfg, _, err := loadWithOptions(ctx, opts)
	return cfg, err
}

// Load returns a copy of the configured value, or defaults when it is nil.
func (p StaticProvider) Load(context.Context, LoadOptions) (*Config, error) {
	if p.Config == nil {
		return DefaultConfig(), nil
	}
	cfg := *p.Config
	return &cfg, nil
}

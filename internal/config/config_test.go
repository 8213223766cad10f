// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/ctrprep/ctrprep/internal/issue"
	"github.com/ctrprep/ctrprep/pkg/cueutil"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ConfigFileName+"."+ConfigFileExt)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if cfg.ContainerEngine != ContainerEnginePodman {
		t.Errorf("ContainerEngine = %q, want podman", cfg.ContainerEngine)
	}
	if cfg.LockTimeout != DefaultLockTimeout {
		t.Errorf("LockTimeout = %s, want %s", cfg.LockTimeout, DefaultLockTimeout)
	}
	if cfg.CommandTimeout != 0 {
		t.Errorf("CommandTimeout = %s, want 0", cfg.CommandTimeout)
	}
	if cfg.Parallel != DefaultParallel {
		t.Errorf("Parallel = %d, want %d", cfg.Parallel, DefaultParallel)
	}
	if cfg.ReuseExisting {
		t.Error("ReuseExisting should default to false")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_ExplicitFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, t.TempDir(), `
container_engine: "docker"
engine_command:   "sudo -n"
lock_dir:         "/var/tmp/ctrprep-locks"
lock_timeout:     "90s"
command_timeout:  "1h30m"
reuse_existing:   true
parallel:         2
`)

	cfg, resolved, err := Load(context.Background(), LoadOptions{ConfigFilePath: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if resolved != path {
		t.Errorf("resolved path = %q, want %q", resolved, path)
	}

	want := Config{
		ContainerEngine: ContainerEngineDocker,
		EngineCommand:   "sudo -n",
		LockDir:         "/var/tmp/ctrprep-locks",
		LockTimeout:     90 * time.Second,
		CommandTimeout:  90 * time.Minute,
		ReuseExisting:   true,
		LogLevel:        LogLevelInfo,
		Parallel:        2,
	}
	if *cfg != want {
		t.Errorf("Load() = %+v\nwant %+v", *cfg, want)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, _, err := Load(context.Background(), LoadOptions{
		ConfigFilePath: filepath.Join(t.TempDir(), "nope.cue"),
	})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	var ae *issue.ActionableError
	if !errors.As(err, &ae) {
		t.Fatalf("error %T should be *issue.ActionableError", err)
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %q", err)
	}
}

func TestLoad_SchemaViolations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		field   string
	}{
		{"unknown engine", `container_engine: "containerd"`, "container_engine"},
		{"bad duration", `lock_timeout: "ten minutes"`, "lock_timeout"},
		{"parallel out of range", `parallel: 0`, "parallel"},
		{"unknown key", `lock_directory: "/tmp"`, "lock_directory"},
		{"bad log level", `log_level: "trace"`, "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := writeConfig(t, t.TempDir(), tt.content)
			_, _, err := Load(context.Background(), LoadOptions{ConfigFilePath: path})
			if err == nil {
				t.Fatal("expected validation error")
			}
			var verr *cueutil.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error %T should wrap *cueutil.ValidationError: %v", err, err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error should name %q, got %q", tt.field, err)
			}
		})
	}
}

func TestLoad_ConfigDirLookup(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeConfig(t, dir, `log_level: "debug"`)

	cfg, resolved, err := Load(context.Background(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if resolved != path {
		t.Errorf("resolved = %q, want %q", resolved, path)
	}
	if cfg.LogLevel != LogLevelDebug {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.ContainerEngine != ContainerEnginePodman {
		t.Errorf("unset keys should keep defaults, got engine %q", cfg.ContainerEngine)
	}
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, resolved, err := Load(context.Background(), LoadOptions{ConfigDirPath: t.TempDir()})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if resolved != "" {
		t.Errorf("resolved = %q, want empty", resolved)
	}
	if *cfg != *DefaultConfig() {
		t.Errorf("Load() = %+v, want defaults", *cfg)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
parallel:     2
lock_timeout: "1m"
`)
	t.Setenv("CTRPREP_PARALLEL", "8")
	t.Setenv("CTRPREP_REUSE_EXISTING", "true")
	t.Setenv("CTRPREP_COMMAND_TIMEOUT", "45s")

	cfg, _, err := Load(context.Background(), LoadOptions{ConfigFilePath: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Parallel != 8 {
		t.Errorf("Parallel = %d, env should win over file", cfg.Parallel)
	}
	if !cfg.ReuseExisting {
		t.Error("ReuseExisting should come from the environment")
	}
	if cfg.CommandTimeout != 45*time.Second {
		t.Errorf("CommandTimeout = %s, want 45s", cfg.CommandTimeout)
	}
	if cfg.LockTimeout != time.Minute {
		t.Errorf("LockTimeout = %s, file value should apply", cfg.LockTimeout)
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("CTRPREP_CONTAINER_ENGINE", "lxc")

	_, _, err := Load(context.Background(), LoadOptions{ConfigDirPath: t.TempDir()})
	if !errors.Is(err, ErrInvalidContainerEngine) {
		t.Errorf("Load() error = %v, want ErrInvalidContainerEngine", err)
	}
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Load() error = %v, want ErrInvalidConfig", err)
	}
}

func TestLoad_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := Load(ctx, LoadOptions{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Load() error = %v, want context.Canceled", err)
	}
}

func TestGenerateCUE_LoadsBack(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		ContainerEngine: ContainerEngineDocker,
		EngineCommand:   "sudo",
		LockDir:         "/tmp/locks",
		LockTimeout:     5 * time.Minute,
		CommandTimeout:  0,
		ReuseExisting:   true,
		WorkDir:         "/src",
		LogLevel:        LogLevelWarn,
		Parallel:        3,
	}

	path := writeConfig(t, t.TempDir(), GenerateCUE(cfg))
	got, _, err := Load(context.Background(), LoadOptions{ConfigFilePath: path})
	if err != nil {
		t.Fatalf("Load(GenerateCUE()): %v", err)
	}
	if *got != *cfg {
		t.Errorf("loaded %+v\nwant   %+v", *got, *cfg)
	}
}

func TestConfigDir_XDG(t *testing.T) {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		t.Skip("XDG_CONFIG_HOME only applies on linux and other unix systems")
	}
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	dir, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir: %v", err)
	}
	if want := filepath.Join(xdg, AppName); dir != want {
		t.Errorf("ConfigDir() = %q, want %q", dir, want)
	}
}

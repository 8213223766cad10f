// SPDX-License-Identifier: MPL-2.0

package container

import (
	"os"
	"os/exec"
	"sync"
)

const (
	// SandboxNone means the process runs directly on the host.
	SandboxNone SandboxType = ""
	// SandboxFlatpak is a Flatpak application sandbox.
	SandboxFlatpak SandboxType = "flatpak"
	// SandboxSnap is a Snap confinement.
	SandboxSnap SandboxType = "snap"

	flatpakInfoPath = "/.flatpak-info"
)

// SandboxType identifies the application sandbox the process runs in.
type SandboxType string

// detectedSandbox never changes for the life of the process.
var detectedSandbox = sync.OnceValue(func() SandboxType {
	return detectSandbox(os.Getenv, func(path string) error {
		_, err := os.Stat(path)
		return err
	})
})

// DetectSandbox reports the sandbox of the current process.
func DetectSandbox() SandboxType {
	return detectedSandbox()
}

// detectSandbox must not panic: sync.OnceValue would repeat the panic on every call.
func detectSandbox(getenv func(string) string, stat func(string) error) SandboxType {
	if stat(flatpakInfoPath) == nil {
		return SandboxFlatpak
	}
	if getenv("SNAP_NAME") != "" {
		return SandboxSnap
	}
	return SandboxNone
}

// HostSpawnPrefix returns the wrapper that runs a command on the host from
// inside st, or nil when st is SandboxNone.
func HostSpawnPrefix(st SandboxType) []string {
	switch st {
	case SandboxFlatpak:
		return []string{"flatpak-spawn", "--host"}
	case SandboxSnap:
		return []string{"snap", "run", "--shell"}
	default:
		return nil
	}
}

// WithHostSpawn runs engine commands on the host when the process is
// sandboxed. It is a no-op outside a sandbox and is overridden by a later
// WithCommandPrefix.
func WithHostSpawn() BaseCLIEngineOption {
	return withSandbox(DetectSandbox())
}

func withSandbox(st SandboxType) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		if prefix := HostSpawnPrefix(st); prefix != nil {
			e.prefix = prefix
			e.hostSpawn = true
		}
	}
}

// lookupBinary resolves name on PATH. Host-spawned engines are not visible
// inside the sandbox, so the bare name is used for them.
func lookupBinary(name string, opts []BaseCLIEngineOption) string {
	probe := &BaseCLIEngine{}
	for _, opt := range opts {
		opt(probe)
	}
	if probe.hostSpawn {
		return name
	}
	path, _ := exec.LookPath(name)
	return path
}

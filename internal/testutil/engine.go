// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"testing"

	"github.com/testcontainers/testcontainers-go"

	"github.com/ctrprep/ctrprep/internal/container"
)

// ContainerEngine returns an available container engine or skips the test.
// Integration tests are also skipped in -short mode.
func ContainerEngine(t testing.TB) container.Engine {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container integration test in short mode")
	}

	engine, err := container.AutoDetectEngine()
	if err != nil {
		t.Skipf("skipping container integration test: %v", err)
	}

	if !testcontainersAvailable() {
		t.Skip("skipping container integration test: testcontainers provider not available")
	}
	return engine
}

// testcontainersAvailable reports whether testcontainers can reach a container
// daemon. Provider detection can panic on broken setups.
func testcontainersAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		return false
	}
	defer provider.Close()
	return true
}

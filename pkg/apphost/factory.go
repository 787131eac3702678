package apphost

import (
	"context"
	"fmt"
	"path/filepath"

	"golang.org/x/sync/semaphore"

	"github.com/ecomter/estarter/pkg/apiproto"
	"github.com/ecomter/estarter/pkg/kernel"
	"github.com/ecomter/estarter/pkg/manifest"
	"github.com/ecomter/estarter/pkg/permset"
)

// maxConcurrentStarts bounds how many app hosts may be in their
// Start() call at once, independent of any single app's own
// SandboxPolicy.MaxProcesses — a burst of launches should not be able
// to fork-bomb the host machine while each host is mid-Starting.
const maxConcurrentStarts = 8

var startGate = semaphore.NewWeighted(maxConcurrentStarts)

// Kernel is the subset of *kernel.Kernel the host variants need: enough
// to register/unregister the launched app and route its API calls.
type Kernel interface {
	RegisterProcess(appID string, osPid int, version string, requested permset.Permission) kernel.ProcessInfo
	UnregisterProcess(appID string)
	HandleAPI(callerAppID string, req apiproto.Request) apiproto.Response
}

// LaunchSpec bundles everything a variant needs to start one app.
type LaunchSpec struct {
	Manifest   manifest.Manifest
	Policy     SandboxPolicy
	InstallDir string // <AppsRoot>/<id>, holds the entry file and manifest.json
	Kernel     Kernel
}

// Launcher constructs and starts a Host for one runtime. Registered by
// each variant package (process, wasm) via RegisterLauncher, avoiding
// an import cycle between apphost and its own variant subpackages.
type Launcher func(spec LaunchSpec) (Host, error)

var launchers = map[manifest.Runtime]Launcher{}

// RegisterLauncher installs the constructor for runtime. Called from
// variant package init()s.
func RegisterLauncher(runtime manifest.Runtime, l Launcher) {
	launchers[runtime] = l
}

// ErrNotSupported is returned by Launch for a runtime with no
// registered launcher (spec.md §4.4.3 "NotSupported for
// unknown/unimplemented runtimes").
var ErrNotSupported = fmt.Errorf("apphost: runtime not supported")

// Launch selects the host variant from spec.Manifest.Runtime and starts
// it.
func Launch(spec LaunchSpec) (Host, error) {
	launcher, ok := launchers[spec.Manifest.Runtime]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotSupported, spec.Manifest.Runtime)
	}
	host, err := launcher(spec)
	if err != nil {
		return nil, fmt.Errorf("launching %s (%s): %w", spec.Manifest.ID, spec.Manifest.Runtime, err)
	}

	if err := startGate.Acquire(context.Background(), 1); err != nil {
		return nil, fmt.Errorf("starting %s: acquiring start slot: %w", spec.Manifest.ID, err)
	}
	defer startGate.Release(1)

	if err := host.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", spec.Manifest.ID, err)
	}
	return host, nil
}

// EntryPath resolves the absolute entry path for spec (spec.md §4.4.3
// "Resolves the entry path (entry field, falling back to a legacy
// exePath)").
func (s LaunchSpec) EntryPath() string {
	return filepath.Join(s.InstallDir, s.Manifest.EntryPath())
}

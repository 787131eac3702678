// Package wasm implements the embedded Wasm Host app host variant: it
// loads a WebAssembly module under wazero, exposes the two
// estarter_* host imports, and runs the guest's _start export on a
// background worker.
package wasm

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/ecomter/estarter/pkg/apiproto"
	"github.com/ecomter/estarter/pkg/apphost"
	"github.com/ecomter/estarter/pkg/log"
	"github.com/ecomter/estarter/pkg/manifest"
	"github.com/ecomter/estarter/pkg/permset"
)

func init() {
	apphost.RegisterLauncher(manifest.RuntimeWasm, Launch)
}

const wasmPageSize = 64 * 1024

// Host is the embedded Wasm Host.
type Host struct {
	*apphost.Lifecycle

	appID       string
	entryPath   string
	policy      apphost.SandboxPolicy
	permissions permset.Permission
	kernel      apphost.Kernel

	runCtx context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	runtime wazero.Runtime
	mod     api.Module
}

// Launch constructs and (via apphost.Launch) starts a Wasm Host for
// spec.
func Launch(spec apphost.LaunchSpec) (apphost.Host, error) {
	h := &Host{
		appID:       spec.Manifest.ID,
		entryPath:   spec.EntryPath(),
		policy:      spec.Policy,
		permissions: spec.Manifest.ResolvedPermissions(),
		kernel:      spec.Kernel,
	}
	h.Lifecycle = apphost.NewLifecycle(h.appID, h.gracefulStop)
	return h, nil
}

// Start implements apphost.Host.
func (h *Host) Start() error {
	if err := h.Lifecycle.Transition(apphost.Starting, apphost.Created); err != nil {
		return err
	}

	wasmBytes, err := os.ReadFile(h.entryPath)
	if err != nil {
		h.Lifecycle.Transition(apphost.Faulted)
		return fmt.Errorf("wasm host %s: reading module %q: %w", h.appID, h.entryPath, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	h.runCtx = runCtx
	h.cancel = cancel

	config := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if h.policy.MemoryLimitBytes > 0 {
		pages := uint32(h.policy.MemoryLimitBytes/wasmPageSize) + 1
		config = config.WithMemoryLimitPages(pages)
	}
	runtime := wazero.NewRuntimeWithConfig(runCtx, config)
	h.runtime = runtime

	if _, err := wasi_snapshot_preview1.Instantiate(runCtx, runtime); err != nil {
		h.fault(fmt.Errorf("instantiating WASI: %w", err))
		return err
	}
	if err := h.defineHostImports(runCtx); err != nil {
		h.fault(err)
		return err
	}

	compiled, err := runtime.CompileModule(runCtx, wasmBytes)
	if err != nil {
		h.fault(fmt.Errorf("compiling module: %w", err))
		return err
	}

	moduleConfig := wazero.NewModuleConfig().
		WithName(h.appID).
		WithStderr(os.Stderr).
		WithStartFunctions() // suppress wazero's implicit _start call; we call it explicitly below

	mod, err := runtime.InstantiateModule(runCtx, compiled, moduleConfig)
	if err != nil {
		h.fault(fmt.Errorf("instantiating module: %w", err))
		return err
	}
	h.mu.Lock()
	h.mod = mod
	h.mu.Unlock()

	if err := h.Lifecycle.Transition(apphost.Running, apphost.Starting); err != nil {
		return err
	}
	h.kernel.RegisterProcess(h.appID, 0, "", h.permissions)

	go h.runGuest()
	if h.policy.MaxRuntime > 0 {
		time.AfterFunc(h.policy.MaxRuntime, func() {
			log.Infof("wasm host %s: maxRuntime elapsed, stopping", h.appID)
			h.Stop()
		})
	}
	return nil
}

func (h *Host) fault(err error) {
	log.Errorf("wasm host %s: %v", h.appID, err)
	h.Lifecycle.Transition(apphost.Faulted)
	if h.runtime != nil {
		h.runtime.Close(context.Background())
	}
}

// runGuest calls _start on a dedicated worker (the guest runtime is
// single-threaded, spec.md §5) and delivers the single Exited event.
func (h *Host) runGuest() {
	h.mu.Lock()
	mod := h.mod
	h.mu.Unlock()

	start := mod.ExportedFunction("_start")
	if start == nil {
		h.kernel.UnregisterProcess(h.appID)
		h.Lifecycle.MarkExited(apphost.ExitInfo{AppID: h.appID, Exception: "module has no _start export"})
		return
	}

	_, err := start.Call(h.runCtx)
	h.kernel.UnregisterProcess(h.appID)
	if err != nil {
		h.Lifecycle.MarkExited(apphost.ExitInfo{AppID: h.appID, ExitCode: 1, Exception: err.Error()})
		return
	}
	h.Lifecycle.MarkExited(apphost.ExitInfo{AppID: h.appID, ExitCode: 0})
}

// gracefulStop implements max-runtime/stop cancellation via wazero's
// context-cancellation hook (WithCloseOnContextDone), the cooperative
// signal spec.md §4.4.2 asks for absent fuel-based interruption.
func (h *Host) gracefulStop() error {
	if h.cancel != nil {
		h.cancel()
	}
	h.mu.Lock()
	runtime := h.runtime
	h.mu.Unlock()
	if runtime == nil {
		return nil
	}
	return runtime.Close(context.Background())
}

// defineHostImports wires env.estarter_log and env.estarter_api_call.
func (h *Host) defineHostImports(ctx context.Context) error {
	_, err := h.runtime.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithFunc(h.estarterLog).
		Export("estarter_log").
		NewFunctionBuilder().
		WithFunc(h.estarterAPICall).
		Export("estarter_api_call").
		Instantiate(ctx)
	return err
}

func (h *Host) estarterLog(_ context.Context, mod api.Module, ptr, length uint32) {
	buf, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return
	}
	log.Infof("app %s: %s", h.appID, string(buf))
}

// estarterAPICall implements the narrow status-code-only ABI (spec.md
// §4.4.2 step 5 and §9): the guest never observes the full
// ApiResponse body, only its numeric status.
func (h *Host) estarterAPICall(_ context.Context, mod api.Module, cmdPtr, cmdLen, dataPtr, dataLen uint32) uint32 {
	cmdBytes, ok := mod.Memory().Read(cmdPtr, cmdLen)
	if !ok {
		return uint32(apiproto.InvalidRequest)
	}
	cmd, known := commandByName[string(cmdBytes)]
	if !known {
		return uint32(apiproto.NotSupported)
	}

	var data []byte
	if dataLen > 0 {
		data, ok = mod.Memory().Read(dataPtr, dataLen)
		if !ok {
			return uint32(apiproto.InvalidRequest)
		}
	}

	resp := h.kernel.HandleAPI(h.appID, apiproto.Request{Command: cmd, Data: data})
	return uint32(resp.Status)
}

var commandByName = map[string]apiproto.Command{
	"ping":              apiproto.CmdPing,
	"getTime":           apiproto.CmdGetTime,
	"getSystemInfo":     apiproto.CmdGetSystemInfo,
	"getProcessList":    apiproto.CmdGetProcessList,
	"checkPermission":   apiproto.CmdCheckPermission,
	"getPermissions":    apiproto.CmdGetPermissions,
	"requestPermission": apiproto.CmdRequestPermission,
	"readFile":          apiproto.CmdReadFile,
	"readText":          apiproto.CmdReadText,
	"writeFile":         apiproto.CmdWriteFile,
	"writeText":         apiproto.CmdWriteText,
	"deleteFile":        apiproto.CmdDeleteFile,
	"fileExists":        apiproto.CmdFileExists,
	"getFileInfo":       apiproto.CmdGetFileInfo,
	"createDirectory":   apiproto.CmdCreateDirectory,
	"listDirectory":     apiproto.CmdListDirectory,
	"deleteDirectory":   apiproto.CmdDeleteDirectory,
	"notify":            apiproto.CmdNotify,
}

// Dispose implements apphost.Host. Idempotent via the embedded
// Lifecycle.
func (h *Host) Dispose() error {
	return h.Lifecycle.Dispose(nil)
}

// Package process implements the native Process Host app host variant:
// it launches a declared entry as an OS process, bridges its stdio as
// a length-framed JSON-RPC channel, and enforces the Process Host
// stop/cleanup contract.
package process

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sourcegraph/jsonrpc2"
	"github.com/syndtr/gocapability/capability"

	"github.com/ecomter/estarter/pkg/apiproto"
	"github.com/ecomter/estarter/pkg/apphost"
	"github.com/ecomter/estarter/pkg/log"
	"github.com/ecomter/estarter/pkg/manifest"
	"github.com/ecomter/estarter/pkg/permset"
	"github.com/ecomter/estarter/pkg/reslimit"
)

func init() {
	apphost.RegisterLauncher(manifest.RuntimeNative, Launch)
}

// envPreserveList holds the variables copied from the host environment
// into the hosted process. Everything else is
// stripped.
var envPreserveList = []string{
	"PATH", "TMPDIR", "TEMP", "TMP", "HOME", "USERPROFILE", "USER", "USERNAME",
	"DOTNET_ROOT", "LANG", "LC_ALL", "PROCESSOR_ARCHITECTURE", "SystemRoot",
}

const gracefulShutdownWindow = 5 * time.Second

var errStillRunning = fmt.Errorf("process host: graceful shutdown still in progress")

// Host is the native Process Host.
type Host struct {
	*apphost.Lifecycle

	appID       string
	version     string
	entryPath   string
	args        []string
	installDir  string
	policy      apphost.SandboxPolicy
	permissions permset.Permission
	kernel      apphost.Kernel

	cmd      *exec.Cmd
	conn     *jsonrpc2.Conn
	limiter  reslimit.Handle
	runtimeC context.CancelFunc

	stopOnce sync.Once
}

// Launch constructs and (via apphost.Launch) starts a Process Host for
// spec.
func Launch(spec apphost.LaunchSpec) (apphost.Host, error) {
	h := &Host{
		appID:       spec.Manifest.ID,
		version:     spec.Manifest.Version,
		entryPath:   spec.EntryPath(),
		args:        spec.Manifest.Arguments,
		installDir:  spec.InstallDir,
		policy:      spec.Policy,
		permissions: spec.Manifest.ResolvedPermissions(),
		kernel:      spec.Kernel,
	}
	h.Lifecycle = apphost.NewLifecycle(h.appID, h.gracefulStop)
	return h, nil
}

func buildEnv() []string {
	env := make([]string, 0, len(envPreserveList)+2)
	for _, name := range envPreserveList {
		if v, ok := os.LookupEnv(name); ok {
			env = append(env, name+"="+v)
		}
	}
	return env
}

// Start implements apphost.Host.
func (h *Host) Start() error {
	if err := h.Lifecycle.Transition(apphost.Starting, apphost.Created); err != nil {
		return err
	}

	cmd := exec.Command(h.entryPath, h.args...)
	cmd.Dir = h.installDir
	cmd.Env = append(buildEnv(), "ESTARTER_MODE=hosted", "ESTARTER_APP_ID="+h.appID)
	setProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		h.Lifecycle.Transition(apphost.Faulted)
		return fmt.Errorf("process host %s: stdin pipe: %w", h.appID, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		h.Lifecycle.Transition(apphost.Faulted)
		return fmt.Errorf("process host %s: stdout pipe: %w", h.appID, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		h.Lifecycle.Transition(apphost.Faulted)
		return fmt.Errorf("process host %s: stderr pipe: %w", h.appID, err)
	}

	if err := cmd.Start(); err != nil {
		h.Lifecycle.Transition(apphost.Faulted)
		return fmt.Errorf("process host %s: start: %w", h.appID, err)
	}
	h.cmd = cmd
	go logStderr(h.appID, stderr)

	h.conn = jsonrpc2.NewConn(context.Background(), jsonrpc2.NewBufferedStream(rwc{stdout, stdin}, jsonrpc2.VSCodeObjectCodec{}),
		jsonrpc2.HandlerWithError(h.handleRPC))

	dropCapabilities(h.appID, cmd.Process.Pid)
	h.attachResourceLimiter(cmd.Process.Pid)

	if err := h.Lifecycle.Transition(apphost.Running, apphost.Starting); err != nil {
		return err
	}

	h.kernel.RegisterProcess(h.appID, cmd.Process.Pid, h.version, h.permissions)

	go h.awaitExit()
	if h.policy.MaxRuntime > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), h.policy.MaxRuntime)
		h.runtimeC = cancel
		go func() {
			<-ctx.Done()
			if ctx.Err() == context.DeadlineExceeded {
				log.Infof("process host %s: maxRuntime elapsed, stopping", h.appID)
				h.Stop()
			}
		}()
	}
	return nil
}

// rwc adapts a separate reader and writer into one io.ReadWriteCloser
// for jsonrpc2's framed stream.
type rwc struct {
	io.ReadCloser
	w io.WriteCloser
}

func (r rwc) Write(p []byte) (int, error) { return r.w.Write(p) }
func (r rwc) Close() error {
	_ = r.w.Close()
	return r.ReadCloser.Close()
}

func logStderr(appID string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		log.Infof("app %s (stderr): %s", appID, scanner.Text())
	}
}

type apiCallParams struct {
	Command string          `json:"command"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type logParams struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// handleRPC implements the two host-exposed JSON-RPC methods (spec.md
// §4.4.1 "JSON-RPC bridge").
func (h *Host) handleRPC(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	switch req.Method {
	case "api_call":
		var params apiCallParams
		if req.Params != nil {
			if err := json.Unmarshal(*req.Params, &params); err != nil {
				return nil, fmt.Errorf("invalid api_call params: %w", err)
			}
		}
		cmd, ok := commandByName[params.Command]
		if !ok {
			return apiproto.Fail(0, apiproto.NotSupported, "unknown command %q", params.Command), nil
		}
		return h.kernel.HandleAPI(h.appID, apiproto.Request{Command: cmd, Data: params.Data}), nil
	case "log":
		var params logParams
		if req.Params != nil {
			json.Unmarshal(*req.Params, &params)
		}
		log.Infof("app %s [%s]: %s", h.appID, params.Level, params.Message)
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown method %q", req.Method)
	}
}

func (h *Host) awaitExit() {
	err := h.cmd.Wait()
	h.cleanup()
	if err == nil {
		h.Lifecycle.MarkExited(apphost.ExitInfo{AppID: h.appID, ExitCode: h.cmd.ProcessState.ExitCode()})
		return
	}
	h.Lifecycle.MarkExited(apphost.ExitInfo{AppID: h.appID, ExitCode: h.cmd.ProcessState.ExitCode(), Exception: err.Error()})
}

// gracefulStop implements spec.md §4.4.1 "Stopping": a graceful window
// followed by a process-tree kill.
func (h *Host) gracefulStop() error {
	if h.cmd == nil || h.cmd.Process == nil {
		return nil
	}
	requestGracefulShutdown(h.cmd.Process.Pid)

	exited := make(chan struct{})
	go func() {
		h.cmd.Process.Wait()
		close(exited)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownWindow)
	defer cancel()
	poll := backoff.WithContext(backoff.NewConstantBackOff(200*time.Millisecond), ctx)
	waitExited := func() error {
		select {
		case <-exited:
			return nil
		default:
			return errStillRunning
		}
	}
	if err := backoff.Retry(waitExited, poll); err == nil {
		return nil
	}

	log.Warningf("process host %s: graceful window elapsed, killing process tree", h.appID)
	return killProcessTree(h.cmd.Process.Pid)
}

// cleanup is single-shot: unregister from the kernel and release the
// resource limiter, safe under concurrent exit and stop calls (spec.md
// §4.4.1 "Cleanup ... is single-shot").
func (h *Host) cleanup() {
	h.stopOnce.Do(func() {
		h.kernel.UnregisterProcess(h.appID)
		if h.limiter != nil {
			if err := h.limiter.Dispose(); err != nil {
				log.Warningf("process host %s: releasing resource limiter: %v", h.appID, err)
			}
		}
		if h.runtimeC != nil {
			h.runtimeC()
		}
	})
}

func (h *Host) attachResourceLimiter(pid int) {
	limits := reslimit.Limits{
		MemoryLimitBytes: h.policy.MemoryLimitBytes,
		MaxProcesses:     h.policy.MaxProcesses,
		CPUQuotaPercent:  h.policy.CPUQuotaPercent,
	}
	handle, err := reslimit.Acquire(h.appID, limits)
	if err != nil {
		log.Warningf("process host %s: resource limiter unavailable, continuing without it: %v", h.appID, err)
		return
	}
	if handle == nil {
		return
	}
	if err := handle.AddProcess(pid); err != nil {
		log.Warningf("process host %s: adding pid to resource limiter: %v", h.appID, err)
		return
	}
	h.limiter = handle
}

// dropCapabilities removes all Linux capabilities from pid on a
// best-effort basis; failure (non-Linux, insufficient privilege) is
// logged, never fatal.
func dropCapabilities(appID string, pid int) {
	caps, err := capability.NewPid2(pid)
	if err != nil {
		log.Debugf("process host %s: capability state unavailable: %v", appID, err)
		return
	}
	if err := caps.Load(); err != nil {
		log.Debugf("process host %s: loading capability state: %v", appID, err)
		return
	}
	caps.Clear(capability.CAPS)
	if err := caps.Apply(capability.CAPS); err != nil {
		log.Debugf("process host %s: dropping capabilities: %v", appID, err)
	}
}

// commandByName maps the wire command names apps use in api_call
// to apiproto.Command values.
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

// Dispose implements apphost.Host: stop, then release the RPC
// connection. Idempotent via the embedded Lifecycle.
func (h *Host) Dispose() error {
	return h.Lifecycle.Dispose(func() error {
		if h.conn != nil {
			return h.conn.Close()
		}
		return nil
	})
}

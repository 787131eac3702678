package kernel

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ecomter/estarter/pkg/apiproto"
	"github.com/ecomter/estarter/pkg/log"
	"github.com/ecomter/estarter/pkg/permission"
	"github.com/ecomter/estarter/pkg/permset"
)

// Handler answers one ApiRequest on behalf of a registered command. It
// runs on the caller's goroutine and must not block on the kernel's
// own locks beyond its own data.
type Handler = func(appID string, req apiproto.Request) apiproto.Response

// commandPermissions is the static command→permission table consulted
// by HandleAPI before dispatch. Commands absent
// from this table require no permission.
var commandPermissions = map[apiproto.Command]permset.Permission{
	apiproto.CmdReadFile:         permset.FileRead,
	apiproto.CmdReadText:        permset.FileRead,
	apiproto.CmdWriteFile:       permset.FileWrite,
	apiproto.CmdWriteText:       permset.FileWrite,
	apiproto.CmdDeleteFile:      permset.FileDelete,
	apiproto.CmdCreateDirectory: permset.FileWrite,
	apiproto.CmdListDirectory:   permset.FileRead,
	apiproto.CmdDeleteDirectory: permset.FileDelete,
	apiproto.CmdNotify:          permset.Notification,
}

// RequirePermission registers (or overrides) the permission bits
// required for command. The VFS and notification commands do not go
// through it: their entries are already in commandPermissions above,
// and those packages only register handler bodies.
func RequirePermission(command apiproto.Command, p permset.Permission) {
	commandPermissions[command] = p
}

// Kernel is the central coordinator: process registry, event bus, and
// permission-checked command router in one.
type Kernel struct {
	startTime time.Time
	osName    string
	version   string

	registry *registry
	events   *eventBus

	permissions *permission.Manager

	handlersMu sync.RWMutex
	handlers   map[apiproto.Command]Handler

	nextRequestID uint64
}

// New constructs a Kernel. permissions may be wired with NewManager(k,
// ...) only after New returns, since the Manager needs a Kernel
// handle and New needs nothing from the Manager to start the
// registry and event bus.
func New(osName, version string) *Kernel {
	k := &Kernel{
		startTime: time.Now(),
		osName:    osName,
		version:   version,
		registry:  newRegistry(),
		events:    newEventBus(),
		handlers:  make(map[apiproto.Command]Handler),
	}
	k.registerBuiltins()
	return k
}

// AttachPermissionManager wires the Permission Manager after
// construction, breaking the New(k) / NewManager(k) ordering cycle.
func (k *Kernel) AttachPermissionManager(m *permission.Manager) {
	k.permissions = m
}

// Events returns the kernel's event bus for subscription.
func (k *Kernel) Events() (<-chan Event, func()) {
	return k.events.Subscribe()
}

// Close shuts down the kernel's event bus. Idempotent.
func (k *Kernel) Close() {
	k.events.Close()
}

// RegisterProcess filters out Admin/Kernel bits, inserts or replaces
// the registry entry for appId, and emits ProcessStarted. Replacing an
// existing entry (re-launch after crash) is permitted, not an error.
func (k *Kernel) RegisterProcess(appID string, osPid int, version string, requested permset.Permission) ProcessInfo {
	requested = permset.StripPrivileged(requested)
	pi := &ProcessInfo{
		AppID:       appID,
		OSPid:       osPid,
		Version:     version,
		StartTime:   time.Now(),
		Permissions: permset.NewSet(requested, 0),
		State:       Starting,
	}
	if replaced := k.registry.upsert(pi); replaced {
		log.Infof("kernel: replacing existing process entry for %s (re-launch after crash)", appID)
	}
	k.registry.mutate(appID, func(p *ProcessInfo) { p.State = Running })
	out, _ := k.registry.get(appID)
	k.events.emit(Event{Kind: EventProcessStarted, AppID: appID})
	return out
}

// UnregisterProcess marks the entry Terminated, removes it from the
// registry, and emits ProcessTerminated.
func (k *Kernel) UnregisterProcess(appID string) {
	k.registry.mutate(appID, func(p *ProcessInfo) { p.State = Terminated })
	if k.registry.remove(appID) {
		k.events.emit(Event{Kind: EventProcessTerminated, AppID: appID})
	}
}

// GetProcess returns the live ProcessInfo for appID, if any.
func (k *Kernel) GetProcess(appID string) (ProcessInfo, bool) {
	return k.registry.get(appID)
}

// GetAllProcesses returns every live ProcessInfo, ordered by appId.
func (k *Kernel) GetAllProcesses() []ProcessInfo {
	return k.registry.all()
}

// HasPermission implements permission.Kernel for the Permission
// Manager's consent protocol.
func (k *Kernel) HasPermission(appID string, p permset.Permission) bool {
	pi, ok := k.registry.get(appID)
	return ok && pi.Permissions.Has(p)
}

// GrantPermission masks p to Full, consults SystemPolicies, and
// updates the live set. Returns false (no change made) if any bit of
// p is globally disallowed.
func (k *Kernel) GrantPermission(appID string, p permset.Permission) bool {
	p = p & permset.Full
	if k.permissions != nil {
		if disallowed := k.permissions.Policies().DisallowedBits(p); disallowed != 0 {
			return false
		}
	}
	return k.registry.mutate(appID, func(pi *ProcessInfo) {
		pi.Permissions = pi.Permissions.Grant(p)
	})
}

// RevokePermission removes p from both granted and denied for appID.
// This is distinct from denial via the consent protocol, which adds
// to denied.
func (k *Kernel) RevokePermission(appID string, p permset.Permission) bool {
	return k.registry.mutate(appID, func(pi *ProcessInfo) {
		pi.Permissions = pi.Permissions.Revoke(p)
	})
}

// CheckResult is the outcome of CheckPermission.
type CheckResult struct {
	Allowed bool
	Missing permset.Permission
}

// CheckPermission reports whether appID currently holds required.
func (k *Kernel) CheckPermission(appID string, required permset.Permission) CheckResult {
	pi, ok := k.registry.get(appID)
	if !ok {
		return CheckResult{Allowed: false, Missing: required}
	}
	return CheckResult{Allowed: pi.Permissions.Has(required), Missing: pi.Permissions.Missing(required)}
}

// EnforcePolicyChange revokes p from every live process when its
// policy category has just been disabled: a disabled category revokes
// the permission from every process currently holding it, not just
// future grant requests.
func (k *Kernel) EnforcePolicyChange(p permset.Permission) {
	for _, pi := range k.registry.all() {
		if pi.Permissions.Has(p) {
			k.RevokePermission(pi.AppID, p)
		}
	}
	k.events.emit(Event{Kind: EventPolicyChanged, Permission: p})
}

// RegisterHandler installs handler for command. Exactly one handler
// per command is permitted; a second registration overwrites the
// first, matching the teacher's own single-slot handler table
// pattern but logging the override since it almost always indicates a
// wiring bug in estarterd's own startup code.
func (k *Kernel) RegisterHandler(command apiproto.Command, handler Handler) {
	k.handlersMu.Lock()
	defer k.handlersMu.Unlock()
	if _, exists := k.handlers[command]; exists {
		log.Warningf("kernel: overriding existing handler for command %d", command)
	}
	k.handlers[command] = handler
}

// NextRequestID returns a process-wide monotonic request id, for
// callers (app hosts) that need to stamp outgoing requests.
func (k *Kernel) NextRequestID() uint64 {
	return atomic.AddUint64(&k.nextRequestID, 1)
}

// HandleAPI resolves the caller, checks required permissions, and
// dispatches to the registered handler.
func (k *Kernel) HandleAPI(callerAppID string, req apiproto.Request) (resp apiproto.Response) {
	status := apiproto.Success
	defer func() {
		if r := recover(); r != nil {
			resp = apiproto.Fail(req.RequestID, apiproto.Error, "handler panic: %v", r)
			status = apiproto.Error
		}
		k.events.emit(Event{Kind: EventApiCalled, AppID: callerAppID, Command: req.Command, Status: status})
	}()

	pi, ok := k.registry.get(callerAppID)
	if !ok {
		status = apiproto.PermissionDenied
		return apiproto.Fail(req.RequestID, apiproto.PermissionDenied, "unknown caller %q", callerAppID)
	}

	if required, hasRequirement := commandPermissions[req.Command]; hasRequirement && required != 0 {
		if !pi.Permissions.Has(required) {
			status = apiproto.PermissionDenied
			missing := pi.Permissions.Missing(required)
			return apiproto.Response{
				RequestID: req.RequestID,
				Status:    apiproto.PermissionDenied,
				Error:     fmt.Sprintf("missing permission(s): %s", missing),
			}
		}
	}

	k.handlersMu.RLock()
	handler, ok := k.handlers[req.Command]
	k.handlersMu.RUnlock()
	if !ok {
		status = apiproto.NotSupported
		return apiproto.Fail(req.RequestID, apiproto.NotSupported, "no handler registered for command %d", req.Command)
	}

	resp = handler(callerAppID, req)
	status = resp.Status
	return resp
}

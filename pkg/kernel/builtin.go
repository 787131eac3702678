package kernel

import (
	"time"

	"github.com/vishvananda/netlink"

	"github.com/ecomter/estarter/pkg/apiproto"
)

func (k *Kernel) registerBuiltins() {
	k.RegisterHandler(apiproto.CmdPing, k.handlePing)
	k.RegisterHandler(apiproto.CmdGetTime, k.handleGetTime)
	k.RegisterHandler(apiproto.CmdGetSystemInfo, k.handleGetSystemInfo)
	k.RegisterHandler(apiproto.CmdGetProcessList, k.handleGetProcessList)
	k.RegisterHandler(apiproto.CmdCheckPermission, k.handleCheckPermission)
	k.RegisterHandler(apiproto.CmdGetPermissions, k.handleCheckPermission)
	k.RegisterHandler(apiproto.CmdRequestPermission, k.handleRequestPermission)
}

func (k *Kernel) handlePing(_ string, req apiproto.Request) apiproto.Response {
	return apiproto.Ok(req.RequestID, nil)
}

func (k *Kernel) handleGetTime(_ string, req apiproto.Request) apiproto.Response {
	return apiproto.Ok(req.RequestID, struct {
		Time int64 `json:"time"`
	}{Time: time.Now().UnixMilli()})
}

// systemInfoResponse is the GetSystemInfo payload.
type systemInfoResponse struct {
	OS            string `json:"os"`
	Version       string `json:"version"`
	ProcessCount  int    `json:"processCount"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
	NetworkUp     bool   `json:"networkUp"`
}

func (k *Kernel) handleGetSystemInfo(_ string, req apiproto.Request) apiproto.Response {
	return apiproto.Ok(req.RequestID, systemInfoResponse{
		OS:            k.osName,
		Version:       k.version,
		ProcessCount:  len(k.registry.all()),
		UptimeSeconds: int64(time.Since(k.startTime).Seconds()),
		NetworkUp:     hostNetworkUp(),
	})
}

// hostNetworkUp is a single best-effort netlink query reporting
// whether the host has any network link at all. It is advisory only:
// NetworkAccess/NetworkListen are still enforced at the app-host
// launch boundary, never inferred from this check.
func hostNetworkUp() bool {
	links, err := netlink.LinkList()
	if err != nil {
		return false
	}
	return len(links) > 0
}

type processListEntry struct {
	AppID   string `json:"appId"`
	Pid     int    `json:"pid"`
	Version string `json:"version"`
	State   string `json:"state"`
}

func (k *Kernel) handleGetProcessList(_ string, req apiproto.Request) apiproto.Response {
	all := k.registry.all()
	out := make([]processListEntry, 0, len(all))
	for _, pi := range all {
		out = append(out, processListEntry{AppID: pi.AppID, Pid: pi.OSPid, Version: pi.Version, State: pi.State.String()})
	}
	return apiproto.Ok(req.RequestID, out)
}

type permissionSnapshot struct {
	Granted []string `json:"granted"`
	Denied  []string `json:"denied"`
}

func (k *Kernel) handleCheckPermission(appID string, req apiproto.Request) apiproto.Response {
	pi, ok := k.registry.get(appID)
	if !ok {
		return apiproto.Fail(req.RequestID, apiproto.NotFound, "unknown process %q", appID)
	}
	return apiproto.Ok(req.RequestID, permissionSnapshot{
		Granted: pi.Permissions.Granted().Names(),
		Denied:  pi.Permissions.Denied().Names(),
	})
}

type requestPermissionArgs struct {
	Permission string `json:"permission"`
}

type requestPermissionResult struct {
	Granted bool   `json:"granted"`
	Already bool   `json:"already,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func (k *Kernel) handleRequestPermission(appID string, req apiproto.Request) apiproto.Response {
	if k.permissions == nil {
		return apiproto.Fail(req.RequestID, apiproto.NotSupported, "permission manager not attached")
	}
	var args requestPermissionArgs
	if err := unmarshalArgs(req, &args); err != nil {
		return apiproto.Fail(req.RequestID, apiproto.InvalidRequest, "invalid arguments: %v", err)
	}
	perm, ok := permLookup(args.Permission)
	if !ok {
		return apiproto.Fail(req.RequestID, apiproto.InvalidRequest, "unknown permission %q", args.Permission)
	}
	res := k.permissions.RequestPermission(appID, perm)
	return apiproto.Ok(req.RequestID, requestPermissionResult{Granted: res.Granted, Already: res.Already, Reason: res.Reason})
}

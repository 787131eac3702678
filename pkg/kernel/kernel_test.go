package kernel

import (
	"path/filepath"
	"testing"

	"github.com/ecomter/estarter/pkg/apiproto"
	"github.com/ecomter/estarter/pkg/permission"
	"github.com/ecomter/estarter/pkg/permset"
)

func newTestKernel(t *testing.T) *Kernel {
	t.Helper()
	dir := t.TempDir()
	k := New("linux", "test")
	store := permission.NewStore(filepath.Join(dir, "permissions.json"))
	policies := permission.NewPolicyStore(filepath.Join(dir, "system-policies.json"))
	k.AttachPermissionManager(permission.NewManager(k, store, policies, nil))
	return k
}

// TestPingRoundTrip checks a basic ping round-trip through the command router.
func TestPingRoundTrip(t *testing.T) {
	k := newTestKernel(t)
	k.RegisterProcess("app.a", 1234, "1.0", permset.Basic)

	resp := k.HandleAPI("app.a", apiproto.Request{Command: apiproto.CmdPing, RequestID: 1})
	if resp.Status != apiproto.Success || resp.RequestID != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

// TestUnauthorisedWrite checks the generic permission-check path (the
// VFS-specific write semantics are covered in pkg/vfs's own tests).
func TestUnauthorisedWrite(t *testing.T) {
	k := newTestKernel(t)
	k.RegisterProcess("app.b", 1, "1.0", permset.Basic)
	k.RegisterHandler(apiproto.CmdWriteFile, func(appID string, req apiproto.Request) apiproto.Response {
		return apiproto.Ok(req.RequestID, struct {
			Written int `json:"written"`
		}{Written: 2})
	})

	resp := k.HandleAPI("app.b", apiproto.Request{Command: apiproto.CmdWriteFile, RequestID: 1})
	if resp.Status != apiproto.PermissionDenied {
		t.Fatalf("expected PermissionDenied, got %+v", resp)
	}

	if ok := k.GrantPermission("app.b", permset.FileWrite); !ok {
		t.Fatal("grant should have succeeded")
	}
	resp = k.HandleAPI("app.b", apiproto.Request{Command: apiproto.CmdWriteFile, RequestID: 2})
	if resp.Status != apiproto.Success {
		t.Fatalf("expected Success after grant, got %+v", resp)
	}
}

// TestGlobalPolicyRevokesLiveGrant checks that disabling a policy
// category revokes it from processes already holding the permission.
func TestGlobalPolicyRevokesLiveGrant(t *testing.T) {
	k := newTestKernel(t)
	k.RegisterProcess("app.f", 1, "1.0", permset.Basic)
	if !k.GrantPermission("app.f", permset.Location) {
		t.Fatal("initial grant should succeed")
	}

	p := k.permissions.Policies().Get()
	p.Location = false
	k.permissions.Policies().Set(p)
	k.EnforcePolicyChange(permset.Location)

	if k.CheckPermission("app.f", permset.Location).Allowed {
		t.Fatal("Location must be revoked immediately after policy flips false")
	}
	if k.GrantPermission("app.f", permset.Location) {
		t.Fatal("grant must fail while policy disallows Location")
	}
}

// TestProcessRegistryUniqueness checks that exactly one ProcessInfo
// exists per appId at a time.
func TestProcessRegistryUniqueness(t *testing.T) {
	k := newTestKernel(t)
	k.RegisterProcess("app.g", 1, "1.0", permset.Basic)
	k.RegisterProcess("app.g", 2, "1.1", permset.Basic)

	all := k.GetAllProcesses()
	count := 0
	for _, pi := range all {
		if pi.AppID == "app.g" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one live ProcessInfo for app.g, got %d", count)
	}
	pi, ok := k.GetProcess("app.g")
	if !ok || pi.OSPid != 2 {
		t.Fatalf("expected replaced entry with OSPid=2, got %+v ok=%v", pi, ok)
	}
}

func TestNeverGrantsAdminOrKernel(t *testing.T) {
	k := newTestKernel(t)
	pi := k.RegisterProcess("app.h", 1, "1.0", permset.Full|permset.Admin|permset.Kernel)
	if pi.Permissions.Has(permset.Admin) || pi.Permissions.Has(permset.Kernel) {
		t.Fatal("Admin/Kernel must never be grantable through registration")
	}
	k.GrantPermission("app.h", permset.Admin)
	if k.CheckPermission("app.h", permset.Admin).Allowed {
		t.Fatal("Admin must never end up allowed even via GrantPermission")
	}
}

func TestHandleAPIUnknownCommandIsNotSupported(t *testing.T) {
	k := newTestKernel(t)
	k.RegisterProcess("app.i", 1, "1.0", permset.Basic)
	resp := k.HandleAPI("app.i", apiproto.Request{Command: apiproto.Command(9999), RequestID: 1})
	if resp.Status != apiproto.NotSupported {
		t.Fatalf("expected NotSupported, got %+v", resp)
	}
}

func TestHandleAPIUnknownCallerIsDenied(t *testing.T) {
	k := newTestKernel(t)
	resp := k.HandleAPI("no-such-app", apiproto.Request{Command: apiproto.CmdPing, RequestID: 1})
	if resp.Status != apiproto.PermissionDenied {
		t.Fatalf("expected PermissionDenied, got %+v", resp)
	}
}

func TestHandlerPanicBecomesErrorResponse(t *testing.T) {
	k := newTestKernel(t)
	k.RegisterProcess("app.j", 1, "1.0", permset.Basic)
	k.RegisterHandler(apiproto.CmdGetTime, func(string, apiproto.Request) apiproto.Response {
		panic("boom")
	})
	resp := k.HandleAPI("app.j", apiproto.Request{Command: apiproto.CmdGetTime, RequestID: 1})
	if resp.Status != apiproto.Error {
		t.Fatalf("expected a misbehaving handler to surface as Error, got %+v", resp)
	}
}

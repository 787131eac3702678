package permission

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ecomter/estarter/pkg/permset"
)

// fakeKernel is the minimal Kernel implementation the Manager needs
// for its tests; it mirrors the process-registry permission state the
// real kernel.Kernel would hold.
type fakeKernel struct {
	sets map[string]permset.Set
}

func newFakeKernel() *fakeKernel { return &fakeKernel{sets: map[string]permset.Set{}} }

func (k *fakeKernel) HasPermission(appID string, p permset.Permission) bool {
	return k.sets[appID].Has(p)
}

func (k *fakeKernel) GrantPermission(appID string, p permset.Permission) bool {
	k.sets[appID] = k.sets[appID].Grant(p)
	return true
}

func newTestManager(t *testing.T) (*Manager, *fakeKernel) {
	t.Helper()
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "permissions.json"))
	policies := NewPolicyStore(filepath.Join(dir, "system-policies.json"))
	k := newFakeKernel()
	return NewManager(k, store, policies, nil), k
}

func TestRequestPermissionAlreadyGranted(t *testing.T) {
	m, k := newTestManager(t)
	k.GrantPermission("app.a", permset.Camera)
	res := m.RequestPermission("app.a", permset.Camera)
	if !res.Granted || !res.Already {
		t.Fatalf("expected already-granted result, got %+v", res)
	}
}

func TestRequestPermissionPreviouslyDenied(t *testing.T) {
	m, _ := newTestManager(t)
	m.PersistGrant("app.b", 0, permset.Camera)
	res := m.RequestPermission("app.b", permset.Camera)
	if res.Granted || res.Reason != "Previously denied" {
		t.Fatalf("expected sticky denial, got %+v", res)
	}
}

func TestRequestPermissionCompleted(t *testing.T) {
	m, k := newTestManager(t)
	done := make(chan Result, 1)
	go func() { done <- m.RequestPermission("app.c", permset.Camera) }()
	// Give the goroutine a moment to register as a waiter.
	time.Sleep(20 * time.Millisecond)
	m.CompleteRequest("app.c", permset.Camera, true)

	res := <-done
	if !res.Granted {
		t.Fatalf("expected grant, got %+v", res)
	}
	if !k.HasPermission("app.c", permset.Camera) {
		t.Fatal("kernel should have been told to grant the permission")
	}
	if g, ok := m.StoredGrant("app.c"); !ok || g.Granted&permset.Camera == 0 {
		t.Fatal("grant should be persisted")
	}
}

func TestRequestPermissionTimeout(t *testing.T) {
	m, _ := newTestManager(t)
	orig := ConsentTimeout
	t.Cleanup(func() { ConsentTimeout = orig })
	ConsentTimeout = 30 * time.Millisecond

	res := m.RequestPermission("app.e", permset.Camera)
	if res.Granted {
		t.Fatal("expected denial on timeout")
	}
	if g, ok := m.StoredGrant("app.e"); ok && g.Denied&permset.Camera != 0 {
		t.Fatal("timeout must not create a sticky denial per spec.md scenario 4")
	}
}

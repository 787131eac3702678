package vfs

import (
	"testing"
)

func newTestVFS(t *testing.T) *VFS {
	t.Helper()
	v, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return v
}

// TestRoundTrip implements the write/read roundtrip property from
// spec.md §8.
func TestRoundTrip(t *testing.T) {
	v := newTestVFS(t)
	vp := ParsePath("/appdata/app.a/notes/todo.txt")

	result := v.WriteText(vp, "app.a", "buy milk")
	if !result.Success {
		t.Fatalf("write failed: %+v", result)
	}
	text, result := v.ReadText(vp, "app.a")
	if !result.Success || text != "buy milk" {
		t.Fatalf("roundtrip mismatch: text=%q result=%+v", text, result)
	}
}

// TestTraversalRejected implements the traversal-rejection property
// from spec.md §8.
func TestTraversalRejected(t *testing.T) {
	cases := []string{
		"/appdata/app.a/../app.b/secret.txt",
		"/appdata/app.a/./file.txt",
		"/appdata/app.a//file.txt",
		"/bogus-zone/app.a/file.txt",
	}
	for _, raw := range cases {
		if ParsePath(raw).IsValid() {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}

	v := newTestVFS(t)
	vp := ParsePath("/appdata/app.a/../app.b/secret.txt")
	if vp.IsValid() {
		t.Fatalf("traversal path must not parse as valid: %+v", vp)
	}
	result := v.WriteText(vp, "app.a", "x")
	if result.Success {
		t.Fatal("write through a traversal path must fail")
	}
}

// TestCrossAppIsolation implements spec.md §8 scenario 3: app A cannot
// read from app B's appdata zone, and receives the same generic denial
// whether or not the target exists.
func TestCrossAppIsolation(t *testing.T) {
	v := newTestVFS(t)
	bPath := ParsePath("/appdata/app.b/secret.txt")
	if result := v.WriteText(bPath, "app.b", "owned by b"); !result.Success {
		t.Fatalf("app.b writing its own file should succeed: %+v", result)
	}

	_, readResult := v.ReadFile(bPath, "app.a")
	if readResult.Success {
		t.Fatal("app.a must not read app.b's appdata file")
	}

	missing := ParsePath("/appdata/app.b/does-not-exist.txt")
	_, missingResult := v.ReadFile(missing, "app.a")
	if missingResult.Success || missingResult.Error != readResult.Error {
		t.Fatalf("denial reason must not leak file existence: got %+v vs %+v", missingResult, readResult)
	}
}

// TestSharedZoneAccessibleToAll verifies the shared zone bypasses
// ownership checks.
func TestSharedZoneAccessibleToAll(t *testing.T) {
	v := newTestVFS(t)
	vp := ParsePath("/shared/app.a/announcement.txt")
	if result := v.WriteText(vp, "app.a", "hello"); !result.Success {
		t.Fatalf("owner write to shared should succeed: %+v", result)
	}
	text, result := v.ReadText(vp, "app.b")
	if !result.Success || text != "hello" {
		t.Fatalf("another app should be able to read the shared zone: %+v %q", result, text)
	}
}

// TestSystemZoneReadOnly implements the read-only system zone
// invariant from spec.md §4.3.
func TestSystemZoneReadOnly(t *testing.T) {
	v := newTestVFS(t)
	vp := ParsePath("/system/app.a/config.json")
	if result := v.WriteText(vp, "app.a", "x"); result.Success {
		t.Fatal("writes to the system zone must always fail")
	}
	if result := v.DeleteFile(vp, "app.a"); result.Success {
		t.Fatal("deletes in the system zone must always fail")
	}
	if result := v.CreateDirectory(ParsePath("/system/app.a/sub"), "app.a"); result.Success {
		t.Fatal("directory creation in the system zone must always fail")
	}
}

// TestSandboxLifecycle exercises initialize/clear/delete against a
// real VFS instance.
func TestSandboxLifecycle(t *testing.T) {
	v := newTestVFS(t)
	if err := v.InitializeAppSandbox("app.c"); err != nil {
		t.Fatalf("InitializeAppSandbox: %v", err)
	}

	cache := ParsePath("/cache/app.c/thumb.png")
	if result := v.WriteFile(cache, "app.c", []byte{1, 2, 3, 4}); !result.Success {
		t.Fatalf("cache write failed: %+v", result)
	}
	usage := v.GetAppStorageUsage("app.c")
	if usage.Cache != 4 {
		t.Fatalf("expected 4 cache bytes, got %+v", usage)
	}

	freed := v.ClearAppCache("app.c")
	if freed != 4 {
		t.Fatalf("expected 4 bytes freed clearing cache, got %d", freed)
	}
	if v.FileExists(cache, "app.c") {
		t.Fatal("cache file should be gone after ClearAppCache")
	}

	appdata := ParsePath("/appdata/app.c/profile.json")
	v.WriteText(appdata, "app.c", "{}")
	total := v.DeleteAppData("app.c")
	if total == 0 {
		t.Fatal("expected DeleteAppData to report freed bytes")
	}
	if v.FileExists(appdata, "app.c") {
		t.Fatal("appdata file should be gone after DeleteAppData")
	}
}

// TestListDirectory exercises directory enumeration.
func TestListDirectory(t *testing.T) {
	v := newTestVFS(t)
	v.WriteText(ParsePath("/appdata/app.d/a.txt"), "app.d", "1")
	v.WriteText(ParsePath("/appdata/app.d/b.txt"), "app.d", "2")

	entries, result := v.ListDirectory(ParsePath("/appdata/app.d"), "app.d")
	if !result.Success || len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v result=%+v", entries, result)
	}
}

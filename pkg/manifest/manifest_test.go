package manifest

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/ecomter/estarter/pkg/permset"
)

func TestParseDefaults(t *testing.T) {
	m, err := Parse([]byte(`{"id":"com.example.notes","name":"Notes"}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.Runtime != RuntimeNative {
		t.Fatalf("expected default runtime Native, got %q", m.Runtime)
	}
}

func TestParseMissingIDRejected(t *testing.T) {
	if _, err := Parse([]byte(`{"name":"Notes"}`)); err == nil {
		t.Fatal("expected an error for a manifest with no id")
	}
}

func TestParseInvalidVersionRejected(t *testing.T) {
	if _, err := Parse([]byte(`{"id":"a","version":"not-a-version"}`)); err == nil {
		t.Fatal("expected an error for an invalid semver version")
	}
}

func TestParseValidVersion(t *testing.T) {
	if _, err := Parse([]byte(`{"id":"a","version":"1.2.3"}`)); err != nil {
		t.Fatalf("expected 1.2.3 to be accepted: %v", err)
	}
}

func TestResolvedPermissionsIgnoresUnknown(t *testing.T) {
	m, err := Parse([]byte(`{"id":"a","permissions":["FileRead","bogus","notification"]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := m.ResolvedPermissions()
	want := permset.FileRead | permset.Notification
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestEntryPathFallsBackToExePath(t *testing.T) {
	m, _ := Parse([]byte(`{"id":"a","exePath":"legacy.exe"}`))
	if m.EntryPath() != "legacy.exe" {
		t.Fatalf("expected fallback to exePath, got %q", m.EntryPath())
	}
	m2, _ := Parse([]byte(`{"id":"a","entry":"app.wasm","exePath":"legacy.exe"}`))
	if m2.EntryPath() != "app.wasm" {
		t.Fatalf("expected entry to win over exePath, got %q", m2.EntryPath())
	}
}

func TestCloneIsIndependent(t *testing.T) {
	m, _ := Parse([]byte(`{"id":"a","arguments":["--flag"]}`))
	clone := m.Clone()
	clone.Arguments[0] = "--mutated"
	if m.Arguments[0] != "--flag" {
		t.Fatal("mutating the clone's slice must not affect the original")
	}
}

func TestIsRuntimeSupported(t *testing.T) {
	native, _ := Parse([]byte(`{"id":"a","runtime":"Native"}`))
	dotnet, _ := Parse([]byte(`{"id":"a","runtime":"Dotnet"}`))
	if !native.IsRuntimeSupported() {
		t.Fatal("Native must be supported")
	}
	if dotnet.IsRuntimeSupported() {
		t.Fatal("Dotnet has no host implementation and must report unsupported")
	}
}

func TestInstallExtractsAndParses(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "pkg.zip")
	writeTestPackage(t, zipPath)

	appsRoot := filepath.Join(dir, "apps")
	m, err := Install(zipPath, appsRoot)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if m.ID != "com.example.notes" {
		t.Fatalf("unexpected id: %q", m.ID)
	}
	if _, err := os.Stat(filepath.Join(appsRoot, "com.example.notes", "app.wasm")); err != nil {
		t.Fatalf("expected entry file to be extracted: %v", err)
	}
}

func writeTestPackage(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create zip: %v", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	manifestJSON := `{"id":"com.example.notes","name":"Notes","runtime":"Wasm","entry":"app.wasm"}`
	writeZipEntry(t, w, "manifest.json", []byte(manifestJSON))
	writeZipEntry(t, w, "app.wasm", []byte{0, 0x61, 0x73, 0x6d})
	if err := w.Close(); err != nil {
		t.Fatalf("close zip writer: %v", err)
	}
}

func writeZipEntry(t *testing.T, w *zip.Writer, name string, data []byte) {
	t.Helper()
	entry, err := w.Create(name)
	if err != nil {
		t.Fatalf("create zip entry %q: %v", name, err)
	}
	if _, err := entry.Write(data); err != nil {
		t.Fatalf("write zip entry %q: %v", name, err)
	}
}

package vfs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ecomter/estarter/pkg/log"
)

// VirtualFileInfo is the VFS-level stat result.
type VirtualFileInfo struct {
	Name          string `json:"name"`
	Path          string `json:"path"`
	IsDirectory   bool   `json:"isDirectory"`
	Size          int64  `json:"size"`
	ModifiedTicks int64  `json:"modifiedTicks"`
}

// FileResult is the uniform outcome of a VFS file operation (spec.md
// §4.3).
type FileResult struct {
	Success       bool
	Error         string
	BytesAffected int64
}

func okResult(n int64) FileResult { return FileResult{Success: true, BytesAffected: n} }
func fail(format string, args ...any) FileResult {
	return FileResult{Success: false, Error: fmt.Sprintf(format, args...)}
}

// VFS is a per-kernel sandboxed filesystem rooted at Root (spec.md
// §4.3).
type VFS struct {
	root  string
	locks *lockTable
}

// New returns a VFS rooted at root. root is created if missing.
func New(root string) (*VFS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving VFS root %q: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating VFS root %q: %w", abs, err)
	}
	return &VFS{root: abs, locks: newLockTable()}, nil
}

// Root returns the VFS's configured root directory.
func (v *VFS) Root() string { return v.root }

// ErrAccessDenied is returned, with no added context, whenever a
// path fails ownership, traversal, or root-containment checks —
// spec.md §8 scenario 3 asks for a single generic message regardless
// of whether the underlying file exists.
var ErrAccessDenied = errors.New("access denied or invalid path")

// resolve implements spec.md §4.3 "resolve(vpath, callerAppId)".
func (v *VFS) resolve(vp VirtualPath, callerAppID string) (string, error) {
	if !vp.IsValid() {
		return "", ErrAccessDenied
	}
	if !vp.BelongsTo(callerAppID) {
		return "", ErrAccessDenied
	}

	physical := filepath.Join(v.root, string(vp.Zone()), vp.AppID(), filepath.FromSlash(vp.Relative()))

	// Canonicalise and reject escape from root. The target need not
	// exist yet (writes create missing parents), so canonicalise the
	// deepest existing ancestor and rejoin the remainder.
	canon, err := canonicalWithinRoot(v.root, physical)
	if err != nil {
		return "", ErrAccessDenied
	}
	return canon, nil
}

// canonicalWithinRoot resolves symlinks on the deepest existing
// ancestor of path and verifies the canonical result still lies under
// root.
func canonicalWithinRoot(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || len(rel) >= 2 && rel[:3] == "../" {
		return "", ErrAccessDenied
	}

	existing := path
	var missingTail []string
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		missingTail = append([]string{filepath.Base(existing)}, missingTail...)
		existing = parent
	}

	canonExisting, err := filepath.EvalSymlinks(existing)
	if err != nil {
		canonExisting = existing
	}
	canonRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		canonRoot = root
	}

	full := canonExisting
	for _, seg := range missingTail {
		full = filepath.Join(full, seg)
	}

	relToRoot, err := filepath.Rel(canonRoot, full)
	if err != nil || relToRoot == ".." || hasParentEscape(relToRoot) {
		return "", ErrAccessDenied
	}
	return full, nil
}

func hasParentEscape(rel string) bool {
	return len(rel) >= 2 && rel[:2] == ".."
}

func zonePhysicalRoot(root string, zone Zone, appID string) string {
	return filepath.Join(root, string(zone), appID)
}

// --- File operations -----------------------------------

func (v *VFS) ReadFile(vp VirtualPath, callerAppID string) ([]byte, FileResult) {
	physical, err := v.resolve(vp, callerAppID)
	if err != nil {
		return nil, fail("%v", ErrAccessDenied)
	}
	var data []byte
	var result FileResult
	v.locks.withLock(physical, func() {
		b, rerr := os.ReadFile(physical)
		if rerr != nil {
			result = fail("read failed: %v", rerr)
			return
		}
		data = b
		result = okResult(int64(len(b)))
	})
	return data, result
}

func (v *VFS) ReadText(vp VirtualPath, callerAppID string) (string, FileResult) {
	b, result := v.ReadFile(vp, callerAppID)
	return string(b), result
}

func (v *VFS) WriteFile(vp VirtualPath, callerAppID string, data []byte) FileResult {
	if vp.Zone() == ZoneSystem {
		return fail("System zone is read-only")
	}
	physical, err := v.resolve(vp, callerAppID)
	if err != nil {
		return fail("%v", ErrAccessDenied)
	}
	var result FileResult
	v.locks.withLock(physical, func() {
		if mkErr := os.MkdirAll(filepath.Dir(physical), 0o755); mkErr != nil {
			result = fail("create parent dirs: %v", mkErr)
			return
		}
		if werr := os.WriteFile(physical, data, 0o644); werr != nil {
			result = fail("write failed: %v", werr)
			return
		}
		result = okResult(int64(len(data)))
	})
	return result
}

func (v *VFS) WriteText(vp VirtualPath, callerAppID string, text string) FileResult {
	return v.WriteFile(vp, callerAppID, []byte(text))
}

func (v *VFS) DeleteFile(vp VirtualPath, callerAppID string) FileResult {
	if vp.Zone() == ZoneSystem {
		return fail("System zone is read-only")
	}
	physical, err := v.resolve(vp, callerAppID)
	if err != nil {
		return fail("%v", ErrAccessDenied)
	}
	var result FileResult
	v.locks.withLock(physical, func() {
		info, serr := os.Stat(physical)
		if serr != nil {
			result = fail("delete failed: %v", serr)
			return
		}
		if rerr := os.Remove(physical); rerr != nil {
			result = fail("delete failed: %v", rerr)
			return
		}
		result = okResult(info.Size())
	})
	return result
}

func (v *VFS) FileExists(vp VirtualPath, callerAppID string) bool {
	physical, err := v.resolve(vp, callerAppID)
	if err != nil {
		return false
	}
	_, serr := os.Stat(physical)
	return serr == nil
}

func (v *VFS) GetFileInfo(vp VirtualPath, callerAppID string) (VirtualFileInfo, FileResult) {
	physical, err := v.resolve(vp, callerAppID)
	if err != nil {
		return VirtualFileInfo{}, fail("%v", ErrAccessDenied)
	}
	info, serr := os.Stat(physical)
	if serr != nil {
		return VirtualFileInfo{}, fail("stat failed: %v", serr)
	}
	return VirtualFileInfo{
		Name:          info.Name(),
		Path:          vp.String(),
		IsDirectory:   info.IsDir(),
		Size:          info.Size(),
		ModifiedTicks: info.ModTime().UnixNano(),
	}, okResult(info.Size())
}

func (v *VFS) CreateDirectory(vp VirtualPath, callerAppID string) FileResult {
	if vp.Zone() == ZoneSystem {
		return fail("System zone is read-only")
	}
	physical, err := v.resolve(vp, callerAppID)
	if err != nil {
		return fail("%v", ErrAccessDenied)
	}
	if merr := os.MkdirAll(physical, 0o755); merr != nil {
		return fail("mkdir failed: %v", merr)
	}
	return okResult(0)
}

func (v *VFS) ListDirectory(vp VirtualPath, callerAppID string) ([]VirtualFileInfo, FileResult) {
	physical, err := v.resolve(vp, callerAppID)
	if err != nil {
		return nil, fail("%v", ErrAccessDenied)
	}
	entries, rerr := os.ReadDir(physical)
	if rerr != nil {
		return nil, fail("list failed: %v", rerr)
	}
	out := make([]VirtualFileInfo, 0, len(entries))
	for _, ent := range entries {
		info, ierr := ent.Info()
		if ierr != nil {
			continue
		}
		out = append(out, VirtualFileInfo{
			Name:          ent.Name(),
			Path:          vp.String() + "/" + ent.Name(),
			IsDirectory:   ent.IsDir(),
			Size:          info.Size(),
			ModifiedTicks: info.ModTime().UnixNano(),
		})
	}
	return out, okResult(int64(len(out)))
}

func (v *VFS) DeleteDirectory(vp VirtualPath, callerAppID string, recursive bool) FileResult {
	if vp.Zone() == ZoneSystem {
		return fail("System zone is read-only")
	}
	physical, err := v.resolve(vp, callerAppID)
	if err != nil {
		return fail("%v", ErrAccessDenied)
	}
	var rerr error
	if recursive {
		rerr = os.RemoveAll(physical)
	} else {
		rerr = os.Remove(physical)
	}
	if rerr != nil {
		return fail("delete directory failed: %v", rerr)
	}
	return okResult(0)
}

// --- Sandbox lifecycle ----------------------------------

// InitializeAppSandbox pre-creates appdata/cache/temp subdirectories
// for appID.
func (v *VFS) InitializeAppSandbox(appID string) error {
	for _, z := range []Zone{ZoneAppData, ZoneCache, ZoneTemp} {
		dir := zonePhysicalRoot(v.root, z, appID)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("initializing %s zone for %s: %w", z, appID, err)
		}
	}
	return nil
}

func dirSize(path string) int64 {
	var total int64
	_ = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		total += info.Size()
		return nil
	})
	return total
}

// clearZone removes and recreates zone's contents for appID,
// returning bytes freed. Best-effort: partial failures are logged, not
// fatal.
func (v *VFS) clearZone(appID string, zone Zone) int64 {
	dir := zonePhysicalRoot(v.root, zone, appID)
	freed := dirSize(dir)
	if err := os.RemoveAll(dir); err != nil {
		log.Warningf("vfs: clearing %s zone for %s: %v", zone, appID, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warningf("vfs: recreating %s zone for %s: %v", zone, appID, err)
	}
	return freed
}

// ClearAppCache clears the cache zone for appID.
func (v *VFS) ClearAppCache(appID string) int64 { return v.clearZone(appID, ZoneCache) }

// ClearAppTemp clears the temp zone for appID.
func (v *VFS) ClearAppTemp(appID string) int64 { return v.clearZone(appID, ZoneTemp) }

// DeleteAppData removes all three app-owned zones (appdata, cache,
// temp) for appID, returning aggregated bytes freed. shared and system
// are never touched.
func (v *VFS) DeleteAppData(appID string) int64 {
	var total int64
	for _, z := range []Zone{ZoneAppData, ZoneCache, ZoneTemp} {
		dir := zonePhysicalRoot(v.root, z, appID)
		total += dirSize(dir)
		if err := os.RemoveAll(dir); err != nil {
			log.Warningf("vfs: deleting %s zone for %s: %v", z, appID, err)
		}
	}
	return total
}

// Usage is the result of GetAppStorageUsage.
type Usage struct {
	AppData int64
	Cache   int64
	Temp    int64
}

// GetAppStorageUsage returns the on-disk size of each app-owned zone.
func (v *VFS) GetAppStorageUsage(appID string) Usage {
	return Usage{
		AppData: dirSize(zonePhysicalRoot(v.root, ZoneAppData, appID)),
		Cache:   dirSize(zonePhysicalRoot(v.root, ZoneCache, appID)),
		Temp:    dirSize(zonePhysicalRoot(v.root, ZoneTemp, appID)),
	}
}


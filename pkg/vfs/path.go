// Package vfs implements the sandboxed, zoned Virtual File System
// described in spec.md §4.3: path parsing and resolution, per-path
// locking, zone policies, and the per-app sandbox lifecycle
// operations.
package vfs

import (
	"strings"
)

// Zone is a top-level namespace in the VFS.
type Zone string

const (
	ZoneAppData Zone = "appdata"
	ZoneCache   Zone = "cache"
	ZoneTemp    Zone = "temp"
	ZoneShared  Zone = "shared"
	ZoneSystem  Zone = "system"
)

func isKnownZone(z Zone) bool {
	switch z {
	case ZoneAppData, ZoneCache, ZoneTemp, ZoneShared, ZoneSystem:
		return true
	default:
		return false
	}
}

// VirtualPath is the parsed form of /{zone}/{appId}/{relative...}.
type VirtualPath struct {
	valid    bool
	zone     Zone
	appID    string
	relative string // cleaned, always using "/" separators, no leading "/"
}

// ParsePath parses raw into a VirtualPath. Any component equal to
// "..", starting with ".", containing "./", or containing "//" marks
// the result invalid, per spec.md §3 and the traversal-rejection
// property in §8.
func ParsePath(raw string) VirtualPath {
	raw = strings.TrimPrefix(raw, "/")
	if raw == "" {
		return VirtualPath{valid: false}
	}
	if strings.Contains(raw, "//") || strings.Contains(raw, "./") {
		return VirtualPath{valid: false}
	}

	parts := strings.Split(raw, "/")
	if len(parts) < 2 {
		return VirtualPath{valid: false}
	}
	for _, seg := range parts {
		if seg == "" || seg == ".." || strings.HasPrefix(seg, ".") {
			return VirtualPath{valid: false}
		}
	}

	zone := Zone(parts[0])
	if !isKnownZone(zone) {
		return VirtualPath{valid: false}
	}
	appID := parts[1]
	rel := strings.Join(parts[2:], "/")
	return VirtualPath{valid: true, zone: zone, appID: appID, relative: rel}
}

// IsValid reports whether the path parsed cleanly.
func (p VirtualPath) IsValid() bool { return p.valid }

// Zone returns the path's zone.
func (p VirtualPath) Zone() Zone { return p.zone }

// AppID returns the app-id token embedded in the path.
func (p VirtualPath) AppID() string { return p.appID }

// Relative returns the cleaned relative path below zone/appId.
func (p VirtualPath) Relative() string { return p.relative }

// BelongsTo implements spec.md §3: BelongsTo(appId) ⇔ zone = shared ∨
// appId equal (case-insensitive).
func (p VirtualPath) BelongsTo(callerAppID string) bool {
	if !p.valid {
		return false
	}
	if p.zone == ZoneShared {
		return true
	}
	return strings.EqualFold(p.appID, callerAppID)
}

func (p VirtualPath) String() string {
	if !p.valid {
		return "(invalid)"
	}
	if p.relative == "" {
		return "/" + string(p.zone) + "/" + p.appID
	}
	return "/" + string(p.zone) + "/" + p.appID + "/" + p.relative
}

// Package permset implements the capability bitmask and the immutable
// PermissionSet value type that the Kernel and Permission Manager build
// on.
package permset

import (
	"sort"
	"strings"
)

// Permission is a single named capability bit. The underlying type is a
// fixed-width 64-bit unsigned integer; bit 63 is reserved and never
// assigned to a capability, so it is safe
// to use as an internal all-bits sentinel without colliding with a real
// permission.
type Permission uint64

// Individual capability bits.
const (
	FileRead Permission = 1 << iota
	FileWrite
	FileDelete
	NetworkAccess
	NetworkListen
	Notification
	Clipboard
	Dialog
	Overlay
	ProcessLaunch
	ProcessKill
	SystemSettings
	SystemInfo
	IpcSend
	IpcReceive
	IpcBroadcast
	Camera
	Microphone
	Location
	Admin
	Kernel
)

// All known bits, used to mask out garbage and to compute Full below.
const all = FileRead | FileWrite | FileDelete | NetworkAccess | NetworkListen |
	Notification | Clipboard | Dialog | Overlay | ProcessLaunch | ProcessKill |
	SystemSettings | SystemInfo | IpcSend | IpcReceive | IpcBroadcast |
	Camera | Microphone | Location | Admin | Kernel

// privileged holds the bits that are never grantable through the
// public API, regardless of caller or policy.
const privileged = Admin | Kernel

// Bundled aliases.
const (
	Basic    = FileRead | Notification | IpcSend | IpcReceive
	Standard = Basic | FileWrite | Clipboard | Dialog | SystemInfo
	Full     = all &^ privileged
)

var names = map[Permission]string{
	FileRead:       "FileRead",
	FileWrite:      "FileWrite",
	FileDelete:     "FileDelete",
	NetworkAccess:  "NetworkAccess",
	NetworkListen:  "NetworkListen",
	Notification:   "Notification",
	Clipboard:      "Clipboard",
	Dialog:         "Dialog",
	Overlay:        "Overlay",
	ProcessLaunch:  "ProcessLaunch",
	ProcessKill:    "ProcessKill",
	SystemSettings: "SystemSettings",
	SystemInfo:     "SystemInfo",
	IpcSend:        "IpcSend",
	IpcReceive:     "IpcReceive",
	IpcBroadcast:   "IpcBroadcast",
	Camera:         "Camera",
	Microphone:     "Microphone",
	Location:       "Location",
	Admin:          "Admin",
	Kernel:         "Kernel",
}

var byName = func() map[string]Permission {
	m := make(map[string]Permission, len(names))
	for p, n := range names {
		m[strings.ToLower(n)] = p
	}
	return m
}()

// Parse resolves a capability name case-insensitively. Unknown names
// are reported via ok=false so callers (manifest parsing) can silently
// ignore them.
func Parse(name string) (p Permission, ok bool) {
	p, ok = byName[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// StripPrivileged masks out Admin and Kernel, which are never
// grantable through the public API.
func StripPrivileged(p Permission) Permission {
	return p &^ privileged
}

// Names returns the sorted list of capability names set in p.
func (p Permission) Names() []string {
	var out []string
	for bit, n := range names {
		if p&bit != 0 {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

func (p Permission) String() string {
	n := p.Names()
	if len(n) == 0 {
		return "(none)"
	}
	return strings.Join(n, "|")
}

// Set is an immutable pair of granted and denied bits. All mutating
// methods return a new Set; the receiver is never modified. Has(p)
// holds when p is a subset of granted and disjoint from denied.
// Denied bits always win over granted bits.
type Set struct {
	granted Permission
	denied  Permission
}

// NewSet builds a Set from raw granted/denied bits, normalizing so
// that denial wins (a bit present in both is treated as denied).
func NewSet(granted, denied Permission) Set {
	return Set{granted: granted &^ denied, denied: denied}
}

// Has reports whether every bit in required is granted and none of
// them is denied.
func (s Set) Has(required Permission) bool {
	if required == 0 {
		return true
	}
	return required&s.granted == required && required&s.denied == 0
}

// Missing returns the subset of required that s does not grant.
func (s Set) Missing(required Permission) Permission {
	have := s.granted &^ s.denied
	return required &^ have
}

// Grant returns a new Set with p added to granted and removed from
// denied. Idempotent: s.Grant(p).Grant(p) == s.Grant(p).
func (s Set) Grant(p Permission) Set {
	return Set{granted: s.granted | p, denied: s.denied &^ p}
}

// Revoke returns a new Set with p removed from both granted and
// denied. This is distinct from Deny: revoke simply takes back a
// grant, it does not record a sticky refusal.
func (s Set) Revoke(p Permission) Set {
	return Set{granted: s.granted &^ p, denied: s.denied &^ p}
}

// Deny returns a new Set with p added to denied and removed from
// granted. Denial wins over any Grant of the same bits made before the
// Deny (law: for any sequence ending in Deny(p), Has(p) is false); a
// later Grant clears the denial again.
func (s Set) Deny(p Permission) Set {
	return Set{granted: s.granted &^ p, denied: s.denied | p}
}

// Granted returns the raw granted bitmask.
func (s Set) Granted() Permission { return s.granted }

// Denied returns the raw denied bitmask.
func (s Set) Denied() Permission { return s.denied }

package permission

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/ecomter/estarter/pkg/log"
	"github.com/ecomter/estarter/pkg/permset"
)

// SystemPolicies are global booleans per high-level category. A
// disabled category blocks both new grants and revokes the permission
// from all live processes.
type SystemPolicies struct {
	Location      bool `json:"location"`
	Camera        bool `json:"camera"`
	Microphone    bool `json:"microphone"`
	FileSystem    bool `json:"fileSystem"`
	Network       bool `json:"network"`
	IPC           bool `json:"ipc"`
	Notifications bool `json:"notifications"`
}

// DefaultPolicies is the all-allowed default used when no policy file
// exists yet.
func DefaultPolicies() SystemPolicies {
	return SystemPolicies{
		Location:      true,
		Camera:        true,
		Microphone:    true,
		FileSystem:    true,
		Network:       true,
		IPC:           true,
		Notifications: true,
	}
}

// categoryOf maps a capability bit to the policy category that gates
// it. Bits with no category entry are always allowed by policy (e.g.
// SystemInfo, Dialog): policies gate only the categories spec.md §3
// names explicitly.
func categoryOf(p permset.Permission) (get func(SystemPolicies) bool, ok bool) {
	switch p {
	case permset.Location:
		return func(sp SystemPolicies) bool { return sp.Location }, true
	case permset.Camera:
		return func(sp SystemPolicies) bool { return sp.Camera }, true
	case permset.Microphone:
		return func(sp SystemPolicies) bool { return sp.Microphone }, true
	case permset.FileRead, permset.FileWrite, permset.FileDelete:
		return func(sp SystemPolicies) bool { return sp.FileSystem }, true
	case permset.NetworkAccess, permset.NetworkListen:
		return func(sp SystemPolicies) bool { return sp.Network }, true
	case permset.IpcSend, permset.IpcReceive, permset.IpcBroadcast:
		return func(sp SystemPolicies) bool { return sp.IPC }, true
	case permset.Notification:
		return func(sp SystemPolicies) bool { return sp.Notifications }, true
	default:
		return nil, false
	}
}

// PolicyStore persists a single SystemPolicies value, guarded by its
// own flock so it does not contend with the per-app Grant Store.
type PolicyStore struct {
	path string
	lock *flock.Flock

	mu       sync.RWMutex
	policies SystemPolicies
}

// NewPolicyStore loads path if present, otherwise starts from
// DefaultPolicies.
func NewPolicyStore(path string) *PolicyStore {
	ps := &PolicyStore{
		path:     path,
		lock:     flock.New(path + ".lock"),
		policies: DefaultPolicies(),
	}
	ps.load()
	return ps
}

func (ps *PolicyStore) load() {
	b, err := os.ReadFile(ps.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warningf("policy store: read %s: %v (using defaults)", ps.path, err)
		}
		return
	}
	var p SystemPolicies
	if err := json.Unmarshal(b, &p); err != nil {
		log.Warningf("policy store: parse %s: %v (using defaults)", ps.path, err)
		return
	}
	ps.policies = p
}

// Get returns the current policies.
func (ps *PolicyStore) Get() SystemPolicies {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.policies
}

// IsGloballyAllowed reports whether p's policy category (if any) is
// currently enabled. Capabilities with no policy category are always
// allowed.
func (ps *PolicyStore) IsGloballyAllowed(p permset.Permission) bool {
	get, ok := categoryOf(p)
	if !ok {
		return true
	}
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return get(ps.policies)
}

// DisallowedBits returns the subset of p whose policy category is
// currently disabled.
func (ps *PolicyStore) DisallowedBits(p permset.Permission) permset.Permission {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	var disallowed permset.Permission
	for bit := permset.Permission(1); bit != 0 && bit <= permset.Kernel; bit <<= 1 {
		if p&bit == 0 {
			continue
		}
		get, ok := categoryOf(bit)
		if ok && !get(ps.policies) {
			disallowed |= bit
		}
	}
	return disallowed
}

// Set replaces the stored policies and persists them.
func (ps *PolicyStore) Set(p SystemPolicies) {
	ps.mu.Lock()
	ps.policies = p
	ps.mu.Unlock()
	go ps.persist(p)
}

func (ps *PolicyStore) persist(p SystemPolicies) {
	if err := ps.lock.Lock(); err != nil {
		log.Warningf("policy store: lock %s: %v", ps.path, err)
		return
	}
	defer ps.lock.Unlock()

	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		log.Warningf("policy store: marshal: %v", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(ps.path), 0o755); err != nil {
		log.Warningf("policy store: mkdir: %v", err)
		return
	}
	tmp := ps.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		log.Warningf("policy store: write %s: %v", tmp, err)
		return
	}
	if err := os.Rename(tmp, ps.path); err != nil {
		log.Warningf("policy store: rename %s -> %s: %v", tmp, ps.path, err)
	}
}

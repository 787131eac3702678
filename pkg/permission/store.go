// Package permission implements the Permission Manager: the
// persistent grant store, the global SystemPolicies store, and the
// UI-mediated consent protocol.
package permission

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/ecomter/estarter/pkg/log"
	"github.com/ecomter/estarter/pkg/permset"
)

// Grant is the persisted per-app permission record.
type Grant struct {
	AppID     string           `json:"appId"`
	Granted   permset.Permission `json:"granted"`
	Denied    permset.Permission `json:"denied"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// Store is a JSON-file-backed table of Grants keyed by appId, guarded
// by an advisory file lock so a concurrently running estarterctl
// cannot tear a write by estarterd (and vice versa) — the same
// lock-beside-the-data-file discipline used for the container state
// file.
type Store struct {
	path string
	lock *flock.Flock

	mu   chan struct{} // 1-buffered mutex; see withLock
	data map[string]Grant
}

// NewStore loads path if present. A missing or malformed file yields
// an empty store rather than an error; persistent store read errors
// silently fall back to defaults.
func NewStore(path string) *Store {
	s := &Store{
		path: path,
		lock: flock.New(path + ".lock"),
		mu:   make(chan struct{}, 1),
		data: make(map[string]Grant),
	}
	s.mu <- struct{}{}
	s.load()
	return s
}

func (s *Store) withLock(fn func()) {
	<-s.mu
	defer func() { s.mu <- struct{}{} }()
	fn()
}

func (s *Store) load() {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warningf("permission store: read %s: %v (starting empty)", s.path, err)
		}
		return
	}
	var list []Grant
	if err := json.Unmarshal(b, &list); err != nil {
		log.Warningf("permission store: parse %s: %v (starting empty)", s.path, err)
		return
	}
	for _, g := range list {
		s.data[g.AppID] = g
	}
}

// Get returns the stored grant for appId, if any.
func (s *Store) Get(appID string) (Grant, bool) {
	var g Grant
	var ok bool
	s.withLock(func() { g, ok = s.data[appID] })
	return g, ok
}

// Put upserts a grant and persists the full snapshot asynchronously;
// concurrent writers race last-writer-wins on the file itself.
func (s *Store) Put(g Grant) {
	g.UpdatedAt = time.Now()
	var snapshot []Grant
	s.withLock(func() {
		s.data[g.AppID] = g
		snapshot = s.snapshotLocked()
	})
	go s.persist(snapshot)
}

func (s *Store) snapshotLocked() []Grant {
	out := make([]Grant, 0, len(s.data))
	for _, g := range s.data {
		out = append(out, g)
	}
	return out
}

// persist writes the full snapshot to disk through a temp-file-then-
// rename swap, under the cross-process flock. Write failures are
// logged, never fatal.
func (s *Store) persist(snapshot []Grant) {
	if err := s.lock.Lock(); err != nil {
		log.Warningf("permission store: lock %s: %v", s.path, err)
		return
	}
	defer s.lock.Unlock()

	b, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		log.Warningf("permission store: marshal: %v", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		log.Warningf("permission store: mkdir: %v", err)
		return
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		log.Warningf("permission store: write %s: %v", tmp, err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		log.Warningf("permission store: rename %s -> %s: %v", tmp, s.path, err)
	}
}

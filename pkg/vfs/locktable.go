package vfs

import (
	"sync"
	"time"
)

// lockTable is the lazily-created per-physical-path mutex table
// described in spec.md §4.3/§5. Design note §9 flags that such a
// table "grows without bound unless pruned"; this implementation
// sweeps idle entries on a cadence, but only ever removes an entry it
// can prove is both unlocked and has sat idle past a deadline —
// eviction must never invalidate a mutex a caller currently holds.
type lockTable struct {
	mu      sync.Mutex
	entries map[string]*lockEntry

	idleTimeout time.Duration
	opsSinceGC  int
	gcEvery     int
}

type lockEntry struct {
	mu       sync.Mutex
	lastUsed time.Time
	held     bool
}

func newLockTable() *lockTable {
	return &lockTable{
		entries:     make(map[string]*lockEntry),
		idleTimeout: 5 * time.Minute,
		gcEvery:     256,
	}
}

// withLock runs fn while holding the per-path mutex for physicalPath,
// releasing it on every exit path including a panic inside fn.
func (lt *lockTable) withLock(physicalPath string, fn func()) {
	e := lt.acquire(physicalPath)
	defer lt.release(physicalPath, e)
	fn()
}

func (lt *lockTable) acquire(physicalPath string) *lockEntry {
	lt.mu.Lock()
	e, ok := lt.entries[physicalPath]
	if !ok {
		e = &lockEntry{}
		lt.entries[physicalPath] = e
	}
	lt.mu.Unlock()

	e.mu.Lock()
	lt.mu.Lock()
	e.held = true
	lt.mu.Unlock()
	return e
}

func (lt *lockTable) release(physicalPath string, e *lockEntry) {
	lt.mu.Lock()
	e.held = false
	e.lastUsed = time.Now()
	lt.opsSinceGC++
	if lt.opsSinceGC >= lt.gcEvery {
		lt.opsSinceGC = 0
		lt.evictIdleLocked()
	}
	lt.mu.Unlock()
	e.mu.Unlock()
}

// evictIdleLocked must be called with lt.mu held. It only removes
// entries that are provably unheld and idle past the timeout.
func (lt *lockTable) evictIdleLocked() {
	cutoff := time.Now().Add(-lt.idleTimeout)
	for path, e := range lt.entries {
		if !e.held && e.lastUsed.Before(cutoff) {
			delete(lt.entries, path)
		}
	}
}

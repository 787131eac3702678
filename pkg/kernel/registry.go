package kernel

import (
	"sync"

	"github.com/google/btree"
)

// registry is the concurrent-map-semantics process table: reads and
// writes are individually atomic, and check-then-register relies on
// insert-if-absent being race-free.
//
// Iteration order for GetAllProcesses/GetProcessList is not specified
// by the data model itself, but a launcher UI and the estarterctl ps
// command both want a stable listing rather than Go's randomized map
// order. A btree.BTreeG keyed by appId gives O(log n) insert/delete
// and an in-order walk for free, so the registry keeps one alongside
// the map instead of sorting on every read.
type registry struct {
	mu    sync.RWMutex
	byApp map[string]*ProcessInfo
	order *btree.BTreeG[string]
}

func newRegistry() *registry {
	return &registry{
		byApp: make(map[string]*ProcessInfo),
		order: btree.NewG[string](32, func(a, b string) bool { return a < b }),
	}
}

// upsert inserts or replaces the entry for appId, reporting whether an
// existing entry was replaced.
func (r *registry) upsert(pi *ProcessInfo) (replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, replaced = r.byApp[pi.AppID]
	r.byApp[pi.AppID] = pi
	r.order.ReplaceOrInsert(pi.AppID)
	return replaced
}

func (r *registry) remove(appID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byApp[appID]; !ok {
		return false
	}
	delete(r.byApp, appID)
	r.order.Delete(appID)
	return true
}

func (r *registry) get(appID string) (ProcessInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pi, ok := r.byApp[appID]
	if !ok {
		return ProcessInfo{}, false
	}
	return *pi, true
}

// mutate applies fn to the live entry for appID under the write lock
// and returns whether an entry existed to mutate.
func (r *registry) mutate(appID string, fn func(*ProcessInfo)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	pi, ok := r.byApp[appID]
	if !ok {
		return false
	}
	fn(pi)
	return true
}

func (r *registry) all() []ProcessInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ProcessInfo, 0, r.order.Len())
	r.order.Ascend(func(appID string) bool {
		out = append(out, *r.byApp[appID])
		return true
	})
	return out
}

package permission

import (
	"sync"
	"time"

	"github.com/ecomter/estarter/pkg/log"
	"github.com/ecomter/estarter/pkg/permset"
)

// ConsentTimeout bounds how long RequestPermission waits for a UI
// response before treating the request as denied (spec.md §4.2 step 3
// / §5 "User-consent requests time out after 30 seconds"). It is a
// var, not a const, solely so tests can shrink it.
var ConsentTimeout = 30 * time.Second

// Kernel is the slice of kernel behavior the Permission Manager needs.
// Defined here (rather than importing pkg/kernel) to avoid a cycle:
// the Kernel owns a Manager, so the Manager cannot also own a Kernel.
type Kernel interface {
	HasPermission(appID string, p permset.Permission) bool
	GrantPermission(appID string, p permset.Permission) bool
}

// EventSink receives "permissionRequested" notifications destined for
// the UI layer.
type EventSink func(appID string, p permset.Permission)

// waiter is a single caller's completion handle for an in-flight
// consent request. The source this is modeled on uses a single
// broadcast event for both the UI-facing notification and the
// completion signal, with a per-waiter guard to skip the initial
// broadcast when re-entering; we instead give every concurrent caller
// its own channel, which is the cleaner redesign noted in spec.md §9.
type waiter struct {
	done chan bool
}

type waiterKey struct {
	appID string
	perm  permset.Permission
}

// Manager owns the persistent grant store and drives the consent
// protocol described in spec.md §4.2.
type Manager struct {
	kernel   Kernel
	store    *Store
	policies *PolicyStore
	onEvent  EventSink

	mu      sync.Mutex
	waiters map[waiterKey][]*waiter
}

// NewManager constructs a Manager backed by the given grant store,
// policy store, and kernel handle. onEvent may be nil.
func NewManager(k Kernel, store *Store, policies *PolicyStore, onEvent EventSink) *Manager {
	if onEvent == nil {
		onEvent = func(string, permset.Permission) {}
	}
	return &Manager{
		kernel:   k,
		store:    store,
		policies: policies,
		onEvent:  onEvent,
		waiters:  make(map[waiterKey][]*waiter),
	}
}

// Policies exposes the underlying policy store.
func (m *Manager) Policies() *PolicyStore { return m.policies }

// StoredGrant returns the persisted grant for appID, if any.
func (m *Manager) StoredGrant(appID string) (Grant, bool) {
	return m.store.Get(appID)
}

// PersistGrant sets the persistent record for appID to exactly the
// given granted/denied bits, replacing whatever record was stored.
func (m *Manager) PersistGrant(appID string, granted, denied permset.Permission) {
	m.store.Put(Grant{AppID: appID, Granted: granted, Denied: denied})
}

// Result is the outcome of RequestPermission.
type Result struct {
	Granted bool
	Already bool
	Reason  string
}

// RequestPermission implements the consent protocol of spec.md §4.2.
func (m *Manager) RequestPermission(appID string, p permset.Permission) Result {
	p = permset.StripPrivileged(p)

	if m.kernel.HasPermission(appID, p) {
		return Result{Granted: true, Already: true}
	}

	if g, ok := m.store.Get(appID); ok && g.Denied&p != 0 {
		return Result{Granted: false, Reason: "Previously denied"}
	}

	w := &waiter{done: make(chan bool, 1)}
	key := waiterKey{appID: appID, perm: p}
	m.mu.Lock()
	m.waiters[key] = append(m.waiters[key], w)
	m.mu.Unlock()

	m.onEvent(appID, p)

	select {
	case allowed := <-w.done:
		if allowed {
			g, _ := m.store.Get(appID)
			m.kernel.GrantPermission(appID, p)
			m.store.Put(Grant{AppID: appID, Granted: g.Granted | p, Denied: g.Denied &^ p})
		} else {
			g, _ := m.store.Get(appID)
			m.store.Put(Grant{AppID: appID, Granted: g.Granted, Denied: g.Denied | p})
		}
		return Result{Granted: allowed}
	case <-time.After(ConsentTimeout):
		// A timeout counts as denial for the caller, but — unlike an
		// explicit UI refusal — it is not a sticky denial: the denied
		// set is left untouched so a later, answered request for the
		// same capability is not pre-empted by an unanswered one.
		log.Infof("permission request %s/%s timed out after %s, treating as denial", appID, p, ConsentTimeout)
		m.removeWaiter(key, w)
		return Result{Granted: false, Reason: "Timed out waiting for user response"}
	}
}

// CompleteRequest delivers a UI decision for every caller currently
// waiting on (appID, p). Safe to call even if there are no waiters
// (e.g. the request already timed out).
func (m *Manager) CompleteRequest(appID string, p permset.Permission, allowed bool) {
	key := waiterKey{appID: appID, perm: p}
	m.mu.Lock()
	ws := m.waiters[key]
	delete(m.waiters, key)
	m.mu.Unlock()

	for _, w := range ws {
		select {
		case w.done <- allowed:
		default:
		}
	}
}

func (m *Manager) removeWaiter(key waiterKey, target *waiter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws := m.waiters[key]
	for i, w := range ws {
		if w == target {
			m.waiters[key] = append(ws[:i], ws[i+1:]...)
			break
		}
	}
	if len(m.waiters[key]) == 0 {
		delete(m.waiters, key)
	}
}

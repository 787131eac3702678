// Package apphost defines the unified App Host lifecycle contract
// shared by the native Process Host and the embedded
// Wasm Host, plus the factory that selects between them from a
// manifest.
package apphost

import (
	"fmt"
	"sync"
	"time"

	"github.com/ecomter/estarter/pkg/manifest"
)

// State is a position in the App Host lifecycle state machine (spec.md
// §4.4).
type State int

const (
	Created State = iota
	Starting
	Running
	Stopping
	Stopped
	Faulted
)

func (s State) String() string {
	switch s {
	case Created:
		return "Created"
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	case Stopping:
		return "Stopping"
	case Stopped:
		return "Stopped"
	case Faulted:
		return "Faulted"
	default:
		return "Unknown"
	}
}

func (s State) isTerminal() bool { return s == Stopped || s == Faulted }

// SandboxPolicy is the immutable per-launch envelope derived from an
// app's manifest.
type SandboxPolicy struct {
	MemoryLimitBytes int64
	MaxProcesses     int
	CPUQuotaPercent  int
	NetworkAllowed   bool
	MaxRuntime       time.Duration
	Runtime          manifest.Runtime
}

// PolicyFromManifest derives a SandboxPolicy from a parsed manifest.
func PolicyFromManifest(m manifest.Manifest) SandboxPolicy {
	return SandboxPolicy{
		MemoryLimitBytes: int64(m.MemoryLimitMb) * 1024 * 1024,
		MaxProcesses:     m.MaxProcesses,
		CPUQuotaPercent:  m.CPUQuota,
		NetworkAllowed:   m.NetworkAllowed,
		MaxRuntime:       time.Duration(m.MaxRuntimeSeconds) * time.Second,
		Runtime:          m.Runtime,
	}
}

// ExitInfo describes how a host's guest terminated. Exactly one
// Exited event carrying this is emitted per host.
type ExitInfo struct {
	AppID     string
	ExitCode  int
	Exception string // empty on a normal exit
}

// Host is the contract both app host variants implement.
type Host interface {
	AppID() string
	State() State
	Start() error
	Stop() error
	Dispose() error
	// Exited delivers ExitInfo exactly once, after which the channel
	// is closed.
	Exited() <-chan ExitInfo
}

// Lifecycle is embedded by both host variants: it owns the state
// machine and the single-shot Exited event so neither variant has to
// reimplement transition validation or dispose-idempotence.
type Lifecycle struct {
	appID string

	mu    sync.Mutex
	state State

	exitedCh   chan ExitInfo
	exitedOnce sync.Once

	disposeOnce sync.Once
	stopFn      func() error
}

// NewLifecycle returns a Lifecycle in state Created. stopFn performs
// the variant-specific graceful-then-forceful shutdown and is invoked
// by every Stop call made while the host is Running or Stopping,
// including the Stop that the first Dispose makes.
func NewLifecycle(appID string, stopFn func() error) *Lifecycle {
	return &Lifecycle{
		appID:    appID,
		state:    Created,
		exitedCh: make(chan ExitInfo, 1),
		stopFn:   stopFn,
	}
}

func (l *Lifecycle) AppID() string { return l.appID }

func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Transition moves from any of from into to, or returns an error if
// the current state isn't one of from. to == Faulted is handled
// specially: legal from any non-terminal state regardless of from.
func (l *Lifecycle) Transition(to State, from ...State) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if to == Faulted {
		if l.state.isTerminal() {
			return fmt.Errorf("apphost %s: cannot fault from terminal state %s", l.appID, l.state)
		}
		l.state = Faulted
		return nil
	}
	for _, f := range from {
		if l.state == f {
			l.state = to
			return nil
		}
	}
	return fmt.Errorf("apphost %s: illegal transition %s -> %s", l.appID, l.state, to)
}

// MarkExited delivers the Exited event exactly once and settles the
// terminal state implied by info.
func (l *Lifecycle) MarkExited(info ExitInfo) {
	l.exitedOnce.Do(func() {
		l.mu.Lock()
		if info.Exception != "" {
			l.state = Faulted
		} else {
			l.state = Stopped
		}
		l.mu.Unlock()
		l.exitedCh <- info
		close(l.exitedCh)
	})
}

func (l *Lifecycle) Exited() <-chan ExitInfo { return l.exitedCh }

// Stop drives Running/Stopping toward Stopped via stopFn, tolerating
// concurrent callers and an already-terminal host.
func (l *Lifecycle) Stop() error {
	l.mu.Lock()
	if l.state.isTerminal() {
		l.mu.Unlock()
		return nil
	}
	if l.state != Running && l.state != Stopping {
		l.mu.Unlock()
		return fmt.Errorf("apphost %s: stop() called from %s", l.appID, l.state)
	}
	l.state = Stopping
	l.mu.Unlock()

	if l.stopFn == nil {
		return nil
	}
	return l.stopFn()
}

// Dispose runs Stop then fn exactly once, regardless of how many times
// Dispose is called.
func (l *Lifecycle) Dispose(fn func() error) error {
	var err error
	l.disposeOnce.Do(func() {
		_ = l.Stop()
		if fn != nil {
			err = fn()
		}
	})
	return err
}

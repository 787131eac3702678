// Package kernel implements the central coordinator: the process
// registry, the static command→permission table, the API router, and
// the built-in handlers.
package kernel

import (
	"time"

	"github.com/ecomter/estarter/pkg/permset"
)

// State is a ProcessInfo lifecycle state.
type State int

const (
	Starting State = iota
	Running
	Suspended
	Terminating
	Terminated
)

func (s State) String() string {
	switch s {
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	case Suspended:
		return "Suspended"
	case Terminating:
		return "Terminating"
	case Terminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// ProcessInfo is the live record the kernel keeps for each running
// app. Exactly one ProcessInfo exists per appId at any
// time; re-registration replaces the prior entry.
//
// Every field is a value type (permset.Set included), so handing a
// ProcessInfo to a caller by value already publishes it as immutable:
// the registry's own copy cannot be reached or mutated through the
// returned value.
type ProcessInfo struct {
	AppID       string
	OSPid       int
	Version     string
	StartTime   time.Time
	Permissions permset.Set
	State       State
}

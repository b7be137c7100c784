package process

import (
	"fmt"
	"time"
)

// State represents the lifecycle state of a supervised process.
type State string

// Process states.
const (
	StateNotStarted State = "not_started" // Created, never launched
	StateRunning    State = "running"     // Launched and not yet observed to exit
	StateExited     State = "exited"      // Exited on its own
	StateTerminated State = "terminated"  // Killed by Stop before natural exit
)

// Terminal reports whether no further transitions can happen from s.
func (s State) Terminal() bool {
	return s == StateExited || s == StateTerminated
}

// Liveness is the outcome of an exit-status query.
type Liveness int

// Liveness results.
const (
	StillRunning Liveness = iota
	HasExited
	QueryFailed
)

func (l Liveness) String() string {
	switch l {
	case StillRunning:
		return "still_running"
	case HasExited:
		return "exited"
	case QueryFailed:
		return "query_failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(l))
	}
}

// Status is the tri-state answer to "has the child exited?".
// Code is only meaningful when Liveness is HasExited and CodeKnown is true.
type Status struct {
	Liveness  Liveness
	Code      int
	CodeKnown bool
	Err       error
}

// Info contains a point-in-time snapshot of a Handle.
type Info struct {
	ID          string
	State       State
	PID         int
	StartedAt   time.Time
	EndedAt     time.Time
	ExitCode    int
	ExitKnown   bool
	LastError   error
	StdoutLines int64
	StderrLines int64
}

package process

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the process package.
var (
	// ErrAlreadyStarted is returned by Start on a handle that has left StateNotStarted.
	ErrAlreadyStarted = errors.New("process already started")

	// ErrPollLoopAttached is returned when a second PollLoop is bound to a handle.
	ErrPollLoopAttached = errors.New("poll loop already attached")

	// ErrStreamClosed marks a read on a pipe that Stop closed underneath the reader.
	// It is absorbed by the drain cycle and never returned to callers.
	ErrStreamClosed = errors.New("output stream closed")

	// ErrDuplicateID is returned when a group already has a member with the same id.
	ErrDuplicateID = errors.New("duplicate process id")

	// ErrNotFound is returned for unknown group member ids.
	ErrNotFound = errors.New("process not found")

	// ErrInvalidInterval is returned for non-positive poll intervals.
	ErrInvalidInterval = errors.New("poll interval must be positive")

	// ErrUnreaped is reported by Liveness for a terminated handle whose child
	// was not reaped after SIGKILL.
	ErrUnreaped = errors.New("process not reaped after kill")

	// ErrEmptyCommand is returned when neither Command nor Args yields an executable.
	ErrEmptyCommand = errors.New("empty command")
)

// LaunchError reports that the OS refused to create the child process.
// The handle stays in StateNotStarted.
type LaunchError struct {
	ID      string
	Command string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s (%q): %v", e.ID, e.Command, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// StreamReadError is a fatal, unexpected failure reading one output stream.
// Drainage of the handle stops but Stop keeps working.
type StreamReadError struct {
	ID     string
	Stream Stream
	Err    error
}

func (e *StreamReadError) Error() string {
	return fmt.Sprintf("read %s of %s: %v", e.Stream, e.ID, e.Err)
}

func (e *StreamReadError) Unwrap() error { return e.Err }

// MemberError is one failed member of a group operation.
type MemberError struct {
	ID  string
	Err error
}

// BatchError collects per-member failures of a group operation, in member order.
type BatchError struct {
	Op     string
	Errors []MemberError
}

func (e *BatchError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, me := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %v", me.ID, me.Err))
	}
	return fmt.Sprintf("%s failed for %d process(es): %s", e.Op, len(e.Errors), strings.Join(parts, "; "))
}

// Unwrap exposes member errors to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Errors))
	for i, me := range e.Errors {
		errs[i] = me.Err
	}
	return errs
}

// For returns the error recorded for id, or nil.
func (e *BatchError) For(id string) error {
	for _, me := range e.Errors {
		if me.ID == id {
			return me.Err
		}
	}
	return nil
}

// errOrNil returns nil for an empty batch so callers can use err != nil.
func (e *BatchError) errOrNil() error {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return e
}

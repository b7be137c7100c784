package events

import (
	"time"

	"github.com/smazurov/procwatch/internal/process"
)

func now() string { return time.Now().Format(time.RFC3339) }

// StateChangeCallback returns a process.StateChangeCallback that publishes
// ProcessStateChangedEvent. exitCode is consulted for terminal states.
func StateChangeCallback(bus *Bus, exitCode func(id string) (int, bool)) process.StateChangeCallback {
	return func(id string, oldState, newState process.State, err error) {
		ev := ProcessStateChangedEvent{
			ID:        id,
			OldState:  string(oldState),
			NewState:  string(newState),
			Timestamp: now(),
		}
		if err != nil {
			ev.Error = err.Error()
		}
		if newState.Terminal() && exitCode != nil {
			if code, ok := exitCode(id); ok {
				ev.ExitCode = &code
			}
		}
		bus.Publish(ev)
	}
}

// ErrorCallback returns a process.ErrorCallback that publishes ProcessErrorEvent.
func ErrorCallback(bus *Bus) process.ErrorCallback {
	return func(id string, err error) {
		bus.Publish(ProcessErrorEvent{ID: id, Error: err.Error(), Timestamp: now()})
	}
}

// OutputSink publishes every forwarded line as a ProcessOutputEvent.
type OutputSink struct {
	bus *Bus
}

// NewOutputSink creates a sink publishing on bus.
func NewOutputSink(bus *Bus) *OutputSink {
	return &OutputSink{bus: bus}
}

// WriteLine implements process.Sink.
func (s *OutputSink) WriteLine(id string, stream process.Stream, line string) {
	s.bus.Publish(ProcessOutputEvent{
		ID:        id,
		Stream:    string(stream),
		Line:      line,
		Timestamp: time.Now().Format(time.RFC3339Nano),
	})
}

// Flush implements process.Sink.
func (s *OutputSink) Flush(string, process.Stream) {}

// Package collectors feeds process metrics from handle callbacks, output
// sinks and procfs sampling.
package collectors

import (
	"github.com/smazurov/procwatch/internal/metrics"
	"github.com/smazurov/procwatch/internal/process"
)

// ProcessCollector counts forwarded lines and records lifecycle transitions.
// Install it as a group sink and wire its callbacks into GroupOptions.
type ProcessCollector struct {
	exitCode func(id string) (int, bool)
}

// NewProcessCollector creates a collector. exitCode is consulted on terminal
// transitions and may be nil.
func NewProcessCollector(exitCode func(id string) (int, bool)) *ProcessCollector {
	return &ProcessCollector{exitCode: exitCode}
}

// WriteLine implements process.Sink.
func (c *ProcessCollector) WriteLine(id string, stream process.Stream, _ string) {
	metrics.AddProcessLine(id, string(stream))
}

// Flush implements process.Sink.
func (c *ProcessCollector) Flush(string, process.Stream) {}

// OnStateChange is a process.StateChangeCallback.
func (c *ProcessCollector) OnStateChange(id string, _, newState process.State, _ error) {
	metrics.SetProcessState(id, string(newState))
	if newState.Terminal() {
		metrics.DeleteProcessResources(id)
		if c.exitCode != nil {
			if code, ok := c.exitCode(id); ok {
				metrics.SetProcessExitCode(id, code)
			}
		}
	}
}

// OnError is a process.ErrorCallback.
func (c *ProcessCollector) OnError(id string, _ error) {
	metrics.IncDrainErrors(id)
}

// OnLaunchFailure records a failed Start.
func (c *ProcessCollector) OnLaunchFailure(id string) {
	metrics.IncLaunchFailures(id)
}

// Forget removes every series of a process that left the group.
func (c *ProcessCollector) Forget(id string) {
	metrics.DeleteProcessMetrics(id)
}

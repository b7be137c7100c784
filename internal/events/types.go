package events

// Event type constants for kelindar/event.
const (
	TypeProcessStateChanged uint32 = iota + 1
	TypeProcessError
	TypeProcessOutput
	TypeProcessAdded
	TypeProcessRemoved
	TypeConfigReloaded
	TypeConfigError
	TypeProcessMetrics
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ProcessStateChangedEvent is published on every lifecycle transition of a
// supervised process.
type ProcessStateChangedEvent struct {
	ID        string `json:"id" example:"web" doc:"Process identifier"`
	OldState  string `json:"old_state" example:"running" doc:"Previous state"`
	NewState  string `json:"new_state" example:"exited" doc:"New state"`
	ExitCode  *int   `json:"exit_code,omitempty" example:"0" doc:"Exit code, when the platform reported one"`
	Error     string `json:"error,omitempty" doc:"Error that caused the transition, if any"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ProcessStateChangedEvent.
func (e ProcessStateChangedEvent) Type() uint32 { return TypeProcessStateChanged }

// ProcessErrorEvent is published when draining a process's output fails.
type ProcessErrorEvent struct {
	ID        string `json:"id" example:"web" doc:"Process identifier"`
	Error     string `json:"error" example:"read stdout of web: input/output error" doc:"Error message"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ProcessErrorEvent.
func (e ProcessErrorEvent) Type() uint32 { return TypeProcessError }

// ProcessOutputEvent carries one line of process output.
type ProcessOutputEvent struct {
	ID        string `json:"id" example:"web" doc:"Process identifier"`
	Stream    string `json:"stream" example:"stdout" doc:"Output stream: stdout or stderr"`
	Line      string `json:"line" doc:"Output line without its terminator"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00.123Z" doc:"Time the line was drained"`
}

// Type returns the event type identifier for ProcessOutputEvent.
func (e ProcessOutputEvent) Type() uint32 { return TypeProcessOutput }

// ProcessAddedEvent is published when a process joins the supervised group.
type ProcessAddedEvent struct {
	ID        string `json:"id" example:"web" doc:"Process identifier"`
	Command   string `json:"command" example:"python3 -m http.server" doc:"Command line"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ProcessAddedEvent.
func (e ProcessAddedEvent) Type() uint32 { return TypeProcessAdded }

// ProcessRemovedEvent is published when a process leaves the supervised group.
type ProcessRemovedEvent struct {
	ID        string `json:"id" example:"web" doc:"Process identifier"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ProcessRemovedEvent.
func (e ProcessRemovedEvent) Type() uint32 { return TypeProcessRemoved }

// ConfigReloadedEvent is published after the procfile was reloaded and applied.
type ConfigReloadedEvent struct {
	Path      string   `json:"path" example:"/etc/procwatch/procwatch.toml" doc:"Procfile path"`
	Added     []string `json:"added,omitempty" doc:"Ids of added processes"`
	Removed   []string `json:"removed,omitempty" doc:"Ids of removed processes"`
	Changed   []string `json:"changed,omitempty" doc:"Ids of restarted processes"`
	Timestamp string   `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ConfigReloadedEvent.
func (e ConfigReloadedEvent) Type() uint32 { return TypeConfigReloaded }

// ConfigErrorEvent is published when a changed procfile could not be loaded.
type ConfigErrorEvent struct {
	Path      string `json:"path" doc:"Procfile path"`
	Error     string `json:"error" doc:"Load error"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ConfigErrorEvent.
func (e ConfigErrorEvent) Type() uint32 { return TypeConfigError }

// ProcessMetricsEvent carries the counters and sampled resources of one process.
type ProcessMetricsEvent struct {
	EventType     string `json:"type" example:"process_metrics" doc:"Event type"`
	ID            string `json:"id" example:"web" doc:"Process identifier"`
	State         string `json:"state" example:"running" doc:"Current state"`
	StdoutLines   string `json:"stdout_lines" example:"1024" doc:"Lines forwarded from stdout"`
	StderrLines   string `json:"stderr_lines" example:"3" doc:"Lines forwarded from stderr"`
	Uptime        string `json:"uptime,omitempty" example:"1m30s" doc:"Time since launch while running"`
	ExitCode      string `json:"exit_code,omitempty" example:"0" doc:"Exit code of the last run when known"`
	ResidentBytes string `json:"rss_bytes,omitempty" example:"10485760" doc:"Resident memory of the last sample"`
	CPUSeconds    string `json:"cpu_seconds,omitempty" example:"1.25" doc:"User plus system CPU time of the last sample"`
	Threads       string `json:"threads,omitempty" example:"4" doc:"Thread count of the last sample"`
}

// Type returns the event type identifier for ProcessMetricsEvent.
func (e ProcessMetricsEvent) Type() uint32 { return TypeProcessMetrics }

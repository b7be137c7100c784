package models

import (
	"github.com/smazurov/procwatch/internal/version"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionResponse struct {
	Body version.Info
}

// Process models
type ProcessData struct {
	ID           string `json:"id" example:"web" doc:"Process identifier"`
	State        string `json:"state" example:"running" enum:"not_started,running,exited,terminated" doc:"Lifecycle state"`
	Running      bool   `json:"running" example:"true" doc:"Whether the child is alive right now"`
	PID          int    `json:"pid,omitempty" example:"4242" doc:"OS process id once launched"`
	Command      string `json:"command" example:"python3 -m http.server 8000" doc:"Command line"`
	Dir          string `json:"dir,omitempty" example:"/srv/site" doc:"Working directory"`
	PollInterval string `json:"poll_interval" example:"100ms" doc:"Output drain interval"`
	StartedAt    string `json:"started_at,omitempty" example:"2025-01-27T10:30:00Z" doc:"Launch time"`
	EndedAt      string `json:"ended_at,omitempty" example:"2025-01-27T11:30:00Z" doc:"Time the process became terminal"`
	ExitCode     *int   `json:"exit_code,omitempty" example:"0" doc:"Exit code, when the platform reported one"`
	LastError    string `json:"last_error,omitempty" doc:"Last launch, query or drain error"`
	StdoutActive bool   `json:"stdout_active" example:"true" doc:"Whether stdout lines are forwarded"`
	StderrActive bool   `json:"stderr_active" example:"true" doc:"Whether stderr lines are forwarded"`
	StdoutLines  int64  `json:"stdout_lines" example:"120" doc:"Stdout lines forwarded so far"`
	StderrLines  int64  `json:"stderr_lines" example:"2" doc:"Stderr lines forwarded so far"`
}

type ProcessListData struct {
	Processes []ProcessData `json:"processes" doc:"Supervised processes in group order"`
	Count     int           `json:"count" example:"2" doc:"Number of processes"`
}

type ProcessListResponse struct {
	Body ProcessListData
}

type ProcessResponse struct {
	Body ProcessData
}

type ProcessCreateData struct {
	ID              string            `json:"id,omitempty" example:"web" doc:"Process identifier; generated when empty"`
	Command         string            `json:"command,omitempty" example:"python3 -m http.server 8000" doc:"Command line, split shell-style"`
	Args            []string          `json:"args,omitempty" doc:"Argument vector; takes precedence over command"`
	Dir             string            `json:"dir,omitempty" example:"/srv/site" doc:"Working directory (must exist)"`
	Env             map[string]string `json:"env,omitempty" doc:"Environment overrides"`
	PollInterval    string            `json:"poll_interval,omitempty" example:"250ms" doc:"Output drain interval"`
	Stdout          *bool             `json:"stdout,omitempty" doc:"Forward stdout (default true)"`
	Stderr          *bool             `json:"stderr,omitempty" doc:"Forward stderr (default true)"`
	LineWidth       int               `json:"line_width,omitempty" example:"120" doc:"Display wrap width"`
	GracefulTimeout string            `json:"graceful_timeout,omitempty" example:"5s" doc:"SIGINT grace period before kill"`
	MaxLineBytes    int               `json:"max_line_bytes,omitempty" example:"4096" doc:"Longest line forwarded in one piece"`
}

type ProcessCreateRequest struct {
	Body ProcessCreateData
}

type OutputToggleData struct {
	Active bool `json:"active" example:"false" doc:"Whether the stream is forwarded"`
}

type OutputToggleRequest struct {
	ID     string `path:"id" example:"web" doc:"Process identifier"`
	Stream string `path:"stream" enum:"stdout,stderr" example:"stderr" doc:"Output stream"`
	Body   OutputToggleData
}

type OutputLineData struct {
	ID        string `json:"id" example:"web" doc:"Process identifier"`
	Stream    string `json:"stream" example:"stdout" doc:"Output stream"`
	Line      string `json:"line" example:"Serving HTTP on 0.0.0.0 port 8000" doc:"Line without terminator"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00.123Z" doc:"Time the line was drained"`
}

type OutputHistoryData struct {
	Lines []OutputLineData `json:"lines" doc:"Retained lines, oldest first"`
	Count int              `json:"count" example:"2" doc:"Number of lines"`
}

type OutputHistoryResponse struct {
	Body OutputHistoryData
}

// Check models
type ReportData struct {
	ID        string `json:"id" example:"web" doc:"Process identifier"`
	State     string `json:"state" example:"exited" doc:"Lifecycle state"`
	Running   bool   `json:"running" example:"false" doc:"Whether the child is alive"`
	ExitCode  *int   `json:"exit_code,omitempty" example:"0" doc:"Exit code, when known"`
	LastError string `json:"last_error,omitempty" doc:"Last error"`
	Message   string `json:"message" example:"[web] finished with exit value 0" doc:"Status line"`
}

type CheckData struct {
	Reports []ReportData `json:"reports" doc:"One report per process"`
	Running int          `json:"running" example:"1" doc:"Processes still running"`
}

type CheckResponse struct {
	Body CheckData
}

// Logging models
type LoggingLevelsData struct {
	Levels map[string]string `json:"levels" doc:"Effective level per module; the empty key is the global level"`
}

type LoggingLevelsResponse struct {
	Body LoggingLevelsData
}

type LoggingLevelData struct {
	Module string `json:"module,omitempty" example:"process" doc:"Module name; empty changes the global level"`
	Level  string `json:"level" enum:"debug,info,warn,error" example:"debug" doc:"New level"`
}

type LoggingLevelRequest struct {
	Body LoggingLevelData
}

// SSE models
type ConnectedData struct {
	Message   string `json:"message" example:"SSE connection established" doc:"Greeting sent on connect"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Connection time"`
}

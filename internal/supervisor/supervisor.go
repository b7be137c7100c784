// Package supervisor runs a process group defined by a procfile and keeps it
// in sync with procfile reloads and API requests.
package supervisor

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/procwatch/internal/config"
	"github.com/smazurov/procwatch/internal/events"
	"github.com/smazurov/procwatch/internal/logging"
	"github.com/smazurov/procwatch/internal/process"
)

// Hooks observe membership changes. All fields are optional.
type Hooks struct {
	// OnAdd runs after a process joined the group, before it is started.
	OnAdd func(id string, params process.Params)
	// OnRemove runs after a process left the group.
	OnRemove func(id string)
	// OnLaunchFailure runs when starting a process failed.
	OnLaunchFailure func(id string, err error)
	// OnStateChange runs on every transition, after the event is published.
	OnStateChange process.StateChangeCallback
	// OnError runs on drainage failures, after the event is published.
	OnError process.ErrorCallback
}

// Options configures a Supervisor.
type Options struct {
	// Bus receives lifecycle events (optional).
	Bus *events.Bus
	// Sink receives the output of every process (optional).
	Sink process.Sink
	// StatusWriter and FormatReport are passed to the group for Check.
	StatusWriter io.Writer
	FormatReport process.ReportFormatter
	Hooks        Hooks
}

// Supervisor owns a process.Group. Mutations are serialized so a reload and
// an API request never interleave.
type Supervisor struct {
	group  *process.Group
	bus    *events.Bus
	hooks  Hooks
	logger *slog.Logger

	mu       sync.Mutex
	procfile *config.Procfile
}

// New creates a supervisor with an empty group.
func New(opts *Options) *Supervisor {
	var o Options
	if opts != nil {
		o = *opts
	}

	s := &Supervisor{
		bus:    o.Bus,
		hooks:  o.Hooks,
		logger: logging.GetLogger("supervisor"),
	}

	s.group = process.NewGroup(&process.GroupOptions{
		Sink:          o.Sink,
		OnStateChange: s.onStateChange,
		OnError:       s.onError,
		StatusWriter:  o.StatusWriter,
		FormatReport:  o.FormatReport,
		Logger:        logging.GetLogger("process"),
	})
	return s
}

// Group returns the supervised group.
func (s *Supervisor) Group() *process.Group { return s.group }

// Procfile returns the definitions last loaded or applied, or nil.
func (s *Supervisor) Procfile() *config.Procfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.procfile
}

func (s *Supervisor) onStateChange(id string, oldState, newState process.State, err error) {
	if s.bus != nil {
		events.StateChangeCallback(s.bus, s.ExitCode)(id, oldState, newState, err)
	}
	if s.hooks.OnStateChange != nil {
		s.hooks.OnStateChange(id, oldState, newState, err)
	}
}

func (s *Supervisor) onError(id string, err error) {
	if s.bus != nil {
		events.ErrorCallback(s.bus)(id, err)
	}
	if s.hooks.OnError != nil {
		s.hooks.OnError(id, err)
	}
}

// ExitCode returns the exit code of the current member id.
func (s *Supervisor) ExitCode(id string) (int, bool) {
	h, ok := s.group.Get(id)
	if !ok {
		return 0, false
	}
	return h.ExitCode()
}

// Load adds and starts every enabled process of pf. Processes that fail to
// start stay in the group, not started, and are reported in a *process.BatchError.
func (s *Supervisor) Load(pf *config.Procfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := &process.BatchError{Op: "load"}
	for _, id := range pf.EnabledIDs() {
		params, _ := pf.Params(id)
		if _, err := s.addLocked(id, params); err != nil {
			batch.Errors = append(batch.Errors, process.MemberError{ID: id, Err: err})
		}
	}
	s.procfile = pf

	if len(batch.Errors) > 0 {
		return batch
	}
	return nil
}

// Apply reconciles the group with next: removed processes are stopped and
// dropped, added ones are started and changed ones restart with their new
// definition. Processes added through the API are left alone.
func (s *Supervisor) Apply(next *config.Procfile) (config.Changes, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.procfile
	if prev == nil {
		prev = &config.Procfile{}
	}
	changes := prev.Diff(next)

	batch := &process.BatchError{Op: "reload"}
	for _, id := range changes.Removed {
		if err := s.removeLocked(id); err != nil && !errors.Is(err, process.ErrNotFound) {
			batch.Errors = append(batch.Errors, process.MemberError{ID: id, Err: err})
		}
	}
	for _, id := range changes.Changed {
		params, _ := next.Params(id)
		if _, err := s.replaceLocked(id, params); err != nil {
			batch.Errors = append(batch.Errors, process.MemberError{ID: id, Err: err})
		}
	}
	for _, id := range changes.Added {
		params, _ := next.Params(id)
		if _, err := s.addLocked(id, params); err != nil {
			batch.Errors = append(batch.Errors, process.MemberError{ID: id, Err: err})
		}
	}
	s.procfile = next

	if !changes.Empty() {
		s.logger.Info("Procfile applied",
			"added", len(changes.Added), "removed", len(changes.Removed), "changed", len(changes.Changed))
	}
	if s.bus != nil {
		s.bus.Publish(events.ConfigReloadedEvent{
			Path:      next.Path(),
			Added:     changes.Added,
			Removed:   changes.Removed,
			Changed:   changes.Changed,
			Timestamp: now(),
		})
	}

	if len(batch.Errors) > 0 {
		return changes, batch
	}
	return changes, nil
}

// ReportReloadError publishes a failed procfile reload. The group is unchanged.
func (s *Supervisor) ReportReloadError(path string, err error) {
	s.logger.Error("Procfile reload failed, keeping current processes", "path", path, "error", err)
	if s.bus != nil {
		s.bus.Publish(events.ConfigErrorEvent{Path: path, Error: err.Error(), Timestamp: now()})
	}
}

// Add creates and starts a process. An empty id is replaced by a generated
// one. A process that fails to start stays in the group and the *process.LaunchError
// is returned alongside its handle.
func (s *Supervisor) Add(id string, params process.Params) (*process.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(id, params)
}

func (s *Supervisor) addLocked(id string, params process.Params) (*process.Handle, error) {
	h, err := s.group.Add(id, params)
	if err != nil {
		return nil, err
	}
	if s.hooks.OnAdd != nil {
		s.hooks.OnAdd(h.ID(), params)
	}
	if s.bus != nil {
		s.bus.Publish(events.ProcessAddedEvent{ID: h.ID(), Command: params.CommandLine(), Timestamp: now()})
	}

	if err := h.Start(); err != nil {
		s.launchFailed(h.ID(), err)
		return h, err
	}
	return h, nil
}

// Remove stops a process and drops it from the group.
func (s *Supervisor) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(id)
}

func (s *Supervisor) removeLocked(id string) error {
	if err := s.group.Remove(id); err != nil {
		return err
	}
	if s.hooks.OnRemove != nil {
		s.hooks.OnRemove(id)
	}
	if s.bus != nil {
		s.bus.Publish(events.ProcessRemovedEvent{ID: id, Timestamp: now()})
	}
	return nil
}

// Start starts a process that has not been started yet. Terminal processes
// must be restarted instead.
func (s *Supervisor) Start(id string) (*process.Handle, error) {
	h, err := s.handle(id)
	if err != nil {
		return nil, err
	}
	if err := h.Start(); err != nil {
		if !errors.Is(err, process.ErrAlreadyStarted) {
			s.launchFailed(id, err)
		}
		return h, err
	}
	return h, nil
}

// Stop terminates a process. Stopping a process that is not running is a no-op.
func (s *Supervisor) Stop(id string) (*process.Handle, error) {
	h, err := s.handle(id)
	if err != nil {
		return nil, err
	}
	return h, h.Stop()
}

// Restart replaces a process with a fresh one built from the same parameters.
func (s *Supervisor) Restart(id string) (*process.Handle, error) {
	h, ok := s.group.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", process.ErrNotFound, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaceLocked(id, h.Params())
}

func (s *Supervisor) replaceLocked(id string, params process.Params) (*process.Handle, error) {
	h, err := s.group.Replace(id, params)
	if h != nil && s.hooks.OnAdd != nil {
		s.hooks.OnAdd(id, params)
	}
	if err != nil && h != nil {
		s.launchFailed(id, err)
	}
	return h, err
}

// SetOutput activates or suppresses one output stream of a running process.
func (s *Supervisor) SetOutput(id string, stream process.Stream, active bool) (*process.Handle, error) {
	h, err := s.handle(id)
	if err != nil {
		return nil, err
	}
	switch stream {
	case process.Stdout:
		h.SetStdoutActive(active)
	case process.Stderr:
		h.SetStderrActive(active)
	default:
		return nil, fmt.Errorf("unknown stream %q", stream)
	}
	s.logger.Info("Output toggled", "id", id, "stream", stream, "active", active)
	return h, nil
}

// Get returns the handle of id.
func (s *Supervisor) Get(id string) (*process.Handle, error) {
	return s.handle(id)
}

// List returns all handles in group order.
func (s *Supervisor) List() []*process.Handle {
	return s.group.Handles()
}

// Check refreshes and reports every process.
func (s *Supervisor) Check(silent bool) []process.Report {
	return s.group.Check(silent)
}

// Close stops every process.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.group.Close()
}

func (s *Supervisor) handle(id string) (*process.Handle, error) {
	h, ok := s.group.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", process.ErrNotFound, id)
	}
	return h, nil
}

func (s *Supervisor) launchFailed(id string, err error) {
	if s.hooks.OnLaunchFailure != nil {
		s.hooks.OnLaunchFailure(id, err)
	}
	if s.bus != nil {
		s.bus.Publish(events.ProcessErrorEvent{ID: id, Error: err.Error(), Timestamp: now()})
	}
}

func now() string { return time.Now().Format(time.RFC3339) }

package process

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Report is the outcome of checking one group member.
type Report struct {
	ID        string
	State     State
	Running   bool
	ExitCode  int
	ExitKnown bool
	LastError error
}

// Message returns the human-readable status line for r.
func (r Report) Message() string {
	switch r.State {
	case StateNotStarted:
		if r.LastError != nil {
			return fmt.Sprintf("[%s] has not been started: %v", r.ID, r.LastError)
		}
		return fmt.Sprintf("[%s] has not been started", r.ID)
	case StateRunning:
		return fmt.Sprintf("[%s] is still running", r.ID)
	case StateTerminated:
		if r.ExitKnown {
			return fmt.Sprintf("[%s] was terminated with exit value %d", r.ID, r.ExitCode)
		}
		return fmt.Sprintf("[%s] was terminated", r.ID)
	default:
		if r.ExitKnown {
			return fmt.Sprintf("[%s] finished with exit value %d", r.ID, r.ExitCode)
		}
		return fmt.Sprintf("[%s] finished with unknown exit value", r.ID)
	}
}

// ReportFormatter renders a report as one status line.
type ReportFormatter func(Report) string

// GroupOptions configures a new Group.
type GroupOptions struct {
	// Sink receives output of every member (optional).
	Sink Sink

	// OnStateChange is called when a member transitions (optional).
	OnStateChange StateChangeCallback

	// OnError is called when a member's drainage fails (optional).
	OnError ErrorCallback

	// StatusWriter receives Check status lines. If nil, lines are discarded.
	StatusWriter io.Writer

	// FormatReport renders status lines. If nil, Report.Message is used.
	FormatReport ReportFormatter

	// Logger for group operations. If nil, uses slog.Default().
	Logger *slog.Logger
}

// Group is an ordered collection of handles managed as a unit. Batch
// operations are best-effort: every member is attempted and failures are
// returned together as a *BatchError.
type Group struct {
	opts    GroupOptions
	logger  *slog.Logger
	mu      sync.RWMutex
	members []*Handle
	index   map[string]*Handle
	statusW sync.Mutex
}

// NewGroup creates an empty group.
func NewGroup(opts *GroupOptions) *Group {
	var o GroupOptions
	if opts != nil {
		o = *opts
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.StatusWriter == nil {
		o.StatusWriter = io.Discard
	}
	if o.FormatReport == nil {
		o.FormatReport = Report.Message
	}
	return &Group{
		opts:   o,
		logger: o.Logger,
		index:  make(map[string]*Handle),
	}
}

// Add creates a member from params. An empty id is replaced by a generated one.
func (g *Group) Add(id string, params Params) (*Handle, error) {
	if id == "" {
		id = uuid.New().String()
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.index[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}

	h := g.newHandle(id, params)
	g.members = append(g.members, h)
	g.index[id] = h
	return h, nil
}

func (g *Group) newHandle(id string, params Params) *Handle {
	h := NewHandleWithSink(id, params, g.logger, g.opts.Sink)
	h.SetStateChangeCallback(g.opts.OnStateChange)
	h.SetErrorCallback(g.opts.OnError)
	return h
}

// Get returns the member with the given id.
func (g *Group) Get(id string) (*Handle, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	h, ok := g.index[id]
	return h, ok
}

// Handles returns the members in order.
func (g *Group) Handles() []*Handle {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]*Handle(nil), g.members...)
}

// Len returns the number of members.
func (g *Group) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.members)
}

// Start starts every member that has not been started yet, in member order.
func (g *Group) Start() error {
	batch := &BatchError{Op: "start"}
	for _, h := range g.Handles() {
		if h.State() != StateNotStarted {
			continue
		}
		if err := g.safely(h, h.Start); err != nil {
			batch.Errors = append(batch.Errors, MemberError{ID: h.ID(), Err: err})
		}
	}
	if len(batch.Errors) > 0 {
		g.logger.Warn("Some processes failed to start", "failed", len(batch.Errors))
	}
	return batch.errOrNil()
}

// Stop stops every member.
func (g *Group) Stop() error {
	g.logger.Info("Stopping all processes")
	batch := &BatchError{Op: "stop"}
	for _, h := range g.Handles() {
		if err := g.safely(h, h.Stop); err != nil {
			batch.Errors = append(batch.Errors, MemberError{ID: h.ID(), Err: err})
		}
	}
	return batch.errOrNil()
}

// Check re-evaluates every member's liveness, retiring poll loops of members
// that have exited. Unless silent, one status line per member is written to
// the status writer.
func (g *Group) Check(silent bool) []Report {
	members := g.Handles()
	reports := make([]Report, 0, len(members))

	for _, h := range members {
		state := h.Refresh()
		if state.Terminal() {
			if loop := h.PollLoop(); loop != nil && loop.Active() {
				loop.Cancel()
			}
		}

		info := h.Info()
		r := Report{
			ID:        h.ID(),
			State:     state,
			Running:   state == StateRunning && h.IsRunning(),
			ExitCode:  info.ExitCode,
			ExitKnown: info.ExitKnown,
			LastError: info.LastError,
		}
		reports = append(reports, r)

		if !silent {
			g.writeStatus(g.opts.FormatReport(r))
		}
	}
	return reports
}

func (g *Group) writeStatus(line string) {
	g.statusW.Lock()
	defer g.statusW.Unlock()
	if _, err := fmt.Fprintln(g.opts.StatusWriter, line); err != nil {
		g.logger.Warn("Failed to write status line", "error", err)
	}
}

// Remove stops a member and drops it from the group.
func (g *Group) Remove(id string) error {
	g.mu.Lock()
	h, ok := g.index[id]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(g.index, id)
	for i, m := range g.members {
		if m == h {
			g.members = append(g.members[:i], g.members[i+1:]...)
			break
		}
	}
	g.mu.Unlock()

	return h.Close()
}

// Restart stops a member and replaces it, in place, with a fresh handle built
// from the same parameters, then starts it.
func (g *Group) Restart(id string) (*Handle, error) {
	g.logger.Info("Restarting process", "id", id)

	old, ok := g.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return g.Replace(id, old.Params())
}

// Replace swaps the member id for a new handle with params and starts it.
// The old member is stopped first.
func (g *Group) Replace(id string, params Params) (*Handle, error) {
	g.mu.Lock()
	old, ok := g.index[id]
	if !ok {
		g.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	h := g.newHandle(id, params)
	for i, m := range g.members {
		if m == old {
			g.members[i] = h
			break
		}
	}
	g.index[id] = h
	g.mu.Unlock()

	if err := old.Close(); err != nil {
		g.logger.Warn("Failed to stop replaced process", "id", id, "error", err)
	}
	return h, h.Start()
}

// Wait blocks until every started member is terminal or ctx ends. Members
// whose poll loop ended early are refreshed on each tick.
func (g *Group) Wait(ctx context.Context) error {
	ticker := time.NewTicker(DefaultPollInterval)
	defer ticker.Stop()

	for _, h := range g.Handles() {
		if h.State() == StateNotStarted {
			continue
		}
		for waiting := true; waiting; {
			select {
			case <-h.Done():
				waiting = false
			case <-ticker.C:
				h.Refresh()
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// Close stops and disposes of every member.
func (g *Group) Close() error {
	batch := &BatchError{Op: "close"}
	for _, h := range g.Handles() {
		if err := g.safely(h, h.Close); err != nil {
			batch.Errors = append(batch.Errors, MemberError{ID: h.ID(), Err: err})
		}
	}
	return batch.errOrNil()
}

// safely runs op for h, turning a panic into an error so one member cannot
// abort a batch.
func (g *Group) safely(h *Handle, op func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("Process operation panicked", "id", h.ID(), "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return op()
}

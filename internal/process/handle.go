package process

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNotStarted is reported by Liveness for handles that never launched.
var ErrNotStarted = errors.New("process not started")

// StateChangeCallback is called after a handle changes state.
// Used for domain-specific reactions (events, metrics).
type StateChangeCallback func(id string, oldState, newState State, err error)

// ErrorCallback receives fatal drain errors that ended a handle's poll loop.
type ErrorCallback func(id string, err error)

// Handle owns one child process: its state, both output pipes and its poll loop.
// It is safe for concurrent use.
type Handle struct {
	id     string
	params Params
	logger *slog.Logger
	sink   Sink

	stdoutOn *outputSwitch
	stderrOn *outputSwitch

	onStateChange StateChangeCallback
	onError       ErrorCallback

	killTimeout  time.Duration
	flushTimeout time.Duration

	// mu guards lifecycle fields below.
	mu        sync.Mutex
	state     State
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time
	endedAt   time.Time
	exitCode  int
	exitKnown bool
	lastErr   error
	stopping  bool
	poll      *PollLoop

	// drainMu serializes consumers of lines so per-stream order is preserved.
	drainMu     sync.Mutex
	lines       chan lineMsg
	openStreams int
	drainFailed bool

	stdoutR     *os.File
	stderrR     *os.File
	readersDone chan struct{}
	quit        chan struct{}
	wake        chan struct{}

	waitDone   chan struct{}
	waitStatus Status

	done        chan struct{}
	releaseOnce sync.Once

	stdoutLines atomic.Int64
	stderrLines atomic.Int64
}

// NewHandle creates a handle that discards output.
func NewHandle(id string, params Params, logger *slog.Logger) *Handle {
	return NewHandleWithSink(id, params, logger, nil)
}

// NewHandleWithSink creates a handle forwarding output to sink.
// The sink receives each line of stdout/stderr whose stream is active.
func NewHandleWithSink(id string, params Params, logger *slog.Logger, sink Sink) *Handle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handle{
		id:           id,
		params:       params.clone(),
		logger:       logger.With("id", id),
		sink:         sink,
		stdoutOn:     newOutputSwitch(!params.SuppressStdout),
		stderrOn:     newOutputSwitch(!params.SuppressStderr),
		killTimeout:  defaultKillTimeout,
		flushTimeout: defaultFlushTimeout,
		state:        StateNotStarted,
		done:         make(chan struct{}),
	}
}

// ID returns the caller-chosen label.
func (h *Handle) ID() string { return h.id }

// Params returns a copy of the launch parameters.
func (h *Handle) Params() Params { return h.params.clone() }

// SetStateChangeCallback registers cb. Must be called before Start.
func (h *Handle) SetStateChangeCallback(cb StateChangeCallback) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onStateChange = cb
}

// SetErrorCallback registers cb for fatal drain errors. Must be called before Start.
func (h *Handle) SetErrorCallback(cb ErrorCallback) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onError = cb
}

// SetStdoutActive enables or suppresses forwarding of stdout lines. Safe at any time.
func (h *Handle) SetStdoutActive(active bool) { h.stdoutOn.active.Store(active) }

// SetStderrActive enables or suppresses forwarding of stderr lines. Safe at any time.
func (h *Handle) SetStderrActive(active bool) { h.stderrOn.active.Store(active) }

// StdoutActive reports whether stdout lines are forwarded.
func (h *Handle) StdoutActive() bool { return h.stdoutOn.active.Load() }

// StderrActive reports whether stderr lines are forwarded.
func (h *Handle) StderrActive() bool { return h.stderrOn.active.Load() }

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Done returns a channel closed once the handle reaches a terminal state.
func (h *Handle) Done() <-chan struct{} { return h.done }

// PollLoop returns the attached poll loop, or nil.
func (h *Handle) PollLoop() *PollLoop {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.poll
}

// Info returns a snapshot of the handle.
func (h *Handle) Info() *Info {
	h.mu.Lock()
	defer h.mu.Unlock()
	return &Info{
		ID:          h.id,
		State:       h.state,
		PID:         h.pid,
		StartedAt:   h.startedAt,
		EndedAt:     h.endedAt,
		ExitCode:    h.exitCode,
		ExitKnown:   h.exitKnown,
		LastError:   h.lastErr,
		StdoutLines: h.stdoutLines.Load(),
		StderrLines: h.stderrLines.Load(),
	}
}

// Start spawns the child and begins draining its output.
// On failure the handle stays in StateNotStarted and a *LaunchError is returned.
func (h *Handle) Start() error {
	h.mu.Lock()
	if h.state != StateNotStarted {
		h.mu.Unlock()
		return ErrAlreadyStarted
	}

	if err := h.spawnLocked(); err != nil {
		launchErr := &LaunchError{ID: h.id, Command: h.params.CommandLine(), Err: err}
		h.lastErr = launchErr
		h.mu.Unlock()
		h.logger.Error("Failed to start process", "error", err, "command", h.params.CommandLine())
		return launchErr
	}

	h.state = StateRunning
	cb := h.onStateChange
	h.mu.Unlock()

	h.logger.Info("Process started", "pid", h.pid, "command", h.params.CommandLine())
	if cb != nil {
		cb(h.id, StateNotStarted, StateRunning, nil)
	}

	// Attaching cannot collide here: the handle only just became Running.
	if _, err := h.AttachPollLoop(h.params.interval()); err != nil {
		h.logger.Warn("Failed to attach poll loop", "error", err)
	}
	return nil
}

// spawnLocked creates both pipes, launches the child and starts the reader and
// wait goroutines. Everything created is closed again on failure.
func (h *Handle) spawnLocked() error {
	if err := h.params.validate(); err != nil {
		return err
	}
	args, err := h.params.argv()
	if err != nil {
		return err
	}

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return fmt.Errorf("create stderr pipe: %w", err)
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = h.params.Dir
	cmd.Env = h.params.environ()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	setProcGroup(cmd)

	startErr := cmd.Start()
	// The child holds its own copies of the write ends; ours must go so
	// readers see EOF when the child exits.
	stdoutW.Close()
	stderrW.Close()
	if startErr != nil {
		stdoutR.Close()
		stderrR.Close()
		return startErr
	}

	h.cmd = cmd
	h.pid = cmd.Process.Pid
	h.startedAt = time.Now()
	h.stdoutR = stdoutR
	h.stderrR = stderrR
	h.lines = make(chan lineMsg, lineQueueSize)
	h.openStreams = 2
	h.quit = make(chan struct{})
	h.wake = make(chan struct{}, 1)
	h.readersDone = make(chan struct{})
	h.waitDone = make(chan struct{})

	var readers sync.WaitGroup
	for _, r := range []struct {
		stream Stream
		file   *os.File
	}{{Stdout, stdoutR}, {Stderr, stderrR}} {
		sr := &streamReader{
			stream:  r.stream,
			r:       r.file,
			maxLine: h.params.maxLineBytes(),
			out:     h.lines,
			wake:    h.wake,
			quit:    h.quit,
		}
		readers.Add(1)
		go func() {
			defer readers.Done()
			sr.run()
		}()
	}
	go func() {
		readers.Wait()
		close(h.readersDone)
	}()

	waitDone := h.waitDone
	go func() {
		h.waitStatus = statusFromWait(cmd.Wait())
		close(waitDone)
	}()

	return nil
}

// statusFromWait converts the result of cmd.Wait into a Status.
// A child killed by a signal has exited but has no exit code.
func statusFromWait(err error) Status {
	if err == nil {
		return Status{Liveness: HasExited, Code: 0, CodeKnown: true}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code < 0 {
			return Status{Liveness: HasExited}
		}
		return Status{Liveness: HasExited, Code: code, CodeKnown: true}
	}
	return Status{Liveness: QueryFailed, Err: err}
}

// Liveness queries whether the child has exited. StillRunning is the normal
// answer for a live child and is not an error. A terminated handle whose
// child was never reaped answers QueryFailed with ErrUnreaped.
func (h *Handle) Liveness() Status {
	h.mu.Lock()
	state, waitDone := h.state, h.waitDone
	h.mu.Unlock()

	if state == StateNotStarted {
		return Status{Liveness: QueryFailed, Err: ErrNotStarted}
	}
	select {
	case <-waitDone:
		return h.waitStatus
	default:
		if state.Terminal() {
			return Status{Liveness: QueryFailed, Err: ErrUnreaped}
		}
		return Status{Liveness: StillRunning}
	}
}

// IsRunning reports whether the child is alive.
func (h *Handle) IsRunning() bool {
	return h.Liveness().Liveness == StillRunning
}

// ExitCode returns the exit code once the child has exited and the platform
// reported one. ok is false while running, before start, or when unknown.
func (h *Handle) ExitCode() (code int, ok bool) {
	h.mu.Lock()
	if h.state.Terminal() {
		defer h.mu.Unlock()
		return h.exitCode, h.exitKnown
	}
	h.mu.Unlock()

	st := h.Liveness()
	if st.Liveness == HasExited && st.CodeKnown {
		return st.Code, true
	}
	return 0, false
}

// DrainOnce forwards all queued output without blocking and re-evaluates
// liveness. When the child has exited it flushes the remaining output,
// transitions to StateExited and retires the poll loop. exited is true once
// the handle is terminal.
func (h *Handle) DrainOnce() (exited bool, err error) {
	h.drainMu.Lock()
	defer h.drainMu.Unlock()

	h.mu.Lock()
	state, waitDone := h.state, h.waitDone
	h.mu.Unlock()

	switch {
	case state == StateNotStarted:
		return false, nil
	case state.Terminal():
		return true, nil
	}

	if !h.drainFailed {
		if err := h.drainAvailableLocked(); err != nil {
			h.failDrainLocked(err)
			return false, err
		}
	}

	select {
	case <-waitDone:
		return true, h.finishLocked()
	default:
		return false, nil
	}
}

// Refresh re-evaluates liveness, performing exit cleanup if needed, and
// returns the resulting state.
func (h *Handle) Refresh() State {
	if _, err := h.DrainOnce(); err != nil {
		h.logger.Warn("Drain failed during refresh", "error", err)
	}
	return h.State()
}

// drainAvailableLocked forwards queued lines until the queue is empty. Requires drainMu.
func (h *Handle) drainAvailableLocked() error {
	for {
		select {
		case msg := <-h.lines:
			if err := h.forwardLocked(msg); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// forwardLocked delivers one message. Requires drainMu.
func (h *Handle) forwardLocked(msg lineMsg) error {
	sw := h.stdoutOn
	if msg.stream == Stderr {
		sw = h.stderrOn
	}

	switch {
	case msg.eof:
		h.openStreams--
		if h.sink != nil && sw.active.Load() {
			h.sink.Flush(h.id, msg.stream)
		}
		return nil

	case msg.err != nil:
		h.openStreams--
		if errors.Is(msg.err, ErrStreamClosed) {
			h.logger.Debug("Stream closed during drain", "stream", msg.stream)
			return nil
		}
		return &StreamReadError{ID: h.id, Stream: msg.stream, Err: msg.err}
	}

	if msg.stream == Stderr {
		h.stderrLines.Add(1)
	} else {
		h.stdoutLines.Add(1)
	}
	if h.sink != nil && sw.active.Load() {
		h.sink.WriteLine(h.id, msg.stream, msg.text)
	}
	return nil
}

// failDrainLocked records a fatal drain error; no further output is drained.
func (h *Handle) failDrainLocked(err error) {
	h.drainFailed = true
	h.mu.Lock()
	h.lastErr = err
	cb := h.onError
	h.mu.Unlock()

	h.logger.Error("Error reading output", "error", err)
	if cb != nil {
		cb(h.id, err)
	}
}

// finishLocked handles a natural exit: it drains until both readers hit EOF
// (bounded by flushTimeout, since descendants may keep the pipes open), then
// transitions to StateExited and releases resources. Requires drainMu.
func (h *Handle) finishLocked() error {
	var drainErr error
	if !h.drainFailed {
		drainErr = h.flushRemainingLocked()
		if drainErr != nil {
			h.failDrainLocked(drainErr)
		}
	}

	st := h.waitStatus

	h.mu.Lock()
	if h.state != StateRunning {
		h.mu.Unlock()
		return drainErr
	}
	h.state = StateExited
	h.endedAt = time.Now()
	h.exitCode, h.exitKnown = st.Code, st.CodeKnown
	if st.Liveness == QueryFailed {
		h.lastErr = st.Err
	}
	cb := h.onStateChange
	h.mu.Unlock()

	if st.CodeKnown {
		h.logger.Info("Process exited", "exit_code", st.Code)
	} else {
		h.logger.Info("Process exited", "exit_code", "unknown", "error", st.Err)
	}
	// Callbacks run before Done is closed so waiters observe their effects.
	if cb != nil {
		cb(h.id, StateRunning, StateExited, st.Err)
	}
	h.release()
	return drainErr
}

func (h *Handle) flushRemainingLocked() error {
	deadline := time.NewTimer(h.flushTimeout)
	defer deadline.Stop()

	for h.openStreams > 0 {
		select {
		case msg := <-h.lines:
			if err := h.forwardLocked(msg); err != nil {
				return err
			}
		case <-h.readersDone:
			// Readers have queued their final messages; drain them below.
			return h.drainAvailableLocked()
		case <-deadline.C:
			h.logger.Warn("Output still open after exit, closing", "timeout", h.flushTimeout)
			return h.drainAvailableLocked()
		}
	}
	return nil
}

// Stop forcibly terminates the child. It is idempotent: calling it on a
// never-started or terminal handle is a no-op and never fails.
func (h *Handle) Stop() error {
	h.mu.Lock()
	if h.state != StateRunning {
		h.mu.Unlock()
		return nil
	}
	if h.stopping {
		h.mu.Unlock()
		<-h.done
		return nil
	}
	h.stopping = true
	proc, waitDone := h.cmd.Process, h.waitDone
	h.mu.Unlock()

	// Exited on its own before we got here: finish as a natural exit, unless a
	// drain is in flight (possibly our caller, via a sink), which will see it too.
	select {
	case <-waitDone:
		if h.drainMu.TryLock() {
			h.drainMu.Unlock()
			// A failed drain leaves the handle Running once; the next pass skips draining.
			for {
				exited, err := h.DrainOnce()
				if err != nil {
					h.logger.Warn("Drain failed while stopping", "error", err)
				}
				if exited {
					return nil
				}
			}
		}
	default:
	}

	if h.params.GracefulTimeout > 0 {
		h.logger.Info("Sending SIGINT to process", "pid", proc.Pid)
		if err := interruptProcess(proc); err != nil {
			h.logger.Warn("Failed to send SIGINT", "error", err)
		}
		select {
		case <-waitDone:
		case <-time.After(h.params.GracefulTimeout):
			h.logger.Warn("Graceful shutdown timeout, forcing kill", "timeout", h.params.GracefulTimeout)
		}
	}

	if err := killProcess(proc); err != nil {
		h.logger.Error("Failed to kill process", "error", err)
	}

	select {
	case <-waitDone:
	case <-time.After(h.killTimeout):
		h.logger.Error("Process did not exit after kill signal, marking terminated without exit status",
			"pid", proc.Pid, "timeout", h.killTimeout)
	}

	h.mu.Lock()
	if h.state != StateRunning {
		// A concurrent drain observed the exit first.
		h.mu.Unlock()
		return nil
	}
	h.state = StateTerminated
	h.endedAt = time.Now()
	select {
	case <-waitDone:
		h.exitCode, h.exitKnown = h.waitStatus.Code, h.waitStatus.CodeKnown
	default:
	}
	cb := h.onStateChange
	h.mu.Unlock()

	h.logger.Info("Process terminated", "pid", proc.Pid)
	if cb != nil {
		cb(h.id, StateRunning, StateTerminated, nil)
	}
	h.release()
	return nil
}

// Close disposes of the handle, stopping the child if it is still running.
func (h *Handle) Close() error {
	err := h.Stop()
	h.mu.Lock()
	started := h.state != StateNotStarted
	h.mu.Unlock()
	if started {
		h.release()
	}
	return err
}

// release closes both pipes, unblocks the readers and retires the poll loop.
// Readers blocked in Read see ErrStreamClosed.
func (h *Handle) release() {
	h.releaseOnce.Do(func() {
		h.mu.Lock()
		poll := h.poll
		h.mu.Unlock()

		if h.stdoutR != nil {
			_ = h.stdoutR.Close()
		}
		if h.stderrR != nil {
			_ = h.stderrR.Close()
		}
		if h.quit != nil {
			close(h.quit)
		}
		if poll != nil {
			poll.Cancel()
		}
		close(h.done)
	})
}

// AttachPollLoop binds and starts a poll loop for this handle. A handle can
// have one active loop; a second returns ErrPollLoopAttached. On a terminal
// handle the returned loop is already cancelled. Start attaches one itself;
// this is for reattaching after Cancel.
func (h *Handle) AttachPollLoop(interval time.Duration) (*PollLoop, error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}

	h.mu.Lock()
	if h.state == StateNotStarted {
		h.mu.Unlock()
		return nil, ErrNotStarted
	}
	if h.poll != nil && h.poll.Active() {
		h.mu.Unlock()
		return nil, ErrPollLoopAttached
	}
	loop := newPollLoop(h, interval, h.logger)
	h.poll = loop
	terminal := h.state.Terminal()
	exited, wake := h.waitDone, h.wake
	h.mu.Unlock()

	loop.start(terminal, exited, wake)
	return loop, nil
}

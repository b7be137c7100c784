package process

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// PollLoop periodically drains a handle's output and re-checks its liveness.
// Cycles run on a single goroutine and never overlap; ticks that arrive
// during a long cycle are dropped.
type PollLoop struct {
	handle   *Handle
	interval time.Duration
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	active atomic.Bool
	cycles atomic.Int64
}

func newPollLoop(h *Handle, interval time.Duration, logger *slog.Logger) *PollLoop {
	ctx, cancel := context.WithCancel(context.Background())
	return &PollLoop{
		handle:   h,
		interval: interval,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// start launches the loop. A loop bound to an already terminal handle
// cancels itself without error.
func (l *PollLoop) start(terminal bool, exited <-chan struct{}, wake <-chan struct{}) {
	if terminal {
		l.cancel()
		close(l.done)
		return
	}
	l.active.Store(true)
	go l.run(exited, wake)
}

func (l *PollLoop) run(exited <-chan struct{}, wake <-chan struct{}) {
	defer close(l.done)
	defer l.active.Store(false)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
		case <-wake:
		case <-exited:
			// Exit is reported once; later cycles come from the ticker.
			exited = nil
		}

		if l.ctx.Err() != nil {
			return
		}

		l.cycles.Add(1)
		finished, err := l.handle.DrainOnce()
		if err != nil {
			l.logger.Error("Poll cycle failed, stopping drainage", "error", err)
			return
		}
		if finished {
			l.logger.Debug("Poll loop retired", "cycles", l.cycles.Load())
			return
		}
	}
}

// Cancel stops the loop. Safe to call any number of times, including from
// inside a cycle; it does not wait for the goroutine to return.
func (l *PollLoop) Cancel() {
	l.cancel()
}

// Wait blocks until the loop's goroutine has returned or ctx ends.
func (l *PollLoop) Wait(ctx context.Context) error {
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel closed when the loop has stopped.
func (l *PollLoop) Done() <-chan struct{} { return l.done }

// Active reports whether the loop is still scheduled.
func (l *PollLoop) Active() bool {
	return l.active.Load() && l.ctx.Err() == nil
}

// Interval returns the loop's cadence.
func (l *PollLoop) Interval() time.Duration { return l.interval }

// Cycles returns the number of poll cycles run so far.
func (l *PollLoop) Cycles() int64 { return l.cycles.Load() }

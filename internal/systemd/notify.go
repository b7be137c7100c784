// Package systemd reports supervisor readiness and liveness to the service
// manager over the sd_notify protocol. Every call is a no-op when the
// process was not started by systemd.
package systemd

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends sd_notify messages.
type Notifier struct {
	logger *slog.Logger
	notify func(state string) (bool, error)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewNotifier creates a notifier bound to $NOTIFY_SOCKET.
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		logger: logger,
		notify: func(state string) (bool, error) { return daemon.SdNotify(false, state) },
	}
}

func (n *Notifier) send(state string) bool {
	sent, err := n.notify(state)
	if err != nil {
		n.logger.Warn("Failed to notify systemd", "state", state, "error", err)
		return false
	}
	return sent
}

// Ready reports that startup finished.
func (n *Notifier) Ready() bool { return n.send(daemon.SdNotifyReady) }

// Reloading reports that the procfile is being re-applied. Call Ready when done.
func (n *Notifier) Reloading() bool { return n.send(daemon.SdNotifyReloading) }

// Stopping reports that shutdown began.
func (n *Notifier) Stopping() bool { return n.send(daemon.SdNotifyStopping) }

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(format string, args ...any) bool {
	return n.send("STATUS=" + fmt.Sprintf(format, args...))
}

// StartWatchdog pings the watchdog at half the configured interval while
// healthy returns true. It returns false when no watchdog is configured.
func (n *Notifier) StartWatchdog(ctx context.Context, healthy func() bool) bool {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		n.logger.Warn("Invalid watchdog configuration", "error", err)
		return false
	}
	if interval == 0 {
		return false
	}
	n.startWatchdog(ctx, interval/2, healthy)
	return true
}

func (n *Notifier) startWatchdog(ctx context.Context, every time.Duration, healthy func() bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cancel != nil {
		return
	}

	ctx, n.cancel = context.WithCancel(ctx)
	n.done = make(chan struct{})
	done := n.done

	go func() {
		defer close(done)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if healthy == nil || healthy() {
					n.send(daemon.SdNotifyWatchdog)
				}
			}
		}
	}()
	n.logger.Debug("Watchdog started", "interval", every)
}

// Stop ends the watchdog loop.
func (n *Notifier) Stop() {
	n.mu.Lock()
	cancel, done := n.cancel, n.done
	n.cancel, n.done = nil, nil
	n.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

package exporters

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/smazurov/procwatch/internal/events"
	"github.com/smazurov/procwatch/internal/metrics"
)

// EventPublisher publishes events; *events.Bus satisfies it.
type EventPublisher interface {
	Publish(ev events.Event)
}

// SSEExporter periodically publishes per-process metrics on the event bus.
// A snapshot identical to the last one published for the same process is
// skipped, so finished processes are announced once.
type SSEExporter struct {
	eventBus EventPublisher
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Owned by the run goroutine.
	last map[string]events.ProcessMetricsEvent
}

// SSEOption configures an SSEExporter.
type SSEOption func(*SSEExporter)

// WithInterval sets the publish interval. Non-positive values keep the default.
func WithInterval(d time.Duration) SSEOption {
	return func(s *SSEExporter) {
		if d > 0 {
			s.interval = d
		}
	}
}

// NewSSEExporter creates an exporter publishing every second unless configured otherwise.
func NewSSEExporter(eventBus EventPublisher, opts ...SSEOption) *SSEExporter {
	s := &SSEExporter{
		eventBus: eventBus,
		interval: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the export loop. It ends when ctx is done or Stop is called.
func (s *SSEExporter) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.last = make(map[string]events.ProcessMetricsEvent)
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop ends the export loop and waits for it. Safe to call repeatedly.
func (s *SSEExporter) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *SSEExporter) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.publishMetrics()
		}
	}
}

func (s *SSEExporter) publishMetrics() {
	all := metrics.GetAllProcessMetrics()
	for id := range s.last {
		if _, ok := all[id]; !ok {
			delete(s.last, id)
		}
	}

	for id, m := range all {
		ev := snapshotEvent(id, m)
		if prev, ok := s.last[id]; ok && prev == ev {
			continue
		}
		s.last[id] = ev
		s.eventBus.Publish(ev)
	}
}

func snapshotEvent(id string, m *metrics.ProcessMetrics) events.ProcessMetricsEvent {
	ev := events.ProcessMetricsEvent{
		EventType:   "process_metrics",
		ID:          id,
		State:       m.State,
		StdoutLines: strconv.FormatUint(m.StdoutLines, 10),
		StderrLines: strconv.FormatUint(m.StderrLines, 10),
	}
	if m.State == "running" && !m.StartedAt.IsZero() {
		ev.Uptime = time.Since(m.StartedAt).Truncate(time.Second).String()
	}
	if m.ExitKnown && m.State != "running" {
		ev.ExitCode = strconv.Itoa(m.ExitCode)
	}
	if m.Sampled {
		ev.ResidentBytes = strconv.FormatFloat(m.ResidentBytes, 'f', 0, 64)
		ev.CPUSeconds = strconv.FormatFloat(m.CPUSeconds, 'f', 2, 64)
		ev.Threads = strconv.Itoa(m.Threads)
	}
	return ev
}

// GetEventTypes returns the SSE event types this exporter publishes.
func GetEventTypes() map[string]any {
	return map[string]any{
		"process-metrics": events.ProcessMetricsEvent{},
	}
}

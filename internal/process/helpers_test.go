package process

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// lineRecorder is a Sink that keeps everything it receives.
type lineRecorder struct {
	mu      sync.Mutex
	lines   map[Stream][]string
	flushes map[Stream]int
}

func newLineRecorder() *lineRecorder {
	return &lineRecorder{
		lines:   make(map[Stream][]string),
		flushes: make(map[Stream]int),
	}
}

func (r *lineRecorder) WriteLine(_ string, stream Stream, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[stream] = append(r.lines[stream], line)
}

func (r *lineRecorder) Flush(_ string, stream Stream) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes[stream]++
}

func (r *lineRecorder) Lines(stream Stream) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines[stream]...)
}

func (r *lineRecorder) Flushes(stream Stream) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushes[stream]
}

// newTestHandle creates a handle with short timeouts for testing.
func newTestHandle(params Params, sink Sink) *Handle {
	if params.PollInterval == 0 {
		params.PollInterval = 10 * time.Millisecond
	}
	h := NewHandleWithSink("test", params, testLogger(), sink)
	h.killTimeout = time.Second
	h.flushTimeout = 500 * time.Millisecond
	return h
}

// startTestHandle starts h and registers a cleanup that stops it.
func startTestHandle(t *testing.T, h *Handle) {
	t.Helper()
	if err := h.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
}

// waitForDone waits for the handle to become terminal, failing the test on timeout.
func waitForDone(t *testing.T, h *Handle, timeout time.Duration) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(timeout):
		t.Fatalf("timeout waiting for %s to finish (state %s)", h.ID(), h.State())
	}
}

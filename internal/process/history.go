package process

import (
	"sync"
	"time"
)

// OutputEntry is one drained line kept in a History.
type OutputEntry struct {
	Timestamp time.Time `json:"timestamp"`
	ID        string    `json:"id"`
	Stream    Stream    `json:"stream"`
	Line      string    `json:"line"`
}

// History is a thread-safe circular buffer of recent output lines.
// It implements Sink.
type History struct {
	entries []OutputEntry
	size    int
	head    int
	count   int
	mu      sync.RWMutex
}

// NewHistory creates a history with the given capacity.
func NewHistory(size int) *History {
	if size <= 0 {
		size = 1
	}
	return &History{
		entries: make([]OutputEntry, size),
		size:    size,
	}
}

// WriteLine implements Sink, overwriting the oldest entry when full.
func (h *History) WriteLine(id string, stream Stream, line string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries[h.head] = OutputEntry{
		Timestamp: time.Now(),
		ID:        id,
		Stream:    stream,
		Line:      line,
	}
	h.head = (h.head + 1) % h.size

	if h.count < h.size {
		h.count++
	}
}

// Flush implements Sink.
func (h *History) Flush(string, Stream) {}

// ReadAll returns all entries in chronological order.
func (h *History) ReadAll() []OutputEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.count == 0 {
		return nil
	}

	result := make([]OutputEntry, h.count)
	if h.count < h.size {
		copy(result, h.entries[:h.count])
	} else {
		// Full: oldest entry is at head
		n := copy(result, h.entries[h.head:])
		copy(result[n:], h.entries[:h.head])
	}
	return result
}

// Lines returns the retained lines of one process, oldest first.
// An empty stream matches both streams.
func (h *History) Lines(id string, stream Stream) []string {
	var lines []string
	for _, e := range h.ReadAll() {
		if e.ID != id || (stream != "" && e.Stream != stream) {
			continue
		}
		lines = append(lines, e.Line)
	}
	return lines
}

// Entries returns the retained entries of one process, oldest first.
// An empty id matches every process.
func (h *History) Entries(id string) []OutputEntry {
	all := h.ReadAll()
	if id == "" {
		return all
	}
	var out []OutputEntry
	for _, e := range all {
		if e.ID == id {
			out = append(out, e)
		}
	}
	return out
}

// Count returns the number of entries in the buffer.
func (h *History) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

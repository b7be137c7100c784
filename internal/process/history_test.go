package process

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestHistoryWraps(t *testing.T) {
	h := NewHistory(3)
	for i := 1; i <= 5; i++ {
		h.WriteLine("a", Stdout, fmt.Sprintf("line%d", i))
	}

	if h.Count() != 3 {
		t.Fatalf("expected count 3, got %d", h.Count())
	}
	entries := h.ReadAll()
	for i, want := range []string{"line3", "line4", "line5"} {
		if entries[i].Line != want {
			t.Errorf("entry %d: expected %s, got %s", i, want, entries[i].Line)
		}
	}
}

func TestHistoryEmpty(t *testing.T) {
	h := NewHistory(0)
	if h.ReadAll() != nil {
		t.Error("expected nil entries for empty history")
	}
	h.WriteLine("a", Stdout, "x")
	h.WriteLine("a", Stdout, "y")
	if h.Count() != 1 {
		t.Errorf("expected minimum capacity 1, got count %d", h.Count())
	}
}

func TestHistoryLinesFilter(t *testing.T) {
	h := NewHistory(10)
	h.WriteLine("a", Stdout, "a-out")
	h.WriteLine("b", Stdout, "b-out")
	h.WriteLine("a", Stderr, "a-err")

	if got := h.Lines("a", ""); len(got) != 2 || got[0] != "a-out" || got[1] != "a-err" {
		t.Errorf("unexpected lines for a: %q", got)
	}
	if got := h.Lines("a", Stderr); len(got) != 1 || got[0] != "a-err" {
		t.Errorf("unexpected stderr lines for a: %q", got)
	}
	if got := h.Lines("c", ""); len(got) != 0 {
		t.Errorf("expected no lines for c, got %q", got)
	}
	if got := h.Entries("b"); len(got) != 1 || got[0].Line != "b-out" {
		t.Errorf("unexpected entries for b: %+v", got)
	}
	if got := h.Entries(""); len(got) != 3 {
		t.Errorf("expected all 3 entries, got %d", len(got))
	}
}

func TestHistoryConcurrentWrites(t *testing.T) {
	h := NewHistory(100)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				h.WriteLine(fmt.Sprintf("p%d", n), Stdout, "x")
			}
		}(i)
	}
	wg.Wait()

	if h.Count() != 100 {
		t.Errorf("expected full history, got %d", h.Count())
	}
}

func TestHistoryAsHandleSink(t *testing.T) {
	hist := NewHistory(10)
	h := newTestHandle(Params{Args: []string{"sh", "-c", "echo one; echo two >&2"}}, hist)
	startTestHandle(t, h)
	waitForDone(t, h, 5*time.Second)

	if got := hist.Lines("test", Stdout); len(got) != 1 || got[0] != "one" {
		t.Errorf("unexpected stdout history %q", got)
	}
	if got := hist.Lines("test", Stderr); len(got) != 1 || got[0] != "two" {
		t.Errorf("unexpected stderr history %q", got)
	}
}

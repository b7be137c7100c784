package process

import (
	"errors"
	"io"
	"os"
	"slices"
	"strings"
	"testing"
	"time"
)

func runReader(t *testing.T, r io.Reader, maxLine int) []lineMsg {
	t.Helper()
	out := make(chan lineMsg, lineQueueSize)
	sr := &streamReader{
		stream:  Stdout,
		r:       r,
		maxLine: maxLine,
		out:     out,
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
	}

	done := make(chan struct{})
	go func() {
		sr.run()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("reader did not finish")
	}

	close(out)
	var msgs []lineMsg
	for m := range out {
		msgs = append(msgs, m)
	}
	return msgs
}

func TestStreamReaderLines(t *testing.T) {
	msgs := runReader(t, strings.NewReader("a\nb\r\n\nlast"), DefaultMaxLineBytes)

	want := []string{"a", "b", "", "last"}
	if len(msgs) != len(want)+1 {
		t.Fatalf("expected %d messages, got %d", len(want)+1, len(msgs))
	}
	for i, w := range want {
		if msgs[i].text != w || msgs[i].eof || msgs[i].err != nil {
			t.Errorf("message %d: expected line %q, got %+v", i, w, msgs[i])
		}
	}
	if !msgs[len(msgs)-1].eof {
		t.Error("expected final eof message")
	}
}

func TestStreamReaderLongLine(t *testing.T) {
	long := strings.Repeat("x", 9000) + "\n"
	msgs := runReader(t, strings.NewReader(long), 4096)

	var total int
	var pieces int
	for _, m := range msgs {
		if m.eof {
			continue
		}
		pieces++
		total += len(m.text)
	}
	if total != 9000 {
		t.Errorf("expected 9000 bytes, got %d", total)
	}
	if pieces != 3 {
		t.Errorf("expected 3 pieces, got %d", pieces)
	}
}

func lineLengths(msgs []lineMsg) []int {
	var lens []int
	for _, m := range msgs {
		if m.eof || m.err != nil {
			continue
		}
		lens = append(lens, len(m.text))
	}
	return lens
}

func TestStreamReaderSplitsAtLimit(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		maxLine int
		want    []int
	}{
		{"exactly the limit", strings.Repeat("x", 4096) + "\n", 4096, []int{4096}},
		{"twice the limit", strings.Repeat("x", 8192) + "\n", 4096, []int{4096, 4096}},
		{"limit with crlf", strings.Repeat("x", 4096) + "\r\n", 4096, []int{4096}},
		{"limit then next line", strings.Repeat("x", 4096) + "\nnext\n", 4096, []int{4096, 4}},
		{"limit without newline", strings.Repeat("x", 4096), 4096, []int{4096}},
		{"limit below buffer size", strings.Repeat("x", 1000) + "\n", 100, []int{100, 100, 100, 100, 100, 100, 100, 100, 100, 100}},
		{"small limit with remainder", strings.Repeat("x", 250) + "\n", 100, []int{100, 100, 50}},
		{"small limit crlf", strings.Repeat("x", 100) + "\r\n" + "y\n", 100, []int{100, 1}},
		{"limit below bufio minimum", strings.Repeat("x", 25) + "\n", 10, []int{10, 10, 5}},
		{"empty lines kept", "\n\n", 100, []int{0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := lineLengths(runReader(t, strings.NewReader(tt.input), tt.maxLine))
			if !slices.Equal(got, tt.want) {
				t.Errorf("expected pieces %v, got %v", tt.want, got)
			}
		})
	}
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestStreamReaderErrors(t *testing.T) {
	msgs := runReader(t, failingReader{err: os.ErrClosed}, DefaultMaxLineBytes)
	if len(msgs) != 1 || !errors.Is(msgs[0].err, ErrStreamClosed) {
		t.Errorf("expected ErrStreamClosed, got %+v", msgs)
	}

	boom := errors.New("device error")
	msgs = runReader(t, failingReader{err: boom}, DefaultMaxLineBytes)
	if len(msgs) != 1 || !errors.Is(msgs[0].err, boom) {
		t.Errorf("expected device error, got %+v", msgs)
	}
}

func TestStreamReaderQuit(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	out := make(chan lineMsg) // unbuffered: send blocks until quit
	quit := make(chan struct{})
	sr := &streamReader{stream: Stderr, r: pr, maxLine: 10, out: out, wake: make(chan struct{}, 1), quit: quit}

	done := make(chan struct{})
	go func() {
		sr.run()
		close(done)
	}()

	go pw.Write([]byte("stuck\n"))
	time.Sleep(20 * time.Millisecond)
	close(quit)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reader ignored quit")
	}
}

func TestHandleDrainReadErrorIsFatal(t *testing.T) {
	var reported error
	h := newTestHandle(Params{Command: "sleep 5"}, nil)
	h.SetErrorCallback(func(_ string, err error) { reported = err })
	startTestHandle(t, h)
	stopPolling(t, h)

	// Inject a failed read as a reader would.
	h.lines <- lineMsg{stream: Stdout, err: errors.New("i/o error")}

	_, err := h.DrainOnce()
	var readErr *StreamReadError
	if !errors.As(err, &readErr) || readErr.Stream != Stdout {
		t.Fatalf("expected *StreamReadError on stdout, got %v", err)
	}
	if reported == nil {
		t.Error("expected error callback")
	}

	// Drainage stops, but Stop still works.
	if _, err := h.DrainOnce(); err != nil {
		t.Errorf("expected no further drain errors, got %v", err)
	}
	if err := h.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if h.State() != StateTerminated {
		t.Errorf("expected %s, got %s", StateTerminated, h.State())
	}
}

func TestHandleDrainAbsorbsClosedStream(t *testing.T) {
	h := newTestHandle(Params{Command: "sleep 5"}, nil)
	startTestHandle(t, h)
	stopPolling(t, h)

	h.lines <- lineMsg{stream: Stderr, err: ErrStreamClosed}
	if _, err := h.DrainOnce(); err != nil {
		t.Errorf("expected closed stream to be absorbed, got %v", err)
	}
	if h.Info().LastError != nil {
		t.Errorf("unexpected last error %v", h.Info().LastError)
	}
}

// stopPolling cancels the handle's poll loop and waits for it to return.
func stopPolling(t *testing.T, h *Handle) {
	t.Helper()
	loop := h.PollLoop()
	loop.Cancel()
	select {
	case <-loop.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("poll loop did not stop")
	}
}

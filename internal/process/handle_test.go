package process

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestHandleStartIsRunning(t *testing.T) {
	h := newTestHandle(Params{Command: "sleep 5"}, nil)
	startTestHandle(t, h)

	if !h.IsRunning() {
		t.Error("expected process to be running right after Start")
	}
	if h.State() != StateRunning {
		t.Errorf("expected state %s, got %s", StateRunning, h.State())
	}
	if h.Info().PID == 0 {
		t.Error("expected PID to be set")
	}
	if _, ok := h.ExitCode(); ok {
		t.Error("exit code should not be available while running")
	}
}

func TestHandleLinesInOrder(t *testing.T) {
	for _, n := range []int{0, 1, 1000} {
		for _, interval := range []time.Duration{time.Millisecond, 50 * time.Millisecond} {
			t.Run(fmt.Sprintf("%d_lines_%s", n, interval), func(t *testing.T) {
				rec := newLineRecorder()
				script := fmt.Sprintf(`i=1; while [ $i -le %d ]; do echo line$i; i=$((i+1)); done`, n)
				h := newTestHandle(Params{Args: []string{"sh", "-c", script}, PollInterval: interval}, rec)
				startTestHandle(t, h)
				waitForDone(t, h, 10*time.Second)

				lines := rec.Lines(Stdout)
				if len(lines) != n {
					t.Fatalf("expected %d lines, got %d", n, len(lines))
				}
				for i, line := range lines {
					if want := fmt.Sprintf("line%d", i+1); line != want {
						t.Fatalf("line %d: expected %q, got %q", i, want, line)
					}
				}
				if got := h.Info().StdoutLines; got != int64(n) {
					t.Errorf("expected StdoutLines=%d, got %d", n, got)
				}
			})
		}
	}
}

func TestHandleEchoHello(t *testing.T) {
	rec := newLineRecorder()
	h := newTestHandle(Params{Command: "echo hello"}, rec)
	startTestHandle(t, h)
	waitForDone(t, h, 5*time.Second)

	lines := rec.Lines(Stdout)
	if len(lines) != 1 || lines[0] != "hello" {
		t.Fatalf("expected [hello], got %q", lines)
	}
	if rec.Flushes(Stdout) != 1 {
		t.Errorf("expected stdout flushed once, got %d", rec.Flushes(Stdout))
	}
	if h.State() != StateExited {
		t.Errorf("expected state %s, got %s", StateExited, h.State())
	}
	code, ok := h.ExitCode()
	if !ok || code != 0 {
		t.Errorf("expected exit code (0, true), got (%d, %v)", code, ok)
	}
}

func TestHandleExitCodeStable(t *testing.T) {
	h := newTestHandle(Params{Args: []string{"sh", "-c", "exit 42"}}, nil)
	startTestHandle(t, h)
	waitForDone(t, h, 5*time.Second)

	for i := 0; i < 3; i++ {
		code, ok := h.ExitCode()
		if !ok || code != 42 {
			t.Fatalf("query %d: expected (42, true), got (%d, %v)", i, code, ok)
		}
	}
	if st := h.Liveness(); st.Liveness != HasExited {
		t.Errorf("expected liveness %s, got %s", HasExited, st.Liveness)
	}
}

func TestHandleStopIdempotent(t *testing.T) {
	h := newTestHandle(Params{Command: "sleep 30"}, nil)
	startTestHandle(t, h)

	if err := h.Stop(); err != nil {
		t.Fatalf("first Stop failed: %v", err)
	}
	if err := h.Stop(); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}
	if h.State() != StateTerminated {
		t.Errorf("expected state %s, got %s", StateTerminated, h.State())
	}

	// Killed by a signal: the platform reports no exit code, consistently.
	code1, ok1 := h.ExitCode()
	code2, ok2 := h.ExitCode()
	if code1 != code2 || ok1 != ok2 {
		t.Errorf("exit code changed between queries: (%d,%v) vs (%d,%v)", code1, ok1, code2, ok2)
	}
	if h.IsRunning() {
		t.Error("expected process not running after Stop")
	}
	select {
	case <-h.Done():
	default:
		t.Error("Done should be closed after Stop")
	}
}

func TestHandleUnreapedAfterKill(t *testing.T) {
	h := newTestHandle(Params{Command: "sleep 5"}, nil)
	startTestHandle(t, h)
	stopPolling(t, h)

	// Mark the handle terminated while its wait result is still pending, as
	// Stop does when SIGKILL does not reap the child in time.
	h.mu.Lock()
	realWait := h.waitDone
	h.waitDone = make(chan struct{})
	h.state = StateTerminated
	h.mu.Unlock()

	st := h.Liveness()
	if st.Liveness != QueryFailed || !errors.Is(st.Err, ErrUnreaped) {
		t.Errorf("expected QueryFailed with ErrUnreaped, got %+v", st)
	}
	if h.IsRunning() {
		t.Error("terminated handle must not report running")
	}

	h.mu.Lock()
	h.waitDone = realWait
	h.state = StateRunning
	h.mu.Unlock()
	if err := h.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if st := h.Liveness(); st.Liveness != HasExited {
		t.Errorf("expected exited after a real stop, got %+v", st)
	}
}

func TestHandleStopNeverStarted(t *testing.T) {
	h := newTestHandle(Params{Command: "sleep 1"}, nil)
	if err := h.Stop(); err != nil {
		t.Fatalf("Stop on unstarted handle failed: %v", err)
	}
	if h.State() != StateNotStarted {
		t.Errorf("expected state %s, got %s", StateNotStarted, h.State())
	}
	if st := h.Liveness(); st.Liveness != QueryFailed || !errors.Is(st.Err, ErrNotStarted) {
		t.Errorf("expected QueryFailed/ErrNotStarted, got %s/%v", st.Liveness, st.Err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close on unstarted handle failed: %v", err)
	}
}

func TestHandleStopWhileDraining(t *testing.T) {
	for i := 0; i < 5; i++ {
		rec := newLineRecorder()
		h := newTestHandle(Params{
			Args:         []string{"sh", "-c", "while :; do echo spam; done"},
			PollInterval: time.Millisecond,
		}, rec)
		startTestHandle(t, h)

		stop := make(chan struct{})
		errs := make(chan error, 100)
		var wg sync.WaitGroup
		for j := 0; j < 4; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					select {
					case <-stop:
						return
					default:
					}
					if _, err := h.DrainOnce(); err != nil {
						errs <- err
						return
					}
				}
			}()
		}

		time.Sleep(20 * time.Millisecond)
		if err := h.Stop(); err != nil {
			t.Fatalf("Stop failed: %v", err)
		}
		close(stop)
		wg.Wait()
		close(errs)

		for err := range errs {
			t.Errorf("iteration %d: drain returned error: %v", i, err)
		}
		if h.Info().LastError != nil {
			t.Errorf("iteration %d: unexpected last error: %v", i, h.Info().LastError)
		}
		if !h.State().Terminal() {
			t.Errorf("iteration %d: expected terminal state, got %s", i, h.State())
		}
	}
}

func TestHandleConcurrentStop(t *testing.T) {
	h := newTestHandle(Params{Command: "sleep 30"}, nil)
	startTestHandle(t, h)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.Stop(); err != nil {
				t.Errorf("Stop failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if h.State() != StateTerminated {
		t.Errorf("expected state %s, got %s", StateTerminated, h.State())
	}
}

func TestHandleStateChangeCallback(t *testing.T) {
	var mu sync.Mutex
	var transitions []string

	h := newTestHandle(Params{Args: []string{"sh", "-c", "exit 3"}}, nil)
	h.SetStateChangeCallback(func(id string, oldState, newState State, err error) {
		mu.Lock()
		defer mu.Unlock()
		transitions = append(transitions, fmt.Sprintf("%s:%s->%s", id, oldState, newState))
	})
	startTestHandle(t, h)
	waitForDone(t, h, 5*time.Second)
	_ = h.Stop()

	mu.Lock()
	defer mu.Unlock()
	want := []string{"test:not_started->running", "test:running->exited"}
	if len(transitions) != len(want) {
		t.Fatalf("expected transitions %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], transitions[i])
		}
	}
}

func TestHandleStartTwice(t *testing.T) {
	h := newTestHandle(Params{Command: "sleep 5"}, nil)
	startTestHandle(t, h)

	if err := h.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestHandleLaunchErrors(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		target error
	}{
		{"missing executable", Params{Command: "/nonexistent/binary --flag"}, nil},
		{"empty command", Params{Command: "   "}, ErrEmptyCommand},
		{"missing directory", Params{Command: "true", Dir: "/nonexistent/dir"}, os.ErrNotExist},
		{"unterminated quote", Params{Command: `echo "oops`}, nil},
		{"negative interval", Params{Command: "true", PollInterval: -time.Second}, ErrInvalidInterval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandle("bad", tt.params, testLogger())
			err := h.Start()

			var launchErr *LaunchError
			if !errors.As(err, &launchErr) {
				t.Fatalf("expected *LaunchError, got %T: %v", err, err)
			}
			if launchErr.ID != "bad" {
				t.Errorf("expected ID bad, got %s", launchErr.ID)
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Errorf("expected error wrapping %v, got %v", tt.target, err)
			}
			if h.State() != StateNotStarted {
				t.Errorf("expected state %s, got %s", StateNotStarted, h.State())
			}
			if !errors.Is(h.Info().LastError, launchErr) {
				t.Errorf("expected LastError to hold the launch error, got %v", h.Info().LastError)
			}
			if err := h.Stop(); err != nil {
				t.Errorf("Stop after failed launch: %v", err)
			}
		})
	}
}

func TestHandleStreamSuppression(t *testing.T) {
	rec := newLineRecorder()
	h := newTestHandle(Params{
		Args:           []string{"sh", "-c", "echo out; echo err >&2"},
		SuppressStdout: true,
	}, rec)
	startTestHandle(t, h)
	waitForDone(t, h, 5*time.Second)

	if lines := rec.Lines(Stdout); len(lines) != 0 {
		t.Errorf("expected suppressed stdout, got %q", lines)
	}
	if lines := rec.Lines(Stderr); len(lines) != 1 || lines[0] != "err" {
		t.Errorf("expected stderr [err], got %q", lines)
	}
	info := h.Info()
	if info.StdoutLines != 1 || info.StderrLines != 1 {
		t.Errorf("expected 1/1 lines drained, got %d/%d", info.StdoutLines, info.StderrLines)
	}
}

func TestHandleToggleWhileRunning(t *testing.T) {
	rec := newLineRecorder()
	dir := t.TempDir()
	gate := filepath.Join(dir, "gate")

	// First line, then wait for the gate file before the second line.
	script := fmt.Sprintf(`echo first; while [ ! -f %q ]; do sleep 0.01; done; echo second`, gate)
	h := newTestHandle(Params{Args: []string{"sh", "-c", script}}, rec)
	startTestHandle(t, h)

	deadline := time.After(5 * time.Second)
	for len(rec.Lines(Stdout)) == 0 {
		select {
		case <-deadline:
			t.Fatal("timeout waiting for first line")
		case <-time.After(10 * time.Millisecond):
		}
	}

	h.SetStdoutActive(false)
	if h.StdoutActive() {
		t.Fatal("expected stdout inactive")
	}
	if err := os.WriteFile(gate, nil, 0o644); err != nil {
		t.Fatalf("failed to write gate: %v", err)
	}
	waitForDone(t, h, 5*time.Second)

	if lines := rec.Lines(Stdout); len(lines) != 1 || lines[0] != "first" {
		t.Errorf("expected only [first], got %q", lines)
	}
	if got := h.Info().StdoutLines; got != 2 {
		t.Errorf("expected 2 lines drained, got %d", got)
	}
}

func TestHandleUnterminatedLine(t *testing.T) {
	rec := newLineRecorder()
	h := newTestHandle(Params{Args: []string{"sh", "-c", "printf 'a\\r\\nb\\nabc'"}}, rec)
	startTestHandle(t, h)
	waitForDone(t, h, 5*time.Second)

	want := []string{"a", "b", "abc"}
	lines := rec.Lines(Stdout)
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Errorf("expected %q, got %q", want, lines)
	}
}

func TestHandleLongLineSplit(t *testing.T) {
	rec := newLineRecorder()
	h := newTestHandle(Params{
		Args:         []string{"sh", "-c", `head -c 10000 /dev/zero | tr '\0' a`},
		MaxLineBytes: 4096,
	}, rec)
	startTestHandle(t, h)
	waitForDone(t, h, 5*time.Second)

	lines := rec.Lines(Stdout)
	total := 0
	for _, l := range lines {
		if len(l) > 4096 {
			t.Errorf("piece of %d bytes exceeds limit", len(l))
		}
		total += len(l)
	}
	if total != 10000 {
		t.Errorf("expected 10000 bytes in total, got %d", total)
	}
	if len(lines) != 3 {
		t.Errorf("expected 3 pieces, got %d", len(lines))
	}
}

func TestHandleLineAtDefaultLimit(t *testing.T) {
	rec := newLineRecorder()
	h := newTestHandle(Params{
		Args: []string{"sh", "-c", `head -c 65536 /dev/zero | tr '\0' a; echo`},
	}, rec)
	startTestHandle(t, h)
	waitForDone(t, h, 5*time.Second)

	lines := rec.Lines(Stdout)
	if len(lines) != 1 || len(lines[0]) != DefaultMaxLineBytes {
		lens := make([]int, len(lines))
		for i, l := range lines {
			lens[i] = len(l)
		}
		t.Errorf("expected one line of %d bytes, got lengths %v", DefaultMaxLineBytes, lens)
	}
}

func TestHandleEnvAndDir(t *testing.T) {
	rec := newLineRecorder()
	dir := t.TempDir()
	h := newTestHandle(Params{
		Args: []string{"sh", "-c", "echo $PROCWATCH_TEST_VALUE; pwd -P"},
		Dir:  dir,
		Env:  map[string]string{"PROCWATCH_TEST_VALUE": "configured"},
	}, rec)
	startTestHandle(t, h)
	waitForDone(t, h, 5*time.Second)

	lines := rec.Lines(Stdout)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", lines)
	}
	if lines[0] != "configured" {
		t.Errorf("expected env value, got %q", lines[0])
	}
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatalf("EvalSymlinks: %v", err)
	}
	if lines[1] != resolved {
		t.Errorf("expected working directory %s, got %s", resolved, lines[1])
	}
}

func TestHandleGracefulStop(t *testing.T) {
	h := newTestHandle(Params{
		Args:            []string{"sh", "-c", "trap 'exit 0' INT; while :; do sleep 0.05; done"},
		GracefulTimeout: 2 * time.Second,
	}, nil)
	startTestHandle(t, h)
	time.Sleep(100 * time.Millisecond)

	if err := h.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if h.State() != StateTerminated {
		t.Errorf("expected state %s, got %s", StateTerminated, h.State())
	}
	code, ok := h.ExitCode()
	if !ok || code != 0 {
		t.Errorf("expected trap to exit 0, got (%d, %v)", code, ok)
	}
}

func TestHandleDescendantHoldsPipe(t *testing.T) {
	rec := newLineRecorder()
	h := newTestHandle(Params{Args: []string{"sh", "-c", "sleep 3 & echo parent"}}, rec)
	h.flushTimeout = 100 * time.Millisecond
	startTestHandle(t, h)

	// The background sleep keeps stdout open; the handle still finishes.
	waitForDone(t, h, 2*time.Second)
	if h.State() != StateExited {
		t.Errorf("expected state %s, got %s", StateExited, h.State())
	}
	if lines := rec.Lines(Stdout); len(lines) != 1 || lines[0] != "parent" {
		t.Errorf("expected [parent], got %q", lines)
	}
}

func TestHandleRefreshWithoutPollLoop(t *testing.T) {
	h := newTestHandle(Params{Command: "true"}, nil)
	startTestHandle(t, h)
	h.PollLoop().Cancel()

	deadline := time.After(5 * time.Second)
	for h.Refresh() != StateExited {
		select {
		case <-deadline:
			t.Fatalf("timeout waiting for exit, state %s", h.State())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

package collectors

import (
	"errors"
	"testing"

	"github.com/smazurov/procwatch/internal/metrics"
	"github.com/smazurov/procwatch/internal/process"
)

func TestProcessCollectorLifecycle(t *testing.T) {
	id := "collector-test"
	metrics.DeleteProcessMetrics(id)
	defer metrics.DeleteProcessMetrics(id)

	c := NewProcessCollector(func(string) (int, bool) { return 7, true })

	c.OnStateChange(id, process.StateNotStarted, process.StateRunning, nil)
	c.WriteLine(id, process.Stdout, "a")
	c.WriteLine(id, process.Stderr, "b")
	c.Flush(id, process.Stdout)
	c.OnError(id, errors.New("read failed"))
	c.OnStateChange(id, process.StateRunning, process.StateExited, nil)

	m := metrics.GetProcessMetrics(id)
	if m == nil {
		t.Fatal("expected metrics for process")
	}
	if m.State != "exited" {
		t.Errorf("State = %q, want exited", m.State)
	}
	if m.StdoutLines != 1 || m.StderrLines != 1 {
		t.Errorf("lines = %d/%d, want 1/1", m.StdoutLines, m.StderrLines)
	}
	if !m.ExitKnown || m.ExitCode != 7 {
		t.Errorf("exit = %d (known %v), want 7", m.ExitCode, m.ExitKnown)
	}

	c.Forget(id)
	if metrics.GetProcessMetrics(id) != nil {
		t.Error("expected metrics to be gone after Forget")
	}
}

func TestProcessCollectorNilExitCode(t *testing.T) {
	id := "collector-nil-exit"
	defer metrics.DeleteProcessMetrics(id)

	c := NewProcessCollector(nil)
	c.OnStateChange(id, process.StateRunning, process.StateTerminated, nil)
	c.OnLaunchFailure(id)

	if m := metrics.GetProcessMetrics(id); m == nil || m.ExitKnown {
		t.Errorf("expected terminated without exit code, got %+v", m)
	}
}

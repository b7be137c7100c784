// Package metrics provides Prometheus metrics for supervised processes.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "procwatch"

var (
	processRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "process",
		Name:      "running",
		Help:      "Whether the process is currently running (1) or not (0)",
	}, []string{"id"})

	processLines = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "process",
		Name:      "lines_total",
		Help:      "Output lines forwarded to sinks",
	}, []string{"id", "stream"})

	processExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "process",
		Name:      "exits_total",
		Help:      "Terminal transitions by final state",
	}, []string{"id", "state"})

	processExitCode = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "process",
		Name:      "exit_code",
		Help:      "Exit code of the last run, when known",
	}, []string{"id"})

	processDrainErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "process",
		Name:      "drain_errors_total",
		Help:      "Fatal output drainage failures",
	}, []string{"id"})

	processLaunchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "process",
		Name:      "launch_failures_total",
		Help:      "Failed launch attempts",
	}, []string{"id"})

	// Local cache for SSE exporter access.
	processCache   = make(map[string]*ProcessMetrics)
	processCacheMu sync.RWMutex
)

// ProcessMetrics holds current metric values for a process.
type ProcessMetrics struct {
	State       string
	StdoutLines uint64
	StderrLines uint64
	StartedAt   time.Time
	ExitCode    int
	ExitKnown   bool

	// Resource usage, valid while Sampled.
	ResidentBytes float64
	CPUSeconds    float64
	Threads       int
	Sampled       bool
}

// SetProcessState records a state transition of id.
func SetProcessState(id, state string) {
	running := state == "running"
	if running {
		processRunning.WithLabelValues(id).Set(1)
	} else {
		processRunning.WithLabelValues(id).Set(0)
	}
	if state == "exited" || state == "terminated" {
		processExits.WithLabelValues(id, state).Inc()
	}
	updateCache(id, func(m *ProcessMetrics) {
		m.State = state
		if running {
			m.StartedAt = time.Now()
			m.ExitKnown = false
		}
	})
}

// SetProcessExitCode records the exit code of the last run of id.
func SetProcessExitCode(id string, code int) {
	processExitCode.WithLabelValues(id).Set(float64(code))
	updateCache(id, func(m *ProcessMetrics) {
		m.ExitCode = code
		m.ExitKnown = true
	})
}

// AddProcessLine counts one forwarded line.
func AddProcessLine(id, stream string) {
	processLines.WithLabelValues(id, stream).Inc()
	updateCache(id, func(m *ProcessMetrics) {
		if stream == "stderr" {
			m.StderrLines++
		} else {
			m.StdoutLines++
		}
	})
}

// IncDrainErrors counts a fatal drainage failure.
func IncDrainErrors(id string) {
	processDrainErrors.WithLabelValues(id).Inc()
}

// IncLaunchFailures counts a failed launch.
func IncLaunchFailures(id string) {
	processLaunchFailures.WithLabelValues(id).Inc()
}

// DeleteProcessMetrics removes all metrics for a process.
func DeleteProcessMetrics(id string) {
	processRunning.DeleteLabelValues(id)
	processLines.DeletePartialMatch(prometheus.Labels{"id": id})
	processExits.DeletePartialMatch(prometheus.Labels{"id": id})
	processExitCode.DeleteLabelValues(id)
	processDrainErrors.DeleteLabelValues(id)
	processLaunchFailures.DeleteLabelValues(id)
	deleteResourceMetrics(id)

	processCacheMu.Lock()
	delete(processCache, id)
	processCacheMu.Unlock()
}

// GetProcessMetrics returns current metric values for a process.
func GetProcessMetrics(id string) *ProcessMetrics {
	processCacheMu.RLock()
	defer processCacheMu.RUnlock()
	if m, ok := processCache[id]; ok {
		dup := *m
		return &dup
	}
	return nil
}

// GetAllProcessMetrics returns metrics for all known processes.
func GetAllProcessMetrics() map[string]*ProcessMetrics {
	processCacheMu.RLock()
	defer processCacheMu.RUnlock()
	result := make(map[string]*ProcessMetrics, len(processCache))
	for id, m := range processCache {
		dup := *m
		result[id] = &dup
	}
	return result
}

func updateCache(id string, update func(*ProcessMetrics)) {
	processCacheMu.Lock()
	defer processCacheMu.Unlock()
	m, ok := processCache[id]
	if !ok {
		m = &ProcessMetrics{}
		processCache[id] = m
	}
	update(m)
}

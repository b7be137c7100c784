package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	processResidentBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "process",
		Name:      "resident_memory_bytes",
		Help:      "Resident set size of the child process",
	}, []string{"id"})

	processCPUSeconds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "process",
		Name:      "cpu_seconds",
		Help:      "User and system CPU time consumed by the child process",
	}, []string{"id"})

	processThreads = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "process",
		Name:      "threads",
		Help:      "Number of threads of the child process",
	}, []string{"id"})
)

// SetProcessResources sets the sampled resource usage of a running process.
func SetProcessResources(id string, residentBytes, cpuSeconds float64, threads int) {
	processResidentBytes.WithLabelValues(id).Set(residentBytes)
	processCPUSeconds.WithLabelValues(id).Set(cpuSeconds)
	processThreads.WithLabelValues(id).Set(float64(threads))
	updateCache(id, func(m *ProcessMetrics) {
		m.ResidentBytes = residentBytes
		m.CPUSeconds = cpuSeconds
		m.Threads = threads
		m.Sampled = true
	})
}

func deleteResourceMetrics(id string) {
	processResidentBytes.DeleteLabelValues(id)
	processCPUSeconds.DeleteLabelValues(id)
	processThreads.DeleteLabelValues(id)
}

// DeleteProcessResources clears resource gauges of a process that stopped running.
func DeleteProcessResources(id string) {
	deleteResourceMetrics(id)

	processCacheMu.Lock()
	if m, ok := processCache[id]; ok {
		m.ResidentBytes, m.CPUSeconds, m.Threads, m.Sampled = 0, 0, 0, false
	}
	processCacheMu.Unlock()
}

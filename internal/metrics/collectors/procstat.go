package collectors

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/smazurov/procwatch/internal/logging"
	"github.com/smazurov/procwatch/internal/metrics"
	"github.com/smazurov/procwatch/internal/process"
)

// clockTicks is USER_HZ, which is 100 on every Linux architecture we run on.
const clockTicks = 100

// HandleSource lists the handles to sample. *process.Group satisfies it.
type HandleSource interface {
	Handles() []*process.Handle
}

// ProcStatCollector samples memory and CPU usage of running children from
// /proc/<pid>/stat.
type ProcStatCollector struct {
	logger   logging.Logger
	source   HandleSource
	procRoot string
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	sampled  map[string]bool
}

// NewProcStatCollector creates a new collector sampling source.
func NewProcStatCollector(source HandleSource, interval time.Duration) *ProcStatCollector {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &ProcStatCollector{
		logger:   logging.GetLogger("metrics"),
		source:   source,
		procRoot: "/proc",
		interval: interval,
		sampled:  make(map[string]bool),
	}
}

// Start begins collecting resource metrics.
func (c *ProcStatCollector) Start(ctx context.Context) error {
	if _, err := os.Stat(c.procRoot); err != nil {
		return fmt.Errorf("procfs not available: %w", err)
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	go c.run()
	return nil
}

// Stop stops the collector.
func (c *ProcStatCollector) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func (c *ProcStatCollector) run() {
	c.logger.Info("Starting process resource collection", "path", c.procRoot, "interval", c.interval)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collectMetrics()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.collectMetrics()
		}
	}
}

func (c *ProcStatCollector) collectMetrics() {
	seen := make(map[string]bool)
	for _, h := range c.source.Handles() {
		info := h.Info()
		if info.State != process.StateRunning || info.PID <= 0 {
			continue
		}

		data, err := os.ReadFile(filepath.Join(c.procRoot, strconv.Itoa(info.PID), "stat"))
		if err != nil {
			// The child may have exited between Info and the read.
			c.logger.Debug("Failed to read process stat", "id", info.ID, "pid", info.PID, "error", err)
			continue
		}

		stat, err := parseStat(string(data))
		if err != nil {
			c.logger.Warn("Failed to parse process stat", "id", info.ID, "error", err)
			continue
		}

		metrics.SetProcessResources(info.ID, stat.residentBytes(), stat.cpuSeconds(), stat.Threads)
		seen[info.ID] = true
	}

	for id := range c.sampled {
		if !seen[id] {
			metrics.DeleteProcessResources(id)
		}
	}
	c.sampled = seen
}

type procStat struct {
	UTime   uint64
	STime   uint64
	Threads int
	RSS     int64
}

func (s procStat) cpuSeconds() float64 {
	return float64(s.UTime+s.STime) / clockTicks
}

func (s procStat) residentBytes() float64 {
	return float64(s.RSS * int64(os.Getpagesize()))
}

// parseStat parses the contents of /proc/<pid>/stat. The command name may
// contain spaces and parentheses, so fields are counted from the last ')'.
func parseStat(content string) (procStat, error) {
	end := strings.LastIndexByte(content, ')')
	if end < 0 {
		return procStat{}, fmt.Errorf("missing command name")
	}
	// fields[0] is field 3 (state) of proc(5).
	fields := strings.Fields(content[end+1:])
	if len(fields) < 22 {
		return procStat{}, fmt.Errorf("insufficient fields: %d", len(fields))
	}

	utime, err := strconv.ParseUint(fields[11], 10, 64)
	if err != nil {
		return procStat{}, fmt.Errorf("utime: %w", err)
	}
	stime, err := strconv.ParseUint(fields[12], 10, 64)
	if err != nil {
		return procStat{}, fmt.Errorf("stime: %w", err)
	}
	threads, err := strconv.Atoi(fields[17])
	if err != nil {
		return procStat{}, fmt.Errorf("num_threads: %w", err)
	}
	rss, err := strconv.ParseInt(fields[21], 10, 64)
	if err != nil {
		return procStat{}, fmt.Errorf("rss: %w", err)
	}

	return procStat{UTime: utime, STime: stime, Threads: threads, RSS: rss}, nil
}

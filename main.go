package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/procwatch/cmd"
	"github.com/smazurov/procwatch/internal/api"
	"github.com/smazurov/procwatch/internal/config"
	"github.com/smazurov/procwatch/internal/display"
	"github.com/smazurov/procwatch/internal/events"
	"github.com/smazurov/procwatch/internal/lock"
	"github.com/smazurov/procwatch/internal/logging"
	"github.com/smazurov/procwatch/internal/metrics"
	"github.com/smazurov/procwatch/internal/metrics/collectors"
	"github.com/smazurov/procwatch/internal/metrics/exporters"
	"github.com/smazurov/procwatch/internal/process"
	"github.com/smazurov/procwatch/internal/supervisor"
	"github.com/smazurov/procwatch/internal/systemd"
	"github.com/smazurov/procwatch/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"procwatch.toml"`

	// Server settings
	Port       string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`
	CORSOrigin string `help:"Allowed CORS origin, empty allows any" default:"" toml:"server.cors_origin" env:"SERVER_CORS_ORIGIN"`

	// Supervision settings
	Procfile       string `help:"Process definitions file" short:"f" default:"procfile.toml" toml:"supervisor.procfile" env:"PROCFILE"`
	Watch          bool   `help:"Reload the procfile when it changes" default:"true" toml:"supervisor.watch" env:"WATCH"`
	ReloadDebounce string `help:"Quiet period before a changed procfile is reloaded" default:"500ms" toml:"supervisor.reload_debounce" env:"RELOAD_DEBOUNCE"`
	LockFile       string `help:"Lock file preventing two supervisors on one procfile" default:"procwatch.lock" toml:"supervisor.lock_file" env:"LOCK_FILE"`
	HistorySize    int    `help:"Output lines kept for the API" default:"1000" toml:"supervisor.history_size" env:"HISTORY_SIZE"`
	PrintOutput    bool   `help:"Print child output to stdout" default:"true" toml:"supervisor.print_output" env:"PRINT_OUTPUT"`
	StatusInterval string `help:"Interval of status lines on stderr, 0 disables" default:"0s" toml:"supervisor.status_interval" env:"STATUS_INTERVAL"`

	// Metrics settings
	MetricsPrometheusEnabled bool   `help:"Enable Prometheus" default:"true" toml:"metrics.prometheus_enabled" env:"METRICS_PROMETHEUS_ENABLED"`
	MetricsSSEEnabled        bool   `help:"Enable SSE metrics" default:"true" toml:"metrics.sse_enabled" env:"METRICS_SSE_ENABLED"`
	MetricsSSEInterval       string `help:"SSE metrics publish interval" default:"1s" toml:"metrics.sse_interval" env:"METRICS_SSE_INTERVAL"`
	MetricsProcInterval      string `help:"Resource sampling interval" default:"5s" toml:"metrics.proc_interval" env:"METRICS_PROC_INTERVAL"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel      string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat     string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingProcess    string `help:"Process logging level" default:"info" toml:"logging.process" env:"LOGGING_PROCESS"`
	LoggingSupervisor string `help:"Supervisor logging level" default:"info" toml:"logging.supervisor" env:"LOGGING_SUPERVISOR"`
	LoggingConfig     string `help:"Config watcher logging level" default:"info" toml:"logging.config" env:"LOGGING_CONFIG"`
	LoggingMetrics    string `help:"Metrics logging level" default:"info" toml:"logging.metrics" env:"LOGGING_METRICS"`
	LoggingAPI        string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP       string `help:"HTTP request logging level" default:"info" toml:"logging.http" env:"LOGGING_HTTP"`
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

func main() {
	var cli humacli.CLI

	// Create Huma CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically; flags set on the command line win
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		// Initialize logging system
		loggingConfig := logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"process":    opts.LoggingProcess,
				"supervisor": opts.LoggingSupervisor,
				"config":     opts.LoggingConfig,
				"metrics":    opts.LoggingMetrics,
				"api":        opts.LoggingAPI,
				"http":       opts.LoggingHTTP,
			},
		}
		logging.Initialize(loggingConfig)

		logger := logging.GetLogger("main")
		logger.Info("Starting", "version", version.Get().Short())

		// Create event bus for in-process event handling
		eventBus := events.New()
		history := process.NewHistory(opts.HistorySize)

		sinks := process.MultiSink{history, events.NewOutputSink(eventBus)}

		var printer *display.Printer
		if opts.PrintOutput {
			printer = display.NewPrinter(os.Stdout,
				display.WithColor(display.ShouldUseColor(os.Stdout)),
				display.WithWidth(display.TerminalWidth(os.Stdout)),
				display.WithStderrMarker(true),
			)
			sinks = append(sinks, printer)
		}

		var sup *supervisor.Supervisor
		processCollector := collectors.NewProcessCollector(func(id string) (int, bool) {
			return sup.ExitCode(id)
		})
		sinks = append(sinks, processCollector)

		sup = supervisor.New(&supervisor.Options{
			Bus:          eventBus,
			Sink:         sinks,
			StatusWriter: os.Stderr,
			FormatReport: display.ReportFormatter(display.ShouldUseColor(os.Stderr)),
			Hooks: supervisor.Hooks{
				OnAdd: func(id string, params process.Params) {
					if printer != nil {
						printer.SetWidth(id, params.LineWidth)
					}
				},
				OnRemove: func(id string) {
					if printer != nil {
						printer.Forget(id)
					}
					processCollector.Forget(id)
				},
				OnLaunchFailure: func(id string, _ error) {
					processCollector.OnLaunchFailure(id)
				},
				OnStateChange: processCollector.OnStateChange,
				OnError:       processCollector.OnError,
			},
		})

		apiOpts := &api.Options{
			AuthUsername: opts.AuthUsername,
			AuthPassword: opts.AuthPassword,
			Processes:    sup,
			EventBus:     eventBus,
			History:      history,
			CORSOrigin:   opts.CORSOrigin,
		}
		if opts.MetricsPrometheusEnabled {
			metrics.SetBuildInfo(version.Get())
			apiOpts.PrometheusHandler = exporters.HTTPHandler()
		}
		server := api.NewServer(apiOpts)

		notifier := systemd.NewNotifier(logging.GetLogger("systemd"))
		ctx, cancel := context.WithCancel(context.Background())

		var (
			procLock   *lock.Lock
			watcher    *config.Watcher[*config.Procfile]
			procStat   *collectors.ProcStatCollector
			sseMetrics *exporters.SSEExporter
		)

		hooks.OnStart(func() {
			var lockErr error
			procLock, lockErr = lock.Acquire(opts.LockFile)
			if lockErr != nil {
				if pid, ok := lock.Holder(opts.LockFile); ok && errors.Is(lockErr, lock.ErrLocked) {
					logger.Error("Another supervisor is running", "lock_file", opts.LockFile, "pid", pid)
				} else {
					logger.Error("Failed to acquire lock", "lock_file", opts.LockFile, "error", lockErr)
				}
				os.Exit(1)
			}

			pf, loadErr := config.LoadProcfile(opts.Procfile)
			if loadErr != nil {
				logger.Error("Failed to load procfile", "error", loadErr)
				_ = procLock.Release()
				os.Exit(1)
			}
			if startErr := sup.Load(pf); startErr != nil {
				logger.Warn("Some processes failed to start", "error", startErr)
			}

			if opts.Watch {
				watcher = config.NewConfigWatcher(opts.Procfile, config.LoadProcfile, logging.GetLogger("config"),
					config.WithDebounce[*config.Procfile](parseDuration(opts.ReloadDebounce, 500*time.Millisecond)),
					config.WithErrorHandler[*config.Procfile](func(err error) {
						sup.ReportReloadError(opts.Procfile, err)
					}),
				)
				watcher.OnReload(func(next *config.Procfile) {
					notifier.Reloading()
					defer notifier.Ready()
					changes, applyErr := sup.Apply(next)
					if applyErr != nil {
						logger.Warn("Procfile reload incomplete", "error", applyErr)
					}
					logger.Info("Procfile reloaded",
						"added", len(changes.Added),
						"removed", len(changes.Removed),
						"changed", len(changes.Changed))
				})
				if watchErr := watcher.Start(); watchErr != nil {
					logger.Warn("Failed to watch procfile", "error", watchErr)
					watcher = nil
				}
			}

			procStat = collectors.NewProcStatCollector(sup.Group(), parseDuration(opts.MetricsProcInterval, 5*time.Second))
			if statErr := procStat.Start(ctx); statErr != nil {
				logger.Info("Resource metrics unavailable", "error", statErr)
				procStat = nil
			}

			if opts.MetricsSSEEnabled {
				sseMetrics = exporters.NewSSEExporter(eventBus, exporters.WithInterval(parseDuration(opts.MetricsSSEInterval, time.Second)))
				sseMetrics.Start(ctx)
			}

			if interval := parseDuration(opts.StatusInterval, 0); interval > 0 {
				go func() {
					ticker := time.NewTicker(interval)
					defer ticker.Stop()
					for {
						select {
						case <-ctx.Done():
							return
						case <-ticker.C:
							sup.Check(false)
						}
					}
				}()
			}

			notifier.Status("supervising %d process(es)", sup.Group().Len())
			notifier.Ready()
			notifier.StartWatchdog(ctx, nil)

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			notifier.Stopping()
			logger.Info("Shutting down server")
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			if watcher != nil {
				if stopErr := watcher.Stop(); stopErr != nil {
					logger.Warn("Error stopping procfile watcher", "error", stopErr)
				}
			}

			// Stop all children after the HTTP server stops accepting new requests
			logger.Info("Stopping all processes")
			if closeErr := sup.Close(); closeErr != nil {
				logger.Error("Error stopping processes", "error", closeErr)
			}
			sup.Check(false)

			cancel()
			notifier.Stop()
			if procStat != nil {
				_ = procStat.Stop()
			}
			if sseMetrics != nil {
				sseMetrics.Stop()
			}
			if procLock != nil {
				if releaseErr := procLock.Release(); releaseErr != nil {
					logger.Warn("Failed to release lock", "error", releaseErr)
				}
			}
		})
	})

	cli.Root().Use = "procwatch"
	cli.Root().Short = "Supervise child processes and stream their output"
	cli.Root().AddCommand(cmd.CreateCheckConfigCmd())
	cli.Root().AddCommand(cmd.CreateExecCmd())
	cli.Root().AddCommand(cmd.CreateVersionCmd())

	// Run the CLI
	cli.Run()
}

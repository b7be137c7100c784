// Package logging provides slog loggers with a runtime-adjustable level per module.
//
// Initialize once at startup, then ask for module loggers anywhere:
//
//	logging.Initialize(logging.Config{
//		Level:   "info",
//		Format:  "text",
//		Modules: map[string]string{"process": "debug"},
//	})
//
//	logger := logging.GetLogger("supervisor").With("id", id)
//	logger.Info("Process started", "pid", pid)
//
// Loggers returned before Initialize keep working; their level follows later
// calls to Initialize and SetLevel because each module owns a [slog.LevelVar].
// The HTTP API exposes SetLevel at PUT /api/logging.
//
// # Destinations
//
// Records go to stdout (text or JSON) when stdout is usable, and to the
// systemd journal when [github.com/coreos/go-systemd/v22/journal.Enabled]
// reports a reachable journald. With both available a [MultiHandler] writes
// to each.
//
// Journal entries carry SYSLOG_IDENTIFIER=procwatch, MODULE, and the
// attributes of the record as upper-cased fields. The process attributes id,
// pid and stream become PROCESS_ID, PROCESS_PID and PROCESS_STREAM so they do
// not collide with journald's own fields:
//
//	journalctl -t procwatch PROCESS_ID=web -p warning
//
// # Configuration
//
// The [logging] table of the config file sets the global level, the format,
// and module levels either inline or under [logging.modules]:
//
//	[logging]
//	level = "info"
//	process = "debug"
//
//	[logging.modules]
//	api = "warn"
package logging

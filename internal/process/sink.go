package process

import (
	"log/slog"
	"sync/atomic"
)

// Stream identifies one of a child's output streams.
type Stream string

// Output streams.
const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// Sink receives drained output lines.
// Implementations can print to a terminal, keep history, count metrics, etc.
// Lines arrive without their terminator. Flush is called once per stream at end of stream.
type Sink interface {
	WriteLine(id string, stream Stream, line string)
	Flush(id string, stream Stream)
}

// SinkFunc adapts a function to a Sink with a no-op Flush.
type SinkFunc func(id string, stream Stream, line string)

// WriteLine implements Sink.
func (f SinkFunc) WriteLine(id string, stream Stream, line string) { f(id, stream, line) }

// Flush implements Sink.
func (f SinkFunc) Flush(string, Stream) {}

// MultiSink fans lines out to several sinks in order.
type MultiSink []Sink

// WriteLine implements Sink.
func (m MultiSink) WriteLine(id string, stream Stream, line string) {
	for _, s := range m {
		if s != nil {
			s.WriteLine(id, stream, line)
		}
	}
}

// Flush implements Sink.
func (m MultiSink) Flush(id string, stream Stream) {
	for _, s := range m {
		if s != nil {
			s.Flush(id, stream)
		}
	}
}

// outputSwitch gates one stream's forwarding. The flag is read once per line,
// so toggling never disturbs a drain in progress.
type outputSwitch struct {
	active atomic.Bool
}

func newOutputSwitch(active bool) *outputSwitch {
	s := &outputSwitch{}
	s.active.Store(active)
	return s
}

// LogParser parses an output line and returns the log level and message.
// Used to extract structured log info from tools with their own level prefixes.
type LogParser func(line string) (level, msg string)

// LogSink routes child output to a structured logger.
type LogSink struct {
	logger *slog.Logger
	parser LogParser
}

// NewLogSink creates a sink logging through logger. parser may be nil.
func NewLogSink(logger *slog.Logger, parser LogParser) *LogSink {
	return &LogSink{logger: logger, parser: parser}
}

// WriteLine implements Sink.
func (s *LogSink) WriteLine(id string, stream Stream, line string) {
	level, msg := "info", line
	if s.parser != nil {
		level, msg = s.parser(line)
	}

	args := []any{"id", id, "stream", string(stream)}
	switch level {
	case "fatal", "error":
		s.logger.Error(msg, args...)
	case "warning", "warn":
		s.logger.Warn(msg, args...)
	case "debug", "trace":
		s.logger.Debug(msg, args...)
	default:
		s.logger.Info(msg, args...)
	}
}

// Flush implements Sink.
func (s *LogSink) Flush(id string, stream Stream) {
	s.logger.Debug("Output stream closed", "id", id, "stream", string(stream))
}

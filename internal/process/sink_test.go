package process

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestMultiSink(t *testing.T) {
	a, b := newLineRecorder(), newLineRecorder()
	m := MultiSink{a, nil, b}

	m.WriteLine("id", Stdout, "one")
	m.Flush("id", Stdout)

	for i, rec := range []*lineRecorder{a, b} {
		if lines := rec.Lines(Stdout); len(lines) != 1 || lines[0] != "one" {
			t.Errorf("sink %d: expected [one], got %q", i, lines)
		}
		if rec.Flushes(Stdout) != 1 {
			t.Errorf("sink %d: expected one flush", i)
		}
	}
}

func TestSinkFunc(t *testing.T) {
	var got []string
	s := SinkFunc(func(id string, stream Stream, line string) {
		got = append(got, id+"/"+string(stream)+"/"+line)
	})
	s.WriteLine("x", Stderr, "boom")
	s.Flush("x", Stderr)

	if len(got) != 1 || got[0] != "x/stderr/boom" {
		t.Errorf("unexpected calls %q", got)
	}
}

func TestLogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	parser := func(line string) (string, string) {
		level, msg, found := strings.Cut(line, ": ")
		if !found {
			return "info", line
		}
		return level, msg
	}
	sink := NewLogSink(logger, parser)

	tests := []struct {
		line      string
		wantLevel string
		wantMsg   string
	}{
		{"error: disk full", "level=ERROR", "msg=\"disk full\""},
		{"fatal: dead", "level=ERROR", "msg=dead"},
		{"warning: slow", "level=WARN", "msg=slow"},
		{"warn: slower", "level=WARN", "msg=slower"},
		{"debug: detail", "level=DEBUG", "msg=detail"},
		{"trace: more", "level=DEBUG", "msg=more"},
		{"plain line", "level=INFO", "msg=\"plain line\""},
	}

	for _, tt := range tests {
		buf.Reset()
		sink.WriteLine("svc", Stdout, tt.line)
		out := buf.String()
		if !strings.Contains(out, tt.wantLevel) || !strings.Contains(out, tt.wantMsg) {
			t.Errorf("line %q: expected %s %s, got %q", tt.line, tt.wantLevel, tt.wantMsg, out)
		}
		if !strings.Contains(out, "id=svc") || !strings.Contains(out, "stream=stdout") {
			t.Errorf("line %q: missing id/stream attributes: %q", tt.line, out)
		}
	}
}

func TestLogSinkWithoutParser(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewTextHandler(&buf, nil)), nil)
	sink.WriteLine("svc", Stderr, "error: not parsed")

	if !strings.Contains(buf.String(), "level=INFO") {
		t.Errorf("expected info level without parser, got %q", buf.String())
	}
}

package process

import (
	"errors"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    []string
	}{
		{"simple", "sleep 10", []string{"sleep", "10"}},
		{"double quotes", `sh -c "echo hello world"`, []string{"sh", "-c", "echo hello world"}},
		{"single quotes", `sh -c 'echo $HOME'`, []string{"sh", "-c", "echo $HOME"}},
		{"escaped space", `ls my\ dir`, []string{"ls", "my dir"}},
		{"extra whitespace", "  echo   a\tb  ", []string{"echo", "a", "b"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SplitCommand(tt.command)
			if err != nil {
				t.Fatalf("SplitCommand failed: %v", err)
			}
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSplitCommandUnterminatedQuote(t *testing.T) {
	if _, err := SplitCommand(`echo "unterminated`); err == nil {
		t.Error("expected error for unterminated quote")
	}
}

func TestParamsArgvPrefersArgs(t *testing.T) {
	p := Params{Command: "ignored", Args: []string{"echo", "a b"}}
	args, err := p.argv()
	if err != nil {
		t.Fatalf("argv failed: %v", err)
	}
	if !reflect.DeepEqual(args, []string{"echo", "a b"}) {
		t.Errorf("unexpected argv %q", args)
	}
	if p.CommandLine() != `["echo" "a b"]` {
		t.Errorf("unexpected command line %s", p.CommandLine())
	}

	empty := Params{Command: " "}
	if _, err := empty.argv(); !errors.Is(err, ErrEmptyCommand) {
		t.Errorf("expected ErrEmptyCommand, got %v", err)
	}
}

func TestParamsEnviron(t *testing.T) {
	if env := (&Params{}).environ(); env != nil {
		t.Errorf("expected nil environment without overrides, got %d entries", len(env))
	}

	t.Setenv("PROCWATCH_BASE", "host")
	p := Params{Env: map[string]string{"B_VAR": "2", "A_VAR": "1", "PROCWATCH_BASE": "override"}}
	env := p.environ()

	joined := strings.Join(env, "\n")
	if !strings.Contains(joined, "PROCWATCH_BASE=host") {
		t.Error("expected host environment to be inherited")
	}
	tail := env[len(env)-3:]
	want := []string{"A_VAR=1", "B_VAR=2", "PROCWATCH_BASE=override"}
	if !reflect.DeepEqual(tail, want) {
		t.Errorf("expected overrides %q appended in key order, got %q", want, tail)
	}
}

func TestParamsValidate(t *testing.T) {
	file := t.TempDir() + "/file"
	if err := writeEmpty(file); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		params  Params
		wantErr bool
	}{
		{"defaults", Params{}, false},
		{"existing dir", Params{Dir: t.TempDir()}, false},
		{"missing dir", Params{Dir: "/nonexistent/dir"}, true},
		{"file as dir", Params{Dir: file}, true},
		{"negative interval", Params{PollInterval: -time.Millisecond}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParamsDefaults(t *testing.T) {
	var p Params
	if p.interval() != DefaultPollInterval {
		t.Errorf("expected default interval, got %s", p.interval())
	}
	if p.maxLineBytes() != DefaultMaxLineBytes {
		t.Errorf("expected default max line bytes, got %d", p.maxLineBytes())
	}
}

func TestParamsCloneIsolation(t *testing.T) {
	p := Params{Args: []string{"echo", "a"}, Env: map[string]string{"K": "v"}}
	h := NewHandle("iso", p, testLogger())

	p.Args[1] = "changed"
	p.Env["K"] = "changed"

	got := h.Params()
	if got.Args[1] != "a" || got.Env["K"] != "v" {
		t.Errorf("handle params changed through caller's copy: %+v", got)
	}
}

func writeEmpty(path string) error {
	return os.WriteFile(path, nil, 0o644)
}

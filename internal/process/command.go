package process

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/shlex"
)

const (
	// DefaultPollInterval is used when Params.PollInterval is zero.
	// Long intervals let a chatty child fill its pipe between cycles;
	// short ones spend host cycles on empty drains.
	DefaultPollInterval = 200 * time.Millisecond

	// DefaultMaxLineBytes bounds an unterminated line before it is forwarded in pieces.
	DefaultMaxLineBytes = 64 * 1024

	defaultKillTimeout  = 5 * time.Second
	defaultFlushTimeout = time.Second
	lineQueueSize       = 1024
)

// Params are the launch parameters of a handle. They are copied on
// construction and never change afterwards.
type Params struct {
	// Command is split into argv with shell-like quoting. Ignored when Args is set.
	Command string
	Args    []string

	// Dir must exist when set; empty means the host's working directory.
	Dir string

	// Env entries override the host environment.
	Env map[string]string

	PollInterval time.Duration

	SuppressStdout bool
	SuppressStderr bool

	// LineWidth is not used by the supervisor; display sinks read it.
	LineWidth int

	// GracefulTimeout > 0 makes Stop send SIGINT and wait this long before killing.
	GracefulTimeout time.Duration

	MaxLineBytes int
}

// SplitCommand splits a command line into arguments using POSIX shell quoting rules.
func SplitCommand(command string) ([]string, error) {
	args, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("parse command: %w", err)
	}
	return args, nil
}

// argv resolves the argument vector to execute.
func (p *Params) argv() ([]string, error) {
	if len(p.Args) > 0 {
		return p.Args, nil
	}
	args, err := SplitCommand(p.Command)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, ErrEmptyCommand
	}
	return args, nil
}

// CommandLine returns a printable form of the command.
func (p *Params) CommandLine() string {
	if len(p.Args) > 0 {
		return fmt.Sprintf("%q", p.Args)
	}
	return p.Command
}

// environ merges Env over the host environment. Overrides are appended in key
// order; exec keeps the last value for duplicate keys.
func (p *Params) environ() []string {
	if len(p.Env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(p.Env))
	for k := range p.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := os.Environ()
	for _, k := range keys {
		env = append(env, k+"="+p.Env[k])
	}
	return env
}

// validate checks parameters that the OS would otherwise reject late or unclearly.
func (p *Params) validate() error {
	if p.PollInterval < 0 {
		return ErrInvalidInterval
	}
	if p.Dir != "" {
		fi, err := os.Stat(p.Dir)
		if err != nil {
			return fmt.Errorf("working directory: %w", err)
		}
		if !fi.IsDir() {
			return fmt.Errorf("working directory %s is not a directory", p.Dir)
		}
	}
	return nil
}

func (p *Params) interval() time.Duration {
	if p.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return p.PollInterval
}

func (p *Params) maxLineBytes() int {
	if p.MaxLineBytes <= 0 {
		return DefaultMaxLineBytes
	}
	return p.MaxLineBytes
}

// clone deep-copies params so callers cannot mutate a started handle's launch state.
func (p Params) clone() Params {
	if p.Args != nil {
		p.Args = append([]string(nil), p.Args...)
	}
	if p.Env != nil {
		env := make(map[string]string, len(p.Env))
		for k, v := range p.Env {
			env[k] = v
		}
		p.Env = env
	}
	return p
}

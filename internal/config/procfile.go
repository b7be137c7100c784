package config

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/procwatch/internal/process"
)

// Duration is a time.Duration written as a string ("250ms", "5s") in TOML.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// ProcessDefinition describes one supervised process.
type ProcessDefinition struct {
	ID              string            `toml:"id" json:"id"`
	Command         string            `toml:"command,omitempty" json:"command,omitempty"`
	Args            []string          `toml:"args,omitempty" json:"args,omitempty"`
	Dir             string            `toml:"dir,omitempty" json:"dir,omitempty"`
	Env             map[string]string `toml:"env,omitempty" json:"env,omitempty"`
	PollInterval    Duration          `toml:"poll_interval,omitempty" json:"poll_interval,omitempty"`
	Stdout          *bool             `toml:"stdout,omitempty" json:"stdout,omitempty"`
	Stderr          *bool             `toml:"stderr,omitempty" json:"stderr,omitempty"`
	LineWidth       int               `toml:"line_width,omitempty" json:"line_width,omitempty"`
	GracefulTimeout Duration          `toml:"graceful_timeout,omitempty" json:"graceful_timeout,omitempty"`
	MaxLineBytes    int               `toml:"max_line_bytes,omitempty" json:"max_line_bytes,omitempty"`
	Disabled        bool              `toml:"disabled,omitempty" json:"disabled,omitempty"`
}

// Procfile is a TOML file of process definitions:
//
//	[defaults]
//	poll_interval = "200ms"
//	env = { LANG = "C" }
//
//	[[process]]
//	id = "web"
//	command = "python3 -m http.server 8000"
//	dir = "site"
//	stderr = false
type Procfile struct {
	Defaults  ProcessDefinition   `toml:"defaults"`
	Processes []ProcessDefinition `toml:"process"`

	// path is the file the definitions were loaded from; relative dirs resolve against it.
	path string
}

// ErrInvalidProcfile wraps every validation failure of a procfile.
var ErrInvalidProcfile = errors.New("invalid procfile")

// LoadProcfile reads and validates a procfile. Unknown keys are rejected.
func LoadProcfile(path string) (*Procfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read procfile: %w", err)
	}
	pf, err := ParseProcfile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	pf.path = path
	return pf, nil
}

// ParseProcfile decodes and validates procfile contents.
func ParseProcfile(data []byte) (*Procfile, error) {
	var pf Procfile
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&pf); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidProcfile, strict.String())
		}
		return nil, fmt.Errorf("failed to parse procfile: %w", err)
	}
	if err := pf.Validate(); err != nil {
		return nil, err
	}
	return &pf, nil
}

// Validate checks ids and commands.
func (p *Procfile) Validate() error {
	seen := make(map[string]bool, len(p.Processes))
	for i, def := range p.Processes {
		if def.ID == "" {
			return fmt.Errorf("%w: process #%d has no id", ErrInvalidProcfile, i+1)
		}
		if seen[def.ID] {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidProcfile, def.ID)
		}
		seen[def.ID] = true

		if def.Command == "" && len(def.Args) == 0 {
			return fmt.Errorf("%w: process %q has neither command nor args", ErrInvalidProcfile, def.ID)
		}
		if def.Command != "" {
			if _, err := process.SplitCommand(def.Command); err != nil {
				return fmt.Errorf("%w: process %q: %v", ErrInvalidProcfile, def.ID, err)
			}
		}
		if def.PollInterval < 0 || def.GracefulTimeout < 0 {
			return fmt.Errorf("%w: process %q has a negative duration", ErrInvalidProcfile, def.ID)
		}
	}
	return nil
}

// Resolved returns the definition for id with defaults applied.
func (p *Procfile) Resolved(id string) (ProcessDefinition, bool) {
	for _, def := range p.Processes {
		if def.ID == id {
			return p.resolve(def), true
		}
	}
	return ProcessDefinition{}, false
}

// Path returns the file the procfile was loaded from, or "" when parsed from memory.
func (p *Procfile) Path() string { return p.path }

// IDs returns the process ids in file order.
func (p *Procfile) IDs() []string {
	ids := make([]string, len(p.Processes))
	for i, def := range p.Processes {
		ids[i] = def.ID
	}
	return ids
}

// EnabledIDs returns the ids of processes that are not disabled, in file order.
func (p *Procfile) EnabledIDs() []string {
	var ids []string
	for _, def := range p.Processes {
		if !def.Disabled {
			ids = append(ids, def.ID)
		}
	}
	return ids
}

// Params returns the launch parameters of id with defaults applied.
func (p *Procfile) Params(id string) (process.Params, bool) {
	def, ok := p.Resolved(id)
	if !ok {
		return process.Params{}, false
	}
	return def.Params(), true
}

func (p *Procfile) resolve(def ProcessDefinition) ProcessDefinition {
	d := p.Defaults

	if def.Dir == "" {
		def.Dir = d.Dir
	}
	if def.Dir != "" && !filepath.IsAbs(def.Dir) && p.path != "" {
		def.Dir = filepath.Join(filepath.Dir(p.path), def.Dir)
	}
	if len(d.Env) > 0 {
		env := maps.Clone(d.Env)
		maps.Copy(env, def.Env)
		def.Env = env
	}
	if def.PollInterval == 0 {
		def.PollInterval = d.PollInterval
	}
	if def.Stdout == nil {
		def.Stdout = d.Stdout
	}
	if def.Stderr == nil {
		def.Stderr = d.Stderr
	}
	if def.LineWidth == 0 {
		def.LineWidth = d.LineWidth
	}
	if def.GracefulTimeout == 0 {
		def.GracefulTimeout = d.GracefulTimeout
	}
	if def.MaxLineBytes == 0 {
		def.MaxLineBytes = d.MaxLineBytes
	}
	return def
}

// Params converts the definition into launch parameters. Stdout and stderr
// are forwarded unless explicitly disabled.
func (d ProcessDefinition) Params() process.Params {
	return process.Params{
		Command:         d.Command,
		Args:            d.Args,
		Dir:             d.Dir,
		Env:             d.Env,
		PollInterval:    time.Duration(d.PollInterval),
		SuppressStdout:  d.Stdout != nil && !*d.Stdout,
		SuppressStderr:  d.Stderr != nil && !*d.Stderr,
		LineWidth:       d.LineWidth,
		GracefulTimeout: time.Duration(d.GracefulTimeout),
		MaxLineBytes:    d.MaxLineBytes,
	}
}

// Changes lists the ids that differ between two procfiles.
type Changes struct {
	Added   []string
	Removed []string
	Changed []string
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Changed) == 0
}

// Diff compares p with next after applying each file's defaults. Disabled
// processes count as absent.
func (p *Procfile) Diff(next *Procfile) Changes {
	var c Changes

	for _, id := range next.IDs() {
		nd, _ := next.Resolved(id)
		if nd.Disabled {
			continue
		}
		od, ok := p.Resolved(id)
		switch {
		case !ok || od.Disabled:
			c.Added = append(c.Added, id)
		case !reflect.DeepEqual(od, nd):
			c.Changed = append(c.Changed, id)
		}
	}

	for _, id := range p.IDs() {
		od, _ := p.Resolved(id)
		if od.Disabled {
			continue
		}
		if nd, ok := next.Resolved(id); !ok || nd.Disabled {
			c.Removed = append(c.Removed, id)
		}
	}
	return c
}

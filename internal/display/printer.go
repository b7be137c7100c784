package display

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/smazurov/procwatch/internal/process"
)

// Printer is a process.Sink that writes "[id] line" to a writer. Lines wider
// than the configured width are wrapped and every piece gets the prefix.
type Printer struct {
	mu       sync.Mutex
	w        io.Writer
	styles   styles
	width    int
	widths   map[string]int
	stderrID bool
}

// PrinterOption configures a Printer.
type PrinterOption func(*Printer)

// WithColor enables or disables ANSI styling.
func WithColor(enabled bool) PrinterOption {
	return func(p *Printer) { p.styles.color = enabled }
}

// WithWidth sets the wrap width used for ids without their own width.
// Zero disables wrapping.
func WithWidth(width int) PrinterOption {
	return func(p *Printer) { p.width = width }
}

// WithStderrMarker marks stderr lines with "!" after the prefix.
func WithStderrMarker(enabled bool) PrinterOption {
	return func(p *Printer) { p.stderrID = enabled }
}

// NewPrinter creates a printer writing to w. Color is off unless enabled.
func NewPrinter(w io.Writer, opts ...PrinterOption) *Printer {
	p := &Printer{
		w:      w,
		styles: styles{renderer: lipgloss.NewRenderer(w)},
		widths: make(map[string]int),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetWidth sets the wrap width for one id. Zero falls back to the default.
func (p *Printer) SetWidth(id string, width int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if width <= 0 {
		delete(p.widths, id)
		return
	}
	p.widths[id] = width
}

// Forget drops per-id settings.
func (p *Printer) Forget(id string) {
	p.SetWidth(id, 0)
}

// WriteLine implements process.Sink.
func (p *Printer) WriteLine(id string, stream process.Stream, line string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	prefix := p.styles.prefix(id)
	if p.stderrID && stream == process.Stderr {
		prefix += p.styles.fg(colorError, "!")
	}

	width := p.width
	if w, ok := p.widths[id]; ok {
		width = w
	}

	pieces := []string{line}
	if avail := width - ansi.StringWidth(prefix) - 1; width > 0 && avail > 0 && ansi.StringWidth(line) > avail {
		pieces = strings.Split(ansi.Wrap(line, avail, ""), "\n")
	}

	for _, piece := range pieces {
		if stream == process.Stderr {
			piece = p.styles.fg(colorError, piece)
		}
		fmt.Fprintf(p.w, "%s %s\n", prefix, piece)
	}
}

// Flush implements process.Sink. Lines are written unbuffered.
func (p *Printer) Flush(string, process.Stream) {}

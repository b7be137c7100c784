package display

import (
	"hash/fnv"

	"github.com/charmbracelet/lipgloss"
)

// Prefix palette, picked per id so neighbouring processes are distinguishable.
var palette = []lipgloss.Color{
	lipgloss.Color("39"),  // blue
	lipgloss.Color("76"),  // green
	lipgloss.Color("214"), // orange
	lipgloss.Color("170"), // magenta
	lipgloss.Color("45"),  // cyan
	lipgloss.Color("184"), // yellow
}

var (
	colorError   = lipgloss.Color("196") // bright red
	colorOK      = lipgloss.Color("76")  // green
	colorRunning = lipgloss.Color("214") // orange
	colorMuted   = lipgloss.Color("242") // gray
)

func paletteColor(id string) lipgloss.Color {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return palette[h.Sum32()%uint32(len(palette))]
}

type styles struct {
	renderer *lipgloss.Renderer
	color    bool
}

func (s styles) prefix(id string) string {
	label := "[" + id + "]"
	if !s.color {
		return label
	}
	return s.renderer.NewStyle().Bold(true).Foreground(paletteColor(id)).Render(label)
}

func (s styles) fg(c lipgloss.Color, text string) string {
	if !s.color {
		return text
	}
	return s.renderer.NewStyle().Foreground(c).Render(text)
}

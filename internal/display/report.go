package display

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/smazurov/procwatch/internal/process"
)

// ReportFormatter returns a process.ReportFormatter that colors the id by
// palette and the message by outcome.
func ReportFormatter(color bool) process.ReportFormatter {
	s := styles{renderer: lipgloss.DefaultRenderer(), color: color}
	return func(r process.Report) string {
		msg := strings.TrimPrefix(r.Message(), "["+r.ID+"] ")
		return s.prefix(r.ID) + " " + s.fg(reportColor(r), msg)
	}
}

func reportColor(r process.Report) lipgloss.Color {
	switch {
	case r.LastError != nil:
		return colorError
	case r.State == process.StateRunning:
		return colorRunning
	case r.State == process.StateNotStarted:
		return colorMuted
	case r.ExitKnown && r.ExitCode == 0:
		return colorOK
	default:
		return colorError
	}
}

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/smazurov/procwatch/internal/config"
	"github.com/smazurov/procwatch/internal/display"
	"github.com/spf13/cobra"
)

// CreateCheckConfigCmd creates the check-config command.
func CreateCheckConfigCmd() *cobra.Command {
	var procfile string

	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate a procfile",
		Long: `Parses and validates a procfile without starting anything. ` +
			`Prints every process with its resolved command, directory and poll interval.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			pf, err := config.LoadProcfile(procfile)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%v\n", err)
				os.Exit(1)
			}
			writeProcfileTable(cmd.OutOrStdout(), pf, display.ShouldUseColor(os.Stdout))
		},
	}

	cmd.Flags().StringVarP(&procfile, "procfile", "f", "procfile.toml", "Procfile to validate")
	return cmd
}

func writeProcfileTable(w io.Writer, pf *config.Procfile, color bool) {
	renderer := lipgloss.NewRenderer(w)
	if !color {
		renderer.SetColorProfile(0)
	}
	header := renderer.NewStyle().Bold(true).Padding(0, 1)
	cell := renderer.NewStyle().Padding(0, 1)
	muted := cell.Foreground(lipgloss.Color("8"))

	disabled := make(map[int]bool)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "STATUS", "COMMAND", "DIR", "POLL").
		StyleFunc(func(row, _ int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return header
			case disabled[row]:
				return muted
			default:
				return cell
			}
		})

	for i, id := range pf.IDs() {
		def, _ := pf.Resolved(id)
		status := "enabled"
		if def.Disabled {
			status = "disabled"
			disabled[i] = true
		}
		params := def.Params()
		poll := "default"
		if params.PollInterval > 0 {
			poll = params.PollInterval.String()
		}
		t.Row(id, status, params.CommandLine(), def.Dir, poll)
	}

	fmt.Fprintln(w, t.Render())
	fmt.Fprintf(w, "%d process(es), %d enabled\n", len(pf.Processes), len(pf.EnabledIDs()))
	if path := pf.Path(); path != "" {
		fmt.Fprintf(w, "%s is valid\n", path)
	}
}

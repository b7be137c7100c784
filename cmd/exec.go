package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/smazurov/procwatch/internal/display"
	"github.com/smazurov/procwatch/internal/logging"
	"github.com/smazurov/procwatch/internal/process"
	"github.com/spf13/cobra"
)

// ExecOptions are the flags of the exec command.
type ExecOptions struct {
	ID              string
	Dir             string
	PollInterval    time.Duration
	GracefulTimeout time.Duration
	Width           int
	NoStdout        bool
	NoStderr        bool
	LogLevel        string
	LogJSON         bool
}

// CreateExecCmd creates the exec command.
func CreateExecCmd() *cobra.Command {
	var opts ExecOptions

	cmd := &cobra.Command{
		Use:   "exec [flags] -- command [args...]",
		Short: "Run one command under supervision",
		Long: `Runs a single command, prefixing each line of its output with the process id. ` +
			`SIGINT and SIGTERM stop the child. Exits with the child's exit code.`,
		Args: cobra.MinimumNArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			os.Exit(runExec(opts, args))
		},
	}

	cmd.Flags().StringVar(&opts.ID, "id", "", "Process id used as output prefix (default: command name)")
	cmd.Flags().StringVarP(&opts.Dir, "dir", "C", "", "Working directory")
	cmd.Flags().DurationVar(&opts.PollInterval, "poll-interval", process.DefaultPollInterval, "Output drain interval")
	cmd.Flags().DurationVar(&opts.GracefulTimeout, "graceful-timeout", 0, "Send SIGINT and wait this long before killing")
	cmd.Flags().IntVarP(&opts.Width, "width", "w", 0, "Wrap width (default: terminal width)")
	cmd.Flags().BoolVar(&opts.NoStdout, "no-stdout", false, "Suppress stdout")
	cmd.Flags().BoolVar(&opts.NoStderr, "no-stderr", false, "Suppress stderr")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&opts.LogJSON, "log-json", false, "Output logs in JSON format")
	return cmd
}

// runExec supervises args until it ends or a signal arrives and returns the
// exit status for the command.
func runExec(opts ExecOptions, args []string) int {
	loggingConfig := logging.Config{Level: opts.LogLevel, Format: "text"}
	if opts.LogJSON {
		loggingConfig.Format = "json"
	}
	logging.Initialize(loggingConfig)
	logger := logging.GetLogger("exec")

	id := opts.ID
	if id == "" {
		id = filepath.Base(args[0])
	}

	color := display.ShouldUseColor(os.Stdout)
	width := opts.Width
	if width == 0 {
		width = display.TerminalWidth(os.Stdout)
	}
	printer := display.NewPrinter(os.Stdout,
		display.WithColor(color),
		display.WithWidth(width),
		display.WithStderrMarker(true),
	)

	group := process.NewGroup(&process.GroupOptions{
		Sink:         printer,
		StatusWriter: os.Stderr,
		FormatReport: display.ReportFormatter(display.ShouldUseColor(os.Stderr)),
		Logger:       logging.GetLogger("process"),
	})
	defer group.Close()

	h, err := group.Add(id, process.Params{
		Args:            args,
		Dir:             opts.Dir,
		PollInterval:    opts.PollInterval,
		SuppressStdout:  opts.NoStdout,
		SuppressStderr:  opts.NoStderr,
		GracefulTimeout: opts.GracefulTimeout,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	if err := group.Start(); err != nil {
		group.Check(false)
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return 127
		}
		return 126
	}

	ctx, stop := notifySignals(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sig os.Signal
	if err := group.Wait(ctx); err != nil {
		sig = receivedSignal(ctx)
		logger.Info("Signal received, stopping process", "id", id, "signal", sig)
		if stopErr := group.Stop(); stopErr != nil {
			logger.Error("Failed to stop process", "error", stopErr)
		}
	}

	group.Check(false)
	return exitStatus(h, sig)
}

// signalCause is the cancellation cause of a context ended by a signal.
type signalCause struct{ sig os.Signal }

func (c signalCause) Error() string { return "received " + c.sig.String() }

// notifySignals returns a context cancelled by the first of sigs, with the
// signal recorded as its cause.
func notifySignals(parent context.Context, sigs ...os.Signal) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	go func() {
		select {
		case sig := <-ch:
			cancel(signalCause{sig: sig})
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(ch)
		cancel(nil)
	}
}

// receivedSignal returns the signal that ended ctx, or nil.
func receivedSignal(ctx context.Context) os.Signal {
	var cause signalCause
	if errors.As(context.Cause(ctx), &cause) {
		return cause.sig
	}
	return nil
}

// exitStatus maps a terminal handle to a shell-style exit status. A process
// stopped because of sig reports 128+sig; SIGINT is assumed when sig is nil.
func exitStatus(h *process.Handle, sig os.Signal) int {
	code, ok := h.ExitCode()
	switch {
	case ok && code >= 0:
		return code
	case h.State() == process.StateTerminated:
		if s, isSys := sig.(syscall.Signal); isSys {
			return 128 + int(s)
		}
		return 128 + int(syscall.SIGINT)
	default:
		return 1
	}
}

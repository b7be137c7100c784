// Package process launches and supervises child processes without blocking
// the caller.
//
// Handle owns a single child:
//   - Start spawns it with both output pipes attached and read immediately,
//     so a chatty child never stalls on a full pipe
//   - Liveness, IsRunning and ExitCode query the exit status; "still running"
//     is an ordinary answer, not an error
//   - Stop kills the child's process group; it is idempotent and safe to race
//     against draining
//   - SetStdoutActive/SetStderrActive silence or resume a stream at any time
//
// Each stream has a reader goroutine doing blocking reads into a queue.
// A PollLoop per handle drains that queue into a Sink on a fixed interval,
// re-checks liveness, and retires itself once the child has exited and its
// output has been flushed.
//
// Group manages many handles as a unit:
//   - Start/Stop/Check apply to every member, collecting per-member failures
//     into a *BatchError instead of stopping at the first
//   - Restart/Replace swap a member for a fresh handle
//   - Check writes one status line per member unless silent
//
// Example usage with Group:
//
//	group := process.NewGroup(&process.GroupOptions{
//	    Sink: process.SinkFunc(func(id string, stream process.Stream, line string) {
//	        fmt.Printf("[%s] %s\n", id, line)
//	    }),
//	    StatusWriter: os.Stdout,
//	})
//	group.Add("web", process.Params{Command: "python3 -m http.server 8000"})
//	group.Add("worker", process.Params{Command: "sh -c 'echo hello'", Dir: "/tmp"})
//	if err := group.Start(); err != nil {
//	    log.Printf("some processes failed: %v", err)
//	}
//	defer group.Close()
//	group.Check(false)
package process

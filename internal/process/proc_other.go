//go:build !unix

package process

import (
	"errors"
	"os"
	"os/exec"
)

func setProcGroup(*exec.Cmd) {}

// interruptProcess falls back to Kill where interrupts cannot be delivered.
func interruptProcess(proc *os.Process) error {
	return killProcess(proc)
}

func killProcess(proc *os.Process) error {
	if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

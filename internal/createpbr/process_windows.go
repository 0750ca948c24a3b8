//go:build windows

package createpbr

import (
	"os"
	"os/exec"
)

func configureProcess(cmd *exec.Cmd) {}

// Console children on Windows have no graceful stop signal that can be sent
// from another process group, so termination is a kill.
func terminateProcess(cmd *exec.Cmd) error {
	return killProcess(cmd)
}

func killProcess(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func signalName(state *os.ProcessState) string {
	return "unknown"
}

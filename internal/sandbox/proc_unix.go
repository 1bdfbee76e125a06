//go:build unix

package sandbox

import (
	"os/exec"
	"syscall"
)

// configureProcess starts the tool in its own process group and makes
// cancellation kill the whole group, including anything it forked.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}

//go:build unix

package system

import (
	"os/exec"
	"syscall"
)

// DetachProcessGroup starts cmd in its own process group so terminal signals sent to
// the foreground group do not reach it.
func DetachProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

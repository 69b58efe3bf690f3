//go:build windows

package terminate

import (
	"os/exec"
	"syscall"
)

// A new process group keeps console control events aimed at the caller from
// reaching the launched application.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

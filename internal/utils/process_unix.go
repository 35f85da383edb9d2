//go:build unix || linux || darwin

package utils

import (
	"syscall"
)

// isProcessRunning Unix系统实现：用信号0探测进程是否存在
func isProcessRunning(pid int) bool {
	err := syscall.Kill(pid, syscall.Signal(0))
	if err == nil {
		return true
	}
	// EPERM说明进程存在但无权限发信号
	return err == syscall.EPERM
}

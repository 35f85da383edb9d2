package utils

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

/**
 * Read a PID from a pid file
 * @param {string} path - Path of the pid file
 * @returns {(int, error)} Returns the PID and error if any
 * @description
 * - Returns os.ErrNotExist when the file is absent
 * - Rejects non-numeric or non-positive content
 */
func ReadPidFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid pid file '%s': %v", path, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("invalid pid %d in '%s'", pid, path)
	}
	return pid, nil
}

// WritePidFile 写入pid文件
func WritePidFile(path string, pid int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(pid)), 0644)
}

// IsProcessRunning 检查指定PID的进程是否存在
// 平台相关实现见 process_unix.go / process_windows.go
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	return isProcessRunning(pid)
}

package utils

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

// DefaultCommandTimeout 外部命令的缺省超时，挂死的外部命令按失败处理
const DefaultCommandTimeout = 10 * time.Second

/**
 * Run an external command with a bounded timeout
 * @param {context.Context} ctx - Parent context
 * @param {string} dir - Working directory, empty for inherited
 * @param {string} name - Command name
 * @param {[]string} args - Command arguments
 * @returns {(string, error)} Returns trimmed combined output and error if any
 * @description
 * - Wraps exec.CommandContext with DefaultCommandTimeout
 * - Returns stdout+stderr so callers can log the control plane's own message
 */
func RunCommand(ctx context.Context, dir string, name string, args ...string) (string, error) {
	return RunCommandTimeout(ctx, DefaultCommandTimeout, dir, name, args...)
}

// RunCommandTimeout 以指定超时执行外部命令
func RunCommandTimeout(ctx context.Context, timeout time.Duration, dir string, name string, args ...string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, name, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	output, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(output)), err
}

// CommandExists 判断命令是否在PATH中可用
func CommandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// SplitLines 按行切分命令输出，丢弃空行
func SplitLines(output string) []string {
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

package env

import (
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
)

// TestMode 是否以更新验证用的测试实例身份运行
var TestMode bool = false

// 当前代码版本由检查器goroutine写入、HTTP处理器并发读取，必须原子访问
var version atomic.Value

func init() {
	version.Store("unknown")
}

// Version 当前代码版本(HEAD短hash)
func Version() string {
	return version.Load().(string)
}

// SetVersion 记录当前代码版本，由更新检查器在启动、检查和更新完成时写入
func SetVersion(v string) {
	version.Store(v)
}

// (default: %USERPROFILE%/.termhost on Windows, $HOME/.termhost on Linux)
var TermhostDir string = GetTermhostDir()

// HealthPort 探活端口，测试实例与生产实例共用同一约定
var HealthPort int = GetHealthPort()

/**
 * Get termhost install directory path
 * @returns {string} Returns termhost directory path
 * @description
 * - Resolves from TERMHOST_HOME first, then TERMHOST_DIR
 * - Falls back to $HOME/.termhost when neither is set
 */
func GetTermhostDir() string {
	for _, key := range []string{"TERMHOST_HOME", "TERMHOST_DIR"} {
		if dir := os.Getenv(key); dir != "" {
			return dir
		}
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".termhost")
}

/**
 * Get health check port
 * @returns {int} Returns health check port number
 */
func GetHealthPort() int {
	if v := os.Getenv("TERMHOST_HEALTH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			return port
		}
	}
	return 8771
}

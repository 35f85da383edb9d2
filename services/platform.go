package services

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"termhost/internal/config"
	"termhost/internal/logger"
	"termhost/internal/models"
	"termhost/internal/utils"
)

var (
	detectedInit models.InitSystem
	detectMutex  sync.Mutex
)

/**
 * Detect which init system governs this process
 * @returns {models.InitSystem} Returns the detected init system
 * @description
 * - macOS resolves to launchd
 * - Windows resolves to windows-service when the service is registered,
 *   task-scheduler when a scheduled task exists, manual otherwise
 * - Linux prefers systemd (user scope first) over OpenRC
 * - Detection never fails: absence of evidence resolves to manual
 * - Result is cached for the process lifetime; use RedetectInitSystem to re-probe
 */
func DetectInitSystem() models.InitSystem {
	detectMutex.Lock()
	defer detectMutex.Unlock()

	if detectedInit == "" {
		detectedInit = probeInitSystem()
		logger.Infof("Detected init system: %s", detectedInit)
	}
	return detectedInit
}

// RedetectInitSystem 重新探测init系统（显式刷新缓存）
func RedetectInitSystem() models.InitSystem {
	detectMutex.Lock()
	defer detectMutex.Unlock()

	detectedInit = probeInitSystem()
	logger.Infof("Re-detected init system: %s", detectedInit)
	return detectedInit
}

func probeInitSystem() models.InitSystem {
	serviceName := config.Config.Update.ServiceName

	switch runtime.GOOS {
	case "darwin":
		return models.InitLaunchd
	case "windows":
		return probeWindows(serviceName)
	case "linux":
		return probeLinux(serviceName)
	default:
		return models.InitManual
	}
}

func probeWindows(serviceName string) models.InitSystem {
	// 已注册为Windows服务则优先走服务控制器
	if _, err := utils.RunCommand(context.Background(), "", "sc", "query", serviceName); err == nil {
		return models.InitWindowsService
	}
	if _, err := utils.RunCommand(context.Background(), "", "schtasks", "/Query", "/TN", serviceName); err == nil {
		return models.InitTaskScheduler
	}
	return models.InitManual
}

func probeLinux(serviceName string) models.InitSystem {
	if dirExists("/run/systemd/system") {
		// 存在用户级unit时优先用户作用域
		if hasUserUnit(serviceName) {
			return models.InitSystemdUser
		}
		if hasSystemUnit(serviceName) {
			return models.InitSystemdSystem
		}
		// systemd在但服务没有注册unit，默认按用户作用域托管
		return models.InitSystemdUser
	}
	if dirExists("/run/openrc") || utils.CommandExists("rc-service") {
		return models.InitOpenRC
	}
	return models.InitManual
}

func hasUserUnit(serviceName string) bool {
	home, err := os.UserHomeDir()
	if err != nil {
		return false
	}
	unit := filepath.Join(home, ".config", "systemd", "user", serviceName+".service")
	return fileExists(unit)
}

func hasSystemUnit(serviceName string) bool {
	for _, dir := range []string{"/etc/systemd/system", "/lib/systemd/system", "/usr/lib/systemd/system"} {
		if fileExists(filepath.Join(dir, serviceName+".service")) {
			return true
		}
	}
	return false
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

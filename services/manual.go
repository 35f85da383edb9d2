package services

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"termhost/internal/env"
	"termhost/internal/models"
	"termhost/internal/utils"
)

// manualController 没有init系统托管时的兜底实现
// 状态基于pid文件；pid文件不存在时认为当前进程就是代理本身
type manualController struct {
	name string
}

var processStart = time.Now()

func (c *manualController) InitSystem() models.InitSystem {
	return models.InitManual
}

func (c *manualController) pidFile() string {
	return filepath.Join(env.TermhostDir, c.name+".pid")
}

func (c *manualController) Status(ctx context.Context) models.ServiceStatus {
	pid, err := utils.ReadPidFile(c.pidFile())
	if err != nil {
		// 没有pid文件时，当前进程就是代理进程
		return models.ServiceStatus{
			Running:       true,
			Pid:           os.Getpid(),
			UptimeSeconds: int(time.Since(processStart).Seconds()),
		}
	}
	status := models.ServiceStatus{Pid: pid}
	status.Running = utils.IsProcessRunning(pid)
	if status.Running && pid == os.Getpid() {
		status.UptimeSeconds = int(time.Since(processStart).Seconds())
	}
	return status
}

func (c *manualController) Logs(ctx context.Context, lines int) []string {
	logs := tailFile(agentLogPath(), ClampLogLines(lines))
	if len(logs) == 0 {
		return []string{"(no log output available)"}
	}
	return logs
}

// Restart manual模式无法自我重启，这是确定性失败，不可重试
func (c *manualController) Restart(ctx context.Context) error {
	return ErrManualRestart
}

// Install manual模式没有可注册的服务机制
func (c *manualController) Install(ctx context.Context) error {
	return ErrManualInstall
}

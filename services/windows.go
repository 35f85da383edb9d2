package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"termhost/internal/logger"
	"termhost/internal/models"
	"termhost/internal/utils"
)

// windowsController 通过sc.exe或schtasks.exe控制Windows托管的服务
// 两个控制面都没有原子restart，统一用stop+start并留出落定时间
type windowsController struct {
	name          string
	scheduledTask bool
}

const windowsSettleDelay = 2 * time.Second

func (c *windowsController) InitSystem() models.InitSystem {
	if c.scheduledTask {
		return models.InitTaskScheduler
	}
	return models.InitWindowsService
}

func (c *windowsController) Status(ctx context.Context) models.ServiceStatus {
	if c.scheduledTask {
		return c.taskStatus(ctx)
	}
	return c.serviceStatus(ctx)
}

func (c *windowsController) serviceStatus(ctx context.Context) models.ServiceStatus {
	status := models.ServiceStatus{}

	output, err := utils.RunCommand(ctx, "", "sc", "queryex", c.name)
	if err != nil {
		logger.Debugf("sc queryex %s failed: %v", c.name, err)
		return status
	}
	status.Running = strings.Contains(output, "RUNNING")
	for _, line := range utils.SplitLines(output) {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "PID") {
			if idx := strings.Index(line, ":"); idx > 0 {
				if pid, err := strconv.Atoi(strings.TrimSpace(line[idx+1:])); err == nil {
					status.Pid = pid
				}
			}
		}
	}
	// 服务失败动作里配置了RESTART才算自动重启
	if out, err := utils.RunCommand(ctx, "", "sc", "qfailure", c.name); err == nil {
		status.AutoRestart = strings.Contains(strings.ToUpper(out), "RESTART")
	}
	return status
}

func (c *windowsController) taskStatus(ctx context.Context) models.ServiceStatus {
	status := models.ServiceStatus{}

	output, err := utils.RunCommand(ctx, "", "schtasks", "/Query", "/TN", c.name, "/FO", "LIST", "/V")
	if err != nil {
		logger.Debugf("schtasks query %s failed: %v", c.name, err)
		return status
	}
	status.Running = strings.Contains(output, "Running")
	return status
}

func (c *windowsController) Logs(ctx context.Context, lines int) []string {
	return tailFile(agentLogPath(), ClampLogLines(lines))
}

func (c *windowsController) Restart(ctx context.Context) error {
	if c.scheduledTask {
		return c.restartTask(ctx)
	}
	return c.restartService(ctx)
}

func (c *windowsController) restartService(ctx context.Context) error {
	if out, _ := utils.RunCommand(ctx, "", "sc", "query", c.name); strings.Contains(out, "RUNNING") {
		if out, err := utils.RunCommand(ctx, "", "sc", "stop", c.name); err != nil {
			logger.Warnf("sc stop %s: %v (%s)", c.name, err, out)
		}
		time.Sleep(windowsSettleDelay)
	}
	if out, err := utils.RunCommand(ctx, "", "sc", "start", c.name); err != nil {
		return fmt.Errorf("sc start %s failed: %v (%s)", c.name, err, out)
	}
	return nil
}

/**
 * Register the service with the Windows control plane
 * @description
 * - Service mode: sc create with auto start, replacing an existing definition
 * - Task mode: schtasks /Create /F with an ONSTART trigger
 */
func (c *windowsController) Install(ctx context.Context) error {
	if c.scheduledTask {
		out, err := utils.RunCommand(ctx, "", "schtasks", "/Create", "/F",
			"/TN", c.name, "/TR", serviceCommandLine(), "/SC", "ONSTART")
		if err != nil {
			return fmt.Errorf("schtasks /Create %s failed: %v (%s)", c.name, err, out)
		}
		logger.Infof("Installed scheduled task %s", c.name)
		return nil
	}

	// sc create已存在时报错，先删除旧定义再重建
	if out, _ := utils.RunCommand(ctx, "", "sc", "query", c.name); strings.Contains(out, "SERVICE_NAME") {
		if out, err := utils.RunCommand(ctx, "", "sc", "delete", c.name); err != nil {
			logger.Warnf("sc delete %s: %v (%s)", c.name, err, out)
		}
	}
	out, err := utils.RunCommand(ctx, "", "sc", "create", c.name,
		"binPath=", serviceCommandLine(), "start=", "auto")
	if err != nil {
		return fmt.Errorf("sc create %s failed: %v (%s)", c.name, err, out)
	}
	logger.Infof("Installed Windows service %s", c.name)
	return nil
}

func (c *windowsController) restartTask(ctx context.Context) error {
	if out, err := utils.RunCommand(ctx, "", "schtasks", "/End", "/TN", c.name); err != nil {
		logger.Warnf("schtasks /End %s: %v (%s)", c.name, err, out)
	}
	time.Sleep(windowsSettleDelay)
	if out, err := utils.RunCommand(ctx, "", "schtasks", "/Run", "/TN", c.name); err != nil {
		return fmt.Errorf("schtasks /Run %s failed: %v (%s)", c.name, err, out)
	}
	return nil
}

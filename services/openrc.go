package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"termhost/internal/config"
	"termhost/internal/env"
	"termhost/internal/logger"
	"termhost/internal/models"
	"termhost/internal/utils"
)

// openrcController 通过rc-service控制OpenRC托管的服务
type openrcController struct {
	name string
}

func (c *openrcController) InitSystem() models.InitSystem {
	return models.InitOpenRC
}

func (c *openrcController) Status(ctx context.Context) models.ServiceStatus {
	status := models.ServiceStatus{}

	output, err := utils.RunCommand(ctx, "", "rc-service", c.name, "status")
	if err != nil {
		logger.Debugf("rc-service %s status failed: %v", c.name, err)
		return status
	}
	status.Running = strings.Contains(output, "started")

	// OpenRC不在status输出里带PID，从约定的pidfile取
	if pid, err := utils.ReadPidFile(filepath.Join("/run", c.name+".pid")); err == nil {
		status.Pid = pid
	}
	// supervise-daemon托管的服务才有进程级自动重启
	if out, err := utils.RunCommand(ctx, "", "rc-service", c.name, "describe"); err == nil {
		status.AutoRestart = strings.Contains(out, "supervise")
	}
	return status
}

// Logs OpenRC没有统一日志设施，降级读取代理自身的日志文件
func (c *openrcController) Logs(ctx context.Context, lines int) []string {
	return tailFile(agentLogPath(), ClampLogLines(lines))
}

func (c *openrcController) Restart(ctx context.Context) error {
	action := "restart"
	if out, _ := utils.RunCommand(ctx, "", "rc-service", c.name, "status"); !strings.Contains(out, "started") {
		action = "start"
	}
	if out, err := utils.RunCommand(ctx, "", "rc-service", c.name, action); err != nil {
		return fmt.Errorf("rc-service %s %s failed: %v (%s)", c.name, action, err, out)
	}
	return nil
}

const openrcScriptTemplate = `#!/sbin/openrc-run

name="%s"
directory="%s"
command="%s"
command_args="%s"
pidfile="/run/%s.pid"
supervisor="supervise-daemon"

depend() {
	need net
}
`

/**
 * Register the service as an OpenRC init script
 * @description
 * - Writes an executable supervise-daemon script under /etc/init.d
 * - Adds the service to the default runlevel
 */
func (c *openrcController) Install(ctx context.Context) error {
	command := config.Config.Update.ServiceCommand
	args := ""
	if len(command) > 1 {
		args = strings.Join(command[1:], " ")
	}
	script := fmt.Sprintf(openrcScriptTemplate, c.name, env.TermhostDir, command[0], args, c.name)

	scriptPath := filepath.Join("/etc/init.d", c.name)
	if err := os.WriteFile(scriptPath, []byte(script), 0755); err != nil {
		return fmt.Errorf("write init script '%s' failed: %v", scriptPath, err)
	}
	if out, err := utils.RunCommand(ctx, "", "rc-update", "add", c.name, "default"); err != nil {
		return fmt.Errorf("rc-update add %s failed: %v (%s)", c.name, err, out)
	}
	logger.Infof("Installed OpenRC script %s", scriptPath)
	return nil
}

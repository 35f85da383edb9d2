package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"termhost/internal/env"
	"termhost/internal/logger"
	"termhost/internal/models"
	"termhost/internal/utils"
)

// systemdController 通过systemctl/journalctl控制systemd托管的服务
// userScope为true时操作用户作用域(systemctl --user)
type systemdController struct {
	name      string
	userScope bool
}

func (c *systemdController) InitSystem() models.InitSystem {
	if c.userScope {
		return models.InitSystemdUser
	}
	return models.InitSystemdSystem
}

func (c *systemdController) systemctl(args ...string) []string {
	if c.userScope {
		return append([]string{"--user"}, args...)
	}
	return args
}

/**
 * Query service status via systemctl show
 * @param {context.Context} ctx - Context for timeout control
 * @returns {models.ServiceStatus} Returns normalized status, running=false on any probe failure
 * @description
 * - Parses ActiveState/MainPID/Restart/ActiveEnterTimestamp properties
 * - Uptime is best-effort: timestamp parse failure degrades to 0, never an error
 */
func (c *systemdController) Status(ctx context.Context) models.ServiceStatus {
	status := models.ServiceStatus{}

	args := c.systemctl("show", c.name,
		"--property=ActiveState,MainPID,Restart,ActiveEnterTimestamp", "--no-pager")
	output, err := utils.RunCommand(ctx, "", "systemctl", args...)
	if err != nil {
		logger.Debugf("systemctl show %s failed: %v", c.name, err)
		return status
	}

	props := parseProperties(output)
	status.Running = props["ActiveState"] == "active"
	if pid, err := strconv.Atoi(props["MainPID"]); err == nil {
		status.Pid = pid
	}
	restart := props["Restart"]
	status.AutoRestart = restart != "" && restart != "no"
	if status.Running {
		status.UptimeSeconds = uptimeFromTimestamp(props["ActiveEnterTimestamp"])
	}
	return status
}

func (c *systemdController) Logs(ctx context.Context, lines int) []string {
	lines = ClampLogLines(lines)
	args := c.systemctl("-u", c.name, "-n", strconv.Itoa(lines), "--no-pager")
	output, err := utils.RunCommand(ctx, "", "journalctl", args...)
	if err != nil {
		logger.Warnf("journalctl for %s failed: %v", c.name, err)
		return []string{}
	}
	return utils.SplitLines(output)
}

/**
 * Restart the service via systemctl
 * @description
 * - daemon-reload first so edited unit definitions take effect
 * - start if the unit is inactive, restart otherwise
 */
func (c *systemdController) Restart(ctx context.Context) error {
	if _, err := utils.RunCommand(ctx, "", "systemctl", c.systemctl("daemon-reload")...); err != nil {
		logger.Warnf("systemctl daemon-reload failed: %v", err)
	}

	action := "restart"
	if out, _ := utils.RunCommand(ctx, "", "systemctl", c.systemctl("is-active", c.name)...); strings.TrimSpace(out) != "active" {
		action = "start"
	}

	if out, err := utils.RunCommand(ctx, "", "systemctl", c.systemctl(action, c.name)...); err != nil {
		return fmt.Errorf("systemctl %s %s failed: %v (%s)", action, c.name, err, out)
	}
	return nil
}

const systemdUnitTemplate = `[Unit]
Description=termhost managed service
After=network.target

[Service]
WorkingDirectory=%s
ExecStart=%s
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`

/**
 * Register the service as a systemd unit
 * @description
 * - Writes (or overwrites) the unit file in the matching scope
 * - daemon-reload then enable so the unit survives reboots
 */
func (c *systemdController) Install(ctx context.Context) error {
	unit := fmt.Sprintf(systemdUnitTemplate, env.TermhostDir, serviceCommandLine())

	var unitPath string
	if c.userScope {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home directory failed: %v", err)
		}
		unitPath = filepath.Join(home, ".config", "systemd", "user", c.name+".service")
	} else {
		unitPath = filepath.Join("/etc/systemd/system", c.name+".service")
	}
	if err := os.MkdirAll(filepath.Dir(unitPath), 0755); err != nil {
		return fmt.Errorf("create unit directory failed: %v", err)
	}
	if err := os.WriteFile(unitPath, []byte(unit), 0644); err != nil {
		return fmt.Errorf("write unit file '%s' failed: %v", unitPath, err)
	}

	if _, err := utils.RunCommand(ctx, "", "systemctl", c.systemctl("daemon-reload")...); err != nil {
		return fmt.Errorf("systemctl daemon-reload failed: %v", err)
	}
	if out, err := utils.RunCommand(ctx, "", "systemctl", c.systemctl("enable", c.name)...); err != nil {
		return fmt.Errorf("systemctl enable %s failed: %v (%s)", c.name, err, out)
	}
	logger.Infof("Installed systemd unit %s", unitPath)
	return nil
}

// parseProperties 解析systemctl show输出的key=value行
func parseProperties(output string) map[string]string {
	props := make(map[string]string)
	for _, line := range utils.SplitLines(output) {
		if idx := strings.Index(line, "="); idx > 0 {
			props[line[:idx]] = strings.TrimSpace(line[idx+1:])
		}
	}
	return props
}

// uptimeFromTimestamp 把ActiveEnterTimestamp换算成运行秒数，解析失败返回0
func uptimeFromTimestamp(stamp string) int {
	if stamp == "" {
		return 0
	}
	// 格式形如 "Mon 2024-01-01 10:00:00 UTC"
	t, err := time.Parse("Mon 2006-01-02 15:04:05 MST", stamp)
	if err != nil {
		return 0
	}
	seconds := int(time.Since(t).Seconds())
	if seconds < 0 {
		return 0
	}
	return seconds
}

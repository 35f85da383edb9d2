package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"termhost/internal/config"
	"termhost/internal/env"
	"termhost/internal/logger"
	"termhost/internal/models"
	"termhost/internal/utils"
)

// launchdController 通过launchctl控制launchd托管的服务
// launchd没有原子restart，用stop+start并留出落定时间
type launchdController struct {
	label string
}

const launchdSettleDelay = 1500 * time.Millisecond

func (c *launchdController) InitSystem() models.InitSystem {
	return models.InitLaunchd
}

/**
 * Query service status via launchctl list
 * @description
 * - `launchctl list <label>` prints a plist-like dictionary when the job is loaded
 * - PID line is absent when the job is loaded but not running
 */
func (c *launchdController) Status(ctx context.Context) models.ServiceStatus {
	status := models.ServiceStatus{}

	output, err := utils.RunCommand(ctx, "", "launchctl", "list", c.label)
	if err != nil {
		logger.Debugf("launchctl list %s failed: %v", c.label, err)
		return status
	}
	if pid := parseLaunchdPid(output); pid > 0 {
		status.Running = true
		status.Pid = pid
	}
	status.AutoRestart = c.hasKeepAlive()
	return status
}

func (c *launchdController) Logs(ctx context.Context, lines int) []string {
	return tailFile(agentLogPath(), ClampLogLines(lines))
}

func (c *launchdController) Restart(ctx context.Context) error {
	if out, err := utils.RunCommand(ctx, "", "launchctl", "stop", c.label); err != nil {
		logger.Warnf("launchctl stop %s: %v (%s)", c.label, err, out)
	}
	time.Sleep(launchdSettleDelay)
	if out, err := utils.RunCommand(ctx, "", "launchctl", "start", c.label); err != nil {
		return fmt.Errorf("launchctl start %s failed: %v (%s)", c.label, err, out)
	}
	return nil
}

const launchdPlistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>%s</string>
	<key>ProgramArguments</key>
	<array>
%s	</array>
	<key>WorkingDirectory</key>
	<string>%s</string>
	<key>KeepAlive</key>
	<true/>
	<key>RunAtLoad</key>
	<true/>
</dict>
</plist>
`

/**
 * Register the service as a LaunchAgent
 * @description
 * - Writes the plist under ~/Library/LaunchAgents and loads it
 * - An already-loaded agent is unloaded first so the new definition takes effect
 */
func (c *launchdController) Install(ctx context.Context) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolve home directory failed: %v", err)
	}

	var args strings.Builder
	for _, part := range config.Config.Update.ServiceCommand {
		fmt.Fprintf(&args, "\t\t<string>%s</string>\n", part)
	}
	plist := fmt.Sprintf(launchdPlistTemplate, c.label, args.String(), env.TermhostDir)

	plistPath := filepath.Join(home, "Library", "LaunchAgents", c.label+".plist")
	if err := os.MkdirAll(filepath.Dir(plistPath), 0755); err != nil {
		return fmt.Errorf("create LaunchAgents directory failed: %v", err)
	}
	if err := os.WriteFile(plistPath, []byte(plist), 0644); err != nil {
		return fmt.Errorf("write plist '%s' failed: %v", plistPath, err)
	}

	if out, err := utils.RunCommand(ctx, "", "launchctl", "unload", plistPath); err != nil {
		logger.Debugf("launchctl unload %s: %v (%s)", plistPath, err, out)
	}
	if out, err := utils.RunCommand(ctx, "", "launchctl", "load", plistPath); err != nil {
		return fmt.Errorf("launchctl load %s failed: %v (%s)", plistPath, err, out)
	}
	logger.Infof("Installed LaunchAgent %s", plistPath)
	return nil
}

// parseLaunchdPid 从launchctl list输出中提取PID行，形如 `"PID" = 1234;`
func parseLaunchdPid(output string) int {
	for _, line := range utils.SplitLines(output) {
		if !strings.Contains(line, "\"PID\"") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx < 0 {
			continue
		}
		value := strings.Trim(strings.TrimSpace(line[idx+1:]), ";")
		if pid, err := strconv.Atoi(value); err == nil {
			return pid
		}
	}
	return 0
}

// hasKeepAlive 检查LaunchAgent的plist是否配置了KeepAlive
func (c *launchdController) hasKeepAlive() bool {
	home, err := os.UserHomeDir()
	if err != nil {
		return false
	}
	plist := filepath.Join(home, "Library", "LaunchAgents", c.label+".plist")
	data, err := os.ReadFile(plist)
	if err != nil {
		return false
	}
	return strings.Contains(string(data), "KeepAlive")
}

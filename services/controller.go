package services

import (
	"context"
	"errors"
	"os"
	"strings"

	"termhost/internal/config"
	"termhost/internal/logger"
	"termhost/internal/models"
	"termhost/internal/utils"
)

// ErrManualRestart manual模式无法自我重启，需要外部介入，不可重试
var ErrManualRestart = errors.New("running without an init system: restart requires external intervention")

// ErrManualInstall manual模式没有可注册的服务机制
var ErrManualInstall = errors.New("running without an init system: nothing to register")

const (
	MinLogLines     = 1
	MaxLogLines     = 10000
	DefaultLogLines = 100
)

/**
 * ServiceController 按init系统抽象的服务控制接口
 * @description
 * - Status/Logs是尽力而为的查询：探测失败或超时一律归一为"未运行"/空结果，不抛传输错误
 * - Restart按各init系统的原生语义执行：刷新定义 -> 查询激活状态 -> start或restart
 * - Install向init系统注册服务定义(unit/plist/任务)，已注册时覆盖更新
 * - 编排器和健康监控只依赖这个接口，不感知具体init系统
 */
type ServiceController interface {
	InitSystem() models.InitSystem
	Status(ctx context.Context) models.ServiceStatus
	Logs(ctx context.Context, lines int) []string
	Restart(ctx context.Context) error
	Install(ctx context.Context) error
}

// serviceCommandLine 服务启动命令行，供各init系统的服务定义引用
func serviceCommandLine() string {
	return strings.Join(config.Config.Update.ServiceCommand, " ")
}

/**
 * Create service controller for the given init system
 * @param {models.InitSystem} initSystem - Init system governing this process
 * @param {string} serviceName - Name the service is registered under
 * @returns {ServiceController} Returns the matching controller implementation
 */
func NewServiceController(initSystem models.InitSystem, serviceName string) ServiceController {
	switch initSystem {
	case models.InitSystemdUser:
		return &systemdController{name: serviceName, userScope: true}
	case models.InitSystemdSystem:
		return &systemdController{name: serviceName, userScope: false}
	case models.InitOpenRC:
		return &openrcController{name: serviceName}
	case models.InitLaunchd:
		return &launchdController{label: serviceName}
	case models.InitWindowsService:
		return &windowsController{name: serviceName, scheduledTask: false}
	case models.InitTaskScheduler:
		return &windowsController{name: serviceName, scheduledTask: true}
	default:
		return &manualController{name: serviceName}
	}
}

// ClampLogLines 把行数限定在合法范围内
func ClampLogLines(lines int) int {
	if lines < MinLogLines {
		return DefaultLogLines
	}
	if lines > MaxLogLines {
		return MaxLogLines
	}
	return lines
}

// agentLogPath 代理自身的日志文件，没有系统级日志设施的平台用它兜底
func agentLogPath() string {
	return logger.DefaultLogPath()
}

// tailFile 读取文件末尾指定行数，读取失败时降级为空结果
func tailFile(path string, lines int) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Debugf("Read log file '%s' failed: %v", path, err)
		return []string{}
	}
	all := utils.SplitLines(string(data))
	if len(all) > lines {
		all = all[len(all)-lines:]
	}
	return all
}

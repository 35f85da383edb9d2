package services

import (
	"context"
	"time"

	"termhost/internal/config"
	"termhost/internal/env"
	"termhost/internal/logger"
	"termhost/internal/models"
)

/**
 * Server 服务器聚合根
 * @description
 * - 持有控制器、检查器、编排器、广播器与监控器，作为HTTP层的唯一入口
 * - 负责后台任务的启动：健康监控循环与周期性更新检查
 */
type Server struct {
	cfg          *config.AppConfig
	controller   ServiceController
	checker      *UpdateChecker
	orchestrator *UpdateOrchestrator
	broadcaster  *ProgressBroadcaster
	monitor      *HealthMonitor
	startTime    time.Time
}

/**
 * Create new server instance with all managers
 * @param {*config.AppConfig} cfg - Application configuration
 * @returns {*Server} Returns new server instance
 * @description
 * - Detects the init system and builds the matching service controller
 * - Wires checker, orchestrator, broadcaster and monitor together
 */
func NewServer(cfg *config.AppConfig) *Server {
	initSystem := DetectInitSystem()
	controller := NewServiceController(initSystem, cfg.Update.ServiceName)
	checker := GetUpdateChecker()
	broadcaster := GetProgressBroadcaster()
	orchestrator := NewUpdateOrchestrator(controller, checker, broadcaster)
	return NewServerWith(cfg, controller, checker, orchestrator, broadcaster)
}

// NewServerWith 按显式组件组装服务器，调用方自备控制器与更新链路时使用
func NewServerWith(cfg *config.AppConfig, controller ServiceController, checker *UpdateChecker,
	orchestrator *UpdateOrchestrator, broadcaster *ProgressBroadcaster) *Server {
	return &Server{
		cfg:          cfg,
		controller:   controller,
		checker:      checker,
		orchestrator: orchestrator,
		broadcaster:  broadcaster,
		monitor:      NewHealthMonitor(controller, orchestrator),
		startTime:    time.Now(),
	}
}

func (s *Server) Controller() ServiceController {
	return s.controller
}

func (s *Server) Checker() *UpdateChecker {
	return s.checker
}

func (s *Server) Orchestrator() *UpdateOrchestrator {
	return s.orchestrator
}

func (s *Server) Broadcaster() *ProgressBroadcaster {
	return s.broadcaster
}

func (s *Server) Monitor() *HealthMonitor {
	return s.monitor
}

// Init 启动时填好当前版本号，失败不阻塞启动
func (s *Server) Init(ctx context.Context) error {
	if version, err := s.checker.CurrentVersion(ctx); err == nil {
		env.SetVersion(version)
	} else {
		logger.Warnf("Resolve current version failed: %v", err)
	}
	return nil
}

/**
 * Start background monitoring tasks
 * @description
 * - Starts the health monitor loop
 * - Starts the periodic background update check ticker
 * @example
 * server.StartMonitoring()
 */
func (s *Server) StartMonitoring() {
	s.monitor.Start()
	go s.startPeriodicCheck()
}

// StopMonitoring 停止后台任务，用于优雅退出
func (s *Server) StopMonitoring() {
	s.monitor.Stop()
}

// startPeriodicCheck 周期性后台更新检查，只刷新缓存不触发更新
func (s *Server) startPeriodicCheck() {
	interval := time.Duration(s.cfg.Monitor.CheckInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		if s.orchestrator.InProgress() {
			continue
		}
		if _, err := s.checker.Check(context.Background()); err != nil {
			logger.Warnf("Background update check failed: %v", err)
		}
	}
}

/**
 * Get aggregated health view
 * @param {context.Context} ctx - Context for timeout control
 * @returns {models.HealthStatus} Returns the aggregated health status
 * @description
 * - unhealthy: the managed service is not running
 * - degraded: running, but the last update attempt failed or an update is pending
 * - healthy: running with nothing outstanding
 */
func (s *Server) GetHealth(ctx context.Context) models.HealthStatus {
	status := s.controller.Status(ctx)
	info := s.checker.Latest()
	attempt := s.orchestrator.LastAttempt()

	health := models.HealthHealthy
	switch {
	case !status.Running:
		health = models.HealthUnhealthy
	case attempt != nil && (attempt.Status == models.AttemptFailed || attempt.Status == models.AttemptRollback):
		health = models.HealthDegraded
	case info != nil && info.Available:
		health = models.HealthDegraded
	}

	return models.HealthStatus{
		Health:      health,
		Service:     status,
		InitSystem:  s.controller.InitSystem(),
		UpdateInfo:  info,
		LastAttempt: attempt,
	}
}

/**
 * Get health check response for the server
 * @returns {models.HealthzResponse} Returns liveness response with uptime and metrics
 * @description
 * - Calculates server uptime from start time
 * - Reports request, update and restart counters
 * - Also answers for the throwaway test instance during update validation
 */
func (s *Server) GetHealthz() models.HealthzResponse {
	uptime := time.Since(s.startTime)

	return models.HealthzResponse{
		Version:   env.Version(),
		StartTime: s.startTime.Format(time.RFC3339),
		Status:    "UP",
		Uptime:    uptime.String(),
		TestMode:  env.TestMode,
		Metrics: models.Metrics{
			TotalRequests:  GetTotalRequestCount(),
			ErrorRequests:  GetTotalErrorCount(),
			UpdateRuns:     GetUpdateRunCount(),
			HealthRestarts: GetHealthRestartCount(),
		},
	}
}

package services

import (
	"context"
	"sync"
	"time"

	"termhost/internal/config"
	"termhost/internal/logger"
)

/**
 * HealthMonitor 健康监控器
 * @description
 * - 周期性检查服务健康状态，连续失败达到阈值后发起一次自动重启
 * - 同一故障窗口内只重启一次：重启后计数不清零，直到再次观测到健康才复位
 * - 更新进行中跳过重启动作，避免和更新自身的重启互相踩踏
 * - 单次检查的panic或错误不会终止监控循环
 */
type HealthMonitor struct {
	interval    time.Duration
	maxFailures int

	mutex         sync.Mutex
	failures      int
	restartIssued bool
	cancel        context.CancelFunc

	// 测试时可替换的探测与动作入口
	healthFn     func(ctx context.Context) bool
	restartFn    func(ctx context.Context) error
	inProgressFn func() bool
}

/**
 * Create new health monitor
 * @param {ServiceController} controller - Controller probed and restarted by the monitor
 * @param {*UpdateOrchestrator} orchestrator - Consulted to skip restarts during updates
 * @returns {*HealthMonitor} New monitor instance
 */
func NewHealthMonitor(controller ServiceController, orchestrator *UpdateOrchestrator) *HealthMonitor {
	return &HealthMonitor{
		interval:    time.Duration(config.Config.Monitor.Interval) * time.Second,
		maxFailures: config.Config.Monitor.MaxFailures,
		healthFn: func(ctx context.Context) bool {
			return controller.Status(ctx).Running
		},
		restartFn: func(ctx context.Context) error {
			return controller.Restart(ctx)
		},
		inProgressFn: orchestrator.InProgress,
	}
}

// Start 启动后台监控循环，重复调用是幂等的
func (hm *HealthMonitor) Start() {
	hm.mutex.Lock()
	defer hm.mutex.Unlock()

	if hm.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	hm.cancel = cancel
	go hm.loop(ctx)
	logger.Infof("Health monitor started (interval: %s, max failures: %d)", hm.interval, hm.maxFailures)
}

// Stop 停止监控循环
func (hm *HealthMonitor) Stop() {
	hm.mutex.Lock()
	defer hm.mutex.Unlock()

	if hm.cancel != nil {
		hm.cancel()
		hm.cancel = nil
	}
}

func (hm *HealthMonitor) loop(ctx context.Context) {
	ticker := time.NewTicker(hm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hm.CheckOnce(ctx)
		}
	}
}

/**
 * Run one health check cycle
 * @param {context.Context} ctx - Context for timeout control
 * @description
 * - Healthy observation resets the failure counter and re-arms the restart
 * - The restart fires once when the failure streak reaches the threshold;
 *   further failures in the same streak only log
 */
func (hm *HealthMonitor) CheckOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Health check panicked: %v", r)
		}
	}()

	if hm.healthFn(ctx) {
		hm.mutex.Lock()
		if hm.failures > 0 {
			logger.Infof("Service healthy again after %d failed checks", hm.failures)
		}
		hm.failures = 0
		hm.restartIssued = false
		hm.mutex.Unlock()
		return
	}

	hm.mutex.Lock()
	hm.failures++
	failures := hm.failures
	shouldRestart := failures >= hm.maxFailures && !hm.restartIssued
	if shouldRestart {
		hm.restartIssued = true
	}
	hm.mutex.Unlock()

	logger.Warnf("Health check failed (%d/%d)", failures, hm.maxFailures)
	if !shouldRestart {
		return
	}
	if hm.inProgressFn() {
		logger.Infof("Update in progress, skipping automatic restart")
		// 留到更新结束后的下一个故障窗口再试
		hm.mutex.Lock()
		hm.restartIssued = false
		hm.mutex.Unlock()
		return
	}

	logger.Warnf("Restarting service after %d consecutive failures", failures)
	IncrementHealthRestarts()
	if err := hm.restartFn(ctx); err != nil {
		logger.Errorf("Automatic restart failed: %v", err)
	}
}

// Failures 当前连续失败次数
func (hm *HealthMonitor) Failures() int {
	hm.mutex.Lock()
	defer hm.mutex.Unlock()
	return hm.failures
}

// LastFailureState 返回(连续失败次数, 本轮是否已发起过重启)
func (hm *HealthMonitor) LastFailureState() (int, bool) {
	hm.mutex.Lock()
	defer hm.mutex.Unlock()
	return hm.failures, hm.restartIssued
}

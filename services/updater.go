package services

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"termhost/internal/config"
	"termhost/internal/env"
	"termhost/internal/logger"
	"termhost/internal/models"
	"termhost/internal/utils"

	"github.com/google/uuid"
)

const (
	pullTimeout    = 2 * time.Minute
	installTimeout = 10 * time.Minute

	selfTestBudget   = 30 * time.Second
	selfTestAttempts = 5
	selfTestSpacing  = 2 * time.Second
)

/**
 * UpdateOrchestrator 更新编排器
 * @description
 * - 驱动一次完整更新：检查 -> 打标 -> 拉取 -> 按需重装依赖 -> 隔离测试 -> 晋级，任一步失败走回滚
 * - 进程级互斥：同一时刻至多一次更新在运行，并发请求直接拒绝(冲突)，不排队
 * - 互斥标志用原子CAS获取，释放放在defer里，即使panic也不会卡死后续更新
 * - 只保留最近一次更新记录(单槽)，每次状态迁移向广播器发布事件
 * - 进度阶梯固定为0/10/20/30/40/50/60/80/100，单次运行内单调不减
 */
type UpdateOrchestrator struct {
	checker     *UpdateChecker
	controller  ServiceController
	broadcaster *ProgressBroadcaster
	installDir  string
	cfg         config.UpdateConfig

	inProgress atomic.Bool
	mutex      sync.Mutex
	attempt    *models.UpdateAttempt
	progress   int

	// 测试时可替换的执行入口
	runGit      func(ctx context.Context, timeout time.Duration, args ...string) (string, error)
	installDeps func(ctx context.Context) error
	runSelfTest func(ctx context.Context) error
	restartSvc  func(ctx context.Context) error
}

/**
 * Create new update orchestrator
 * @param {ServiceController} controller - Controller used to promote/restore the service
 * @param {*UpdateChecker} checker - Checker used to resolve versions and branches
 * @param {*ProgressBroadcaster} broadcaster - Event fan-out target
 * @returns {*UpdateOrchestrator} New orchestrator instance
 */
func NewUpdateOrchestrator(controller ServiceController, checker *UpdateChecker, broadcaster *ProgressBroadcaster) *UpdateOrchestrator {
	uo := &UpdateOrchestrator{
		checker:     checker,
		controller:  controller,
		broadcaster: broadcaster,
		installDir:  env.TermhostDir,
		cfg:         config.Config.Update,
	}
	uo.runGit = func(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
		return utils.RunCommandTimeout(ctx, timeout, uo.installDir, "git", args...)
	}
	uo.installDeps = uo.runInstallCommand
	uo.runSelfTest = uo.spawnTestInstance
	uo.restartSvc = func(ctx context.Context) error {
		return uo.controller.Restart(ctx)
	}
	return uo
}

// InProgress 是否有更新在进行中
func (uo *UpdateOrchestrator) InProgress() bool {
	return uo.inProgress.Load()
}

// LastAttempt 返回最近一次更新记录的副本，从未更新过时返回nil
func (uo *UpdateOrchestrator) LastAttempt() *models.UpdateAttempt {
	uo.mutex.Lock()
	defer uo.mutex.Unlock()

	if uo.attempt == nil {
		return nil
	}
	copied := *uo.attempt
	return &copied
}

/**
 * Start an update run asynchronously
 * @returns {(string, error)} Returns the new update id, or ErrUpdateInProgress on conflict
 * @description
 * - The exclusivity guard is acquired with a compare-and-swap: exactly one
 *   concurrent caller wins, everyone else gets a conflict and causes no mutation
 */
func (uo *UpdateOrchestrator) StartUpdate() (string, error) {
	if !uo.inProgress.CompareAndSwap(false, true) {
		return "", config.ErrUpdateInProgress
	}

	updateID := uuid.NewString()
	uo.mutex.Lock()
	uo.attempt = &models.UpdateAttempt{
		UpdateID:  updateID,
		Status:    models.AttemptInProgress,
		Timestamp: time.Now(),
	}
	uo.progress = 0
	uo.mutex.Unlock()

	IncrementUpdateRuns()
	go uo.applyUpdate(context.Background(), updateID)
	return updateID, nil
}

/**
 * applyUpdate 执行完整的更新状态机
 * @description
 * - 检查失败直接终止(failed)：工作区尚未被改动，无需回滚
 * - 检查之后任一步失败都进入回滚路径
 * - 回滚失败是唯一的终态不可恢复状态，记录failed并等待人工介入
 */
func (uo *UpdateOrchestrator) applyUpdate(ctx context.Context, updateID string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Update %s panicked: %v", updateID, r)
			uo.finalize(updateID, models.AttemptFailed, fmt.Sprintf("internal error: %v", r), "", "")
			uo.publishFailure(updateID, models.EventError, "Update failed", fmt.Sprintf("internal error: %v", r))
			uo.publish(updateID, models.EventComplete, "Update failed", 0, "")
		}
		// 无论结局如何都要释放互斥标志并结束广播
		uo.inProgress.Store(false)
		go uo.closeRunSoon(updateID)
	}()

	uo.publish(updateID, models.EventStart, "Update started", 0, "")
	uo.publish(updateID, models.EventChecking, "Checking for updates", 10, "")

	info, err := uo.checker.Check(ctx)
	if err != nil {
		logger.Errorf("Update %s: check failed: %v", updateID, err)
		uo.finalize(updateID, models.AttemptFailed, fmt.Sprintf("update check failed: %v", err), "", "")
		uo.publishFailure(updateID, models.EventError, "Update check failed", err.Error())
		uo.publish(updateID, models.EventComplete, "Update failed", 0, "")
		return
	}
	previous := info.CurrentVersion
	uo.setFromVersion(previous)

	if !info.Available {
		// 没有更新：空操作成功，工作区不发生任何改动
		uo.finalize(updateID, models.AttemptSuccess, "", previous, "")
		uo.publish(updateID, models.EventSuccess, "Already up to date", 100, previous)
		uo.publish(updateID, models.EventComplete, "Update complete", 100, previous)
		return
	}

	branch, err := uo.checker.ResolveBranch(ctx)
	if err != nil {
		uo.rollback(ctx, updateID, previous, "", false, err)
		return
	}
	remote := "origin/" + branch

	// 给更新前的revision打标，便于追溯
	tag := "pre-update-" + shortID(updateID)
	if _, err := uo.runGit(ctx, utils.DefaultCommandTimeout, "tag", "-f", tag); err != nil {
		uo.rollback(ctx, updateID, previous, "", false, fmt.Errorf("tag %s failed: %v", tag, err))
		return
	}

	manifestChanged := uo.manifestChanged(ctx, remote)

	uo.publish(updateID, models.EventDownloading, "Pulling latest changes", 20, "")
	if out, err := uo.runGit(ctx, pullTimeout, "pull", "origin", branch); err != nil {
		uo.rollback(ctx, updateID, previous, "", manifestChanged, fmt.Errorf("git pull failed: %v (%s)", err, out))
		return
	}

	uo.publish(updateID, models.EventInstalling, "Installing dependencies", 30, "")
	backupDir := ""
	if manifestChanged {
		backupDir = uo.dependencyDir() + ".backup-" + shortID(updateID)
		// rename而不是copy，保证备份开销与依赖目录大小无关
		if err := os.Rename(uo.dependencyDir(), backupDir); err != nil && !os.IsNotExist(err) {
			uo.rollback(ctx, updateID, previous, "", manifestChanged, fmt.Errorf("backup dependencies failed: %v", err))
			return
		}
		if err := uo.installDeps(ctx); err != nil {
			uo.rollback(ctx, updateID, previous, backupDir, manifestChanged, fmt.Errorf("dependency install failed: %v", err))
			return
		}
		uo.publish(updateID, models.EventInstalling, "Dependencies installed", 40, "")
	} else {
		uo.publish(updateID, models.EventInstalling, "Dependency manifest unchanged, skipping reinstall", 40, "")
	}

	uo.publish(updateID, models.EventTesting, "Testing updated code in isolation", 50, "")
	if err := uo.runSelfTest(ctx); err != nil {
		uo.rollback(ctx, updateID, previous, backupDir, manifestChanged, fmt.Errorf("self-test failed: %v", err))
		return
	}
	uo.publish(updateID, models.EventTesting, "Self-test passed", 60, "")

	uo.publish(updateID, models.EventRestarting, "Restarting service with updated code", 80, "")
	if err := uo.restartSvc(ctx); err != nil {
		uo.rollback(ctx, updateID, previous, backupDir, manifestChanged, fmt.Errorf("restart failed: %v", err))
		return
	}

	if backupDir != "" {
		if err := os.RemoveAll(backupDir); err != nil {
			logger.Warnf("Remove dependency backup '%s' failed: %v", backupDir, err)
		}
	}

	newVersion, err := uo.checker.CurrentVersion(ctx)
	if err != nil {
		newVersion = info.LatestVersion
	}
	env.SetVersion(newVersion)
	uo.finalize(updateID, models.AttemptSuccess, "", newVersion, "")
	uo.publish(updateID, models.EventSuccess, fmt.Sprintf("Updated to %s", newVersion), 100, newVersion)
	uo.publish(updateID, models.EventComplete, "Update complete", 100, newVersion)
	logger.Infof("Update %s succeeded: %s -> %s", updateID, previous, newVersion)
}

/**
 * rollback 回滚路径
 * @description
 * - 工作区硬复位到更新前的revision
 * - 有依赖备份时删除当前依赖目录并恢复备份，否则按需重装
 * - 恢复服务后记录rollback状态；回滚自身失败则记录failed并声明需要人工介入
 */
func (uo *UpdateOrchestrator) rollback(ctx context.Context, updateID, previous, backupDir string, manifestChanged bool, cause error) {
	logger.Errorf("Update %s: %v, rolling back to %s", updateID, cause, previous)
	uo.publishFailure(updateID, models.EventRollback, fmt.Sprintf("Rolling back: %v", cause), cause.Error())

	var rollbackErr error
	if out, err := uo.runGit(ctx, utils.DefaultCommandTimeout, "reset", "--hard", previous); err != nil {
		rollbackErr = fmt.Errorf("git reset --hard %s failed: %v (%s)", previous, err, out)
	}

	if rollbackErr == nil && backupDir != "" {
		if _, err := os.Stat(backupDir); err == nil {
			if err := os.RemoveAll(uo.dependencyDir()); err != nil && !os.IsNotExist(err) {
				rollbackErr = fmt.Errorf("remove updated dependencies failed: %v", err)
			} else if err := os.Rename(backupDir, uo.dependencyDir()); err != nil {
				rollbackErr = fmt.Errorf("restore dependency backup failed: %v", err)
			}
		} else if manifestChanged {
			rollbackErr = uo.installDeps(ctx)
		}
	} else if rollbackErr == nil && manifestChanged {
		// 没有备份可恢复，从头重装
		rollbackErr = uo.installDeps(ctx)
	}

	if rollbackErr == nil {
		rollbackErr = uo.restartSvc(ctx)
	}

	if rollbackErr != nil {
		message := fmt.Sprintf("update failed (%v) and rollback failed (%v): manual intervention required", cause, rollbackErr)
		logger.Errorf("Update %s: %s", updateID, message)
		uo.finalize(updateID, models.AttemptFailed, message, "", "")
		uo.publishFailure(updateID, models.EventError, "Rollback failed", message)
		uo.publish(updateID, models.EventComplete, "Update failed", 0, "")
		return
	}

	uo.finalize(updateID, models.AttemptRollback, cause.Error(), "", previous)
	uo.publish(updateID, models.EventComplete, fmt.Sprintf("Rolled back to %s", previous), 0, "")
	logger.Infof("Update %s rolled back to %s", updateID, previous)
}

// manifestChanged 判断依赖清单在本地HEAD与远端tip之间是否有变化
func (uo *UpdateOrchestrator) manifestChanged(ctx context.Context, remote string) bool {
	out, err := uo.runGit(ctx, utils.DefaultCommandTimeout, "diff", "--name-only", "HEAD", remote)
	if err != nil {
		logger.Warnf("git diff --name-only failed: %v, assuming manifest changed", err)
		return true
	}
	for _, file := range utils.SplitLines(out) {
		if filepath.Base(strings.TrimSpace(file)) == uo.cfg.DependencyManifest {
			return true
		}
	}
	return false
}

func (uo *UpdateOrchestrator) dependencyDir() string {
	return filepath.Join(uo.installDir, uo.cfg.DependencyDir)
}

// runInstallCommand 执行平台依赖安装命令
func (uo *UpdateOrchestrator) runInstallCommand(ctx context.Context) error {
	command := uo.cfg.InstallCommand
	if len(command) == 0 {
		return fmt.Errorf("no install command configured")
	}
	out, err := utils.RunCommandTimeout(ctx, installTimeout, uo.installDir, command[0], command[1:]...)
	if err != nil {
		return fmt.Errorf("%s failed: %v (%s)", strings.Join(command, " "), err, out)
	}
	return nil
}

/**
 * spawnTestInstance 启动隔离的测试实例验证更新后的代码
 * @description
 * - 测试实例以测试模式运行在约定的探活端口上
 * - 最多探测5次、间隔约2秒，总预算30秒
 * - 首次探活成功即判通过；进程提前退出或预算耗尽判失败
 * - 无论结局如何都强制终止测试实例，避免遗留进程占用端口
 */
func (uo *UpdateOrchestrator) spawnTestInstance(ctx context.Context) error {
	command := uo.cfg.TestCommand
	if len(command) == 0 {
		command = []string{"npm", "start"}
	}
	instance := NewProcessInstance("update self-test", command[0], command[1:])
	instance.WorkDir = uo.installDir
	instance.Env = []string{
		"TERMHOST_TEST_MODE=1",
		fmt.Sprintf("TERMHOST_HEALTH_PORT=%d", env.HealthPort),
	}
	if err := instance.StartProcess(); err != nil {
		return err
	}
	defer instance.StopProcess()

	probeURL := fmt.Sprintf("http://localhost:%d/healthz", env.HealthPort)
	client := &http.Client{Timeout: 3 * time.Second}
	deadline := time.Now().Add(selfTestBudget)

	for attempt := 0; attempt < selfTestAttempts; attempt++ {
		if time.Now().After(deadline) {
			break
		}
		select {
		case exitErr := <-instance.Exited():
			return fmt.Errorf("test instance exited before becoming healthy: %v", exitErr)
		case <-time.After(selfTestSpacing):
		}
		if !utils.CheckPortConnectable(env.HealthPort) {
			logger.Debugf("Self-test probe %d: port %d not listening yet", attempt+1, env.HealthPort)
			continue
		}
		resp, err := client.Get(probeURL)
		if err != nil {
			logger.Debugf("Self-test probe %d failed: %v", attempt+1, err)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			logger.Infof("Self-test probe succeeded on attempt %d", attempt+1)
			return nil
		}
	}
	return fmt.Errorf("test instance did not become healthy within %s", selfTestBudget)
}

// emit 发布一个生命周期事件，进度只增不减
func (uo *UpdateOrchestrator) emit(event models.UpdateEvent) {
	uo.mutex.Lock()
	if event.Progress > uo.progress {
		uo.progress = event.Progress
	}
	event.Progress = uo.progress
	uo.mutex.Unlock()

	uo.broadcaster.Publish(event)
}

func (uo *UpdateOrchestrator) publish(updateID string, eventType models.UpdateEventType, message string, progress int, newVersion string) {
	uo.emit(models.UpdateEvent{
		Type:       eventType,
		Message:    message,
		Progress:   progress,
		UpdateID:   updateID,
		NewVersion: newVersion,
	})
}

// publishFailure 发布带错误详情的失败事件
func (uo *UpdateOrchestrator) publishFailure(updateID string, eventType models.UpdateEventType, message, errText string) {
	uo.emit(models.UpdateEvent{
		Type:     eventType,
		Message:  message,
		UpdateID: updateID,
		Error:    errText,
	})
}

// finalize 落定本次更新的终态记录
func (uo *UpdateOrchestrator) finalize(updateID string, status models.UpdateAttemptStatus, errMessage, toVersion, rolledBackTo string) {
	uo.mutex.Lock()
	defer uo.mutex.Unlock()

	if uo.attempt == nil || uo.attempt.UpdateID != updateID {
		return
	}
	uo.attempt.Status = status
	uo.attempt.Error = errMessage
	uo.attempt.ToVersion = toVersion
	uo.attempt.RolledBackTo = rolledBackTo
}

func (uo *UpdateOrchestrator) setFromVersion(version string) {
	uo.mutex.Lock()
	defer uo.mutex.Unlock()
	if uo.attempt != nil {
		uo.attempt.FromVersion = version
	}
}

// closeRunSoon 稍候结束广播，给订阅者留出读完终态事件的时间
func (uo *UpdateOrchestrator) closeRunSoon(updateID string) {
	time.Sleep(time.Second)
	uo.broadcaster.CloseRun(updateID)
}

func shortID(updateID string) string {
	if len(updateID) >= 8 {
		return updateID[:8]
	}
	return updateID
}

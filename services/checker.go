package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"termhost/internal/config"
	"termhost/internal/env"
	"termhost/internal/logger"
	"termhost/internal/models"
	"termhost/internal/utils"
)

/**
 * UpdateChecker 更新检查器
 * @description
 * - 安装目录是一个git检出，版本号一律取自仓库的当前revision（短hash），不手工维护
 * - Check对比本地HEAD与远端分支：优先origin/main，不存在时回退origin/master
 * - 返回(nil, err)表示"检查失败"，与"没有可用更新"是两种不同结果
 * - 最近一次成功的检查结果作为进程级缓存保留
 */
type UpdateChecker struct {
	installDir string
	branch     string
	fallback   string

	mutex  sync.Mutex
	latest *models.UpdateInfo

	// 测试时可替换的git执行入口
	runGit func(ctx context.Context, args ...string) (string, error)
}

var updateChecker *UpdateChecker

// NewUpdateChecker 为指定检出目录创建更新检查器
func NewUpdateChecker(installDir, branch, fallback string) *UpdateChecker {
	uc := &UpdateChecker{
		installDir: installDir,
		branch:     branch,
		fallback:   fallback,
	}
	uc.runGit = func(ctx context.Context, args ...string) (string, error) {
		return utils.RunCommand(ctx, uc.installDir, "git", args...)
	}
	return uc
}

func GetUpdateChecker() *UpdateChecker {
	if updateChecker == nil {
		updateChecker = NewUpdateChecker(env.TermhostDir,
			config.Config.Update.Branch, config.Config.Update.FallbackBranch)
	}
	return updateChecker
}

// IsRepository 判断安装目录是否为git检出
func (uc *UpdateChecker) IsRepository(ctx context.Context) bool {
	_, err := uc.runGit(ctx, "rev-parse", "--git-dir")
	return err == nil
}

// CurrentVersion 取本地HEAD的短revision
func (uc *UpdateChecker) CurrentVersion(ctx context.Context) (string, error) {
	out, err := uc.runGit(ctx, "rev-parse", "--short", "HEAD")
	if err != nil {
		return "", fmt.Errorf("rev-parse HEAD failed: %v", err)
	}
	return strings.TrimSpace(out), nil
}

/**
 * Resolve the remote tracking branch
 * @returns {(string, error)} Returns branch name after fetching it, error when neither branch fetches
 * @description
 * - Tries the preferred branch first, then the fallback
 * - A successful fetch is the evidence that the branch exists remotely
 */
func (uc *UpdateChecker) ResolveBranch(ctx context.Context) (string, error) {
	for _, branch := range []string{uc.branch, uc.fallback} {
		if _, err := uc.runGit(ctx, "fetch", "origin", branch); err == nil {
			return branch, nil
		} else {
			logger.Debugf("git fetch origin %s failed: %v", branch, err)
		}
	}
	return "", fmt.Errorf("fetch failed for branches %s and %s", uc.branch, uc.fallback)
}

/**
 * Check for an available update
 * @param {context.Context} ctx - Context for timeout control
 * @returns {(*models.UpdateInfo, error)} Returns update info, or nil with error when the check itself failed
 * @description
 * - Fails (nil, err) when the install directory isn't a checkout or the fetch fails entirely
 * - Collects one-line commit summaries of local..remote as the change list
 * - Caches the latest successful result process-wide
 */
func (uc *UpdateChecker) Check(ctx context.Context) (*models.UpdateInfo, error) {
	if !uc.IsRepository(ctx) {
		return nil, fmt.Errorf("install directory '%s' is not a git checkout", uc.installDir)
	}

	branch, err := uc.ResolveBranch(ctx)
	if err != nil {
		return nil, err
	}
	remote := "origin/" + branch

	current, err := uc.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	latestOut, err := uc.runGit(ctx, "rev-parse", "--short", remote)
	if err != nil {
		return nil, fmt.Errorf("rev-parse %s failed: %v", remote, err)
	}
	latest := strings.TrimSpace(latestOut)

	info := &models.UpdateInfo{
		Available:      current != latest,
		CurrentVersion: current,
		LatestVersion:  latest,
		Changes:        []string{},
		LastCheck:      time.Now(),
	}
	if info.Available {
		if out, err := uc.runGit(ctx, "log", "--oneline", "HEAD.."+remote); err == nil {
			info.Changes = utils.SplitLines(out)
		} else {
			logger.Warnf("git log HEAD..%s failed: %v", remote, err)
		}
	}

	uc.mutex.Lock()
	uc.latest = info
	uc.mutex.Unlock()

	env.SetVersion(current)
	logger.Infof("Update check: current=%s latest=%s available=%v", current, latest, info.Available)
	return info, nil
}

// Latest 返回最近一次成功检查的结果，尚未检查过时返回nil
func (uc *UpdateChecker) Latest() *models.UpdateInfo {
	uc.mutex.Lock()
	defer uc.mutex.Unlock()

	if uc.latest == nil {
		return nil
	}
	copied := *uc.latest
	return &copied
}

package models

import (
	"time"
)

// UpdateInfo 更新检查结果
// @Description 本地版本与远端分支的比较结果
type UpdateInfo struct {
	Available      bool      `json:"available" example:"true" description:"是否有可用更新"`
	CurrentVersion string    `json:"currentVersion" example:"a1b2c3d" description:"本地HEAD的短版本号"`
	LatestVersion  string    `json:"latestVersion" example:"e4f5a6b" description:"远端分支的短版本号"`
	Changes        []string  `json:"changes" description:"local..remote之间的提交摘要"`
	LastCheck      time.Time `json:"lastCheck" example:"2024-01-01T10:00:00Z" description:"最后检查时间"`
}

// UpdateAttemptStatus 一次更新的最终状态
type UpdateAttemptStatus string

const (
	AttemptInProgress UpdateAttemptStatus = "in_progress"
	AttemptSuccess    UpdateAttemptStatus = "success"
	AttemptFailed     UpdateAttemptStatus = "failed"
	AttemptRollback   UpdateAttemptStatus = "rollback"
)

// UpdateAttempt 一次更新运行的记录，仅保留最近一次
// @Description 更新编排器单次运行的状态记录
type UpdateAttempt struct {
	UpdateID     string              `json:"updateId" example:"0f7b5cc1-a4f7-4f25-8b0a-3b5d1d1e9f00" description:"本次更新的唯一标识"`
	Status       UpdateAttemptStatus `json:"status" example:"success" description:"更新状态: in_progress/success/failed/rollback"`
	Timestamp    time.Time           `json:"timestamp" example:"2024-01-01T10:00:00Z" description:"更新开始时间"`
	FromVersion  string              `json:"fromVersion" example:"a1b2c3d" description:"更新前版本"`
	ToVersion    string              `json:"toVersion,omitempty" example:"e4f5a6b" description:"更新后版本"`
	Error        string              `json:"error,omitempty" description:"失败原因"`
	RolledBackTo string              `json:"rolledBackTo,omitempty" example:"a1b2c3d" description:"回滚到的版本"`
}

// UpdateEventType 更新生命周期事件类型
type UpdateEventType string

const (
	EventStart       UpdateEventType = "start"
	EventChecking    UpdateEventType = "checking"
	EventDownloading UpdateEventType = "downloading"
	EventInstalling  UpdateEventType = "installing"
	EventTesting     UpdateEventType = "testing"
	EventRestarting  UpdateEventType = "restarting"
	EventSuccess     UpdateEventType = "success"
	EventRollback    UpdateEventType = "rollback"
	EventError       UpdateEventType = "error"
	EventComplete    UpdateEventType = "complete"
)

// UpdateEvent 更新生命周期通知
// @Description 更新编排器每次状态迁移时发布的事件，progress在单次运行内单调不减
type UpdateEvent struct {
	Type       UpdateEventType `json:"type" example:"downloading" description:"事件类型"`
	Message    string          `json:"message" example:"Pulling latest changes" description:"事件描述"`
	Progress   int             `json:"progress" example:"20" description:"进度估计(0-100)"`
	UpdateID   string          `json:"updateId" description:"所属更新的唯一标识"`
	Error      string          `json:"error,omitempty" description:"错误信息"`
	NewVersion string          `json:"newVersion,omitempty" description:"更新后的版本号"`
}

package models

// HealthState 综合健康状态三态值
type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthDegraded  HealthState = "degraded"
	HealthUnhealthy HealthState = "unhealthy"
)

// HealthStatus 聚合健康读模型
// @Description 综合服务状态、更新信息和最近一次更新记录的健康视图
type HealthStatus struct {
	Health      HealthState    `json:"health" example:"healthy" description:"综合健康状态: healthy/degraded/unhealthy"`
	Service     ServiceStatus  `json:"service" description:"服务状态快照"`
	InitSystem  InitSystem     `json:"initSystem" example:"systemd-user" description:"托管本进程的init系统"`
	UpdateInfo  *UpdateInfo    `json:"updateInfo,omitempty" description:"最近一次更新检查结果"`
	LastAttempt *UpdateAttempt `json:"lastAttempt,omitempty" description:"最近一次更新记录"`
}

// HealthzResponse 存活探针响应结构
// @Description /healthz接口的响应数据结构，同时服务于更新测试实例的探活
type HealthzResponse struct {
	Version   string  `json:"version" example:"a1b2c3d" description:"当前代码版本"`
	StartTime string  `json:"startTime" example:"2024-01-01T10:00:00Z" description:"启动时间"`
	Status    string  `json:"status" example:"UP" description:"存活状态"`
	Uptime    string  `json:"uptime" example:"1h30m45s" description:"运行时长"`
	TestMode  bool    `json:"testMode,omitempty" description:"是否为更新验证用的测试实例"`
	Metrics   Metrics `json:"metrics" description:"关键指标"`
}

// Metrics 关键指标结构
// @Description 系统关键指标数据结构
type Metrics struct {
	TotalRequests  int64 `json:"totalRequests" example:"1000" description:"总请求数"`
	ErrorRequests  int64 `json:"errorRequests" example:"5" description:"出错请求数"`
	UpdateRuns     int64 `json:"updateRuns" example:"2" description:"更新运行次数"`
	HealthRestarts int64 `json:"healthRestarts" example:"0" description:"健康监控触发的重启次数"`
}

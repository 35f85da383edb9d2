package models

// InitSystem 托管本进程的服务控制机制
type InitSystem string

const (
	InitSystemdUser    InitSystem = "systemd-user"
	InitSystemdSystem  InitSystem = "systemd-system"
	InitOpenRC         InitSystem = "openrc"
	InitLaunchd        InitSystem = "launchd"
	InitWindowsService InitSystem = "windows-service"
	InitTaskScheduler  InitSystem = "task-scheduler"
	InitManual         InitSystem = "manual"
)

// ServiceStatus 服务状态快照
// @Description 当前托管服务的标准化状态视图，每次查询实时生成
type ServiceStatus struct {
	Running       bool `json:"running" example:"true" description:"服务是否在运行"`
	Pid           int  `json:"pid" example:"1234" description:"进程ID"`
	UptimeSeconds int  `json:"uptimeSeconds" example:"3600" description:"运行时长(秒)"`
	AutoRestart   bool `json:"autoRestart" example:"true" description:"init系统是否配置了自动重启"`
}

package service

import (
	"context"
	"fmt"

	"termhost/cmd/root"
	"termhost/internal/config"
	"termhost/internal/models"
	"termhost/internal/rpc"
	"termhost/services"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "查看服务状态",
	Long:  "查看被管服务的运行状态、init系统和更新信息。优先询问本机的termhost服务，服务未运行时退化为本地探测。",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := showStatus(context.Background()); err != nil {
			fmt.Println(err)
		}
	},
}

type statusResponse struct {
	Service          models.ServiceStatus `json:"service"`
	InitSystem       models.InitSystem    `json:"initSystem"`
	Health           models.HealthState   `json:"health"`
	UpdateInfo       *models.UpdateInfo   `json:"updateInfo"`
	UpdateInProgress bool                 `json:"updateInProgress"`
}

/**
 * Show service status information
 * @param {context.Context} ctx - Context for request cancellation and timeout
 * @returns {error} Returns error if showing status fails, nil on success
 * @description
 * - Queries the running termhost server via its HTTP API first
 * - Falls back to probing the init system directly when the server is down
 */
func showStatus(ctx context.Context) error {
	client := rpc.NewHTTPClient(nil)

	var remote statusResponse
	if err := client.GetJSON("/termhost/api/v1/system/status", nil, &remote); err == nil {
		printStatus(remote.InitSystem, remote.Service, string(remote.Health), remote.UpdateInfo, remote.UpdateInProgress)
		return nil
	}

	// 服务端不可达，本地探测
	initSystem := services.DetectInitSystem()
	controller := services.NewServiceController(initSystem, config.Config.Update.ServiceName)
	status := controller.Status(ctx)
	printStatus(initSystem, status, "", nil, false)
	return nil
}

func printStatus(initSystem models.InitSystem, status models.ServiceStatus, health string, info *models.UpdateInfo, updating bool) {
	fmt.Println("=== 服务状态 ===")
	fmt.Printf("init系统: %s\n", initSystem)
	if status.Running {
		fmt.Printf("运行状态: 运行中 (PID: %d)\n", status.Pid)
		if status.UptimeSeconds > 0 {
			fmt.Printf("运行时长: %d秒\n", status.UptimeSeconds)
		}
	} else {
		fmt.Println("运行状态: 已停止")
	}
	fmt.Printf("自动重启: %v\n", status.AutoRestart)
	if health != "" {
		fmt.Printf("健康状态: %s\n", health)
	}
	if info != nil {
		fmt.Printf("当前版本: %s\n", info.CurrentVersion)
		if info.Available {
			fmt.Printf("可用更新: %s\n", info.LatestVersion)
		}
	}
	if updating {
		fmt.Println("更新进行中")
	}
}

func init() {
	root.RootCmd.AddCommand(statusCmd)
}

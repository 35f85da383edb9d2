package service

import (
	"context"
	"fmt"

	"termhost/cmd/root"
	"termhost/internal/config"
	"termhost/internal/rpc"
	"termhost/services"

	"github.com/spf13/cobra"
)

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "重启被管服务",
	Long:  "通过平台原生的服务机制重启被管服务。优先走本机termhost服务的API，服务未运行时直接操作init系统。",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := restartService(context.Background()); err != nil {
			fmt.Println(err)
		}
	},
}

func restartService(ctx context.Context) error {
	client := rpc.NewHTTPClient(nil)

	if resp, err := client.Post("/termhost/api/v1/system/restart", nil); err == nil {
		if resp.Error != "" {
			return fmt.Errorf("重启失败(%d): %s", resp.StatusCode, resp.Error)
		}
		fmt.Println("服务重启成功")
		return nil
	}

	// 服务端不可达，直接操作init系统
	initSystem := services.DetectInitSystem()
	controller := services.NewServiceController(initSystem, config.Config.Update.ServiceName)
	if err := controller.Restart(ctx); err != nil {
		return fmt.Errorf("重启失败: %v", err)
	}
	fmt.Println("服务重启成功")
	return nil
}

func init() {
	root.RootCmd.AddCommand(restartCmd)
}

package service

import (
	"context"
	"fmt"

	"termhost/cmd/root"
	"termhost/internal/config"
	"termhost/services"

	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "向init系统注册被管服务",
	Long:  "检测当前平台的init系统(systemd/OpenRC/launchd/Windows)，写入服务定义并启用开机自启。已注册时覆盖更新。",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := installService(context.Background()); err != nil {
			fmt.Println(err)
		}
	},
}

func installService(ctx context.Context) error {
	initSystem := services.DetectInitSystem()
	controller := services.NewServiceController(initSystem, config.Config.Update.ServiceName)
	if err := controller.Install(ctx); err != nil {
		return fmt.Errorf("注册失败: %v", err)
	}
	fmt.Printf("服务已注册到 %s\n", initSystem)
	return nil
}

func init() {
	root.RootCmd.AddCommand(installCmd)
}

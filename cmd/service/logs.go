package service

import (
	"context"
	"fmt"
	"strconv"

	"termhost/cmd/root"
	"termhost/internal/config"
	"termhost/internal/rpc"
	"termhost/services"

	"github.com/spf13/cobra"
)

var optLines int

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "查看服务日志",
	Long:  "通过平台原生的日志设施查看被管服务最近的日志。优先走本机termhost服务的API，服务未运行时直接读取。",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := showLogs(context.Background()); err != nil {
			fmt.Println(err)
		}
	},
}

func showLogs(ctx context.Context) error {
	client := rpc.NewHTTPClient(nil)

	var remote struct {
		Lines int      `json:"lines"`
		Logs  []string `json:"logs"`
	}
	params := map[string]string{"lines": strconv.Itoa(optLines)}
	if err := client.GetJSON("/termhost/api/v1/system/logs", params, &remote); err == nil {
		for _, line := range remote.Logs {
			fmt.Println(line)
		}
		return nil
	}

	// 服务端不可达，直接读日志
	initSystem := services.DetectInitSystem()
	controller := services.NewServiceController(initSystem, config.Config.Update.ServiceName)
	for _, line := range controller.Logs(ctx, services.ClampLogLines(optLines)) {
		fmt.Println(line)
	}
	return nil
}

func init() {
	logsCmd.Flags().IntVarP(&optLines, "lines", "n", services.DefaultLogLines, "显示的日志行数")
	root.RootCmd.AddCommand(logsCmd)
}

package misc

import (
	"fmt"

	"termhost/cmd/root"
	"termhost/internal/rpc"

	"github.com/spf13/cobra"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "重新加载服务端配置",
	Long:  `连接本机的termhost服务并调用配置重载接口`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		reloadServerConfig()
	},
}

func reloadServerConfig() {
	client := rpc.NewHTTPClient(nil)

	resp, err := client.Post("/termhost/api/v1/reload", nil)
	if err != nil {
		fmt.Printf("无法连接termhost服务: %v\n", err)
		return
	}
	if resp.Error != "" {
		fmt.Printf("配置重载失败(%d): %s\n", resp.StatusCode, resp.Error)
		return
	}
	fmt.Println("配置重载成功")
}

func init() {
	root.RootCmd.AddCommand(reloadCmd)
}

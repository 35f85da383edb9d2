package root

import (
	"github.com/spf13/cobra"
)

var RootCmd = &cobra.Command{
	Use:   "termhost",
	Short: "终端代理的常驻监督器",
	Long:  `termhost负责常驻终端代理的自更新、自愈、状态查询和日志查看，适配各平台的init系统`,
}

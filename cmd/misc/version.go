package misc

import (
	"context"
	"fmt"

	"termhost/cmd/root"
	"termhost/services"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示当前版本",
	Long:  `显示安装目录当前检出的代码版本(HEAD短hash)`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		checker := services.GetUpdateChecker()
		version, err := checker.CurrentVersion(context.Background())
		if err != nil {
			fmt.Printf("无法获取版本: %v\n", err)
			return
		}
		fmt.Println(version)
	},
}

func init() {
	root.RootCmd.AddCommand(versionCmd)
}

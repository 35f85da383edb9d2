package update

import (
	"context"
	"fmt"
	"time"

	"termhost/cmd/root"
	"termhost/internal/config"
	"termhost/internal/models"
	"termhost/services"

	"github.com/spf13/cobra"
)

var optCheck bool

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "更新被管服务",
	Long:  "检查并应用被管服务的更新：拉取最新代码、按需重装依赖、隔离测试通过后重启服务，失败自动回滚。",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runUpdate(context.Background()); err != nil {
			fmt.Println(err)
		}
	},
}

/**
 * Run an update from the command line
 * @param {context.Context} ctx - Context for request cancellation and timeout
 * @returns {error} Returns error if the update could not be started
 * @description
 * - With --check only reports whether an update is available
 * - Otherwise drives a full update run and prints each lifecycle event
 */
func runUpdate(ctx context.Context) error {
	checker := services.GetUpdateChecker()

	if optCheck {
		info, err := checker.Check(ctx)
		if err != nil {
			return fmt.Errorf("更新检查失败: %v", err)
		}
		fmt.Printf("当前版本: %s\n", info.CurrentVersion)
		fmt.Printf("最新版本: %s\n", info.LatestVersion)
		if !info.Available {
			fmt.Println("已是最新版本")
			return nil
		}
		fmt.Println("有可用更新:")
		for _, change := range info.Changes {
			fmt.Printf("  %s\n", change)
		}
		return nil
	}

	initSystem := services.DetectInitSystem()
	controller := services.NewServiceController(initSystem, config.Config.Update.ServiceName)
	broadcaster := services.GetProgressBroadcaster()
	orchestrator := services.NewUpdateOrchestrator(controller, checker, broadcaster)

	updateID, err := orchestrator.StartUpdate()
	if err != nil {
		return fmt.Errorf("启动更新失败: %v", err)
	}
	events, unsubscribe := broadcaster.Subscribe(updateID)
	defer unsubscribe()

	// 事件通道关闭或更新记录进入终态都视为结束
	for done := false; !done; {
		select {
		case event, ok := <-events:
			if !ok {
				done = true
				break
			}
			fmt.Printf("[%3d%%] %s: %s\n", event.Progress, event.Type, event.Message)
		case <-time.After(2 * time.Second):
			if attempt := orchestrator.LastAttempt(); attempt == nil || attempt.Status != models.AttemptInProgress {
				done = true
			}
		}
	}

	attempt := orchestrator.LastAttempt()
	if attempt == nil {
		return nil
	}
	switch attempt.Status {
	case models.AttemptSuccess:
		fmt.Printf("更新成功: %s -> %s\n", attempt.FromVersion, attempt.ToVersion)
	case models.AttemptRollback:
		fmt.Printf("更新失败，已回滚到 %s: %s\n", attempt.RolledBackTo, attempt.Error)
	default:
		fmt.Printf("更新失败: %s\n", attempt.Error)
	}
	return nil
}

func init() {
	updateCmd.Flags().BoolVarP(&optCheck, "check", "c", false, "只检查是否有可用更新，不执行更新")
	root.RootCmd.AddCommand(updateCmd)
}

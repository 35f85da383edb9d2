package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"termhost/cmd/root"
	"termhost/controllers"
	"termhost/internal/config"
	"termhost/internal/env"
	"termhost/internal/logger"
	"termhost/internal/middleware"
	"termhost/internal/utils"
	"termhost/services"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动HTTP服务",
	Long:  `启动termhost监督服务，提供状态查询、日志查看、重启和自更新接口，并运行后台健康监控`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := startServer(context.Background()); err != nil {
			logger.Fatal(err)
		}
	},
}

var optTestMode bool

/**
 * Start the supervisor HTTP server
 * @param {context.Context} ctx - Context for startup operations
 * @returns {error} Returns error if server fails to start, nil on clean shutdown
 * @description
 * - Builds the gin router with recovery and metrics middleware
 * - Registers public and system API routes
 * - Starts health monitoring and the periodic update check
 * - Shuts down gracefully on SIGINT/SIGTERM
 */
func startServer(ctx context.Context) error {
	if optTestMode || os.Getenv("TERMHOST_TEST_MODE") == "1" {
		env.TestMode = true
	}

	if mode := config.Config.Server.Mode; mode != "" {
		gin.SetMode(mode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	svr := services.NewServer(&config.Config)
	if err := svr.Init(ctx); err != nil {
		return err
	}

	if env.TestMode {
		// 测试实例只提供探活接口，不做监控也不碰init系统
		return runTestInstance(svr)
	}

	// 留下pid文件，manual模式的状态查询靠它定位进程
	pidFile := filepath.Join(env.TermhostDir, config.Config.Update.ServiceName+".pid")
	if err := utils.WritePidFile(pidFile, os.Getpid()); err != nil {
		logger.Warnf("Write pid file '%s' failed: %v", pidFile, err)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.MetricsMiddleware())

	controllers.NewAPIController(svr).RegisterRoutes(router)
	controllers.NewSystemController(svr).RegisterRoutes(router)

	svr.StartMonitoring()

	httpServer := &http.Server{
		Addr:    config.Config.Server.Address,
		Handler: router,
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		sig := <-quit
		logger.Infof("Received signal %s, shutting down", sig)

		svr.StopMonitoring()
		os.Remove(pidFile)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Server shutdown error: %v", err)
		}
	}()

	logger.Infof("Server listening on %s", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// runTestInstance 测试模式：只在探活端口上提供/healthz
func runTestInstance(svr *services.Server) error {
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, svr.GetHealthz())
	})

	address := fmt.Sprintf(":%d", env.HealthPort)
	logger.Infof("Test instance listening on %s", address)
	return router.Run(address)
}

func init() {
	serverCmd.Flags().BoolVar(&optTestMode, "test-mode", false, "以测试模式运行，只提供探活接口")
	root.RootCmd.AddCommand(serverCmd)
}

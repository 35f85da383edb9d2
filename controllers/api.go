package controllers

import (
	"termhost/internal/config"
	"termhost/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type APIController struct {
	server *services.Server
}

/**
 * Create new API controller instance
 * @param {*services.Server} server - Server aggregate backing the handlers
 * @returns {*APIController} New API controller instance
 * @description
 * - Handles the public endpoints outside the /termhost/api/v1 group
 * @example
 * server := services.NewServer(cfg)
 * controller := controllers.NewAPIController(server)
 */
func NewAPIController(server *services.Server) *APIController {
	return &APIController{
		server: server,
	}
}

/**
 * Register all API routes to Gin engine
 * @param {*gin.Engine} r - Gin router instance
 * @description
 * - Registers routes for:
 *   - Aggregated health view (/health)
 *   - Liveness probe (/healthz)
 *   - Prometheus metrics (/metrics)
 *   - Config reload
 * @example
 * router := gin.Default()
 * controller := NewAPIController(server)
 * controller.RegisterRoutes(router)
 */
func (a *APIController) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", a.Health)
	r.GET("/healthz", a.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST("/termhost/api/v1/reload", a.ReloadConfig)
}

// @Summary 综合健康视图
// @Description 返回服务运行状态、init系统、最近一次更新检查结果和最近一次更新记录的聚合视图
// @Tags System
// @Produce json
// @Success 200 {object} models.HealthStatus
// @Router /health [get]
func (a *APIController) Health(c *gin.Context) {
	response := a.server.GetHealth(c.Request.Context())
	c.JSON(200, response)
}

// @Summary 存活探针
// @Description 返回服务版本、启动时间、运行时长和关键指标；更新验证用的测试实例也通过本接口探活
// @Tags System
// @Produce json
// @Success 200 {object} models.HealthzResponse
// @Router /healthz [get]
func (a *APIController) Healthz(c *gin.Context) {
	response := a.server.GetHealthz()
	c.JSON(200, response)
}

// @Summary 重新加载配置
// @Description 重新加载应用配置文件
// @Tags Config
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /termhost/api/v1/reload [post]
func (a *APIController) ReloadConfig(c *gin.Context) {
	if err := config.ReloadConfig(); err != nil {
		c.JSON(500, gin.H{
			"code":    "config.reload_failed",
			"message": "Failed to reload configuration: " + err.Error(),
		})
		return
	}

	c.JSON(200, gin.H{
		"status":  "success",
		"message": "Configuration reloaded successfully",
	})
}

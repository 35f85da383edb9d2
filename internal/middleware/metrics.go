package middleware

import (
	"time"

	"termhost/services"

	"github.com/gin-gonic/gin"
)

/**
 * HTTP请求统计中间件
 * @description
 * - 统计HTTP服务器收到的请求数量
 * - 记录请求处理时间
 * - 区分成功和失败的请求
 * - 为健康检查接口提供请求数据
 */
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		statusCode := c.Writer.Status()

		// 用路由模板作为标签，避免路径参数撑爆标签基数
		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}

		services.IncrementRequestCount(route)
		services.RecordRequestDuration(route, duration)

		if statusCode >= 400 {
			services.IncrementErrorCount(route)
		}
	}
}

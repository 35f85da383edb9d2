package services

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termhost_request_total",
			Help: "Total HTTP requests received",
		},
		[]string{"route"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "termhost_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	errorCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termhost_request_errors_total",
			Help: "HTTP requests answered with status >= 400",
		},
		[]string{"route"},
	)

	updateRunCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "termhost_update_runs_total",
			Help: "Update runs started",
		},
	)

	healthRestartCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "termhost_health_restarts_total",
			Help: "Automatic restarts issued by the health monitor",
		},
	)
)

// Prometheus的计数器读不回来，健康接口要用的总量另存一份本地原子计数
var (
	totalRequests  atomic.Int64
	totalErrors    atomic.Int64
	updateRuns     atomic.Int64
	healthRestarts atomic.Int64
)

func init() {
	prometheus.MustRegister(requestCount)
	prometheus.MustRegister(requestDuration)
	prometheus.MustRegister(errorCount)
	prometheus.MustRegister(updateRunCount)
	prometheus.MustRegister(healthRestartCount)
}

// IncrementRequestCount 增加某路由的请求计数
func IncrementRequestCount(route string) {
	requestCount.WithLabelValues(route).Inc()
	totalRequests.Add(1)
}

// RecordRequestDuration 记录某路由的请求耗时(秒)
func RecordRequestDuration(route string, seconds float64) {
	requestDuration.WithLabelValues(route).Observe(seconds)
}

// IncrementErrorCount 增加某路由的错误响应计数
func IncrementErrorCount(route string) {
	errorCount.WithLabelValues(route).Inc()
	totalErrors.Add(1)
}

// IncrementUpdateRuns 记录一次更新运行
func IncrementUpdateRuns() {
	updateRunCount.Inc()
	updateRuns.Add(1)
}

// IncrementHealthRestarts 记录一次监控触发的自动重启
func IncrementHealthRestarts() {
	healthRestartCount.Inc()
	healthRestarts.Add(1)
}

func GetTotalRequestCount() int64 {
	return totalRequests.Load()
}

func GetTotalErrorCount() int64 {
	return totalErrors.Load()
}

func GetUpdateRunCount() int64 {
	return updateRuns.Load()
}

func GetHealthRestartCount() int64 {
	return healthRestarts.Load()
}

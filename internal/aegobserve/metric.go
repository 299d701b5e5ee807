// Package aegobserve 暴露 Prometheus 指标
package aegobserve

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 指标定义
var (
	TotalReq = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geoaegis_requests_total",
		Help: "请求总数",
	})
	FailReq = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geoaegis_requests_failed",
		Help: "请求失败数",
	})

	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geoaegis_http_request_duration_seconds",
		Help:    "HTTP 请求耗时",
		Buckets: prometheus.DefBuckets,
	}, []string{"path", "method", "code"})

	// FindDuration 按后端、数据源与结果分类记录一次 find 的耗时
	FindDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geoaegis_find_duration_seconds",
		Help:    "后端查询耗时",
		Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"backend", "source", "outcome"})

	PoolConnections = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "geoaegis_pool_connections",
		Help: "连接池中各状态的连接数",
	}, []string{"source", "state"})

	PoolEvictions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geoaegis_pool_evictions_total",
		Help: "连接池淘汰的连接数",
	}, []string{"source", "reason"})

	QueryRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geoaegis_query_retries_total",
		Help: "在新连接上重试的查询次数",
	}, []string{"source"})

	RealtimeCursors = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "geoaegis_realtime_cursors",
		Help: "仍在跟踪的实时轮询游标数",
	}, []string{"source"})
)

// Register 必须在 main 调用一次
func Register() {
	prometheus.MustRegister(
		TotalReq, FailReq, httpRequestDuration,
		FindDuration, PoolConnections, PoolEvictions, QueryRetries, RealtimeCursors,
	)
}

// Handler 返回 HTTP 处理器
func Handler() http.Handler { return promhttp.Handler() }

// ObserveFind 记录一次 find 的耗时与结果
func ObserveFind(backend, source string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	FindDuration.WithLabelValues(backend, source, outcome).Observe(time.Since(start).Seconds())
}

// PrometheusMiddleware 记录每个请求的耗时，path 使用路由模板以限制标签基数
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		TotalReq.Inc()
		if c.Writer.Status() >= http.StatusInternalServerError {
			FailReq.Inc()
		}
		httpRequestDuration.WithLabelValues(path, c.Request.Method, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

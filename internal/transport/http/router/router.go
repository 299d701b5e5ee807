// file: internal/transport/http/router/router.go
package router

import (
	"GeoAegis/internal/aegmiddleware"
	"GeoAegis/internal/aegobserve"
	"GeoAegis/internal/core/port"
	"GeoAegis/internal/transport/http/middleware"
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

// Dependencies 结构体用于将所有依赖项注入到路由器中
type Dependencies struct {
	Service port.QueryService
	// Health 返回检查失败的数据源；为 nil 时健康检查总是成功
	Health      func(ctx context.Context) map[string]error
	RateLimiter *aegmiddleware.RateLimiter
	// Auth 为 nil 时查询接口不要求认证
	Auth        *aegmiddleware.TokenAuth
	CORSOrigins []string
}

// New 创建并配置基于 Gin 的 HTTP 路由器
func New(deps Dependencies) http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(aegobserve.PrometheusMiddleware())

	origins := deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "Accept", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}))

	router.GET("/healthz", healthHandler(deps.Health))
	router.GET("/metrics", gin.WrapH(aegobserve.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(gzip.Gzip(gzip.DefaultCompression))
	v1.Use(middleware.ErrorHandlingMiddleware())
	if deps.RateLimiter != nil {
		v1.Use(middleware.Wrap(deps.RateLimiter.Chain))
	}
	if deps.Auth != nil {
		v1.Use(middleware.Wrap(deps.Auth.Middleware))
	}
	{
		v1.GET("/resources", resourcesHandler(deps.Service))
		v1.GET("/resources/:resource", resourceHandler(deps.Service))
		v1.GET("/geo/:resource", findHandler(deps.Service))
	}
	return router
}

func healthHandler(check func(ctx context.Context) map[string]error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		failed := check(ctx)
		if len(failed) == 0 {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		details := make(map[string]string, len(failed))
		for name, err := range failed {
			details[name] = err.Error()
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "sources": details})
	}
}

// Package middleware file: internal/transport/http/middleware/error_handler.go
package middleware

import (
	"GeoAegis/internal/core/port"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// ErrorHandlingMiddleware 是一个Gin中间件，用于集中处理错误。
// 处理器通过 c.Error(err) 附加错误后直接返回，由这里按错误分类生成响应。
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		// 只处理最后一个错误
		err := c.Errors.Last().Err
		status, body := Classify(err)
		if status >= http.StatusInternalServerError {
			slog.Error("[HTTP] 请求处理失败", "path", c.FullPath(), "status", status, "request_id", c.GetString(RequestIDKey), "error", err)
		} else {
			slog.Info("[HTTP] 请求被拒绝", "path", c.FullPath(), "status", status, "request_id", c.GetString(RequestIDKey), "error", err)
		}
		c.JSON(status, body)
	}
}

// Classify 把错误映射为 HTTP 状态码与响应体
func Classify(err error) (int, gin.H) {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		return http.StatusBadRequest, gin.H{"error": "请求参数验证失败", "details": ve.Error()}
	}

	var fe *port.ValidationError
	var be *port.BackendError
	switch {
	case errors.As(err, &fe):
		return http.StatusBadRequest, gin.H{"error": fe.Error(), "field": fe.Field}
	case errors.Is(err, port.ErrValidation):
		return http.StatusBadRequest, gin.H{"error": err.Error()}

	case errors.Is(err, port.ErrResourceNotFound), errors.Is(err, port.ErrSourceNotFound):
		return http.StatusNotFound, gin.H{"error": err.Error()}

	// 客户端应丢弃已累积的轮询状态，从头开始
	case errors.Is(err, port.ErrStaleCursor):
		return http.StatusGone, gin.H{"error": err.Error(), "restart": true}

	case errors.Is(err, port.ErrCancelled):
		return http.StatusConflict, gin.H{"error": port.ErrCancelled.Error()}

	case errors.Is(err, port.ErrBackendUnavailable):
		return http.StatusServiceUnavailable, gin.H{"error": port.ErrBackendUnavailable.Error()}

	case errors.As(err, &be) && be.Kind == port.ErrBackendQuery:
		return http.StatusInternalServerError, gin.H{"error": port.ErrBackendQuery.Error(), "backend": be.Backend, "code": be.Code}

	default:
		return http.StatusInternalServerError, gin.H{"error": "服务器内部错误"}
	}
}

// Package middleware file: internal/transport/http/middleware/bridge.go
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Wrap 把 net/http 风格的中间件接入 gin 流程
func Wrap(mw func(http.Handler) http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		reached := false
		handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reached = true
			c.Request = r
			c.Next()
		}))
		handler.ServeHTTP(c.Writer, c.Request)
		if !reached {
			c.Abort()
		}
	}
}

// Package aegobserve file: internal/aegobserve/logging.go
package aegobserve

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// logLevel 是全局 logger 的级别，配置热加载时可以直接调整
var logLevel = new(slog.LevelVar)

// ParseLevel 解析日志级别字符串，无法识别时返回 INFO
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger 创建输出 JSON 的 logger，带源码位置
func NewLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
	}))
}

// InitLogger 初始化全局的结构化日志记录器。
// 它应该在 main 函数的早期被调用。
func InitLogger(levelStr string) {
	logLevel.Set(ParseLevel(levelStr))
	slog.SetDefault(NewLogger(os.Stdout, logLevel))
}

// SetLevel 调整全局 logger 的级别
func SetLevel(levelStr string) {
	level := ParseLevel(levelStr)
	if logLevel.Level() != level {
		slog.Info("[Observe] 日志级别已调整", "from", logLevel.Level().String(), "to", level.String())
		logLevel.Set(level)
	}
}

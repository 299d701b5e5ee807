// file: internal/aegobserve/logging_test.go

package aegobserve

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" WARNING "))
	assert.Equal(t, slog.LevelError, ParseLevel("Error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"), "无法识别的级别回退到 INFO")
}

func TestNewLogger_JSONAndLevel(t *testing.T) {
	var buf bytes.Buffer
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)
	logger := NewLogger(&buf, level)

	logger.Debug("[Test] 不应输出")
	assert.Zero(t, buf.Len())

	logger.Info("[Test] 查询完成", "rows", 3)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "[Test] 查询完成", rec["msg"])
	assert.Equal(t, float64(3), rec["rows"])
	assert.Contains(t, rec, "source", "日志应带源码位置")

	buf.Reset()
	level.Set(slog.LevelDebug)
	logger.Debug("[Test] 调整级别后输出")
	assert.NotZero(t, buf.Len())
}

func TestSetLevel(t *testing.T) {
	old := logLevel.Level()
	defer logLevel.Set(old)

	SetLevel("error")
	assert.Equal(t, slog.LevelError, logLevel.Level())
	SetLevel("debug")
	assert.Equal(t, slog.LevelDebug, logLevel.Level())
}

// Package query file: internal/query/coerce.go
package query

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// ParseDate 解析 ISO/RFC 日期字符串。不带时区的值按 UTC 处理。
func ParseDate(raw string) (time.Time, error) {
	return cast.ToTimeInDefaultLocationE(strings.TrimSpace(raw), time.UTC)
}

// EpochValue 把时间换算为存储单位下的 epoch 值（秒向下取整）
func EpochValue(t time.Time, milliseconds bool) int64 {
	secs := t.Unix()
	if milliseconds {
		return secs * 1000
	}
	return secs
}

// ParseInt 按十进制解析整数，不接受小数
func ParseInt(raw string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
}

// ParseFloat 解析浮点数
func ParseFloat(raw string) (float64, error) {
	return cast.ToFloat64E(strings.TrimSpace(raw))
}

// ToInt64 把后端返回的数值类单元格转换为 int64
func ToInt64(v any) (int64, error) {
	return cast.ToInt64E(v)
}

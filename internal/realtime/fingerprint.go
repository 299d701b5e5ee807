// Package realtime file: internal/realtime/fingerprint.go
package realtime

import (
	"github.com/cespare/xxhash/v2"
	"github.com/spf13/cast"
)

// Fingerprint 返回行唯一标识的 64 位哈希。只用于判重，不校验内容。
func Fingerprint(key any) uint64 {
	if s, ok := key.(string); ok {
		return xxhash.Sum64String(s)
	}
	return xxhash.Sum64String(cast.ToString(key))
}

// Package inflight file: internal/inflight/registry.go
//
// 按客户端跟踪正在执行的请求。没有语句级取消的后端（文档库、搜索索引）
// 用它实现“同一客户端的新请求取代旧请求”：新请求开始时取消旧请求的 context。
package inflight

import (
	"GeoAegis/internal/core/port"
	"context"
	"sync"
)

type entry struct {
	seq    uint64
	cancel context.CancelCauseFunc
}

// Registry 的零值不可用，使用 New 创建
type Registry struct {
	mu      sync.Mutex
	seq     uint64
	entries map[string]entry
}

func New() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Begin 登记 client 的新请求，并取消它仍在执行的旧请求。
// 返回的 done 必须调用；client 为空时不做跟踪。
func (r *Registry) Begin(ctx context.Context, client string) (context.Context, func()) {
	if client == "" {
		return ctx, func() {}
	}
	cctx, cancel := context.WithCancelCause(ctx)

	r.mu.Lock()
	r.seq++
	seq := r.seq
	prev, had := r.entries[client]
	r.entries[client] = entry{seq: seq, cancel: cancel}
	r.mu.Unlock()

	if had {
		prev.cancel(port.ErrCancelled)
	}
	return cctx, func() {
		r.mu.Lock()
		if cur, ok := r.entries[client]; ok && cur.seq == seq {
			delete(r.entries, client)
		}
		r.mu.Unlock()
		cancel(nil)
	}
}

// Len 返回正在跟踪的客户端数
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Superseded 报告 ctx 是否因同一客户端的新请求而被取消
func Superseded(ctx context.Context) bool {
	return context.Cause(ctx) == port.ErrCancelled
}

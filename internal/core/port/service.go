// Package port file: internal/core/port/service.go
package port

import (
	"GeoAegis/internal/core/domain"
	"context"
	"time"
)

// WaitOptions 控制查询在没有数据时的等待与轮询行为
type WaitOptions struct {
	// Wait 是等待数据出现的最长时间；0 表示不等待
	Wait time.Duration
	// Poll 是两次查询之间的最小间隔
	Poll time.Duration
	// InitWait 是开始轮询前的初始延迟，不计入 Wait
	InitWait time.Duration
	// Format 是输出格式 list 或 dict；为空时保持数据源返回的格式
	Format string
}

// QueryService 是传输层使用的查询入口
type QueryService interface {
	Find(ctx context.Context, resource, source string, req domain.Request, opts WaitOptions) (*domain.Result, error)
	Resource(name string) (domain.ResourceConfig, *domain.Catalog, error)
	Resources() []string
}

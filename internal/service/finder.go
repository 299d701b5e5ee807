// Package service file: internal/service/finder.go
package service

import (
	"GeoAegis/internal/core/domain"
	"GeoAegis/internal/core/port"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

const defaultPoll = 10 * time.Second

// 编译期校验
var _ port.QueryService = (*Finder)(nil)

// Finder 是 port.QueryService 的实现：解析资源与数据源，
// 在数据源之上叠加等待与轮询，并转换输出格式。
type Finder struct {
	reg *Registry

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewFinder 创建查询服务
func NewFinder(reg *Registry) *Finder {
	return &Finder{reg: reg, now: time.Now, sleep: sleepContext}
}

func (f *Finder) Resource(name string) (domain.ResourceConfig, *domain.Catalog, error) {
	return f.reg.Resource(name)
}

func (f *Finder) Resources() []string { return f.reg.Resources() }

// Find 查询资源。opts.Wait > 0 时，在没有数据的情况下按 opts.Poll 间隔重复查询，
// 直到有数据或等待超时；轮询请求在两次查询之间把 _id_min 推进到上一次返回的游标。
func (f *Finder) Find(ctx context.Context, resource, source string, req domain.Request, opts port.WaitOptions) (*domain.Result, error) {
	rc, _, err := f.reg.Resource(resource)
	if err != nil {
		return nil, err
	}
	ds, err := f.reg.Source(ctx, resource, source)
	if err != nil {
		return nil, err
	}
	if req.Base == "" {
		req.Base = rc.Catalog
	}
	if len(req.Sort) == 0 && rc.DefaultSort != "" {
		req.Sort = domain.ParseSort(rc.DefaultSort, 1)
	}

	poll := opts.Poll
	if poll <= 0 {
		poll = defaultPoll
	}
	if opts.Wait > 0 && opts.InitWait > 0 {
		if err := f.sleep(ctx, opts.InitWait); err != nil {
			return nil, fmt.Errorf("等待期间请求结束: %w", err)
		}
	}

	start := f.now()
	attempts := 0
	var res *domain.Result
	for {
		attempts++
		res, err = ds.Find(ctx, req)
		if err != nil {
			return nil, err
		}
		if opts.Wait <= 0 || res.Len() > 0 {
			break
		}
		remaining := start.Add(opts.Wait).Sub(f.now())
		if remaining <= 0 {
			break
		}
		d := min(poll, remaining)
		if d < poll/2 {
			d = poll / 2
		}
		if err := f.sleep(ctx, d); err != nil {
			return nil, fmt.Errorf("等待期间请求结束: %w", err)
		}
		if req.Polling() && res.NextID != nil {
			req = req.WithParam(domain.ParamIDMin, strconv.FormatInt(*res.NextID, 10))
		}
	}
	if attempts > 1 {
		slog.Debug("[Finder] 轮询结束", "resource", resource, "source", source, "client", req.ClientID, "attempts", attempts, "rows", res.Len())
	}

	switch opts.Format {
	case domain.FormatDict:
		res.ToDict()
	case domain.FormatList:
		res.ToList(res.Fields)
	}
	return res, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

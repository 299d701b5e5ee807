// Package service file: internal/service/registry.go
//
// 资源与数据源注册表。数据源在第一次被查询时才建立连接，
// 配置热加载时只替换发生变化的数据源。
package service

import (
	"GeoAegis/internal/adapter/datasource/document"
	"GeoAegis/internal/adapter/datasource/elastic"
	"GeoAegis/internal/adapter/datasource/relational"
	"GeoAegis/internal/core/domain"
	"GeoAegis/internal/core/port"
	"GeoAegis/internal/tsquery"
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"
)

// Opener 根据配置创建一个数据源
type Opener func(ctx context.Context, name string, cfg domain.SourceConfig) (port.DataSource, error)

// DefaultOpener 按 kind 选择适配器，所有适配器共享同一个检索式编译缓存
func DefaultOpener(compiler *tsquery.Cache) Opener {
	return func(ctx context.Context, name string, cfg domain.SourceConfig) (port.DataSource, error) {
		switch cfg.Kind {
		case domain.KindPostgres, domain.KindSQLite:
			return relational.Open(ctx, name, cfg, compiler)
		case domain.KindMongo:
			return document.Open(ctx, name, cfg)
		case domain.KindElasticsearch:
			return elastic.Open(name, cfg, compiler)
		default:
			return nil, fmt.Errorf("不支持的数据源类型 '%s'", cfg.Kind)
		}
	}
}

type sourceEntry struct {
	cfg domain.SourceConfig
	// opening 串行化同一数据源的首次连接，连接期间一直持有
	opening sync.Mutex

	// mu 只保护下面两个字段，持有期间不做任何 I/O
	mu     sync.Mutex
	ds     port.DataSource
	closed bool
}

// current 返回已打开的数据源，未打开时为 nil
func (se *sourceEntry) current() port.DataSource {
	se.mu.Lock()
	defer se.mu.Unlock()
	return se.ds
}

type resourceEntry struct {
	cfg     domain.ResourceConfig
	catalog *domain.Catalog
	sources map[string]*sourceEntry
}

// Registry 保存所有资源及其数据源
type Registry struct {
	open Opener

	mu        sync.RWMutex
	resources map[string]*resourceEntry
}

// NewRegistry 校验资源配置并创建注册表，此时不建立任何连接
func NewRegistry(resources map[string]domain.ResourceConfig, open Opener) (*Registry, error) {
	r := &Registry{open: open}
	entries, err := buildEntries(resources)
	if err != nil {
		return nil, err
	}
	r.resources = entries
	return r, nil
}

func buildEntries(resources map[string]domain.ResourceConfig) (map[string]*resourceEntry, error) {
	out := make(map[string]*resourceEntry, len(resources))
	for name, rc := range resources {
		cat, ok := domain.LookupCatalog(rc.Catalog)
		if !ok {
			return nil, fmt.Errorf("资源 '%s' 引用了未知的字段目录 '%s'", name, rc.Catalog)
		}
		if _, ok := rc.Sources[rc.DefaultSource]; !ok {
			return nil, fmt.Errorf("资源 '%s' 的默认数据源 '%s' 未定义", name, rc.DefaultSource)
		}
		sources := make(map[string]*sourceEntry, len(rc.Sources))
		for sname, sc := range rc.Sources {
			if _, ok := domain.LookupCatalog(sc.Catalog); !ok {
				return nil, fmt.Errorf("数据源 '%s/%s' 引用了未知的字段目录 '%s'", name, sname, sc.Catalog)
			}
			sources[sname] = &sourceEntry{cfg: sc}
		}
		out[name] = &resourceEntry{cfg: rc, catalog: cat, sources: sources}
	}
	return out, nil
}

// Resource 返回资源配置及其规范字段目录
func (r *Registry) Resource(name string) (domain.ResourceConfig, *domain.Catalog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.resources[name]
	if !ok {
		return domain.ResourceConfig{}, nil, fmt.Errorf("%w: '%s'", port.ErrResourceNotFound, name)
	}
	return e.cfg, e.catalog, nil
}

// Resources 返回按名称排序的资源列表
func (r *Registry) Resources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.resources))
	for n := range r.resources {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Source 返回资源下的数据源，source 为空时使用默认数据源。首次使用时建立连接。
func (r *Registry) Source(ctx context.Context, resource, source string) (port.DataSource, error) {
	r.mu.RLock()
	e, ok := r.resources[resource]
	if !ok {
		r.mu.RUnlock()
		return nil, fmt.Errorf("%w: '%s'", port.ErrResourceNotFound, resource)
	}
	if source == "" {
		source = e.cfg.DefaultSource
	}
	se, ok := e.sources[source]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: '%s/%s'", port.ErrSourceNotFound, resource, source)
	}

	if ds := se.current(); ds != nil {
		return ds, nil
	}
	se.opening.Lock()
	defer se.opening.Unlock()
	if ds := se.current(); ds != nil {
		return ds, nil
	}
	ds, err := r.open(ctx, resource+"/"+source, se.cfg)
	if err != nil {
		slog.Error("[Registry] 打开数据源失败", "resource", resource, "source", source, "kind", se.cfg.Kind, "error", err)
		return nil, fmt.Errorf("打开数据源 '%s/%s' 失败: %w", resource, source, err)
	}

	se.mu.Lock()
	if se.closed {
		se.mu.Unlock()
		// 连接期间配置被重新加载，该数据源已被替换
		_ = ds.Close()
		return nil, port.Unavailable("registry", fmt.Errorf("数据源 '%s/%s' 已被新配置替换", resource, source))
	}
	se.ds = ds
	se.mu.Unlock()
	return ds, nil
}

// Reload 用新配置替换资源表。配置未变的数据源保留现有连接，
// 被替换或删除的数据源在切换后关闭。
func (r *Registry) Reload(resources map[string]domain.ResourceConfig) error {
	next, err := buildEntries(resources)
	if err != nil {
		return err
	}

	r.mu.Lock()
	prev := r.resources
	for rname, ne := range next {
		pe, ok := prev[rname]
		if !ok {
			continue
		}
		for sname, ns := range ne.sources {
			ps, ok := pe.sources[sname]
			if ok && reflect.DeepEqual(ps.cfg, ns.cfg) {
				ne.sources[sname] = ps
			}
		}
	}
	r.resources = next
	r.mu.Unlock()

	kept := make(map[*sourceEntry]bool)
	for _, ne := range next {
		for _, se := range ne.sources {
			kept[se] = true
		}
	}
	closed := 0
	for rname, pe := range prev {
		for sname, se := range pe.sources {
			if kept[se] {
				continue
			}
			if closeSource(rname, sname, se) {
				closed++
			}
		}
	}
	slog.Info("[Registry] 配置已重新加载", "resources", len(next), "closed_sources", closed)
	return nil
}

// Close 关闭所有已打开的数据源
func (r *Registry) Close() error {
	r.mu.Lock()
	prev := r.resources
	r.resources = map[string]*resourceEntry{}
	r.mu.Unlock()
	for rname, pe := range prev {
		for sname, se := range pe.sources {
			closeSource(rname, sname, se)
		}
	}
	return nil
}

func closeSource(resource, source string, se *sourceEntry) bool {
	se.mu.Lock()
	ds := se.ds
	se.ds = nil
	se.closed = true
	se.mu.Unlock()
	if ds == nil {
		return false
	}
	if err := ds.Close(); err != nil {
		slog.Warn("[Registry] 关闭数据源失败", "resource", resource, "source", source, "error", err)
	}
	return true
}

// HealthCheck 检查所有已打开的数据源，返回失败项
func (r *Registry) HealthCheck(ctx context.Context) map[string]error {
	entries := make(map[string]*sourceEntry)
	r.mu.RLock()
	for rname, e := range r.resources {
		for sname, se := range e.sources {
			entries[rname+"/"+sname] = se
		}
	}
	r.mu.RUnlock()

	// 正在建立连接的数据源视为未打开，不等待
	failed := make(map[string]error)
	for name, se := range entries {
		ds := se.current()
		if ds == nil {
			continue
		}
		if err := ds.HealthCheck(ctx); err != nil {
			failed[name] = err
		}
	}
	return failed
}

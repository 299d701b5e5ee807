// Package elastic file: internal/adapter/datasource/elastic/adapter.go
//
// 搜索索引（Elasticsearch）数据源适配器，服务 instagram 消息。
// 索引没有写入顺序字段，实时轮询由 realtime.Tracker 按 url 指纹去重模拟。
package elastic

import (
	"GeoAegis/internal/aegobserve"
	"GeoAegis/internal/core/domain"
	"GeoAegis/internal/core/port"
	"GeoAegis/internal/inflight"
	"GeoAegis/internal/query"
	"GeoAegis/internal/realtime"
	"GeoAegis/internal/tsquery"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// 编译期校验
var _ port.DataSource = (*Adapter)(nil)

// Adapter 实现 port.DataSource
type Adapter struct {
	name     string
	cfg      domain.SourceConfig
	catalog  *domain.Catalog
	keys     domain.KeyMap
	compiler *tsquery.Cache

	search   searcher
	tracker  *realtime.Tracker
	inflight *inflight.Registry
}

// Open 创建检索客户端与适配器
func Open(name string, cfg domain.SourceConfig, compiler *tsquery.Cache) (*Adapter, error) {
	if len(cfg.Hosts) == 0 {
		return nil, fmt.Errorf("数据源 '%s' 未配置 hosts", name)
	}
	s, err := newSearcher(cfg.Hosts)
	if err != nil {
		return nil, err
	}
	a, err := New(name, cfg, s, compiler)
	if err != nil {
		return nil, err
	}
	slog.Info("[ESSource] 数据源已就绪", "source", name, "hosts", cfg.Hosts, "index", cfg.Table, "realtime", cfg.Realtime)
	return a, nil
}

// New 基于给定的 searcher 创建适配器
func New(name string, cfg domain.SourceConfig, s searcher, compiler *tsquery.Cache) (*Adapter, error) {
	cat, ok := domain.LookupCatalog(cfg.Catalog)
	if !ok {
		return nil, fmt.Errorf("数据源 '%s' 引用了未知的字段目录 '%s'", name, cfg.Catalog)
	}
	a := &Adapter{
		name:     name,
		cfg:      cfg,
		catalog:  cat,
		keys:     domain.ElasticFieldNames,
		compiler: compiler,
		search:   s,
		inflight: inflight.New(),
	}
	if cfg.Realtime {
		a.tracker = realtime.NewTracker(name, cfg.Live)
	}
	return a, nil
}

func (a *Adapter) Type() string { return backendName }

func (a *Adapter) Catalog() *domain.Catalog { return a.catalog }

func (a *Adapter) HealthCheck(ctx context.Context) error { return a.search.Ping(ctx) }

// Close 没有需要释放的连接，客户端的 HTTP 连接由传输层复用
func (a *Adapter) Close() error { return nil }

func (a *Adapter) options(req domain.Request) query.Options {
	opts := query.Options{
		Keys:     domain.KeyMapBetween(req.Base, a.catalog.Name()),
		Compiler: a.compiler,
	}
	if a.tracker != nil {
		// 游标由跟踪器解释，不作为过滤条件
		opts.Skip = map[string]bool{"_id": true}
	}
	return opts
}

// Find 执行一次检索。结果顺序由随机分数决定，调用方的排序不生效。
func (a *Adapter) Find(ctx context.Context, req domain.Request) (res *domain.Result, err error) {
	start := time.Now()
	defer func() { aegobserve.ObserveFind(a.Type(), a.name, start, err) }()

	plan, err := query.Assemble(a.catalog, req, a.options(req))
	if err != nil {
		return nil, err
	}
	res = domain.NewListResult(plan.Fields)
	res.Limit, res.Offset = plan.Limit, plan.Offset
	// 目录字段名，用于把命中转换为行
	names := append([]string(nil), plan.Columns...)
	for i := range plan.Conditions {
		plan.Conditions[i].Column = a.path(plan.Conditions[i].Column)
	}
	for i, c := range plan.Columns {
		plan.Columns[i] = a.path(c)
	}

	spec := bodySpec{plan: plan, filters: a.cfg.Filters}
	var cursor realtime.Cursor
	if a.tracker != nil {
		cursor, err = a.tracker.Begin(req)
		if err != nil {
			return nil, err
		}
		res.NextID = domain.Int64(cursor.NextID)
		if !cursor.Full {
			spec.since = cursor.Since
			spec.dateField = a.path(a.tracker.DateField())
		}
	}

	body, err := json.Marshal(buildBody(spec))
	if err != nil {
		return nil, fmt.Errorf("编码检索请求失败: %w", err)
	}
	slog.Debug("[ESSource] 执行检索", "source", a.name, "index", a.cfg.Table, "body", string(body))

	ctx, done := a.inflight.Begin(ctx, req.ClientID)
	defer done()
	resp, err := a.search.Search(ctx, a.cfg.Table, body)
	if err != nil {
		if inflight.Superseded(ctx) {
			err = port.Cancelled(backendName, err)
		}
		slog.Info("[ESSource] 检索失败", "source", a.name, "client", req.ClientID, "error", err)
		return nil, err
	}
	queryDone := time.Now()

	// 每行末尾附加 url 用于去重，提交后截掉
	rows := make([][]any, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		row, url := hitRow(h, names, a.keys)
		rows = append(rows, append(row, url))
	}
	if a.tracker != nil {
		rows = a.tracker.Commit(cursor, rows, func(row []any) any { return row[len(row)-1] })
	} else if total, ok := resp.total(); ok {
		res.Count = domain.Int64(total)
	}
	for i, row := range rows {
		rows[i] = row[:len(names)]
	}

	res.Rows = rows
	res.DataCount = len(rows)
	slog.Info("[ESSource] 检索完成",
		"source", a.name,
		"query", queryDone.Sub(start).Round(time.Millisecond),
		"total", time.Since(start).Round(time.Millisecond),
		"rows", res.DataCount)
	return res, nil
}

// path 把目录字段名翻译为索引中的文档路径
func (a *Adapter) path(field string) string {
	if p, ok := a.keys.Resolve(field); ok {
		return p
	}
	return field
}

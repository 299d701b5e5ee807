// Package relational file: internal/adapter/datasource/relational/adapter.go
//
// 关系型数据源适配器（PostgreSQL 与本地 SQLite）。
// 查询经由 pool 执行：同一客户端的新查询会取消旧查询，后端不可用时在新连接上重试。
package relational

import (
	"GeoAegis/internal/aegobserve"
	"GeoAegis/internal/core/domain"
	"GeoAegis/internal/core/port"
	"GeoAegis/internal/pool"
	"GeoAegis/internal/query"
	"GeoAegis/internal/tsquery"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// 编译期校验
var _ port.DataSource = (*Adapter)(nil)

const maxIDTTL = 10 * time.Minute

// Adapter 实现 port.DataSource
type Adapter struct {
	name        string
	cfg         domain.SourceConfig
	catalog     *domain.Catalog
	dialect     dialect
	pool        *pool.Pool
	compiler    *tsquery.Cache
	defaultSort []domain.SortKey

	maxIDs *cache.Cache
	group  singleflight.Group
}

// Open 根据配置建立连接池并创建适配器
func Open(ctx context.Context, name string, cfg domain.SourceConfig, compiler *tsquery.Cache) (*Adapter, error) {
	var d pool.Dialer
	switch cfg.Kind {
	case domain.KindPostgres:
		d = pool.PgxDialer{DSN: cfg.DSN}
	case domain.KindSQLite:
		sd, err := pool.OpenSQLite(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		d = sd
	default:
		return nil, fmt.Errorf("数据源 '%s' 的类型 '%s' 不是关系型后端", name, cfg.Kind)
	}
	a, err := New(name, cfg, pool.New(name, d, cfg.Pool), compiler)
	if err != nil {
		return nil, err
	}
	slog.Info("[SQLSource] 数据源已就绪", "source", name, "kind", cfg.Kind, "table", cfg.Table)
	return a, nil
}

// New 用已有的连接池创建适配器，适配器接管连接池的生命周期
func New(name string, cfg domain.SourceConfig, p *pool.Pool, compiler *tsquery.Cache) (*Adapter, error) {
	cat, ok := domain.LookupCatalog(cfg.Catalog)
	if !ok {
		return nil, fmt.Errorf("数据源 '%s' 引用了未知的字段目录 '%s'", name, cfg.Catalog)
	}
	if cfg.Table == "" {
		return nil, fmt.Errorf("数据源 '%s' 未配置表名", name)
	}
	if cfg.Realtime {
		if _, ok := cat.Lookup("_id"); !ok {
			return nil, fmt.Errorf("数据源 '%s' 开启了实时模式，但目录 '%s' 没有 _id 字段", name, cat.Name())
		}
	}
	d := dialectPostgres
	if cfg.Kind == domain.KindSQLite {
		d = dialectSQLite
	}
	sortSpec := cfg.DefaultSort
	if sortSpec == "" {
		sortSpec = "_id"
	}
	return &Adapter{
		name:        name,
		cfg:         cfg,
		catalog:     cat,
		dialect:     d,
		pool:        p,
		compiler:    compiler,
		defaultSort: domain.ParseSort(sortSpec, 1),
		maxIDs:      cache.New(maxIDTTL, 2*maxIDTTL),
	}, nil
}

func (a *Adapter) Type() string { return a.dialect.name }

func (a *Adapter) Catalog() *domain.Catalog { return a.catalog }

func (a *Adapter) Close() error { return a.pool.Close() }

// HealthCheck 执行一条最简单的查询
func (a *Adapter) HealthCheck(ctx context.Context) error {
	return a.pool.Run(ctx, "", func(ctx context.Context, l *pool.Lease) error {
		rows, err := l.Query(ctx, "SELECT 1")
		if err != nil {
			return err
		}
		_, err = pool.Collect(rows)
		return err
	})
}

func (a *Adapter) options(req domain.Request) query.Options {
	return query.Options{
		Keys:                 domain.KeyMapBetween(req.Base, a.catalog.Name()),
		Milliseconds:         a.cfg.Milliseconds,
		DefaultSort:          a.defaultSort,
		AlwaysUseDefaultSort: a.cfg.AlwaysUseIDSort,
		Compiler:             a.compiler,
	}
}

// Find 执行一次查询并返回 list 格式的结果
func (a *Adapter) Find(ctx context.Context, req domain.Request) (res *domain.Result, err error) {
	start := time.Now()
	defer func() { aegobserve.ObserveFind(a.Type(), a.name, start, err) }()

	plan, err := query.Assemble(a.catalog, req, a.options(req))
	if err != nil {
		return nil, err
	}
	res = domain.NewListResult(plan.Fields)
	res.Limit, res.Offset, res.Sort = plan.Limit, plan.Offset, plan.SortKeys()

	var fixedNext *int64
	if raw, ok := req.Param(domain.ParamIDMax); ok {
		v, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			return nil, port.NewValidationError(domain.ParamIDMax, raw, "游标必须是整数")
		}
		fixedNext = &v
	}
	if a.cfg.ReportMaxID {
		if id, ok := a.maxID(ctx); ok {
			res.MaxID = domain.Int64(id)
		}
	}

	spec := selectSpec{
		table:        a.cfg.Table,
		catalog:      a.catalog,
		plan:         plan,
		where:        a.cfg.Where,
		requireGeo:   req.RequireGeo,
		milliseconds: a.cfg.Milliseconds,
	}
	var queryDone time.Time
	err = a.pool.Run(ctx, req.ClientID, func(ctx context.Context, l *pool.Lease) error {
		spec.upper = nil
		switch {
		case fixedNext != nil:
			res.NextID = fixedNext
		case a.cfg.Realtime:
			next, err := a.nextCursor(ctx, l)
			if err != nil {
				return err
			}
			res.NextID = domain.Int64(next)
			if raw, ok := req.Param(domain.ParamIDMin); ok && raw == strconv.FormatInt(next, 10) {
				res.Rows = [][]any{}
				return nil
			}
			spec.upper = &next
		}

		stmt, args, err := buildSelect(a.dialect, spec)
		if err != nil {
			return err
		}
		slog.Debug("[SQLSource] 执行查询", "source", a.name, "sql", stmt, "args", args)
		rows, err := l.Query(ctx, stmt, args...)
		if err != nil {
			return err
		}
		queryDone = time.Now()
		data, err := pool.Collect(rows)
		if err != nil {
			return err
		}
		if data == nil {
			data = [][]any{}
		}
		res.Rows = data
		return nil
	})
	if err != nil {
		slog.Info("[SQLSource] 查询失败", "source", a.name, "client", req.ClientID, "error", err)
		return nil, err
	}
	res.DataCount = len(res.Rows)
	if !queryDone.IsZero() {
		slog.Info("[SQLSource] 查询完成",
			"source", a.name,
			"query", queryDone.Sub(start).Round(time.Millisecond),
			"total", time.Since(start).Round(time.Millisecond),
			"rows", res.DataCount)
	}
	return res, nil
}

// nextCursor 返回当前的写入高水位 max(_id)+1，表为空时返回 0
func (a *Adapter) nextCursor(ctx context.Context, l *pool.Lease) (int64, error) {
	rows, err := l.Query(ctx, "SELECT max(_id) + 1 FROM "+a.cfg.Table)
	if err != nil {
		return 0, err
	}
	data, err := pool.Collect(rows)
	if err != nil {
		return 0, err
	}
	if len(data) == 0 || len(data[0]) == 0 || data[0][0] == nil {
		return 0, nil
	}
	next, err := query.ToInt64(data[0][0])
	if err != nil {
		return 0, port.QueryFailed(a.Type(), "", fmt.Errorf("无法解析 max(_id): %w", err))
	}
	return next, nil
}

// Package document file: internal/adapter/datasource/document/adapter.go
//
// 文档库（MongoDB）数据源适配器，服务出租车行程集合。
// 驱动没有语句级取消，同一客户端的新请求通过 inflight 登记取消旧请求的 context。
package document

import (
	"GeoAegis/internal/aegobserve"
	"GeoAegis/internal/core/domain"
	"GeoAegis/internal/core/port"
	"GeoAegis/internal/inflight"
	"GeoAegis/internal/query"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
	"golang.org/x/sync/errgroup"
)

// 编译期校验
var _ port.DataSource = (*Adapter)(nil)

const (
	backendName       = "mongo"
	defaultDatabase   = "taxi"
	defaultCollection = "trips"
	connectTimeout    = 15 * time.Second
	disconnectTimeout = 10 * time.Second
)

// collection 是适配器用到的集合操作，*mongo.Collection 满足该接口
type collection interface {
	Find(ctx context.Context, filter any, opts ...*options.FindOptions) (*mongo.Cursor, error)
	CountDocuments(ctx context.Context, filter any, opts ...*options.CountOptions) (int64, error)
}

// Adapter 实现 port.DataSource
type Adapter struct {
	name        string
	cfg         domain.SourceConfig
	catalog     *domain.Catalog
	keys        domain.KeyMap
	bsonDates   bool
	defaultSort []domain.SortKey

	client   *mongo.Client
	coll     collection
	inflight *inflight.Registry
}

// Open 连接 MongoDB 并创建适配器。数据库名取自 URI，缺省为 taxi。
func Open(ctx context.Context, name string, cfg domain.SourceConfig) (*Adapter, error) {
	opts := options.Client().SetConnectTimeout(connectTimeout)
	dbName := defaultDatabase
	if cfg.DSN != "" {
		cs, err := connstring.ParseAndValidate(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("数据源 '%s' 的 URI 无效: %w", name, err)
		}
		if cs.Database != "" {
			dbName = cs.Database
		}
		opts.ApplyURI(cfg.DSN)
	} else if len(cfg.Hosts) > 0 {
		opts.SetHosts(cfg.Hosts)
	} else {
		return nil, fmt.Errorf("数据源 '%s' 未配置 dsn 或 hosts", name)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, classify(err)
	}
	table := cfg.Table
	if table == "" {
		table = defaultCollection
	}
	a, err := New(name, cfg, client.Database(dbName).Collection(table))
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	a.client = client
	slog.Info("[MongoSource] 数据源已就绪", "source", name, "database", dbName, "collection", table, "keys", cfg.KeyTable)
	return a, nil
}

// New 基于已有的集合句柄创建适配器
func New(name string, cfg domain.SourceConfig, coll collection) (*Adapter, error) {
	cat, ok := domain.LookupCatalog(cfg.Catalog)
	if !ok {
		return nil, fmt.Errorf("数据源 '%s' 引用了未知的字段目录 '%s'", name, cfg.Catalog)
	}
	var defaultSort []domain.SortKey
	if cfg.DefaultSort != "" {
		defaultSort = domain.ParseSort(cfg.DefaultSort, 1)
	}
	return &Adapter{
		name:        name,
		cfg:         cfg,
		catalog:     cat,
		keys:        keyTable(cfg.KeyTable),
		bsonDates:   cfg.KeyTable != KeysCompact,
		defaultSort: defaultSort,
		coll:        coll,
		inflight:    inflight.New(),
	}, nil
}

func (a *Adapter) Type() string { return backendName }

func (a *Adapter) Catalog() *domain.Catalog { return a.catalog }

// HealthCheck 执行一次最多计数一条的查询
func (a *Adapter) HealthCheck(ctx context.Context) error {
	_, err := a.coll.CountDocuments(ctx, bson.D{}, options.Count().SetLimit(1))
	return classify(err)
}

func (a *Adapter) Close() error {
	if a.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	return a.client.Disconnect(ctx)
}

func (a *Adapter) options(req domain.Request) query.Options {
	return query.Options{
		Keys: domain.KeyMapBetween(req.Base, a.catalog.Name()),
		// 紧凑键名表以 epoch 毫秒存储日期
		Milliseconds:         !a.bsonDates || a.cfg.Milliseconds,
		DefaultSort:          a.defaultSort,
		AlwaysUseDefaultSort: a.cfg.AlwaysUseIDSort,
	}
}

// Find 执行一次查询，Count 为全部匹配的文档数
func (a *Adapter) Find(ctx context.Context, req domain.Request) (res *domain.Result, err error) {
	start := time.Now()
	defer func() { aegobserve.ObserveFind(a.Type(), a.name, start, err) }()

	plan, err := query.Assemble(a.catalog, req, a.options(req))
	if err != nil {
		return nil, err
	}
	if a.cfg.Randomized {
		plan.Sort = []query.SortColumn{{Field: "_id", Column: "_id"}}
	}
	res = domain.NewListResult(plan.Fields)
	res.Limit, res.Offset, res.Sort = plan.Limit, plan.Offset, plan.SortKeys()

	storageNames(plan, a.keys)
	filter, err := buildFilter(plan.Conditions, a.bsonDates)
	if err != nil {
		return nil, err
	}
	filter = withExtraFilters(filter, a.cfg.Filters)
	findOpts := options.Find().SetProjection(projection(plan.Columns))
	if plan.Limit > 0 {
		findOpts.SetLimit(int64(plan.Limit))
	}
	if plan.Offset > 0 {
		findOpts.SetSkip(int64(plan.Offset))
	}
	sorted := sortDoc(plan.Sort)
	slog.Debug("[MongoSource] 执行查询", "source", a.name, "filter", filter,
		"sort", sorted, "limit", plan.Limit, "offset", plan.Offset)

	ctx, done := a.inflight.Begin(ctx, req.ClientID)
	defer done()

	var (
		total int64
		rows  [][]any
	)
	if a.cfg.AllowUnsorted && plan.Offset == 0 && sorted != nil {
		// 全部匹配结果都会返回时无需排序
		total, err = a.coll.CountDocuments(ctx, filter)
		if err != nil {
			return nil, a.fail(ctx, req, err)
		}
		if plan.Limit == 0 || total < int64(plan.Limit) {
			sorted = nil
		}
		if sorted != nil {
			findOpts.SetSort(sorted)
		}
		rows, err = a.fetch(ctx, filter, findOpts, plan.Columns)
	} else {
		if sorted != nil {
			findOpts.SetSort(sorted)
		}
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var cerr error
			total, cerr = a.coll.CountDocuments(gctx, filter)
			return cerr
		})
		g.Go(func() error {
			var ferr error
			rows, ferr = a.fetch(gctx, filter, findOpts, plan.Columns)
			return ferr
		})
		err = g.Wait()
	}
	if err != nil {
		return nil, a.fail(ctx, req, err)
	}
	queryDone := time.Now()

	res.Rows = rows
	res.Count = domain.Int64(total)
	res.DataCount = len(rows)
	slog.Info("[MongoSource] 查询完成",
		"source", a.name,
		"query", queryDone.Sub(start).Round(time.Millisecond),
		"total", time.Since(start).Round(time.Millisecond),
		"rows", res.DataCount)
	return res, nil
}

func (a *Adapter) fetch(ctx context.Context, filter bson.D, opts *options.FindOptions, columns []string) ([][]any, error) {
	cur, err := a.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(context.WithoutCancel(ctx))

	rows := [][]any{}
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		row := make([]any, len(columns))
		for i, c := range columns {
			row[i] = cell(doc[c])
		}
		rows = append(rows, row)
	}
	return rows, cur.Err()
}

// fail 分类错误；请求被同一客户端的新请求取代时返回取消错误
func (a *Adapter) fail(ctx context.Context, req domain.Request, err error) error {
	if inflight.Superseded(ctx) {
		err = port.Cancelled(backendName, err)
	} else {
		err = classify(err)
	}
	slog.Info("[MongoSource] 查询失败", "source", a.name, "client", req.ClientID, "error", err)
	return err
}

// classify 把驱动错误归入统一的错误分类
func classify(err error) error {
	if err == nil {
		return nil
	}
	var be *port.BackendError
	if errors.As(err, &be) {
		return err
	}
	var ce mongo.CommandError
	switch {
	case errors.Is(err, context.Canceled):
		return port.Cancelled(backendName, err)
	case mongo.IsTimeout(err), mongo.IsNetworkError(err), errors.Is(err, mongo.ErrClientDisconnected):
		return port.Unavailable(backendName, err)
	case errors.As(err, &ce):
		return port.QueryFailed(backendName, strconv.Itoa(int(ce.Code)), err)
	default:
		return port.QueryFailed(backendName, "", err)
	}
}

// Package service file: internal/service/registry_test.go
package service

import (
	"GeoAegis/internal/core/domain"
	"GeoAegis/internal/core/port"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource 按脚本依次返回结果，并记录收到的请求
type fakeSource struct {
	mu      sync.Mutex
	results []*domain.Result
	err     error
	reqs    []domain.Request
	closed  bool
	healthy error
}

func (f *fakeSource) Find(ctx context.Context, req domain.Request) (*domain.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) == 0 {
		return domain.NewListResult(req.Fields), nil
	}
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r, nil
}

func (f *fakeSource) Catalog() *domain.Catalog              { return domain.TaxiCatalog }
func (f *fakeSource) HealthCheck(ctx context.Context) error { return f.healthy }
func (f *fakeSource) Type() string                          { return "fake" }
func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// fakeOpener 为每个名称创建一个 fakeSource 并记录打开次数
type fakeOpener struct {
	mu      sync.Mutex
	opened  map[string]*fakeSource
	calls   int
	failFor string
}

func newFakeOpener() *fakeOpener { return &fakeOpener{opened: map[string]*fakeSource{}} }

func (o *fakeOpener) open(ctx context.Context, name string, cfg domain.SourceConfig) (port.DataSource, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if name == o.failFor {
		return nil, errors.New("connection refused")
	}
	fs := &fakeSource{}
	o.opened[name] = fs
	return fs, nil
}

func taxiResources(dsn string) map[string]domain.ResourceConfig {
	return map[string]domain.ResourceConfig{
		"taxi": {
			Catalog:       domain.CatalogTaxi,
			DefaultSource: "mongo",
			DefaultSort:   "pickup_datetime",
			Sources: map[string]domain.SourceConfig{
				"mongo":    {Kind: domain.KindMongo, Catalog: domain.CatalogTaxi, DSN: dsn},
				"postgres": {Kind: domain.KindPostgres, Catalog: domain.CatalogTaxiRand, DSN: "postgres://db/taxi"},
			},
		},
		"message": {
			Catalog:       domain.CatalogMessage,
			DefaultSource: "rtmsg",
			Sources: map[string]domain.SourceConfig{
				"rtmsg": {Kind: domain.KindElasticsearch, Catalog: domain.CatalogMessage, Hosts: []string{"http://es:9200"}},
			},
		},
	}
}

// ----------------------------------------------------------------------------
// 构建与查找
// ----------------------------------------------------------------------------

func TestNewRegistry_Validation(t *testing.T) {
	_, err := NewRegistry(map[string]domain.ResourceConfig{
		"x": {Catalog: "nope", DefaultSource: "a", Sources: map[string]domain.SourceConfig{"a": {Catalog: domain.CatalogTaxi}}},
	}, nil)
	assert.ErrorContains(t, err, "未知的字段目录")

	_, err = NewRegistry(map[string]domain.ResourceConfig{
		"x": {Catalog: domain.CatalogTaxi, DefaultSource: "b", Sources: map[string]domain.SourceConfig{"a": {Catalog: domain.CatalogTaxi}}},
	}, nil)
	assert.ErrorContains(t, err, "默认数据源")
}

func TestRegistry_LazyOpenAndLookup(t *testing.T) {
	op := newFakeOpener()
	reg, err := NewRegistry(taxiResources("mongodb://a/taxi"), op.open)
	require.NoError(t, err)
	assert.Equal(t, []string{"message", "taxi"}, reg.Resources())
	assert.Equal(t, 0, op.calls, "构建注册表时不应建立连接")

	ctx := context.Background()
	ds, err := reg.Source(ctx, "taxi", "")
	require.NoError(t, err)
	assert.Same(t, op.opened["taxi/mongo"], ds, "空数据源名使用默认数据源")

	again, err := reg.Source(ctx, "taxi", "mongo")
	require.NoError(t, err)
	assert.Same(t, ds, again)
	assert.Equal(t, 1, op.calls, "同一数据源只打开一次")

	_, err = reg.Source(ctx, "nope", "")
	assert.ErrorIs(t, err, port.ErrResourceNotFound)
	_, err = reg.Source(ctx, "taxi", "nope")
	assert.ErrorIs(t, err, port.ErrSourceNotFound)

	rc, cat, err := reg.Resource("taxi")
	require.NoError(t, err)
	assert.Equal(t, "mongo", rc.DefaultSource)
	assert.Equal(t, domain.CatalogTaxi, cat.Name())
}

func TestRegistry_OpenFailureIsRetried(t *testing.T) {
	op := newFakeOpener()
	op.failFor = "taxi/postgres"
	reg, err := NewRegistry(taxiResources("mongodb://a/taxi"), op.open)
	require.NoError(t, err)

	_, err = reg.Source(context.Background(), "taxi", "postgres")
	assert.ErrorContains(t, err, "connection refused")

	op.mu.Lock()
	op.failFor = ""
	op.mu.Unlock()
	ds, err := reg.Source(context.Background(), "taxi", "postgres")
	require.NoError(t, err)
	assert.NotNil(t, ds, "失败后下一次请求应重新尝试打开")
}

// ----------------------------------------------------------------------------
// 热加载
// ----------------------------------------------------------------------------

func TestRegistry_ReloadKeepsUnchangedSources(t *testing.T) {
	op := newFakeOpener()
	reg, err := NewRegistry(taxiResources("mongodb://a/taxi"), op.open)
	require.NoError(t, err)
	ctx := context.Background()

	mongo, err := reg.Source(ctx, "taxi", "mongo")
	require.NoError(t, err)
	pg, err := reg.Source(ctx, "taxi", "postgres")
	require.NoError(t, err)
	rt, err := reg.Source(ctx, "message", "rtmsg")
	require.NoError(t, err)

	next := taxiResources("mongodb://b/taxi")
	delete(next, "message")
	require.NoError(t, reg.Reload(next))

	assert.True(t, mongo.(*fakeSource).closed, "配置变化的数据源应被关闭")
	assert.False(t, pg.(*fakeSource).closed, "配置未变的数据源应保留")
	assert.True(t, rt.(*fakeSource).closed, "被删除资源的数据源应被关闭")

	samePg, err := reg.Source(ctx, "taxi", "postgres")
	require.NoError(t, err)
	assert.Same(t, pg, samePg)

	newMongo, err := reg.Source(ctx, "taxi", "mongo")
	require.NoError(t, err)
	assert.NotSame(t, mongo, newMongo)

	_, _, err = reg.Resource("message")
	assert.ErrorIs(t, err, port.ErrResourceNotFound)
}

func TestRegistry_ReloadRejectsInvalidConfig(t *testing.T) {
	reg, err := NewRegistry(taxiResources("mongodb://a/taxi"), newFakeOpener().open)
	require.NoError(t, err)

	bad := taxiResources("mongodb://a/taxi")
	bad["taxi"] = domain.ResourceConfig{Catalog: domain.CatalogTaxi, DefaultSource: "missing", Sources: bad["taxi"].Sources}
	assert.Error(t, reg.Reload(bad))
	assert.Equal(t, []string{"message", "taxi"}, reg.Resources(), "校验失败时保留旧配置")
}

func TestRegistry_HealthCheckAndClose(t *testing.T) {
	op := newFakeOpener()
	reg, err := NewRegistry(taxiResources("mongodb://a/taxi"), op.open)
	require.NoError(t, err)
	ctx := context.Background()

	ds, err := reg.Source(ctx, "taxi", "mongo")
	require.NoError(t, err)
	assert.Empty(t, reg.HealthCheck(ctx), "只检查已打开的数据源")

	ds.(*fakeSource).healthy = port.Unavailable("mongo", errors.New("down"))
	failed := reg.HealthCheck(ctx)
	require.Contains(t, failed, "taxi/mongo")
	assert.ErrorIs(t, failed["taxi/mongo"], port.ErrBackendUnavailable)

	require.NoError(t, reg.Close())
	assert.True(t, ds.(*fakeSource).closed)
	assert.Empty(t, reg.Resources())
}

// blockingOpener 在 release 关闭前阻塞所有打开请求
type blockingOpener struct {
	started chan string
	release chan struct{}
	mu      sync.Mutex
	opened  []*fakeSource
}

func (o *blockingOpener) open(ctx context.Context, name string, cfg domain.SourceConfig) (port.DataSource, error) {
	o.started <- name
	<-o.release
	fs := &fakeSource{}
	o.mu.Lock()
	o.opened = append(o.opened, fs)
	o.mu.Unlock()
	return fs, nil
}

func within(t *testing.T, d time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("操作在 %s 内没有完成", d)
	}
}

func TestRegistry_SlowOpenDoesNotBlockReaders(t *testing.T) {
	op := &blockingOpener{started: make(chan string, 1), release: make(chan struct{})}
	reg, err := NewRegistry(taxiResources("mongodb://a/taxi"), op.open)
	require.NoError(t, err)
	ctx := context.Background()

	type result struct {
		ds  port.DataSource
		err error
	}
	got := make(chan result, 1)
	go func() {
		ds, err := reg.Source(ctx, "taxi", "mongo")
		got <- result{ds, err}
	}()
	assert.Equal(t, "taxi/mongo", <-op.started)

	within(t, time.Second, func() {
		assert.Empty(t, reg.HealthCheck(ctx), "正在连接的数据源不参与健康检查")
	})
	within(t, time.Second, func() {
		assert.NoError(t, reg.Reload(taxiResources("mongodb://a/taxi")))
		_, _, err := reg.Resource("taxi")
		assert.NoError(t, err)
	})

	close(op.release)
	r := <-got
	require.NoError(t, r.err)
	assert.Same(t, r.ds, currentSource(t, reg, "taxi", "mongo"), "配置未变时连接结果保留在新表中")
}

func TestRegistry_OpenRacingReplacementIsClosed(t *testing.T) {
	op := &blockingOpener{started: make(chan string, 1), release: make(chan struct{})}
	reg, err := NewRegistry(taxiResources("mongodb://a/taxi"), op.open)
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := reg.Source(context.Background(), "taxi", "mongo")
		errc <- err
	}()
	<-op.started
	require.NoError(t, reg.Reload(taxiResources("mongodb://b/taxi")))
	close(op.release)

	assert.ErrorIs(t, <-errc, port.ErrBackendUnavailable)
	op.mu.Lock()
	defer op.mu.Unlock()
	require.Len(t, op.opened, 1)
	assert.True(t, op.opened[0].closed, "被替换的数据源连接成功后应立即关闭")
}

func currentSource(t *testing.T, r *Registry, resource, source string) port.DataSource {
	t.Helper()
	r.mu.RLock()
	defer r.mu.RUnlock()
	se := r.resources[resource].sources[source]
	require.NotNil(t, se)
	return se.current()
}

func TestDefaultOpener_UnknownKind(t *testing.T) {
	_, err := DefaultOpener(nil)(context.Background(), "x", domain.SourceConfig{Kind: "redis"})
	assert.ErrorContains(t, err, "不支持的数据源类型")
}

// Package elastic file: internal/adapter/datasource/elastic/adapter_test.go
package elastic

import (
	"GeoAegis/internal/core/domain"
	"GeoAegis/internal/core/port"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSearcher 返回预置的响应，并记录收到的请求体
type fakeSearcher struct {
	mu       sync.Mutex
	response string
	err      error
	bodies   []string
	block    bool
	started  chan struct{}
}

func (f *fakeSearcher) Search(ctx context.Context, index string, body []byte) (*searchResponse, error) {
	f.mu.Lock()
	f.bodies = append(f.bodies, string(body))
	block, raw, ferr := f.block, f.response, f.err
	f.mu.Unlock()

	if block {
		f.started <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if ferr != nil {
		return nil, ferr
	}
	var resp searchResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (f *fakeSearcher) Ping(ctx context.Context) error { return f.err }

func (f *fakeSearcher) setResponse(raw string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.response = raw
}

func (f *fakeSearcher) lastBody(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.bodies)
	return f.bodies[len(f.bodies)-1]
}

func hitsJSON(total string, hits ...string) string {
	return `{"hits":{"total":` + total + `,"hits":[` + strings.Join(hits, ",") + `]}}`
}

func instagramHit(id string, score float64, created string) string {
	b, _ := json.Marshal(map[string]any{
		"_score": score,
		"_source": map[string]any{
			"link":         "https://instagram.com/p/" + id + "/",
			"created_time": created,
			"user":         map[string]any{"username": "user_" + id},
			"location":     map[string]any{"latitude": 39.29, "longitude": -76.61},
		},
	})
	return string(b)
}

func newTestAdapter(t *testing.T, cfg domain.SourceConfig, s searcher) *Adapter {
	t.Helper()
	cfg.Kind = domain.KindElasticsearch
	cfg.Catalog = domain.CatalogMessage
	cfg.Table = "instagram"
	a, err := New("instagram", cfg, s, nil)
	require.NoError(t, err)
	return a
}

// ----------------------------------------------------------------------------
// 请求体与命中转换
// ----------------------------------------------------------------------------

func TestFind_BuildsBodyAndMapsHits(t *testing.T) {
	hit := `{"_score":0.25,"_source":{"link":"https://instagram.com/p/abc/","created_time":"1400000000",` +
		`"user":{"username":"alice"},"caption":{"text":"coffee shop"}}}`
	fs := &fakeSearcher{response: hitsJSON(`{"value":2,"relation":"eq"}`, hit)}
	a := newTestAdapter(t, domain.SourceConfig{
		Filters: []map[string]any{{"term": map[string]any{"_type": "baltimore"}}},
	}, fs)

	res, err := a.Find(context.Background(), domain.Request{
		Base:   domain.CatalogMessage,
		Fields: []string{"msg_id", "msg_date", "url", "user_name", "rand1", "msg"},
		Params: map[string]string{
			"user_name":    "alice,bob",
			"msg_search":   "coffee shop",
			"msg_date_min": "2014-01-01",
			"rand1_max":    "500000000",
		},
		Limit:  20,
		Offset: 40,
	})
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"size": 20,
		"from": 40,
		"_source": {"includes": ["caption.text", "created_time", "link", "msg_id", "user.username"]},
		"query": {"function_score": {
			"random_score": {"seed": 1, "field": "_seq_no"},
			"boost_mode": "replace",
			"min_score": 0.5,
			"query": {"bool": {
				"filter": [
					{"exists": {"field": "location.longitude"}},
					{"term": {"_type": "baltimore"}},
					{"terms": {"user.username": ["alice", "bob"]}},
					{"range": {"created_time": {"gte": "1388534400"}}}
				],
				"must": [
					{"simple_query_string": {"fields": ["caption.text"], "query": "coffee shop", "default_operator": "AND"}}
				]
			}}
		}}
	}`, fs.lastBody(t))

	assert.Equal(t, [][]any{
		{"abc", int64(1400000000000), "i/abc", "alice", int64(750000000), "coffee shop"},
	}, res.Rows)
	require.NotNil(t, res.Count)
	assert.Equal(t, int64(2), *res.Count)
	assert.Nil(t, res.NextID)
	assert.Nil(t, res.Sort, "检索结果按随机分数排序")
}

func TestSearchResponse_Total(t *testing.T) {
	for raw, want := range map[string]int64{`5`: 5, `{"value":7,"relation":"gte"}`: 7} {
		var r searchResponse
		require.NoError(t, json.Unmarshal([]byte(hitsJSON(raw)), &r))
		got, ok := r.total()
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}
	var r searchResponse
	require.NoError(t, json.Unmarshal([]byte(`{"hits":{"hits":[]}}`), &r))
	_, ok := r.total()
	assert.False(t, ok)
}

// ----------------------------------------------------------------------------
// 实时轮询
// ----------------------------------------------------------------------------

func TestFind_RealtimePolling(t *testing.T) {
	fs := &fakeSearcher{response: hitsJSON(`2`, instagramHit("a", 0.9, "1400000000"), instagramHit("b", 0.8, "1400000100"))}
	a := newTestAdapter(t, domain.SourceConfig{Realtime: true, Live: domain.RealtimeSettings{Livetime: 30 * time.Minute}}, fs)
	req := domain.Request{Base: domain.CatalogMessage, Fields: []string{"url", "user_name"}, ClientID: "c1"}
	ctx := context.Background()

	first, err := a.Find(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, first.NextID)
	assert.Equal(t, [][]any{{"i/a", "user_a"}, {"i/b", "user_b"}}, first.Rows)
	assert.Nil(t, first.Count, "实时查询不报告总数")
	assert.NotContains(t, fs.lastBody(t), `"created_time"`, "首次轮询不按时间窗口过滤")

	fs.setResponse(hitsJSON(`3`,
		instagramHit("c", 0.95, "1400000200"),
		instagramHit("a", 0.9, "1400000000"),
		instagramHit("b", 0.8, "1400000100")))
	next, err := a.Find(ctx, req.WithParam(domain.ParamIDMin, "1"))
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"i/c", "user_c"}}, next.Rows, "只返回新出现的行")
	assert.Equal(t, *first.NextID+1, *next.NextID)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(fs.lastBody(t)), &body))
	filters := body["query"].(map[string]any)["function_score"].(map[string]any)["query"].(map[string]any)["bool"].(map[string]any)["filter"].([]any)
	last := filters[len(filters)-1].(map[string]any)
	assert.Contains(t, last["range"], "created_time", "后续轮询按时间窗口过滤")
	assert.NotContains(t, fs.lastBody(t), `"_id"`, "游标不作为过滤条件")

	_, err = a.Find(ctx, req.WithParam(domain.ParamIDMin, "99"))
	assert.ErrorIs(t, err, port.ErrStaleCursor)

	fixed, err := a.Find(ctx, req.WithParam(domain.ParamIDMax, "42"))
	require.NoError(t, err)
	assert.Equal(t, int64(42), *fixed.NextID)
	assert.Len(t, fixed.Rows, 3)
}

// ----------------------------------------------------------------------------
// 错误与取消
// ----------------------------------------------------------------------------

func TestStatusErrors(t *testing.T) {
	assert.ErrorIs(t, statusError(503, strings.NewReader(`{}`)), port.ErrBackendUnavailable)
	assert.ErrorIs(t, statusError(429, strings.NewReader(``)), port.ErrBackendUnavailable)

	err := statusError(400, strings.NewReader(`{"error":{"type":"parsing_exception","reason":"bad"}}`))
	assert.ErrorIs(t, err, port.ErrBackendQuery)
	var be *port.BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "parsing_exception", be.Code)

	assert.ErrorIs(t, classifyTransport(context.Canceled), port.ErrCancelled)
	assert.ErrorIs(t, classifyTransport(errors.New("connection refused")), port.ErrBackendUnavailable)
}

func TestFind_NewRequestCancelsPrevious(t *testing.T) {
	fs := &fakeSearcher{response: hitsJSON(`0`), block: true, started: make(chan struct{}, 1)}
	a := newTestAdapter(t, domain.SourceConfig{}, fs)
	req := domain.Request{Base: domain.CatalogMessage, Fields: []string{"url"}, ClientID: "c1"}

	errc := make(chan error, 1)
	go func() {
		_, err := a.Find(context.Background(), req)
		errc <- err
	}()
	<-fs.started

	fs.mu.Lock()
	fs.block = false
	fs.mu.Unlock()

	res, err := a.Find(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, res.Rows)

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, port.ErrCancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("旧请求没有被取消")
	}
}

func TestFind_ValidationAndHealth(t *testing.T) {
	fs := &fakeSearcher{response: hitsJSON(`0`)}
	a := newTestAdapter(t, domain.SourceConfig{}, fs)

	_, err := a.Find(context.Background(), domain.Request{Base: domain.CatalogMessage, Params: map[string]string{"url_min": "x"}})
	assert.ErrorIs(t, err, port.ErrValidation)

	assert.NoError(t, a.HealthCheck(context.Background()))
	fs.err = port.Unavailable(backendName, errors.New("down"))
	assert.ErrorIs(t, a.HealthCheck(context.Background()), port.ErrBackendUnavailable)
	assert.NoError(t, a.Close())
}

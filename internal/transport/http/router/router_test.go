// file: internal/transport/http/router/router_test.go
package router

import (
	"GeoAegis/internal/aegmiddleware"
	"GeoAegis/internal/core/domain"
	"GeoAegis/internal/core/port"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

// fakeService 记录最近一次调用，并返回预置的结果或错误
type fakeService struct {
	resources map[string]domain.ResourceConfig
	result    *domain.Result
	err       error

	gotSource string
	gotReq    domain.Request
	gotOpts   port.WaitOptions
}

func (f *fakeService) Find(ctx context.Context, resource, source string, req domain.Request, opts port.WaitOptions) (*domain.Result, error) {
	f.gotSource, f.gotReq, f.gotOpts = source, req, opts
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeService) Resource(name string) (domain.ResourceConfig, *domain.Catalog, error) {
	rc, ok := f.resources[name]
	if !ok {
		return domain.ResourceConfig{}, nil, port.ErrResourceNotFound
	}
	cat, _ := domain.LookupCatalog(rc.Catalog)
	return rc, cat, nil
}

func (f *fakeService) Resources() []string { return []string{"message", "taxi"} }

func newFakeService() *fakeService {
	res := domain.NewListResult([]string{"url", "user_name"})
	res.Rows = [][]any{{"i/a", "alice"}}
	res.DataCount = 1
	res.NextID = domain.Int64(5)
	return &fakeService{
		resources: map[string]domain.ResourceConfig{
			"message": {
				Catalog: domain.CatalogMessage, DefaultSource: "rtmsg", DefaultSort: "rand1,rand2", RequireGeo: true,
				Sources: map[string]domain.SourceConfig{"rtmsg": {}, "postgres": {}},
			},
			"taxi": {
				Catalog: domain.CatalogTaxi, DefaultSource: "mongo",
				Sources: map[string]domain.SourceConfig{"mongo": {}},
			},
		},
		result: res,
	}
}

func get(t *testing.T, h http.Handler, target string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// ----------------------------------------------------------------------------
// 查询接口
// ----------------------------------------------------------------------------

func TestFind_ParsesQuery(t *testing.T) {
	svc := newFakeService()
	h := New(Dependencies{Service: svc})

	rec := get(t, h, "/api/v1/geo/message?source=postgres&limit=20&offset=40&sort=msg_date&sortdir=-1"+
		"&fields=url,user_name&clientid=c1&wait=1.5&poll=2&initwait=0.5"+
		"&user_name=alice&msg_date_min=2013-01-01&_id_min=4")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "postgres", svc.gotSource)
	assert.Equal(t, 20, svc.gotReq.Limit)
	assert.Equal(t, 40, svc.gotReq.Offset)
	assert.Equal(t, []domain.SortKey{{Field: "msg_date", Desc: true}}, svc.gotReq.Sort)
	assert.Equal(t, []string{"url", "user_name"}, svc.gotReq.Fields)
	assert.Equal(t, "c1", svc.gotReq.ClientID)
	assert.True(t, svc.gotReq.RequireGeo, "资源默认要求有坐标")
	assert.Equal(t, map[string]string{"user_name": "alice", "msg_date_min": "2013-01-01", "_id_min": "4"}, svc.gotReq.Params)
	assert.Equal(t, port.WaitOptions{
		Wait: 1500 * time.Millisecond, Poll: 2 * time.Second, InitWait: 500 * time.Millisecond, Format: domain.FormatList,
	}, svc.gotOpts)

	body := decode(t, rec)
	assert.Equal(t, "list", body["format"])
	assert.Equal(t, float64(5), body["nextId"])
	assert.Equal(t, []any{[]any{"i/a", "alice"}}, body["data"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestFind_Defaults(t *testing.T) {
	svc := newFakeService()
	h := New(Dependencies{Service: svc})

	rec := get(t, h, "/api/v1/geo/message?nullgeo=true&format=dict&wait=-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultLimit, svc.gotReq.Limit)
	assert.Equal(t, []domain.SortKey{{Field: "rand1"}, {Field: "rand2"}}, svc.gotReq.Sort)
	assert.False(t, svc.gotReq.RequireGeo, "nullgeo=true 时允许没有坐标的数据")
	assert.Equal(t, domain.FormatDict, svc.gotOpts.Format)
	assert.Zero(t, svc.gotOpts.Wait, "非正数的等待时间视为不等待")
	assert.Empty(t, svc.gotReq.Params)
}

func TestFind_InvalidParameters(t *testing.T) {
	h := New(Dependencies{Service: newFakeService()})
	for _, target := range []string{
		"/api/v1/geo/taxi?limit=abc",
		"/api/v1/geo/taxi?offset=-1",
		"/api/v1/geo/taxi?format=csv",
		"/api/v1/geo/taxi?wait=soon",
		"/api/v1/geo/taxi?nullgeo=maybe",
	} {
		rec := get(t, h, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Contains(t, decode(t, rec), "field", target)
	}
}

// ----------------------------------------------------------------------------
// 错误映射
// ----------------------------------------------------------------------------

func TestFind_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{port.NewValidationError("fare_amount_min", "x", "需要数值"), http.StatusBadRequest},
		{port.ErrStaleCursor, http.StatusGone},
		{port.Cancelled("postgres", context.Canceled), http.StatusConflict},
		{port.Unavailable("mongo", errors.New("dial tcp")), http.StatusServiceUnavailable},
		{port.QueryFailed("postgres", "42601", errors.New("syntax error")), http.StatusInternalServerError},
		{port.ErrSourceNotFound, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		svc := newFakeService()
		svc.err = tc.err
		rec := get(t, New(Dependencies{Service: svc}), "/api/v1/geo/taxi")
		assert.Equal(t, tc.want, rec.Code, tc.err.Error())
	}

	svc := newFakeService()
	svc.err = port.QueryFailed("postgres", "42601", errors.New("syntax error"))
	body := decode(t, get(t, New(Dependencies{Service: svc}), "/api/v1/geo/taxi"))
	assert.Equal(t, "42601", body["code"])
	assert.NotContains(t, body["error"], "syntax error", "不向客户端暴露后端原始错误")

	rec := get(t, New(Dependencies{Service: newFakeService()}), "/api/v1/geo/boats")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ----------------------------------------------------------------------------
// 元数据、健康检查与认证
// ----------------------------------------------------------------------------

func TestResources(t *testing.T) {
	h := New(Dependencies{Service: newFakeService()})

	body := decode(t, get(t, h, "/api/v1/resources"))
	list := body["resources"].([]any)
	require.Len(t, list, 2)
	first := list[0].(map[string]any)
	assert.Equal(t, "message", first["name"])
	assert.Equal(t, []any{"postgres", "rtmsg"}, first["sources"])
	assert.NotContains(t, first, "fields")

	one := decode(t, get(t, h, "/api/v1/resources/taxi"))
	fields := one["fields"].([]any)
	assert.Equal(t, "medallion", fields[0].(map[string]any)["name"])
}

func TestHealthz(t *testing.T) {
	h := New(Dependencies{Service: newFakeService(), Health: func(ctx context.Context) map[string]error { return nil }})
	assert.Equal(t, http.StatusOK, get(t, h, "/healthz").Code)

	h = New(Dependencies{Service: newFakeService(), Health: func(ctx context.Context) map[string]error {
		return map[string]error{"taxi/mongo": errors.New("down")}
	}})
	rec := get(t, h, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "down", decode(t, rec)["sources"].(map[string]any)["taxi/mongo"])
}

func TestAuthAndRateLimit(t *testing.T) {
	auth := aegmiddleware.NewTokenAuth("secret", 0, 0)
	h := New(Dependencies{
		Service:     newFakeService(),
		Auth:        auth,
		RateLimiter: aegmiddleware.NewRateLimiter(0, 0, 0.001, 2),
	})

	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/api/v1/geo/taxi").Code)
	tok, err := auth.Issue("ops", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, get(t, h, "/api/v1/geo/taxi", "Authorization", "Bearer "+tok).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(t, h, "/api/v1/geo/taxi", "Authorization", "Bearer "+tok).Code)

	assert.Equal(t, http.StatusOK, get(t, h, "/healthz").Code, "健康检查不受认证与限流影响")
}

func TestRequestIDPropagation(t *testing.T) {
	h := New(Dependencies{Service: newFakeService()})
	id := "5f0c6c55-3a3b-4b8e-9a39-0f8f3f6c2d11"
	rec := get(t, h, "/api/v1/resources", "X-Request-ID", id)
	assert.Equal(t, id, rec.Header().Get("X-Request-ID"))

	rec = get(t, h, "/api/v1/resources", "X-Request-ID", "not-a-uuid")
	assert.NotEqual(t, "not-a-uuid", rec.Header().Get("X-Request-ID"))
}

// file: internal/aegmiddleware/limiter_test.go

package aegmiddleware_test

import (
	"GeoAegis/internal/aegmiddleware" // 导入被测试的包
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
//  测试辅助
// ============================================================================

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	if subject, ok := aegmiddleware.SubjectFrom(r.Context()); ok {
		w.Header().Set("X-Subject", subject)
	}
	w.WriteHeader(http.StatusOK)
})

func doRequest(h http.Handler, ip, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/geo/taxi", nil)
	req.RemoteAddr = ip + ":12345"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// ============================================================================
//  限流
// ============================================================================

func TestRateLimiter_PerIP(t *testing.T) {
	rl := aegmiddleware.NewRateLimiter(0, 0, 0.001, 2)
	h := rl.Chain(okHandler)

	assert.Equal(t, http.StatusOK, doRequest(h, "10.0.0.1", "").Code)
	assert.Equal(t, http.StatusOK, doRequest(h, "10.0.0.1", "").Code)
	rec := doRequest(h, "10.0.0.1", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code, "超过突发容量后应被限流")
	assert.Contains(t, rec.Body.String(), "per-ip limit")

	assert.Equal(t, http.StatusOK, doRequest(h, "10.0.0.2", "").Code, "不同 IP 互不影响")
}

func TestRateLimiter_ForwardedFor(t *testing.T) {
	rl := aegmiddleware.NewRateLimiter(0, 0, 0.001, 1)
	h := rl.PerIP(okHandler)

	send := func(forwarded string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "127.0.0.1:1"
		req.Header.Set("X-Forwarded-For", forwarded)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, send("1.1.1.1, 127.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("1.1.1.1"))
	assert.Equal(t, http.StatusOK, send("2.2.2.2"), "按代理头中的第一个地址区分客户端")
}

func TestRateLimiter_Global(t *testing.T) {
	rl := aegmiddleware.NewRateLimiter(0.001, 1, 0, 0)
	h := rl.Chain(okHandler)

	assert.Equal(t, http.StatusOK, doRequest(h, "10.0.0.1", "").Code)
	rec := doRequest(h, "10.0.0.2", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "global limit")
}

func TestRateLimiter_Disabled(t *testing.T) {
	h := aegmiddleware.NewRateLimiter(0, 0, 0, 0).Chain(okHandler)
	for i := 0; i < 50; i++ {
		require.Equal(t, http.StatusOK, doRequest(h, "10.0.0.1", "").Code)
	}
}

// ============================================================================
//  令牌校验
// ============================================================================

func TestTokenAuth_ValidToken(t *testing.T) {
	auth := aegmiddleware.NewTokenAuth("secret", 3, time.Minute)
	tok, err := auth.Issue("dashboard", time.Hour)
	require.NoError(t, err)

	rec := doRequest(auth.Middleware(okHandler), "10.0.0.1", tok)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dashboard", rec.Header().Get("X-Subject"))
}

func TestTokenAuth_Rejections(t *testing.T) {
	auth := aegmiddleware.NewTokenAuth("secret", 0, 0)
	h := auth.Middleware(okHandler)

	assert.Equal(t, http.StatusUnauthorized, doRequest(h, "10.0.0.1", "").Code, "缺少令牌")
	assert.Equal(t, http.StatusUnauthorized, doRequest(h, "10.0.0.1", "not-a-jwt").Code)

	other, err := aegmiddleware.IssueToken("another-secret", "x", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, doRequest(h, "10.0.0.1", other).Code, "签名密钥不匹配")

	expired, err := auth.Issue("x", -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, doRequest(h, "10.0.0.1", expired).Code, "令牌已过期")

	_, err = aegmiddleware.IssueToken("", "x", time.Hour)
	assert.ErrorIs(t, err, aegmiddleware.ErrNoSecret)
}

func TestTokenAuth_LockoutAfterFailures(t *testing.T) {
	auth := aegmiddleware.NewTokenAuth("secret", 2, time.Minute)
	h := auth.Middleware(okHandler)
	good, err := auth.Issue("ops", time.Hour)
	require.NoError(t, err)

	doRequest(h, "10.0.0.9", "bad")
	doRequest(h, "10.0.0.9", "bad")

	assert.Equal(t, http.StatusUnauthorized, doRequest(h, "10.0.0.9", good).Code, "锁定期间有效令牌也被拒绝")
	assert.Equal(t, http.StatusOK, doRequest(h, "10.0.0.10", good).Code, "锁定只针对失败的 IP")
}

package aegmiddleware

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const (
	ipEntryTTL      = 15 * time.Minute
	ipCleanupPeriod = 10 * time.Minute
)

// ============================================================================
//  查询接口限流器
// ============================================================================

// RateLimiter 组合全局与按 IP 两层令牌桶。速率为 0 的一层不生效。
// 按 IP 的限制器保存在过期缓存中，不活跃的 IP 会被自动清理。
type RateLimiter struct {
	globalLimiter *rate.Limiter

	ipLimiters *cache.Cache
	ipMu       sync.Mutex
	ipRate     rate.Limit
	ipBurst    int
}

// NewRateLimiter 创建限流器
func NewRateLimiter(globalRate float64, globalBurst int, ipRate float64, ipBurst int) *RateLimiter {
	rl := &RateLimiter{
		ipLimiters: cache.New(ipEntryTTL, ipCleanupPeriod),
		ipRate:     rate.Limit(ipRate),
		ipBurst:    ipBurst,
	}
	if globalRate > 0 {
		rl.globalLimiter = rate.NewLimiter(rate.Limit(globalRate), globalBurst)
	}
	slog.Info("[RateLimiter] 初始化完成",
		"global_rate", globalRate, "global_burst", globalBurst,
		"ip_rate", ipRate, "ip_burst", ipBurst)
	return rl
}

// limiterFor 返回指定 IP 的限制器；每次访问都会续期
func (rl *RateLimiter) limiterFor(ip string) *rate.Limiter {
	rl.ipMu.Lock()
	defer rl.ipMu.Unlock()
	if v, ok := rl.ipLimiters.Get(ip); ok {
		l := v.(*rate.Limiter)
		rl.ipLimiters.SetDefault(ip, l)
		return l
	}
	l := rate.NewLimiter(rl.ipRate, rl.ipBurst)
	rl.ipLimiters.SetDefault(ip, l)
	return l
}

// Global 返回全局限制中间件
func (rl *RateLimiter) Global(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.globalLimiter != nil && !rl.globalLimiter.Allow() {
			errResp(w, http.StatusTooManyRequests, "系统繁忙，请稍后再试 (global limit)")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PerIP 返回 IP 限制中间件
func (rl *RateLimiter) PerIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.ipRate <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		ip := getClientIP(r)
		if !rl.limiterFor(ip).Allow() {
			slog.Debug("[RateLimiter] 请求被限流", "ip", ip, "path", r.URL.Path)
			errResp(w, http.StatusTooManyRequests, "您的请求过于频繁，请稍后再试 (per-ip limit)")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Chain 按 Global -> IP -> Handler 的顺序组合
func (rl *RateLimiter) Chain(next http.Handler) http.Handler {
	return rl.Global(rl.PerIP(next))
}

// getClientIP 从请求中获取客户端IP地址，考虑代理情况
func getClientIP(r *http.Request) string {
	ip := r.Header.Get("X-Forwarded-For")
	ip = strings.TrimSpace(strings.Split(ip, ",")[0])
	if ip != "" {
		return ip
	}
	ip = r.Header.Get("X-Real-IP")
	if ip != "" {
		return ip
	}
	ip, _, _ = net.SplitHostPort(r.RemoteAddr)
	return ip
}

func errResp(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

package aegmiddleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/patrickmn/go-cache"
)

type ctxKey struct{}

// TokenAuth 校验 HS256 签名的 Bearer Token。
// 同一 IP 连续校验失败达到上限后会被临时锁定。
type TokenAuth struct {
	secret []byte

	failureCache    *cache.Cache
	maxFailures     int
	lockoutDuration time.Duration
}

// NewTokenAuth 创建校验器；maxFailures <= 0 时不锁定
func NewTokenAuth(secret string, maxFailures int, lockoutDuration time.Duration) *TokenAuth {
	return &TokenAuth{
		secret:          []byte(secret),
		failureCache:    cache.New(5*time.Minute, 10*time.Minute),
		maxFailures:     maxFailures,
		lockoutDuration: lockoutDuration,
	}
}

// Issue 签发一个有效期为 ttl 的令牌，供运维工具生成访问凭据
func (a *TokenAuth) Issue(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return tok.SignedString(a.secret)
}

// Verify 解析并校验令牌，返回其中的 subject
func (a *TokenAuth) Verify(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Middleware 要求请求携带有效的 Authorization: Bearer 令牌
func (a *TokenAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := getClientIP(r)
		lockKey := "lock:" + ip
		if _, found := a.failureCache.Get(lockKey); found {
			slog.Warn("[TokenAuth] 已锁定的 IP 再次尝试访问", "ip", ip)
			errResp(w, http.StatusUnauthorized, "访问令牌无效")
			return
		}

		raw, ok := bearerToken(r)
		if !ok {
			errResp(w, http.StatusUnauthorized, "需要认证")
			return
		}
		subject, err := a.Verify(raw)
		if err != nil {
			a.recordFailure(ip, err)
			errResp(w, http.StatusUnauthorized, "访问令牌无效")
			return
		}
		a.failureCache.Delete("failures:" + ip)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, subject)))
	})
}

func (a *TokenAuth) recordFailure(ip string, cause error) {
	failureKey := "failures:" + ip
	// 键不存在时 Increment 返回错误，即第一次失败
	if err := a.failureCache.Increment(failureKey, int64(1)); err != nil {
		a.failureCache.SetDefault(failureKey, int64(1))
	}
	var current int
	if x, found := a.failureCache.Get(failureKey); found {
		current = int(x.(int64))
	}
	slog.Info("[TokenAuth] 令牌校验失败", "ip", ip, "failures", current, "error", cause)

	if a.maxFailures > 0 && current >= a.maxFailures {
		a.failureCache.Set("lock:"+ip, true, a.lockoutDuration)
		a.failureCache.Delete(failureKey)
		slog.Warn("[TokenAuth] IP 已被临时锁定", "ip", ip, "duration", a.lockoutDuration)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}

// SubjectFrom 返回已认证请求的令牌 subject
func SubjectFrom(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(ctxKey{}).(string)
	return s, ok
}

// ErrNoSecret 表示未配置签名密钥
var ErrNoSecret = errors.New("未配置 jwt_secret")

// IssueToken 使用给定密钥签发令牌
func IssueToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}
	tok, err := NewTokenAuth(secret, 0, 0).Issue(subject, ttl)
	if err != nil {
		return "", fmt.Errorf("签发令牌失败: %w", err)
	}
	return tok, nil
}

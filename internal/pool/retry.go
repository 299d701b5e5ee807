// Package pool file: internal/pool/retry.go
package pool

import (
	"GeoAegis/internal/aegobserve"
	"GeoAegis/internal/core/port"
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Run 为 client 借出连接并执行 fn，结束后归还。
// 后端不可用时丢弃该连接并在新连接上重试，总尝试次数不超过 MaxRetry；
// 取消、查询错误与校验错误立即返回。
func (p *Pool) Run(ctx context.Context, client string, fn func(ctx context.Context, l *Lease) error) error {
	attempt := 0
	op := func() error {
		reconnect := attempt > 0
		attempt++
		if reconnect {
			aegobserve.QueryRetries.WithLabelValues(p.name).Inc()
		}

		l, err := p.Borrow(ctx, client, reconnect)
		if err != nil {
			err = p.classify(ctx, err)
			if port.Retryable(err) && !errors.Is(err, ErrPoolClosed) {
				return err
			}
			return backoff.Permanent(err)
		}

		err = fn(ctx, l)
		if err == nil {
			p.Return(l)
			return nil
		}
		err = p.classify(ctx, err)
		if port.Retryable(err) {
			p.Discard(l)
			return err
		}
		p.Return(l)
		return backoff.Permanent(err)
	}

	attempts := p.cfg.MaxRetry
	if attempts < 1 {
		attempts = 1
	}
	b := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(attempts-1)), ctx)
	err := backoff.RetryNotify(op, b, func(err error, _ time.Duration) {
		slog.Warn("[Pool] 后端不可用，换用新连接重试", "source", p.name, "client", client, "attempt", attempt, "error", err)
	})
	if err != nil && ctx.Err() != nil && !errors.Is(err, port.ErrCancelled) {
		return port.Cancelled(p.dialer.Backend(), err)
	}
	return err
}

// classify 保证返回的错误属于 port 中的分类
func (p *Pool) classify(ctx context.Context, err error) error {
	var (
		be *port.BackendError
		ve *port.ValidationError
	)
	switch {
	case errors.As(err, &be), errors.As(err, &ve):
		return err
	case errors.Is(err, ErrPoolClosed):
		return port.Unavailable(p.dialer.Backend(), err)
	case ctx.Err() != nil:
		return port.Cancelled(p.dialer.Backend(), err)
	}
	return p.dialer.Classify(err)
}

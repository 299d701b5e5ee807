// Package pool file: internal/pool/lease.go
package pool

import (
	"context"
	"sync"
)

// Client 返回借用该连接的逻辑客户端
func (l *Lease) Client() string { return l.client }

// Query 在租约的连接上执行语句。返回的 Rows 关闭前，该连接不会被关闭或执行其他语句。
func (l *Lease) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	l.pc.execMu.Lock()
	rows, err := l.pc.conn.Query(ctx, sql, args...)
	if err != nil {
		l.pc.execMu.Unlock()
		return nil, l.p.dialer.Classify(err)
	}
	return &lockedRows{Rows: rows, classify: l.p.dialer.Classify, unlock: l.pc.execMu.Unlock}, nil
}

type lockedRows struct {
	Rows
	classify func(error) error
	unlock   func()
	once     sync.Once
}

func (r *lockedRows) Err() error {
	if err := r.Rows.Err(); err != nil {
		return r.classify(err)
	}
	return nil
}

func (r *lockedRows) Values() ([]any, error) {
	vals, err := r.Rows.Values()
	if err != nil {
		return nil, r.classify(err)
	}
	return vals, nil
}

func (r *lockedRows) Close() {
	r.once.Do(func() {
		r.Rows.Close()
		r.unlock()
	})
}

// Collect 消费全部行并关闭结果集
func Collect(rows Rows) ([][]any, error) {
	defer rows.Close()
	var out [][]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

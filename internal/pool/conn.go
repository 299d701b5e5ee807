// Package pool file: internal/pool/conn.go
package pool

import "context"

// Rows 是一次查询的行迭代器，调用方在有限循环中消费并负责 Close
type Rows interface {
	Next() bool
	Values() ([]any, error)
	Err() error
	Close()
}

// Conn 是池中的一个后端连接。除 Cancel 外的方法不要求并发安全，
// 连接池保证同一时刻只有一条语句在连接上执行。
type Conn interface {
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	// Cancel 取消连接上正在执行的语句，可与 Query 并发调用
	Cancel(ctx context.Context) error
	Close() error
}

// Dialer 创建连接并把驱动错误归类为 port 中的错误类型
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
	Classify(err error) error
	Backend() string
}

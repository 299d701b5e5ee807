// Package pool file: internal/pool/sqldb.go
package pool

import (
	"GeoAegis/internal/core/port"
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLDialer 从 database/sql 句柄中取出独占连接，主要用于本地 SQLite 数据源。
// database/sql 没有语句级取消，Cancel 通过取消当前语句的 context 实现。
type SQLDialer struct {
	backend string
	db      *sql.DB
}

// OpenSQLite 打开一个 SQLite 数据库并创建 Dialer
func OpenSQLite(ctx context.Context, dsn string) (*SQLDialer, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open '%s' 失败: %w", dsn, err)
	}
	if errPing := db.PingContext(ctx); errPing != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping 数据库 '%s' 失败: %w", dsn, errPing)
	}
	return &SQLDialer{backend: "sqlite", db: db}, nil
}

// NewSQLDialer 包装一个已打开的句柄，Close 时一并关闭
func NewSQLDialer(backend string, db *sql.DB) *SQLDialer {
	return &SQLDialer{backend: backend, db: db}
}

func (d *SQLDialer) Backend() string { return d.backend }

// DB 返回底层句柄，只应用于建表等初始化操作
func (d *SQLDialer) DB() *sql.DB { return d.db }

func (d *SQLDialer) Dial(ctx context.Context) (Conn, error) {
	c, err := d.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取 %s 连接失败: %w", d.backend, err)
	}
	return &sqlConn{conn: c}, nil
}

func (d *SQLDialer) Close() error { return d.db.Close() }

// Classify 对 database/sql 与 SQLite 错误分类
func (d *SQLDialer) Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return port.Cancelled(d.backend, err)
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return port.Unavailable(d.backend, err)
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return port.Unavailable(d.backend, err)
		case sqlite3.SQLITE_INTERRUPT:
			return port.Cancelled(d.backend, err)
		}
		return port.QueryFailed(d.backend, strconv.Itoa(sqliteErr.Code()), err)
	}
	return port.QueryFailed(d.backend, "", err)
}

type sqlConn struct {
	conn *sql.Conn

	mu     sync.Mutex
	cancel context.CancelFunc
}

func (c *sqlConn) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	qctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	rows, err := c.conn.QueryContext(qctx, query, args...)
	if err != nil {
		c.release()
		return nil, err
	}
	cols, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		c.release()
		return nil, err
	}
	return &sqlRows{rows: rows, width: len(cols), release: c.release}, nil
}

func (c *sqlConn) Cancel(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func (c *sqlConn) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *sqlConn) Close() error {
	c.release()
	return c.conn.Close()
}

// sqlRows 把 *sql.Rows 适配为按行取值的迭代器
type sqlRows struct {
	rows    *sql.Rows
	width   int
	release func()
}

func (r *sqlRows) Next() bool { return r.rows.Next() }

func (r *sqlRows) Values() ([]any, error) {
	vals := make([]any, r.width)
	ptrs := make([]any, r.width)
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	for i, v := range vals {
		if b, ok := v.([]byte); ok {
			vals[i] = string(b)
		}
	}
	return vals, nil
}

func (r *sqlRows) Err() error { return r.rows.Err() }

func (r *sqlRows) Close() {
	_ = r.rows.Close()
	r.release()
}

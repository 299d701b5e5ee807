// Package pool file: internal/pool/pgx.go
package pool

import (
	"GeoAegis/internal/core/port"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgxCloseTimeout = 10 * time.Second

// PgxDialer 用 pgx 建立 PostgreSQL 连接。取消通过协议层的 CancelRequest 完成。
type PgxDialer struct {
	DSN string
}

func (d PgxDialer) Backend() string { return "postgres" }

func (d PgxDialer) Dial(ctx context.Context) (Conn, error) {
	conn, err := pgx.Connect(ctx, d.DSN)
	if err != nil {
		return nil, fmt.Errorf("连接 PostgreSQL 失败: %w", err)
	}
	return &pgxConn{conn: conn}, nil
}

// Classify 按 SQLSTATE 与连接层错误对 pgx 错误分类
func (d PgxDialer) Classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "57014":
			return port.Cancelled(d.Backend(), err)
		case strings.HasPrefix(pgErr.Code, "08"),
			pgErr.Code == "57P01", pgErr.Code == "57P02", pgErr.Code == "57P03",
			pgErr.Code == "53300":
			return port.Unavailable(d.Backend(), err)
		default:
			return port.QueryFailed(d.Backend(), pgErr.Code, err)
		}
	}
	if errors.Is(err, context.Canceled) {
		return port.Cancelled(d.Backend(), err)
	}

	var (
		connErr *pgconn.ConnectError
		netErr  net.Error
	)
	switch {
	case pgconn.Timeout(err), pgconn.SafeToRetry(err),
		errors.As(err, &connErr), errors.As(err, &netErr),
		errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return port.Unavailable(d.Backend(), err)
	}
	// 参数编码等客户端错误换连接也不会成功
	return port.QueryFailed(d.Backend(), "client", err)
}

type pgxConn struct {
	conn *pgx.Conn
}

func (c *pgxConn) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	return c.conn.Query(ctx, sql, args...)
}

func (c *pgxConn) Cancel(ctx context.Context) error {
	return c.conn.PgConn().CancelRequest(ctx)
}

func (c *pgxConn) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), pgxCloseTimeout)
	defer cancel()
	return c.conn.Close(ctx)
}

// Package relational file: internal/adapter/datasource/relational/maxid.go
package relational

import (
	"GeoAegis/internal/pool"
	"GeoAegis/internal/query"
	"context"
	"log/slog"

	"github.com/patrickmn/go-cache"
)

// maxID 返回表中最大的 _id，用于估计已取回数据的比例。
// 结果缓存一段时间，并发的首次查询合并为一次。
func (a *Adapter) maxID(ctx context.Context) (int64, bool) {
	if v, ok := a.maxIDs.Get(a.cfg.Table); ok {
		return v.(int64), true
	}
	v, err, _ := a.group.Do(a.cfg.Table, func() (any, error) {
		var id int64
		err := a.pool.Run(ctx, "", func(ctx context.Context, l *pool.Lease) error {
			rows, err := l.Query(ctx, "SELECT max(_id) FROM "+a.cfg.Table)
			if err != nil {
				return err
			}
			data, err := pool.Collect(rows)
			if err != nil {
				return err
			}
			if len(data) > 0 && len(data[0]) > 0 && data[0][0] != nil {
				id, err = query.ToInt64(data[0][0])
			}
			return err
		})
		if err != nil {
			return int64(0), err
		}
		a.maxIDs.Set(a.cfg.Table, id, cache.DefaultExpiration)
		return id, nil
	})
	if err != nil {
		slog.Warn("[SQLSource] 查询 max(_id) 失败", "source", a.name, "error", err)
		return 0, false
	}
	id := v.(int64)
	return id, id > 0
}

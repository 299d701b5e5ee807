// Package realtime file: internal/realtime/tracker.go
//
// 为无法按写入顺序过滤的后端模拟增量轮询：每次轮询签发一个递增的游标，
// 并记住已经交付给该客户端的行指纹，后续轮询只返回新行。
package realtime

import (
	"GeoAegis/internal/aegobserve"
	"GeoAegis/internal/core/domain"
	"GeoAegis/internal/core/port"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

type record struct {
	seen       map[uint64]struct{}
	update     time.Time
	fullUpdate time.Time
	fullCount  int
	fullQuery  bool
	// pending 表示首次轮询尚未提交，游标还没有交给客户端
	pending bool
}

// Cursor 是 Begin 为一次轮询做出的决定，需原样交给 Commit
type Cursor struct {
	// NextID 是返回给客户端的下一个游标
	NextID int64
	// Tracked 为 false 时本次查询不参与去重（例如调用方固定了 _id_max）
	Tracked bool
	// Full 为 true 表示需要全量查询；否则只查询 Since 之后的数据
	Full  bool
	Since time.Time
	first bool
}

// Tracker 保存所有客户端的游标记录。所有状态由一把锁保护，
// 锁内只做内存操作，后端查询在 Begin 与 Commit 之间进行。
type Tracker struct {
	name string
	cfg  domain.RealtimeSettings
	now  func() time.Time

	mu      sync.Mutex
	nextID  int64
	clients map[string]int64
	records map[int64]*record
}

func NewTracker(name string, cfg domain.RealtimeSettings) *Tracker {
	return &Tracker{
		name:    name,
		cfg:     cfg.WithDefaults(),
		now:     time.Now,
		nextID:  1,
		clients: make(map[string]int64),
		records: make(map[int64]*record),
	}
}

// DateField 返回部分查询时用于时间窗口过滤的规范字段名
func (t *Tracker) DateField() string { return t.cfg.DateField }

// Begin 为请求签发游标。
// 首次轮询（没有 _id_min）会淘汰该客户端之前的记录，并立即建立一条待提交的记录，
// 查询失败没有走到 Commit 时，这条记录同样会在 Tracktime 之后被回收。
// 后续轮询在记录已过期、或客户端已经开始了新的轮询序列时返回 port.ErrStaleCursor。
func (t *Tracker) Begin(req domain.Request) (Cursor, error) {
	if raw, ok := req.Param(domain.ParamIDMax); ok {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Cursor{}, port.NewValidationError(domain.ParamIDMax, raw, "游标必须是整数")
		}
		return Cursor{NextID: id, Full: true}, nil
	}

	raw, polling := req.Param(domain.ParamIDMin)
	if !polling {
		now := t.now()
		t.mu.Lock()
		defer t.mu.Unlock()
		t.gcLocked(now)
		id := t.mintLocked()
		if req.ClientID != "" {
			if old, ok := t.clients[req.ClientID]; ok {
				delete(t.records, old)
			}
			t.clients[req.ClientID] = id
		}
		t.records[id] = &record{seen: map[uint64]struct{}{}, update: now, pending: true}
		return Cursor{NextID: id, Tracked: true, Full: true, first: true}, nil
	}

	last, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: 无法解析游标 '%s'", port.ErrStaleCursor, raw)
	}

	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gcLocked(now)
	rec, ok := t.records[last]
	if !ok || rec.pending {
		return Cursor{}, fmt.Errorf("%w: 游标 %d 不存在或已过期", port.ErrStaleCursor, last)
	}
	if req.ClientID != "" {
		if bound, ok := t.clients[req.ClientID]; !ok || bound != last {
			return Cursor{}, fmt.Errorf("%w: 客户端 '%s' 已经开始新的轮询", port.ErrStaleCursor, req.ClientID)
		}
	}

	id := t.mintLocked()
	if req.ClientID != "" {
		t.clients[req.ClientID] = id
	}
	delete(t.records, last)
	t.records[id] = rec

	rec.fullQuery = now.Sub(rec.fullUpdate) > t.cfg.Livetime ||
		float64(len(rec.seen)) > float64(rec.fullCount)*t.cfg.BloatFactor
	c := Cursor{NextID: id, Tracked: true, Full: rec.fullQuery}
	if !c.Full {
		c.Since = now.Add(-t.cfg.Livetime)
	}
	return c, nil
}

// Commit 记录本次交付的行指纹，并返回去掉已交付行之后的结果。
// key 返回行的唯一标识（通常是 url 列）。
func (t *Tracker) Commit(c Cursor, rows [][]any, key func(row []any) any) [][]any {
	if !c.Tracked {
		return rows
	}
	now := t.now()
	prints := make([]uint64, len(rows))
	for i, row := range rows {
		prints[i] = Fingerprint(key(row))
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	defer t.gcLocked(now)

	if c.first {
		seen := make(map[uint64]struct{}, len(prints))
		for _, fp := range prints {
			seen[fp] = struct{}{}
		}
		t.records[c.NextID] = &record{seen: seen, update: now, fullUpdate: now, fullCount: len(seen)}
		return rows
	}

	rec, ok := t.records[c.NextID]
	if !ok {
		return rows
	}
	next := rec.seen
	if rec.fullQuery {
		next = make(map[uint64]struct{}, len(prints))
	}
	kept := rows[:0:0]
	for i, row := range rows {
		fp := prints[i]
		if _, dup := rec.seen[fp]; !dup {
			kept = append(kept, row)
		}
		next[fp] = struct{}{}
	}
	if rec.fullQuery {
		rec.seen = next
		rec.fullUpdate = now
		rec.fullCount = len(next)
	}
	rec.update = now
	return kept
}

// Len 返回仍在跟踪的游标记录数
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

func (t *Tracker) mintLocked() int64 {
	id := t.nextID
	t.nextID++
	return id
}

// gcLocked 丢弃超过 Tracktime 未更新的记录以及指向它们的客户端绑定
func (t *Tracker) gcLocked(now time.Time) {
	var dropped map[int64]struct{}
	for id, rec := range t.records {
		if now.Sub(rec.update) > t.cfg.Tracktime {
			if dropped == nil {
				dropped = make(map[int64]struct{})
			}
			dropped[id] = struct{}{}
			delete(t.records, id)
		}
	}
	if len(dropped) > 0 {
		for client, id := range t.clients {
			if _, ok := dropped[id]; ok {
				delete(t.clients, client)
			}
		}
		slog.Debug("[Realtime] 丢弃过期游标", "source", t.name, "dropped", len(dropped))
	}
	aegobserve.RealtimeCursors.WithLabelValues(t.name).Set(float64(len(t.records)))
}

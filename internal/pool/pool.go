// Package pool file: internal/pool/pool.go
//
// 关系型后端的连接池。连接按逻辑客户端借出；同一客户端再次借用时，
// 先取消它仍在执行的语句，保证慢查询不会阻塞该客户端的下一个请求。
package pool

import (
	"GeoAegis/internal/aegobserve"
	"GeoAegis/internal/core/domain"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

var ErrPoolClosed = errors.New("连接池已关闭")

const cancelTimeout = 5 * time.Second

type pooledConn struct {
	conn         Conn
	inUse        bool
	client       string
	lastActivity time.Time
	created      time.Time
	// gen 在每次借出或强制收回时递增，旧租约的归还因此被忽略
	gen     uint64
	retired bool
	// execMu 在语句执行到结果集关闭期间持有
	execMu sync.Mutex
}

// Lease 是一次借用。归还后不得继续使用。
type Lease struct {
	p      *Pool
	pc     *pooledConn
	gen    uint64
	client string
}

// Stats 是连接池的瞬时状态
type Stats struct {
	Total int
	InUse int
	Free  int
}

// Pool 管理一组有上限的后端连接
type Pool struct {
	name   string
	dialer Dialer
	cfg    domain.PoolSettings

	mu     sync.Mutex
	conns  []*pooledConn
	closed bool

	now     func() time.Time
	stop    chan struct{}
	done    chan struct{}
	retires sync.WaitGroup
}

// New 创建连接池并启动后台清扫。连接按需创建。
func New(name string, d Dialer, cfg domain.PoolSettings) *Pool {
	p := &Pool{
		name:   name,
		dialer: d,
		cfg:    cfg.WithDefaults(),
		now:    time.Now,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go p.sweepLoop()
	return p
}

func (p *Pool) Name() string { return p.name }

// Borrow 为 client 借出一个连接。
// client 已持有连接时，先取消其上正在执行的语句：reconnect 为 false 时复用该连接，
// 为 true 时关闭它并使用新连接。取消请求在 Borrow 返回前发出。
func (p *Pool) Borrow(ctx context.Context, client string, reconnect bool) (*Lease, error) {
	var (
		cancels []*pooledConn
		retired []*pooledConn
		reuse   *pooledConn
		picked  *pooledConn
		gen     uint64
	)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if client != "" {
		for i := len(p.conns) - 1; i >= 0; i-- {
			pc := p.conns[i]
			if !pc.inUse || pc.client != client {
				continue
			}
			cancels = append(cancels, pc)
			pc.gen++
			if reconnect {
				p.conns = append(p.conns[:i], p.conns[i+1:]...)
				pc.retired = true
				retired = append(retired, pc)
			} else {
				pc.inUse = false
				pc.client = ""
				reuse = pc
			}
		}
	}
	if reconnect && len(p.conns) >= p.cfg.MaxSize {
		if victim := p.oldestFreeLocked(); victim != nil {
			p.removeLocked(victim)
			victim.retired = true
			retired = append(retired, victim)
			aegobserve.PoolEvictions.WithLabelValues(p.name, "capacity").Inc()
		}
	}
	if !reconnect {
		picked = reuse
		if picked == nil {
			picked = p.firstFreeLocked()
		}
		if picked != nil {
			gen = p.claimLocked(picked, client)
		}
	}
	p.mu.Unlock()

	for _, pc := range cancels {
		p.cancel(ctx, pc)
	}
	for _, pc := range retired {
		p.retire(pc, false)
	}
	if picked != nil {
		p.report()
		return &Lease{p: p, pc: picked, gen: gen, client: client}, nil
	}

	conn, err := p.dialer.Dial(ctx)
	if err != nil {
		return nil, p.dialer.Classify(err)
	}
	now := p.now()
	pc := &pooledConn{conn: conn, created: now}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.retire(pc, false)
		return nil, ErrPoolClosed
	}
	p.conns = append(p.conns, pc)
	gen = p.claimLocked(pc, client)
	p.mu.Unlock()

	slog.Debug("[Pool] 新建后端连接", "source", p.name, "client", client, "reconnect", reconnect)
	p.report()
	return &Lease{p: p, pc: pc, gen: gen, client: client}, nil
}

// Return 归还连接。租约已被同一客户端的新借用收回时，归还被忽略。
// 池的大小超过上限时（例如重连造成的抖动），直接关闭该连接而不是放回池中。
func (p *Pool) Return(l *Lease) {
	if l == nil {
		return
	}
	p.mu.Lock()
	if l.pc.gen != l.gen || !l.pc.inUse {
		p.mu.Unlock()
		return
	}
	l.pc.inUse = false
	l.pc.client = ""
	l.pc.lastActivity = p.now()
	l.pc.gen++
	var drop bool
	if len(p.conns) > p.cfg.MaxSize && !l.pc.retired {
		drop = p.removeLocked(l.pc)
		l.pc.retired = drop
	}
	p.mu.Unlock()

	if drop {
		aegobserve.PoolEvictions.WithLabelValues(p.name, "overflow").Inc()
		p.retire(l.pc, false)
	}
	p.report()
}

// Discard 在连接出错后把它从池中移除并关闭
func (p *Pool) Discard(l *Lease) {
	if l == nil {
		return
	}
	p.mu.Lock()
	if l.pc.gen != l.gen || l.pc.retired {
		p.mu.Unlock()
		return
	}
	p.removeLocked(l.pc)
	l.pc.gen++
	l.pc.retired = true
	p.mu.Unlock()

	aegobserve.PoolEvictions.WithLabelValues(p.name, "error").Inc()
	p.retire(l.pc, false)
	p.report()
}

// Stats 返回连接池的瞬时状态
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Stats{Total: len(p.conns)}
	for _, pc := range p.conns {
		if pc.inUse {
			s.InUse++
		}
	}
	s.Free = s.Total - s.InUse
	return s
}

// Close 停止清扫并关闭所有连接，等待异步关闭完成
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	conns := p.conns
	busy := make([]bool, len(conns))
	p.conns = nil
	for i, pc := range conns {
		pc.retired = true
		busy[i] = pc.inUse
	}
	p.mu.Unlock()

	close(p.stop)
	<-p.done
	for i, pc := range conns {
		p.retire(pc, busy[i])
	}
	p.retires.Wait()
	if c, ok := p.dialer.(io.Closer); ok {
		if err := c.Close(); err != nil {
			slog.Warn("[Pool] 关闭后端句柄失败", "source", p.name, "error", err)
		}
	}
	p.report()
	slog.Info("[Pool] 连接池已关闭", "source", p.name, "connections", len(conns))
	return nil
}

// ----------------------------------------------------------------------------
// 内部辅助，*Locked 方法要求调用方持有 p.mu
// ----------------------------------------------------------------------------

func (p *Pool) claimLocked(pc *pooledConn, client string) uint64 {
	pc.inUse = true
	pc.client = client
	pc.lastActivity = p.now()
	pc.gen++
	return pc.gen
}

func (p *Pool) firstFreeLocked() *pooledConn {
	for _, pc := range p.conns {
		if !pc.inUse {
			return pc
		}
	}
	return nil
}

func (p *Pool) oldestFreeLocked() *pooledConn {
	var oldest *pooledConn
	for _, pc := range p.conns {
		if pc.inUse {
			continue
		}
		if oldest == nil || pc.lastActivity.Before(oldest.lastActivity) {
			oldest = pc
		}
	}
	return oldest
}

func (p *Pool) removeLocked(target *pooledConn) bool {
	for i, pc := range p.conns {
		if pc == target {
			p.conns = append(p.conns[:i], p.conns[i+1:]...)
			return true
		}
	}
	return false
}

func (p *Pool) cancel(ctx context.Context, pc *pooledConn) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()
	if err := pc.conn.Cancel(cctx); err != nil {
		slog.Warn("[Pool] 取消语句失败", "source", p.name, "error", err)
	}
}

// retire 异步关闭连接。关闭会等待正在执行的语句结束，
// cancelFirst 为 true 时先发出取消请求。
func (p *Pool) retire(pc *pooledConn, cancelFirst bool) {
	p.retires.Add(1)
	go func() {
		defer p.retires.Done()
		if cancelFirst {
			p.cancel(context.Background(), pc)
		}
		pc.execMu.Lock()
		defer pc.execMu.Unlock()
		if err := pc.conn.Close(); err != nil {
			slog.Warn("[Pool] 关闭连接失败", "source", p.name, "error", err)
		}
	}()
}

func (p *Pool) report() {
	s := p.Stats()
	aegobserve.PoolConnections.WithLabelValues(p.name, "in_use").Set(float64(s.InUse))
	aegobserve.PoolConnections.WithLabelValues(p.name, "free").Set(float64(s.Free))
}

// Package pool file: internal/pool/sweep.go
package pool

import (
	"GeoAegis/internal/aegobserve"
	"log/slog"
	"time"
)

// sweepLoop 按固定间隔清扫空闲与遗弃的连接，直到 Close
func (p *Pool) sweepLoop() {
	defer close(p.done)
	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.sweep()
		}
	}
}

// sweep 关闭空闲超过 IdleTime 的空闲连接，以及任意状态下超过 AbandonTime 未活动的连接。
// 关闭是异步的，清扫本身不等待后端。
func (p *Pool) sweep() {
	type victim struct {
		pc     *pooledConn
		inUse  bool
		reason string
	}
	var victims []victim

	p.mu.Lock()
	now := p.now()
	kept := p.conns[:0]
	for _, pc := range p.conns {
		age := now.Sub(pc.lastActivity)
		switch {
		case age > p.cfg.AbandonTime:
			victims = append(victims, victim{pc: pc, inUse: pc.inUse, reason: "abandoned"})
		case !pc.inUse && age > p.cfg.IdleTime:
			victims = append(victims, victim{pc: pc, reason: "idle"})
		default:
			kept = append(kept, pc)
			continue
		}
		pc.retired = true
		pc.gen++
	}
	for i := len(kept); i < len(p.conns); i++ {
		p.conns[i] = nil
	}
	p.conns = kept
	p.mu.Unlock()

	if len(victims) == 0 {
		return
	}
	for _, v := range victims {
		if v.inUse {
			slog.Warn("[Pool] 回收长时间未归还的连接", "source", p.name, "client", v.pc.client)
		}
		aegobserve.PoolEvictions.WithLabelValues(p.name, v.reason).Inc()
		p.retire(v.pc, v.inUse)
	}
	slog.Debug("[Pool] 清扫完成", "source", p.name, "closed", len(victims))
	p.report()
}

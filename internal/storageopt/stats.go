package storageopt

import "sync/atomic"

// Counters 存储操作计数器，并发安全。
type Counters struct {
	ops        atomic.Int64
	errors     atomic.Int64
	slow       atomic.Int64
	pings      atomic.Int64
	pingErrors atomic.Int64
}

// Stats 计数器快照。
type Stats struct {
	Ops        int64
	Errors     int64
	SlowOps    int64
	Pings      int64
	PingErrors int64
}

// Record 记录一次操作结果，err 非 nil 时计入错误数。
func (c *Counters) Record(err error) {
	c.ops.Add(1)
	if err != nil {
		c.errors.Add(1)
	}
}

// RecordPing 记录一次健康检查结果。
func (c *Counters) RecordPing(err error) {
	c.pings.Add(1)
	if err != nil {
		c.pingErrors.Add(1)
	}
}

// IncSlow 增加慢操作计数。
func (c *Counters) IncSlow() {
	c.slow.Add(1)
}

// Snapshot 返回当前计数快照。
func (c *Counters) Snapshot() Stats {
	return Stats{
		Ops:        c.ops.Load(),
		Errors:     c.errors.Load(),
		SlowOps:    c.slow.Load(),
		Pings:      c.pings.Load(),
		PingErrors: c.pingErrors.Load(),
	}
}

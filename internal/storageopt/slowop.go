package storageopt

import (
	"context"
	"time"
)

// SlowOp 慢操作信息。
type SlowOp struct {
	Backend  string
	Op       string
	Key      string
	Duration time.Duration
}

// SlowOpHook 慢操作回调，在请求路径上同步执行，应保持轻量。
type SlowOpHook func(ctx context.Context, op SlowOp)

// SlowOpDetector 慢操作检测器，threshold 为 0 时禁用。
type SlowOpDetector struct {
	threshold time.Duration
	hook      SlowOpHook
	counters  *Counters
}

// NewSlowOpDetector 创建慢操作检测器，counters 可为 nil。
func NewSlowOpDetector(threshold time.Duration, hook SlowOpHook, counters *Counters) *SlowOpDetector {
	return &SlowOpDetector{threshold: threshold, hook: hook, counters: counters}
}

// Observe 检测 op 是否超过阈值（duration >= threshold），返回是否触发。
func (d *SlowOpDetector) Observe(ctx context.Context, op SlowOp) bool {
	if d == nil || d.threshold <= 0 || op.Duration < d.threshold {
		return false
	}
	if d.counters != nil {
		d.counters.IncSlow()
	}
	if d.hook != nil {
		d.hook(ctx, op)
	}
	return true
}

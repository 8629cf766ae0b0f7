package xstore

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/omeyang/xkv/internal/storageopt"
	"github.com/omeyang/xkv/pkg/observability/xlog"
	"github.com/omeyang/xkv/pkg/observability/xmetrics"
)

// base 后端共用的前置检查、观测与计数。
type base struct {
	backend  string
	opts     *options
	counters storageopt.Counters
	slow     *storageopt.SlowOpDetector
	closed   atomic.Bool
}

func newBase(backend string, opts *options) *base {
	b := &base{backend: backend, opts: opts}
	b.slow = storageopt.NewSlowOpDetector(opts.slowThreshold, opts.slowHook, &b.counters)
	return b
}

// key 返回加前缀后的键。
func (b *base) key(k string) string {
	return b.opts.keyPrefix + k
}

// run 执行一次存储操作，keys 中任一为空返回 ErrEmptyKey。
func (b *base) run(ctx context.Context, op, key string, fn func(context.Context) error, keys ...string) error {
	if b.closed.Load() {
		return ErrClosed
	}
	for _, k := range keys {
		if k == "" {
			return fmt.Errorf("%w: %s", ErrEmptyKey, op)
		}
	}

	ctx, span := xmetrics.Start(ctx, b.opts.observer, xmetrics.SpanOptions{
		Component: "xstore",
		Operation: op,
		Kind:      xmetrics.KindClient,
		Attrs: []xmetrics.Attr{
			xmetrics.String("backend", b.backend),
			xmetrics.String("key", key),
		},
	})
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	span.End(xmetrics.Result{Err: err})

	b.counters.Record(err)
	b.slow.Observe(ctx, storageopt.SlowOp{Backend: b.backend, Op: op, Key: key, Duration: elapsed})

	if err != nil {
		b.opts.logger.Debug(ctx, "store operation failed",
			xlog.Component("xstore"), xlog.Operation(op), xlog.Key(key), xlog.Err(err))
		return fmt.Errorf("xstore: %s %q: %w", op, key, err)
	}
	return nil
}

func (b *base) ping(ctx context.Context, fn func(context.Context) error) error {
	if b.closed.Load() {
		return ErrClosed
	}
	ctx, cancel := storageopt.HealthContext(ctx, b.opts.healthTimeout)
	defer cancel()

	err := fn(ctx)
	b.counters.RecordPing(err)
	if err != nil {
		return fmt.Errorf("xstore: ping %s: %w", b.backend, err)
	}
	return nil
}

// Stats 返回操作计数快照。
func (b *base) Stats() Stats {
	return b.counters.Snapshot()
}

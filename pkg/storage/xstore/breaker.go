package xstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerOption 熔断装饰器选项。
type BreakerOption func(*breakerOptions)

type breakerOptions struct {
	name                string
	consecutiveFailures uint32
	maxRequests         uint32
	interval            time.Duration
	timeout             time.Duration
	onStateChange       func(name string, from, to gobreaker.State)
}

func defaultBreakerOptions() *breakerOptions {
	return &breakerOptions{
		name:                "xstore",
		consecutiveFailures: 5,
		maxRequests:         1,
		timeout:             10 * time.Second,
	}
}

// WithBreakerName 设置熔断器名称。
func WithBreakerName(name string) BreakerOption {
	return func(o *breakerOptions) {
		if name != "" {
			o.name = name
		}
	}
}

// WithConsecutiveFailures 连续失败 n 次后打开熔断，默认 5。
func WithConsecutiveFailures(n uint32) BreakerOption {
	return func(o *breakerOptions) {
		if n > 0 {
			o.consecutiveFailures = n
		}
	}
}

// WithHalfOpenRequests 半开状态允许通过的请求数，默认 1。
func WithHalfOpenRequests(n uint32) BreakerOption {
	return func(o *breakerOptions) {
		if n > 0 {
			o.maxRequests = n
		}
	}
}

// WithOpenTimeout 打开状态持续时间，之后进入半开，默认 10s。
func WithOpenTimeout(d time.Duration) BreakerOption {
	return func(o *breakerOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithCountInterval 关闭状态下清零计数的周期，0 表示不清零。
func WithCountInterval(d time.Duration) BreakerOption {
	return func(o *breakerOptions) {
		if d >= 0 {
			o.interval = d
		}
	}
}

// WithStateChange 设置状态变化回调。
func WithStateChange(fn func(name string, from, to gobreaker.State)) BreakerOption {
	return func(o *breakerOptions) {
		o.onStateChange = fn
	}
}

// breakerStore 为 Store 增加熔断保护。
// 竞争结果（false / 不存在）和 [IsLogical] 错误不计为失败。
type breakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker[any]
}

var _ Store = (*breakerStore)(nil)

// WithBreaker 用熔断器包装 next。
func WithBreaker(next Store, opts ...BreakerOption) (Store, error) {
	if next == nil {
		return nil, ErrNilStore
	}
	o := defaultBreakerOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	threshold := o.consecutiveFailures
	st := gobreaker.Settings{
		Name:        o.name,
		MaxRequests: o.maxRequests,
		Interval:    o.interval,
		Timeout:     o.timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsLogical(err)
		},
		OnStateChange: o.onStateChange,
	}
	return &breakerStore{next: next, cb: gobreaker.NewCircuitBreaker[any](st)}, nil
}

// State 返回熔断器当前状态。
func (b *breakerStore) State() gobreaker.State {
	return b.cb.State()
}

func guard[T any](b *breakerStore, fn func() (T, error)) (T, error) {
	res, err := b.cb.Execute(func() (any, error) {
		v, err := fn()
		return v, err
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%w: %w", ErrCircuitOpen, err)
		}
		return zero, err
	}
	v, _ := res.(T)
	return v, nil
}

func guardErr(b *breakerStore, fn func() error) error {
	_, err := guard(b, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

// getResult 承载带存在标记的两值结果。
type getResult struct {
	value string
	ok    bool
}

func (b *breakerStore) Get(ctx context.Context, key string) (string, bool, error) {
	r, err := guard(b, func() (getResult, error) {
		v, ok, err := b.next.Get(ctx, key)
		return getResult{v, ok}, err
	})
	return r.value, r.ok, err
}

func (b *breakerStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return guardErr(b, func() error { return b.next.Set(ctx, key, value, ttl) })
}

func (b *breakerStore) SetIfAbsent(ctx context.Context, key, value string) (bool, error) {
	return guard(b, func() (bool, error) { return b.next.SetIfAbsent(ctx, key, value) })
}

func (b *breakerStore) GetAndSet(ctx context.Context, key, value string) (string, bool, error) {
	r, err := guard(b, func() (getResult, error) {
		v, ok, err := b.next.GetAndSet(ctx, key, value)
		return getResult{v, ok}, err
	})
	return r.value, r.ok, err
}

func (b *breakerStore) CompareAndSwap(ctx context.Context, key, old, value string) (bool, error) {
	return guard(b, func() (bool, error) { return b.next.CompareAndSwap(ctx, key, old, value) })
}

func (b *breakerStore) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	return guard(b, func() (bool, error) { return b.next.CompareAndDelete(ctx, key, value) })
}

func (b *breakerStore) Delete(ctx context.Context, key string) (bool, error) {
	return guard(b, func() (bool, error) { return b.next.Delete(ctx, key) })
}

func (b *breakerStore) Exists(ctx context.Context, key string) (bool, error) {
	return guard(b, func() (bool, error) { return b.next.Exists(ctx, key) })
}

func (b *breakerStore) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	return guard(b, func() (int64, error) { return b.next.Increment(ctx, key, delta) })
}

func (b *breakerStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return guard(b, func() (bool, error) { return b.next.Expire(ctx, key, ttl) })
}

type ttlResult struct {
	ttl time.Duration
	ok  bool
}

func (b *breakerStore) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	r, err := guard(b, func() (ttlResult, error) {
		ttl, ok, err := b.next.TTL(ctx, key)
		return ttlResult{ttl, ok}, err
	})
	return r.ttl, r.ok, err
}

func (b *breakerStore) AddUnique(ctx context.Context, set, member string) (bool, error) {
	return guard(b, func() (bool, error) { return b.next.AddUnique(ctx, set, member) })
}

func (b *breakerStore) RemoveMember(ctx context.Context, set, member string) (bool, error) {
	return guard(b, func() (bool, error) { return b.next.RemoveMember(ctx, set, member) })
}

func (b *breakerStore) Cardinality(ctx context.Context, set string) (int64, error) {
	return guard(b, func() (int64, error) { return b.next.Cardinality(ctx, set) })
}

func (b *breakerStore) Members(ctx context.Context, set string) ([]string, error) {
	return guard(b, func() ([]string, error) { return b.next.Members(ctx, set) })
}

func (b *breakerStore) ReplaceFields(ctx context.Context, key string, fields map[string]string) error {
	return guardErr(b, func() error { return b.next.ReplaceFields(ctx, key, fields) })
}

func (b *breakerStore) Fields(ctx context.Context, key string) (map[string]string, bool, error) {
	type fieldsResult struct {
		fields map[string]string
		ok     bool
	}
	r, err := guard(b, func() (fieldsResult, error) {
		f, ok, err := b.next.Fields(ctx, key)
		return fieldsResult{f, ok}, err
	})
	return r.fields, r.ok, err
}

func (b *breakerStore) Publish(ctx context.Context, channel, message string) (int64, error) {
	return guard(b, func() (int64, error) { return b.next.Publish(ctx, channel, message) })
}

func (b *breakerStore) AppendScored(ctx context.Context, key string, score float64, member string) error {
	return guardErr(b, func() error { return b.next.AppendScored(ctx, key, score, member) })
}

func (b *breakerStore) Ping(ctx context.Context) error {
	return guardErr(b, func() error { return b.next.Ping(ctx) })
}

func (b *breakerStore) Stats() Stats {
	return b.next.Stats()
}

func (b *breakerStore) Close() error {
	return b.next.Close()
}

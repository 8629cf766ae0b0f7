package xdlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/omeyang/xkv/pkg/observability/xlog"
	"github.com/omeyang/xkv/pkg/observability/xmetrics"
	"github.com/omeyang/xkv/pkg/storage/xstore"
)

// Mutex 基于租约的分布式互斥锁。
//
// 一个 Mutex 代表一个逻辑持有者，方法可并发调用，
// 但在同一句柄上并发 TryLock 属于调用方错误。多个句柄可共享同一个 Store。
type Mutex struct {
	store xstore.KV
	key   string
	opts  *options

	mu   sync.Mutex
	held string // 本句柄写入的租约值，空表示未持有
}

// New 创建互斥锁，key 为资源名（不含前缀）。
func New(store xstore.KV, key string, opts ...Option) (*Mutex, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if strings.TrimSpace(key) == "" {
		return nil, ErrEmptyKey
	}
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return &Mutex{store: store, key: o.keyPrefix + key, opts: o, held: o.lease}, nil
}

// Key 返回加前缀后的锁键。
func (m *Mutex) Key() string {
	return m.key
}

// Held 报告本句柄是否认为自己持有锁。
// 租约可能已在存储侧被接管，结果仅反映本地状态。
func (m *Mutex) Held() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held != ""
}

// Lease 返回本句柄持有的租约值，未持有时为空串。
func (m *Mutex) Lease() string {
	return m.heldValue()
}

func (m *Mutex) heldValue() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held
}

func (m *Mutex) setHeld(v string) {
	m.mu.Lock()
	m.held = v
	m.mu.Unlock()
}

func (m *Mutex) attrs(op string, err error) []slog.Attr {
	attrs := []slog.Attr{xlog.Component("xdlock"), xlog.Operation(op), xlog.Key(m.key)}
	if err != nil {
		attrs = append(attrs, xlog.Err(err))
	}
	return attrs
}

func (m *Mutex) span(ctx context.Context, op string) (context.Context, xmetrics.Span) {
	return xmetrics.Start(ctx, m.opts.observer, xmetrics.SpanOptions{
		Component: "xdlock",
		Operation: op,
		Kind:      xmetrics.KindInternal,
		Attrs:     []xmetrics.Attr{xmetrics.String("key", m.key)},
	})
}

// =============================================================================
// 获取
// =============================================================================

// TryLock 非阻塞地尝试获取锁。
// 锁被他人持有时返回 (false, nil)；存储错误原样向上返回。
func (m *Mutex) TryLock(ctx context.Context) (bool, error) {
	if err := m.before(ctx, m.opts.hooks.BeforeLock); err != nil {
		return false, err
	}

	ctx, span := m.span(ctx, "try_lock")
	ok, err := m.tryLock(ctx)
	span.End(xmetrics.Result{Err: err, Attrs: []xmetrics.Attr{xmetrics.Bool("acquired", ok)}})
	if err != nil || !ok {
		return false, err
	}

	m.opts.logger.Debug(ctx, "lock acquired", m.attrs("try_lock", nil)...)
	m.after(ctx, m.opts.hooks.AfterLock, "try_lock")
	return true, nil
}

func (m *Mutex) tryLock(ctx context.Context) (bool, error) {
	now := m.opts.now()
	candidate := encodeLease(now.Add(m.opts.leaseDuration), uuid.NewString())

	// 第二轮只在 SetIfAbsent 与 Get 之间键被删除时发生。
	for range 2 {
		created, err := m.store.SetIfAbsent(ctx, m.key, candidate)
		if err != nil {
			return false, err
		}
		if created {
			m.setHeld(candidate)
			return true, nil
		}

		existing, found, err := m.store.Get(ctx, m.key)
		if err != nil {
			return false, err
		}
		if !found {
			continue
		}
		if expiresAt, _ := parseLease(existing); expiresAt.After(now) {
			return false, nil
		}

		return m.takeover(ctx, existing, candidate)
	}
	return false, nil
}

// takeover 接管已到期的租约。
// 只有换出值恰为 existing 的一方获胜；失败方把换出的胜者值写回。
func (m *Mutex) takeover(ctx context.Context, existing, candidate string) (bool, error) {
	current, existed, err := m.store.GetAndSet(ctx, m.key, candidate)
	if err != nil {
		return false, err
	}
	if !existed || current == existing {
		m.setHeld(candidate)
		return true, nil
	}

	if _, err := m.store.CompareAndSwap(ctx, m.key, candidate, current); err != nil {
		return false, fmt.Errorf("xdlock: restore lease after lost takeover: %w", err)
	}
	return false, nil
}

// Lock 阻塞直到获得锁，每 pollInterval 重试一次。
// ctx 结束时返回同时包装 [ErrLockTimeout] 与 ctx.Err() 的错误；存储错误立即返回。
func (m *Mutex) Lock(ctx context.Context) error {
	ok, err := m.TryLock(ctx)
	if err != nil {
		return m.lockErr(ctx, err)
	}
	if ok {
		return nil
	}

	timer := time.NewTimer(m.opts.pollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrLockTimeout, ctx.Err())
		case <-timer.C:
		}

		ok, err := m.TryLock(ctx)
		if err != nil {
			return m.lockErr(ctx, err)
		}
		if ok {
			return nil
		}
		timer.Reset(m.opts.pollInterval)
	}
}

// lockErr 存储调用因 ctx 结束而失败时归类为超时。
func (m *Mutex) lockErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ErrVetoed) {
		return fmt.Errorf("%w: %w", ErrLockTimeout, ctxErr)
	}
	return err
}

// =============================================================================
// 释放与续期
// =============================================================================

// Unlock 释放锁。
//
// 返回 false 表示本句柄未持有锁，或租约已到期并被接管；
// 后者触发 OnLost，且不会删除新持有者的记录。
func (m *Mutex) Unlock(ctx context.Context) (bool, error) {
	if err := m.before(ctx, m.opts.hooks.BeforeUnlock); err != nil {
		return false, err
	}

	held := m.heldValue()
	if held == "" {
		return false, nil
	}

	ctx, span := m.span(ctx, "unlock")
	released, err := m.unlock(ctx, held)
	span.End(xmetrics.Result{Err: err, Attrs: []xmetrics.Attr{xmetrics.Bool("released", released)}})
	if err != nil || !released {
		return false, err
	}

	m.opts.logger.Debug(ctx, "lock released", m.attrs("unlock", nil)...)
	m.after(ctx, m.opts.hooks.AfterUnlock, "unlock")
	return true, nil
}

func (m *Mutex) unlock(ctx context.Context, held string) (bool, error) {
	deleted, err := m.settle(ctx, held, func(ctx context.Context, current string) (bool, error) {
		return m.store.CompareAndDelete(ctx, m.key, current)
	})
	if err != nil {
		return false, err
	}
	if !deleted {
		m.lost(ctx, "unlock")
		return false, nil
	}
	m.setHeld("")
	return true, nil
}

// Extend 把租约到期时间推迟到 now + leaseDuration，令牌不变。
// 未持有时返回 [ErrNotHeld]，租约已被接管时返回 [ErrLockLost]。
func (m *Mutex) Extend(ctx context.Context) error {
	held := m.heldValue()
	if held == "" {
		return ErrNotHeld
	}

	ctx, span := m.span(ctx, "extend")
	_, token := parseLease(held)
	next := encodeLease(m.opts.now().Add(m.opts.leaseDuration), token)
	swapped, err := m.settle(ctx, held, func(ctx context.Context, current string) (bool, error) {
		return m.store.CompareAndSwap(ctx, m.key, current, next)
	})
	if err == nil && !swapped {
		m.lost(ctx, "extend")
		err = ErrLockLost
	}
	span.End(xmetrics.Result{Err: err})
	if err != nil {
		return err
	}

	m.setHeld(next)
	return nil
}

// settle 在本句柄仍持有租约时对当前存储值执行 apply。
//
// 接管失败方会短暂写入自己的候选值，随后换回胜者值。
// 到期不晚于 held 的带令牌值只可能是这种临时值，按持有处理；
// 更晚的值等待 restoreWait 后再读一次，仍不一致才判定租约已被接管。
func (m *Mutex) settle(ctx context.Context, held string, apply func(ctx context.Context, current string) (bool, error)) (bool, error) {
	heldExpiry, _ := parseLease(held)
	for attempt := range 2 {
		if attempt > 0 {
			if err := sleep(ctx, restoreWait); err != nil {
				return false, err
			}
		}

		value, found, err := m.store.Get(ctx, m.key)
		if err != nil {
			return false, err
		}
		if !found {
			return false, nil
		}
		if value != held {
			expiresAt, token := parseLease(value)
			if token == "" || expiresAt.IsZero() || expiresAt.After(heldExpiry) {
				continue
			}
		}

		ok, err := apply(ctx, value)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// lost 清除本地持有状态并通知调用方。
func (m *Mutex) lost(ctx context.Context, op string) {
	m.setHeld("")
	m.opts.logger.Warn(ctx, "lock lost to another holder", m.attrs(op, nil)...)
	if m.opts.hooks.OnLost != nil {
		m.opts.hooks.OnLost(ctx, m.key)
	}
}

// =============================================================================
// 便捷方法
// =============================================================================

// Do 获取锁后执行 fn，并在返回前释放锁。
//
// 释放时发现锁已被接管，返回的错误包含 [ErrLockLost]，
// fn 的错误与释放错误通过 errors.Join 一并返回。
// 释放使用不随 ctx 取消的上下文，保证尽力解锁。
func (m *Mutex) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := m.Lock(ctx); err != nil {
		return err
	}

	fnErr := fn(ctx)

	released, err := m.Unlock(context.WithoutCancel(ctx))
	if err != nil {
		return errors.Join(fnErr, err)
	}
	if !released {
		return errors.Join(fnErr, ErrLockLost)
	}
	return fnErr
}

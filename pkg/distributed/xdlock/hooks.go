package xdlock

import (
	"context"
	"fmt"
)

// HookFunc 在加锁或解锁前后调用，key 为加前缀后的锁键。
type HookFunc func(ctx context.Context, key string) error

// Hooks 加锁与解锁的回调，字段均可为 nil。
//
// Before 钩子返回错误时操作被拒绝，调用方得到包装 [ErrVetoed] 的错误。
// After 钩子在操作成功后调用，其错误只记录日志，不改变操作结果。
type Hooks struct {
	BeforeLock   HookFunc
	AfterLock    HookFunc
	BeforeUnlock HookFunc
	AfterUnlock  HookFunc

	// OnLost 在 Unlock 或 Extend 发现锁已被接管时调用。
	OnLost func(ctx context.Context, key string)
}

func (m *Mutex) before(ctx context.Context, hook HookFunc) error {
	if hook == nil {
		return nil
	}
	if err := hook(ctx, m.key); err != nil {
		return fmt.Errorf("%w: %w", ErrVetoed, err)
	}
	return nil
}

func (m *Mutex) after(ctx context.Context, hook HookFunc, op string) {
	if hook == nil {
		return
	}
	if err := hook(ctx, m.key); err != nil {
		m.opts.logger.Warn(ctx, "after hook failed", m.attrs(op, err)...)
	}
}

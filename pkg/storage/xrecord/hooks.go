package xrecord

import (
	"context"
	"fmt"

	"github.com/omeyang/xkv/pkg/observability/xlog"
)

// HookFunc 保存、删除或读取前后调用。
type HookFunc func(ctx context.Context, r *Record) error

// Hooks 保存、删除与读取回调，字段均可为 nil。
// Before 钩子返回错误时操作被拒绝；After 钩子的错误只记录日志。
type Hooks struct {
	BeforeSave   HookFunc
	AfterSave    HookFunc
	BeforeDelete HookFunc
	AfterDelete  HookFunc

	// BeforeFind 在读取存储前以目标 ID 调用。
	BeforeFind func(ctx context.Context, id int64) error

	// AfterFind 在记录加载后调用，可就地调整字段。
	AfterFind HookFunc
}

func (c *Collection) before(ctx context.Context, hook HookFunc, r *Record) error {
	if hook == nil {
		return nil
	}
	if err := hook(ctx, r); err != nil {
		return fmt.Errorf("%w: %w", ErrVetoed, err)
	}
	return nil
}

func (c *Collection) beforeFind(ctx context.Context, id int64) error {
	if c.hooks.BeforeFind == nil {
		return nil
	}
	if err := c.hooks.BeforeFind(ctx, id); err != nil {
		return fmt.Errorf("%w: %w", ErrVetoed, err)
	}
	return nil
}

func (c *Collection) after(ctx context.Context, hook HookFunc, r *Record, op string) {
	if hook == nil {
		return
	}
	if err := hook(ctx, r); err != nil {
		c.logger.Warn(ctx, "after hook failed",
			xlog.Component("xrecord"), xlog.Operation(op), xlog.Key(c.key(r.id)), xlog.Err(err))
	}
}

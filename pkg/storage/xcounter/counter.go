// Package xcounter 提供基于 xstore 的原子计数器。
package xcounter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/omeyang/xkv/pkg/storage/xstore"
)

var (
	// ErrNilStore 表示传入的 Store 为 nil。
	ErrNilStore = errors.New("xcounter: nil store")

	// ErrEmptyName 表示计数器名称为空。
	ErrEmptyName = errors.New("xcounter: empty name")
)

// Counter 命名计数器，并发安全。每次读取都访问存储，不缓存本地值。
type Counter struct {
	store xstore.KV
	name  string
}

// New 创建计数器，name 即存储键。
func New(store xstore.KV, name string) (*Counter, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyName
	}
	return &Counter{store: store, name: name}, nil
}

// Name 返回计数器名称。
func (c *Counter) Name() string {
	return c.name
}

// Increment 加 n 并返回新值。
func (c *Counter) Increment(ctx context.Context, n int64) (int64, error) {
	return c.store.Increment(ctx, c.name, n)
}

// Decrement 减 n 并返回新值。
func (c *Counter) Decrement(ctx context.Context, n int64) (int64, error) {
	return c.store.Increment(ctx, c.name, -n)
}

// Value 返回当前值，计数器不存在时为 0。
// 存储值不是整数时返回包装 [xstore.ErrNotInteger] 的错误。
func (c *Counter) Value(ctx context.Context) (int64, error) {
	raw, ok, err := c.store.Get(ctx, c.name)
	if err != nil || !ok {
		return 0, err
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("xcounter: %q: %w", c.name, errors.Join(xstore.ErrNotInteger, err))
	}
	return v, nil
}

// Clear 删除计数器，之后 Value 返回 0。
func (c *Counter) Clear(ctx context.Context) error {
	_, err := c.store.Delete(ctx, c.name)
	return err
}

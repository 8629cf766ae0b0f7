package xcache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/omeyang/xkv/pkg/observability/xlog"
	"github.com/omeyang/xkv/pkg/observability/xmetrics"
	"github.com/omeyang/xkv/pkg/storage/xstore"
)

// Loader Remember 的回源函数。
type Loader func(ctx context.Context) (string, error)

// Cache 缓存适配器，并发安全。
type Cache struct {
	store xstore.KV
	opts  *options
	group singleflight.Group
}

// New 创建缓存适配器。
func New(store xstore.KV, opts ...Option) (*Cache, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return &Cache{store: store, opts: o}, nil
}

func (c *Cache) key(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", ErrEmptyKey
	}
	return c.opts.keyPrefix + key, nil
}

func (c *Cache) span(ctx context.Context, op, key string) (context.Context, xmetrics.Span) {
	return xmetrics.Start(ctx, c.opts.observer, xmetrics.SpanOptions{
		Component: "xcache",
		Operation: op,
		Kind:      xmetrics.KindInternal,
		Attrs:     []xmetrics.Attr{xmetrics.String("key", key)},
	})
}

// =============================================================================
// 本地层
// =============================================================================

func (c *Cache) localGet(key string) (string, bool) {
	if c.opts.local == nil {
		return "", false
	}
	return c.opts.local.Get(key)
}

func (c *Cache) localSet(key, value string, ttl time.Duration) {
	if c.opts.local == nil {
		return
	}
	localTTL := c.opts.localTTL
	if ttl > 0 && ttl < localTTL {
		localTTL = ttl
	}
	c.opts.local.SetWithTTL(key, value, 0, localTTL)
}

func (c *Cache) localDel(key string) {
	if c.opts.local != nil {
		c.opts.local.Del(key)
	}
}

// fill 以存储侧剩余 TTL 为上限回填本地层，键已不存在时不回填。
func (c *Cache) fill(ctx context.Context, key, value string) {
	if c.opts.local == nil {
		return
	}
	ttl, ok, err := c.store.TTL(ctx, key)
	if err != nil || !ok {
		return
	}
	c.localSet(key, value, ttl)
}

// Wait 等待本地层缓冲写入完成，未启用本地层时立即返回。
func (c *Cache) Wait() {
	if c.opts.local != nil {
		c.opts.local.Wait()
	}
}

// =============================================================================
// 基本操作
// =============================================================================

// Get 读取缓存，未命中时 ok 为 false。
func (c *Cache) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	k, err := c.key(key)
	if err != nil {
		return "", false, err
	}
	if v, hit := c.localGet(k); hit {
		return v, true, nil
	}

	value, ok, err = c.store.Get(ctx, k)
	if err != nil || !ok {
		return "", false, err
	}
	c.fill(ctx, k, value)
	return value, true, nil
}

// Set 写入缓存，ttl <= 0 表示不过期。
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	k, err := c.key(key)
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, k, value, ttl); err != nil {
		c.localDel(k)
		return err
	}
	c.localSet(k, value, ttl)
	return nil
}

// Add 仅在键不存在时写入，返回是否写入。ttl > 0 时写入后设置过期。
func (c *Cache) Add(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	k, err := c.key(key)
	if err != nil {
		return false, err
	}
	added, err := c.store.SetIfAbsent(ctx, k, value)
	if err != nil || !added {
		return false, err
	}
	if ttl > 0 {
		if _, err := c.store.Expire(ctx, k, ttl); err != nil {
			return true, fmt.Errorf("xcache: expire after add: %w", err)
		}
	}
	c.localSet(k, value, ttl)
	return true, nil
}

// Delete 删除缓存，返回键是否存在。
func (c *Cache) Delete(ctx context.Context, key string) (bool, error) {
	k, err := c.key(key)
	if err != nil {
		return false, err
	}
	c.localDel(k)
	return c.store.Delete(ctx, k)
}

// Expire 重设过期时间，键不存在时返回 false。
// 本地副本被丢弃，下次读取从存储重新加载。
func (c *Cache) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	k, err := c.key(key)
	if err != nil {
		return false, err
	}
	c.localDel(k)
	return c.store.Expire(ctx, k, ttl)
}

// =============================================================================
// 读穿透
// =============================================================================

// Remember 读取缓存，未命中时调用 loader 回源并以 ttl 写回。
//
// 同一进程内对同一键的并发回源只执行一次。回源使用脱离调用方取消链的
// 独立 context，调用方 ctx 结束时本次调用立即返回，回源继续供其他等待者使用。
// 回源成功但写回失败时仍返回加载值，写回错误记录 Warn 日志。
func (c *Cache) Remember(ctx context.Context, key string, ttl time.Duration, loader Loader) (value string, err error) {
	if loader == nil {
		return "", ErrNilLoader
	}
	k, err := c.key(key)
	if err != nil {
		return "", err
	}

	if v, ok, err := c.Get(ctx, key); err != nil || ok {
		return v, err
	}

	ctx, span := c.span(ctx, "remember", k)
	shared := false
	defer func() {
		span.End(xmetrics.Result{Err: err, Attrs: []xmetrics.Attr{xmetrics.Bool("shared", shared)}})
	}()

	ch := c.group.DoChan(k, func() (any, error) {
		loadCtx, cancel := c.loadContext(ctx)
		defer cancel()
		return c.load(loadCtx, k, ttl, loader)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		shared = res.Shared
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *Cache) loadContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if c.opts.loadTimeout == 0 {
		return context.WithCancel(detached)
	}
	return context.WithTimeout(detached, c.opts.loadTimeout)
}

func (c *Cache) load(ctx context.Context, key string, ttl time.Duration, loader Loader) (value string, err error) {
	// 合并等待期间其他进程可能已写入。
	if v, ok, getErr := c.store.Get(ctx, key); getErr == nil && ok {
		c.fill(ctx, key, v)
		return v, nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrLoadPanic, r)
			c.opts.logger.Error(ctx, "cache loader panicked", c.attrs("remember", key, err)...)
		}
	}()

	value, err = loader(ctx)
	if err != nil {
		return "", err
	}

	if setErr := c.store.Set(ctx, key, value, ttl); setErr != nil {
		c.opts.logger.Warn(ctx, "cache write back failed", c.attrs("remember", key, setErr)...)
		return value, nil
	}
	c.localSet(key, value, ttl)
	return value, nil
}

func (c *Cache) attrs(op, key string, err error) []slog.Attr {
	attrs := []slog.Attr{xlog.Component("xcache"), xlog.Operation(op), xlog.Key(key)}
	if err != nil {
		attrs = append(attrs, xlog.Err(err))
	}
	return attrs
}

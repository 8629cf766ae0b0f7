package xdlock

import (
	"time"

	"github.com/omeyang/xkv/pkg/observability/xlog"
	"github.com/omeyang/xkv/pkg/observability/xmetrics"
)

const (
	// DefaultLeaseDuration 默认租约时长。
	DefaultLeaseDuration = 10 * time.Second

	// DefaultPollInterval Lock 默认轮询间隔。
	DefaultPollInterval = 500 * time.Millisecond

	// DefaultKeyPrefix 默认锁键前缀。
	DefaultKeyPrefix = "mutex:"

	// restoreWait 释放或续期时等待接管失败方换回租约值的时长。
	restoreWait = 20 * time.Millisecond
)

// Option 定义 Mutex 的配置选项。
type Option func(*options)

type options struct {
	leaseDuration time.Duration
	pollInterval  time.Duration
	keyPrefix     string
	now           func() time.Time
	hooks         Hooks
	observer      xmetrics.Observer
	logger        xlog.Logger
	lease         string
}

func defaultOptions() *options {
	return &options{
		leaseDuration: DefaultLeaseDuration,
		pollInterval:  DefaultPollInterval,
		keyPrefix:     DefaultKeyPrefix,
		now:           time.Now,
		observer:      xmetrics.NoopObserver{},
		logger:        xlog.Discard(),
	}
}

// WithLeaseDuration 设置租约时长，非正值忽略。
// 租约应大于临界区耗时，否则需要调用 Extend。
func WithLeaseDuration(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.leaseDuration = d
		}
	}
}

// WithPollInterval 设置 Lock 的轮询间隔，非正值忽略。
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithKeyPrefix 设置锁键前缀，最终键 = prefix + key。
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		o.keyPrefix = prefix
	}
}

// WithClock 设置时间来源，主要用于测试。
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithHooks 设置加锁与解锁钩子。
func WithHooks(h Hooks) Option {
	return func(o *options) {
		o.hooks = h
	}
}

// WithObserver 设置观测器，nil 忽略。
func WithObserver(observer xmetrics.Observer) Option {
	return func(o *options) {
		if observer != nil {
			o.observer = observer
		}
	}
}

// WithLogger 设置日志记录器，nil 忽略。
func WithLogger(logger xlog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithLease 以已知的租约值创建句柄，用于在另一进程中续期或释放
// 先前由 [Mutex.Lease] 导出的锁。租约值不做校验，不匹配时表现为锁已丢失。
func WithLease(lease string) Option {
	return func(o *options) {
		o.lease = lease
	}
}

package xstore

import (
	"time"

	"github.com/omeyang/xkv/internal/storageopt"
	"github.com/omeyang/xkv/pkg/observability/xlog"
	"github.com/omeyang/xkv/pkg/observability/xmetrics"
)

// Stats 操作计数快照。
type Stats = storageopt.Stats

// SlowOp 慢操作信息。
type SlowOp = storageopt.SlowOp

// SlowOpHook 慢操作回调，在请求路径上同步执行。
type SlowOpHook = storageopt.SlowOpHook

// Option 后端配置选项。
type Option func(*options)

type options struct {
	keyPrefix     string
	observer      xmetrics.Observer
	logger        xlog.Logger
	healthTimeout time.Duration
	slowThreshold time.Duration
	slowHook      SlowOpHook
	closeClient   bool
}

func defaultOptions() *options {
	return &options{
		observer:      xmetrics.NoopObserver{},
		logger:        xlog.Discard(),
		healthTimeout: storageopt.DefaultHealthTimeout,
		closeClient:   true,
	}
}

func applyOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// WithKeyPrefix 为所有键和集合名添加前缀。
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		o.keyPrefix = prefix
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

// WithHealthTimeout 设置 Ping 超时，<= 0 时不额外设置超时。
func WithHealthTimeout(d time.Duration) Option {
	return func(o *options) {
		o.healthTimeout = d
	}
}

// WithSlowThreshold 设置慢操作阈值，0 表示禁用。
func WithSlowThreshold(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.slowThreshold = d
		}
	}
}

// WithSlowHook 设置慢操作回调。
func WithSlowHook(hook SlowOpHook) Option {
	return func(o *options) {
		o.slowHook = hook
	}
}

// WithCloseClient 设置 Close 时是否关闭底层客户端，默认 true。
// 多个 Store 共享同一客户端时设为 false。
func WithCloseClient(enable bool) Option {
	return func(o *options) {
		o.closeClient = enable
	}
}

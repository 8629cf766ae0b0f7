package xcache

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/omeyang/xkv/pkg/observability/xlog"
	"github.com/omeyang/xkv/pkg/observability/xmetrics"
)

const (
	// DefaultLocalTTL 本地层条目的最长存活时间。
	DefaultLocalTTL = time.Minute

	// DefaultLoadTimeout Remember 回源的独立超时。
	DefaultLoadTimeout = 30 * time.Second
)

type options struct {
	keyPrefix   string
	local       *ristretto.Cache[string, string]
	localTTL    time.Duration
	loadTimeout time.Duration
	observer    xmetrics.Observer
	logger      xlog.Logger
}

func defaultOptions() *options {
	return &options{
		localTTL:    DefaultLocalTTL,
		loadTimeout: DefaultLoadTimeout,
		observer:    xmetrics.NoopObserver{},
		logger:      xlog.Discard(),
	}
}

// Option 缓存选项。
type Option func(*options)

// WithKeyPrefix 为所有缓存键添加前缀。
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		o.keyPrefix = prefix
	}
}

// WithLocal 启用进程内缓存层，通常由 [NewLocal] 创建。
// Cache 不负责关闭传入的 ristretto 实例。
func WithLocal(local *ristretto.Cache[string, string]) Option {
	return func(o *options) {
		o.local = local
	}
}

// WithLocalTTL 设置本地层条目的最长存活时间，<= 0 忽略。
// 实际存活时间取该值与写入 ttl 中较小者。
func WithLocalTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.localTTL = d
		}
	}
}

// WithLoadTimeout 设置 Remember 回源超时。
// 回源脱离调用方的取消链，0 表示不设超时，负值忽略。
func WithLoadTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.loadTimeout = d
		}
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

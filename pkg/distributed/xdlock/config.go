package xdlock

import (
	"time"

	"github.com/omeyang/xkv/pkg/storage/xstore"
)

// Config 互斥锁配置，可由 xconf 加载。零值字段使用默认值。
//
//	mutex:
//	  lease_duration: 10s
//	  poll_interval: 500ms
//	  key_prefix: "mutex:"
type Config struct {
	LeaseDuration time.Duration `koanf:"lease_duration" json:"lease_duration" yaml:"lease_duration"`
	PollInterval  time.Duration `koanf:"poll_interval" json:"poll_interval" yaml:"poll_interval"`
	KeyPrefix     string        `koanf:"key_prefix" json:"key_prefix" yaml:"key_prefix"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() Config {
	return Config{
		LeaseDuration: DefaultLeaseDuration,
		PollInterval:  DefaultPollInterval,
		KeyPrefix:     DefaultKeyPrefix,
	}
}

// Options 把配置转换为选项，空前缀保留默认前缀。
func (c Config) Options() []Option {
	opts := []Option{
		WithLeaseDuration(c.LeaseDuration),
		WithPollInterval(c.PollInterval),
	}
	if c.KeyPrefix != "" {
		opts = append(opts, WithKeyPrefix(c.KeyPrefix))
	}
	return opts
}

// FromConfig 按配置创建互斥锁，opts 追加在配置之后可覆盖配置。
func FromConfig(store xstore.KV, key string, cfg Config, opts ...Option) (*Mutex, error) {
	return New(store, key, append(cfg.Options(), opts...)...)
}

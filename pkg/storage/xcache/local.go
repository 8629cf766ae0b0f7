package xcache

import (
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
)

// LocalConfig 进程内缓存层配置。
type LocalConfig struct {
	// NumCounters 频率计数器数量，建议为预期键数量的 10 倍，默认 1e6。
	NumCounters int64 `koanf:"num_counters" json:"num_counters" yaml:"num_counters"`

	// MaxCost 最大总成本，成本按值的字节数计算，默认 64MB。
	MaxCost int64 `koanf:"max_cost" json:"max_cost" yaml:"max_cost"`

	// BufferItems Get 缓冲区大小，默认 64。
	BufferItems int64 `koanf:"buffer_items" json:"buffer_items" yaml:"buffer_items"`

	// Metrics 是否收集命中率等统计。
	Metrics bool `koanf:"metrics" json:"metrics" yaml:"metrics"`
}

func (c LocalConfig) withDefaults() LocalConfig {
	if c.NumCounters <= 0 {
		c.NumCounters = 1e6
	}
	if c.MaxCost <= 0 {
		c.MaxCost = 64 << 20
	}
	if c.BufferItems <= 0 {
		c.BufferItems = 64
	}
	return c
}

// NewLocal 创建供 [WithLocal] 使用的 ristretto 缓存，调用方负责 Close。
func NewLocal(cfg LocalConfig) (*ristretto.Cache[string, string], error) {
	cfg = cfg.withDefaults()
	local, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
		Cost: func(value string) int64 {
			return int64(len(value)) + 1
		},
	})
	if err != nil {
		return nil, fmt.Errorf("xcache: create local cache: %w", err)
	}
	return local, nil
}

package xstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	clientv3 "go.etcd.io/etcd/client/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
)

// 后端名称。
const (
	BackendRedis = backendRedis
	BackendEtcd  = backendEtcd
)

// Config Store 配置，可由 xconf 从 YAML/JSON 加载。
//
//	store:
//	  backend: redis
//	  key_prefix: "xkv:"
//	  redis:
//	    addrs: ["127.0.0.1:6379"]
//	    db: 1
type Config struct {
	// Backend 后端类型：redis 或 etcd，默认 redis。
	Backend string `koanf:"backend" json:"backend" yaml:"backend"`

	// KeyPrefix 所有键的前缀。
	KeyPrefix string `koanf:"key_prefix" json:"key_prefix" yaml:"key_prefix"`

	// HealthTimeout Ping 超时，零值使用 5s。
	HealthTimeout time.Duration `koanf:"health_timeout" json:"health_timeout" yaml:"health_timeout"`

	// SlowThreshold 慢操作阈值，零值禁用。
	SlowThreshold time.Duration `koanf:"slow_threshold" json:"slow_threshold" yaml:"slow_threshold"`

	// PingOnOpen 创建后立即健康检查，失败时关闭客户端并返回错误。
	PingOnOpen bool `koanf:"ping_on_open" json:"ping_on_open" yaml:"ping_on_open"`

	Redis   RedisConfig   `koanf:"redis" json:"redis" yaml:"redis"`
	Etcd    EtcdConfig    `koanf:"etcd" json:"etcd" yaml:"etcd"`
	Breaker BreakerConfig `koanf:"breaker" json:"breaker" yaml:"breaker"`
}

// RedisConfig Redis 连接配置。
// Addrs 为多个地址时使用集群客户端，设置 MasterName 时使用哨兵客户端。
type RedisConfig struct {
	Addrs        []string      `koanf:"addrs" json:"addrs" yaml:"addrs"`
	MasterName   string        `koanf:"master_name" json:"master_name" yaml:"master_name"`
	Username     string        `koanf:"username" json:"username" yaml:"username"`
	Password     string        `koanf:"password" json:"password" yaml:"password"`
	DB           int           `koanf:"db" json:"db" yaml:"db"`
	DialTimeout  time.Duration `koanf:"dial_timeout" json:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout" json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout" json:"write_timeout" yaml:"write_timeout"`
	PoolSize     int           `koanf:"pool_size" json:"pool_size" yaml:"pool_size"`
}

// EtcdConfig etcd 连接配置。
type EtcdConfig struct {
	Endpoints            []string      `koanf:"endpoints" json:"endpoints" yaml:"endpoints"`
	Username             string        `koanf:"username" json:"username" yaml:"username"`
	Password             string        `koanf:"password" json:"password" yaml:"password"`
	DialTimeout          time.Duration `koanf:"dial_timeout" json:"dial_timeout" yaml:"dial_timeout"`
	DialKeepAliveTime    time.Duration `koanf:"dial_keepalive_time" json:"dial_keepalive_time" yaml:"dial_keepalive_time"`
	DialKeepAliveTimeout time.Duration `koanf:"dial_keepalive_timeout" json:"dial_keepalive_timeout" yaml:"dial_keepalive_timeout"`
}

// BreakerConfig 熔断配置，Enabled 为 false 时不包装。
type BreakerConfig struct {
	Enabled             bool          `koanf:"enabled" json:"enabled" yaml:"enabled"`
	ConsecutiveFailures uint32        `koanf:"consecutive_failures" json:"consecutive_failures" yaml:"consecutive_failures"`
	OpenTimeout         time.Duration `koanf:"open_timeout" json:"open_timeout" yaml:"open_timeout"`
}

const (
	defaultDialTimeout          = 5 * time.Second
	defaultDialKeepAliveTime    = 10 * time.Second
	defaultDialKeepAliveTimeout = 3 * time.Second
)

// DefaultConfig 返回本地 Redis 默认配置（localhost:6379，DB 1，前缀 "xkv:"）。
func DefaultConfig() Config {
	return Config{
		Backend:   BackendRedis,
		KeyPrefix: "xkv:",
		Redis: RedisConfig{
			Addrs: []string{"localhost:6379"},
			DB:    1,
		},
	}
}

// Validate 校验配置，返回的错误包装 ErrInvalidConfig。
func (c *Config) Validate() error {
	switch c.backend() {
	case BackendRedis:
		if len(c.Redis.Addrs) == 0 {
			return fmt.Errorf("%w: redis.addrs is empty", ErrInvalidConfig)
		}
		for i, addr := range c.Redis.Addrs {
			if !strings.Contains(addr, ":") {
				return fmt.Errorf("%w: redis.addrs[%d]=%q missing port", ErrInvalidConfig, i, addr)
			}
		}
	case BackendEtcd:
		if len(c.Etcd.Endpoints) == 0 {
			return fmt.Errorf("%w: etcd.endpoints is empty", ErrInvalidConfig)
		}
		for i, ep := range c.Etcd.Endpoints {
			if ep == "" {
				return fmt.Errorf("%w: etcd.endpoints[%d] is empty", ErrInvalidConfig, i)
			}
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}
	return nil
}

func (c *Config) backend() string {
	b := strings.ToLower(strings.TrimSpace(c.Backend))
	if b == "" {
		return BackendRedis
	}
	return b
}

// Open 按配置创建客户端与 Store，Store 关闭时一并关闭客户端。
// opts 追加在配置派生的选项之后，可覆盖配置。
func Open(ctx context.Context, cfg Config, opts ...Option) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	derived := []Option{
		WithKeyPrefix(cfg.KeyPrefix),
		WithSlowThreshold(cfg.SlowThreshold),
	}
	if cfg.HealthTimeout > 0 {
		derived = append(derived, WithHealthTimeout(cfg.HealthTimeout))
	}
	opts = append(derived, opts...)

	var (
		store Store
		err   error
	)
	switch cfg.backend() {
	case BackendEtcd:
		var cli *clientv3.Client
		cli, err = clientv3.New(etcdClientConfig(cfg.Etcd))
		if err != nil {
			return nil, fmt.Errorf("xstore: create etcd client: %w", err)
		}
		store, err = NewEtcd(cli, opts...)
	default:
		store, err = NewRedis(redis.NewUniversalClient(redisClientOptions(cfg.Redis)), opts...)
	}
	if err != nil {
		return nil, err
	}

	if cfg.PingOnOpen {
		if err := store.Ping(ctx); err != nil {
			return nil, errors.Join(err, store.Close())
		}
	}

	if cfg.Breaker.Enabled {
		return WithBreaker(store,
			WithBreakerName("xstore-"+cfg.backend()),
			WithConsecutiveFailures(cfg.Breaker.ConsecutiveFailures),
			WithOpenTimeout(cfg.Breaker.OpenTimeout),
		)
	}
	return store, nil
}

func redisClientOptions(c RedisConfig) *redis.UniversalOptions {
	return &redis.UniversalOptions{
		Addrs:        c.Addrs,
		MasterName:   c.MasterName,
		Username:     c.Username,
		Password:     c.Password,
		DB:           c.DB,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		PoolSize:     c.PoolSize,
	}
}

// etcdClientConfig keepalive 只通过 DialOptions 设置，避免与 Config 字段重复。
func etcdClientConfig(c EtcdConfig) clientv3.Config {
	dialTimeout := c.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	keepAlive := c.DialKeepAliveTime
	if keepAlive <= 0 {
		keepAlive = defaultDialKeepAliveTime
	}
	keepAliveTimeout := c.DialKeepAliveTimeout
	if keepAliveTimeout <= 0 {
		keepAliveTimeout = defaultDialKeepAliveTimeout
	}
	return clientv3.Config{
		Endpoints:   c.Endpoints,
		Username:    c.Username,
		Password:    c.Password,
		DialTimeout: dialTimeout,
		DialOptions: []grpc.DialOption{
			grpc.WithKeepaliveParams(keepalive.ClientParameters{
				Time:                keepAlive,
				Timeout:             keepAliveTimeout,
				PermitWithoutStream: true,
			}),
		},
	}
}

package xstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, BackendRedis, cfg.Backend)
	assert.Equal(t, "xkv:", cfg.KeyPrefix)
	assert.Equal(t, []string{"localhost:6379"}, cfg.Redis.Addrs)
	assert.Equal(t, 1, cfg.Redis.DB)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"empty backend defaults to redis", Config{Redis: RedisConfig{Addrs: []string{"a:1"}}}, false},
		{"redis without addrs", Config{Backend: "redis"}, true},
		{"redis addr without port", Config{Backend: "redis", Redis: RedisConfig{Addrs: []string{"localhost"}}}, true},
		{"etcd ok", Config{Backend: "ETCD", Etcd: EtcdConfig{Endpoints: []string{"127.0.0.1:2379"}}}, false},
		{"etcd without endpoints", Config{Backend: "etcd"}, true},
		{"etcd empty endpoint", Config{Backend: "etcd", Etcd: EtcdConfig{Endpoints: []string{""}}}, true},
		{"unknown backend", Config{Backend: "memcached"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOpen_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := Config{
		KeyPrefix:  "svc:",
		PingOnOpen: true,
		Redis:      RedisConfig{Addrs: []string{mr.Addr()}},
		Breaker:    BreakerConfig{Enabled: true, ConsecutiveFailures: 2},
	}

	s, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, ok := s.(*breakerStore)
	assert.True(t, ok)

	require.NoError(t, s.Set(context.Background(), "k", "v", 0))
	got, err := mr.Get("svc:k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestOpen_OptionsOverrideConfig(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := Config{KeyPrefix: "cfg:", Redis: RedisConfig{Addrs: []string{mr.Addr()}}}

	s, err := Open(context.Background(), cfg, WithKeyPrefix("opt:"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Set(context.Background(), "k", "v", 0))
	assert.True(t, mr.Exists("opt:k"))
	assert.False(t, mr.Exists("cfg:k"))
}

func TestOpen_PingFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := Config{
		PingOnOpen:    true,
		HealthTimeout: 200 * time.Millisecond,
		Redis:         RedisConfig{Addrs: []string{addr}, DialTimeout: 100 * time.Millisecond},
	}
	s, err := Open(context.Background(), cfg)
	assert.Nil(t, s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping redis")
}

func TestOpen_InvalidConfig(t *testing.T) {
	_, err := Open(context.Background(), Config{Backend: "nope"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestEtcdClientConfig_Defaults(t *testing.T) {
	c := etcdClientConfig(EtcdConfig{Endpoints: []string{"127.0.0.1:2379"}})
	assert.Equal(t, defaultDialTimeout, c.DialTimeout)
	assert.Len(t, c.DialOptions, 1)
	assert.Equal(t, []string{"127.0.0.1:2379"}, c.Endpoints)
}

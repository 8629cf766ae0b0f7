package xstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const backendRedis = "redis"

// compareAndSwapScript 仅当当前值等于 ARGV[1] 时写入 ARGV[2]。
var compareAndSwapScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		redis.call("SET", KEYS[1], ARGV[2])
		return 1
	end
	return 0
`)

// compareAndDeleteScript 仅当当前值等于 ARGV[1] 时删除。
var compareAndDeleteScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// redisStore 基于 go-redis 的 Store 实现。
type redisStore struct {
	*base
	client redis.UniversalClient
}

var _ Store = (*redisStore)(nil)

// NewRedis 基于 redis.UniversalClient 创建 Store，单机、哨兵、集群客户端均可。
// 集群模式下 ReplaceFields 的事务只涉及单个键，不受 slot 限制。
func NewRedis(client redis.UniversalClient, opts ...Option) (Store, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	return &redisStore{
		base:   newBase(backendRedis, applyOptions(opts)),
		client: client,
	}, nil
}

// Client 返回底层客户端。
func (s *redisStore) Client() redis.UniversalClient {
	return s.client
}

// =============================================================================
// KV
// =============================================================================

func (s *redisStore) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		value string
		ok    bool
	)
	err := s.run(ctx, "get", key, func(ctx context.Context) error {
		v, err := s.client.Get(ctx, s.key(key)).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		value, ok = v, true
		return nil
	}, key)
	return value, ok, err
}

func (s *redisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return s.run(ctx, "set", key, func(ctx context.Context) error {
		return s.client.Set(ctx, s.key(key), value, ttl).Err()
	}, key)
}

func (s *redisStore) SetIfAbsent(ctx context.Context, key, value string) (bool, error) {
	var ok bool
	err := s.run(ctx, "setnx", key, func(ctx context.Context) error {
		var err error
		ok, err = s.client.SetNX(ctx, s.key(key), value, 0).Result()
		return err
	}, key)
	return ok, err
}

func (s *redisStore) GetAndSet(ctx context.Context, key, value string) (string, bool, error) {
	var (
		old     string
		existed bool
	)
	err := s.run(ctx, "getset", key, func(ctx context.Context) error {
		v, err := s.client.GetSet(ctx, s.key(key), value).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		old, existed = v, true
		return nil
	}, key)
	return old, existed, err
}

func (s *redisStore) CompareAndSwap(ctx context.Context, key, old, value string) (bool, error) {
	var ok bool
	err := s.run(ctx, "cas", key, func(ctx context.Context) error {
		n, err := compareAndSwapScript.Run(ctx, s.client, []string{s.key(key)}, old, value).Int64()
		ok = n == 1
		return err
	}, key)
	return ok, err
}

func (s *redisStore) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	var ok bool
	err := s.run(ctx, "cad", key, func(ctx context.Context) error {
		n, err := compareAndDeleteScript.Run(ctx, s.client, []string{s.key(key)}, value).Int64()
		ok = n == 1
		return err
	}, key)
	return ok, err
}

func (s *redisStore) Delete(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := s.run(ctx, "del", key, func(ctx context.Context) error {
		n, err := s.client.Del(ctx, s.key(key)).Result()
		ok = n > 0
		return err
	}, key)
	return ok, err
}

func (s *redisStore) Exists(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := s.run(ctx, "exists", key, func(ctx context.Context) error {
		n, err := s.client.Exists(ctx, s.key(key)).Result()
		ok = n > 0
		return err
	}, key)
	return ok, err
}

func (s *redisStore) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	var n int64
	err := s.run(ctx, "incrby", key, func(ctx context.Context) error {
		var err error
		n, err = s.client.IncrBy(ctx, s.key(key), delta).Result()
		// INCRBY 的服务端错误回复统一视为值不是整数。
		var rerr redis.Error
		if errors.As(err, &rerr) && !errors.Is(err, redis.Nil) {
			return errors.Join(ErrNotInteger, err)
		}
		return err
	}, key)
	return n, err
}

func (s *redisStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, ErrInvalidTTL
	}
	var ok bool
	err := s.run(ctx, "expire", key, func(ctx context.Context) error {
		var err error
		ok, err = s.client.Expire(ctx, s.key(key), ttl).Result()
		return err
	}, key)
	return ok, err
}

// TTL 基于 PTTL，-2 表示键不存在，-1 表示不过期。
func (s *redisStore) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	var d time.Duration
	err := s.run(ctx, "pttl", key, func(ctx context.Context) error {
		var err error
		d, err = s.client.PTTL(ctx, s.key(key)).Result()
		return err
	}, key)
	switch {
	case err != nil, d == -2:
		return 0, false, err
	case d < 0:
		return 0, true, nil
	}
	return d, true, nil
}

// =============================================================================
// Sets
// =============================================================================

func (s *redisStore) AddUnique(ctx context.Context, set, member string) (bool, error) {
	var ok bool
	err := s.run(ctx, "sadd", set, func(ctx context.Context) error {
		n, err := s.client.SAdd(ctx, s.key(set), member).Result()
		ok = n == 1
		return err
	}, set, member)
	return ok, err
}

func (s *redisStore) RemoveMember(ctx context.Context, set, member string) (bool, error) {
	var ok bool
	err := s.run(ctx, "srem", set, func(ctx context.Context) error {
		n, err := s.client.SRem(ctx, s.key(set), member).Result()
		ok = n == 1
		return err
	}, set, member)
	return ok, err
}

func (s *redisStore) Cardinality(ctx context.Context, set string) (int64, error) {
	var n int64
	err := s.run(ctx, "scard", set, func(ctx context.Context) error {
		var err error
		n, err = s.client.SCard(ctx, s.key(set)).Result()
		return err
	}, set)
	return n, err
}

func (s *redisStore) Members(ctx context.Context, set string) ([]string, error) {
	var members []string
	err := s.run(ctx, "smembers", set, func(ctx context.Context) error {
		var err error
		members, err = s.client.SMembers(ctx, s.key(set)).Result()
		return err
	}, set)
	return members, err
}

// =============================================================================
// Hashes
// =============================================================================

// ReplaceFields 在 MULTI/EXEC 中执行 DEL + HSET，清空与重写之间不会被其他客户端观察到。
func (s *redisStore) ReplaceFields(ctx context.Context, key string, fields map[string]string) error {
	return s.run(ctx, "hreplace", key, func(ctx context.Context) error {
		k := s.key(key)
		_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, k)
			if len(fields) > 0 {
				args := make([]any, 0, len(fields)*2)
				for f, v := range fields {
					args = append(args, f, v)
				}
				pipe.HSet(ctx, k, args...)
			}
			return nil
		})
		return err
	}, key)
}

func (s *redisStore) Fields(ctx context.Context, key string) (map[string]string, bool, error) {
	var fields map[string]string
	err := s.run(ctx, "hgetall", key, func(ctx context.Context) error {
		var err error
		fields, err = s.client.HGetAll(ctx, s.key(key)).Result()
		return err
	}, key)
	if err != nil || len(fields) == 0 {
		return nil, false, err
	}
	return fields, true, nil
}

// =============================================================================
// Broadcaster
// =============================================================================

func (s *redisStore) Publish(ctx context.Context, channel, message string) (int64, error) {
	var n int64
	err := s.run(ctx, "publish", channel, func(ctx context.Context) error {
		var err error
		n, err = s.client.Publish(ctx, s.key(channel), message).Result()
		return err
	}, channel)
	return n, err
}

func (s *redisStore) AppendScored(ctx context.Context, key string, score float64, member string) error {
	return s.run(ctx, "zadd", key, func(ctx context.Context) error {
		return s.client.ZAdd(ctx, s.key(key), redis.Z{Score: score, Member: member}).Err()
	}, key)
}

// =============================================================================
// 生命周期
// =============================================================================

func (s *redisStore) Ping(ctx context.Context) error {
	return s.ping(ctx, func(ctx context.Context) error {
		return s.client.Ping(ctx).Err()
	})
}

func (s *redisStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if !s.opts.closeClient {
		return nil
	}
	return s.client.Close()
}

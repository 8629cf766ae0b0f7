package xstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/google/uuid"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	backendEtcd = "etcd"

	etcdMembersSegment = "/members/"
	etcdScoredSegment  = "/scored/"
	etcdHealthKey      = "xstore-health-check"

	defaultConflictDelay = 5 * time.Millisecond
)

// errRevisionConflict 乐观事务比较失败，由 retry 循环消化。
var errRevisionConflict = errors.New("xstore: revision conflict")

// etcdStore 基于 etcd v3 的 Store 实现。
//
// 单键原子性来自 Txn 比较：SetIfAbsent/AddUnique 比较 CreateRevision == 0，
// CompareAndSwap/CompareAndDelete 比较 Value，Increment/Expire 比较 ModRevision 并在冲突时重试。
// 集合成员存储为 <set>/members/<member> 形式的独立键。
type etcdStore struct {
	*base
	client etcdClient
}

var _ Store = (*etcdStore)(nil)

// NewEtcd 基于 etcd 客户端创建 Store。
func NewEtcd(client *clientv3.Client, opts ...Option) (Store, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	return newEtcdStore(client, opts...), nil
}

func newEtcdStore(client etcdClient, opts ...Option) *etcdStore {
	return &etcdStore{
		base:   newBase(backendEtcd, applyOptions(opts)),
		client: client,
	}
}

// optimistic 在 errRevisionConflict 时带抖动重试 fn，其他错误立即返回。
func optimistic[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	return retry.NewWithData[T](
		retry.Context(ctx),
		retry.UntilSucceeded(),
		retry.RetryIf(func(err error) bool { return errors.Is(err, errRevisionConflict) }),
		retry.Delay(defaultConflictDelay),
		retry.MaxJitter(defaultConflictDelay),
		retry.DelayType(retry.CombineDelay(retry.FixedDelay, retry.RandomDelay)),
		retry.LastErrorOnly(true),
	).Do(fn)
}

// txn 执行单个比较事务，返回比较是否成立。
func (s *etcdStore) txn(ctx context.Context, cmp clientv3.Cmp, then ...clientv3.Op) (bool, error) {
	resp, err := s.client.Do(ctx, clientv3.OpTxn([]clientv3.Cmp{cmp}, then, nil))
	if err != nil {
		return false, err
	}
	t := resp.Txn()
	return t != nil && t.Succeeded, nil
}

// grant 创建租约，秒数向上取整，保证键存活不短于 ttl。
func (s *etcdStore) grant(ctx context.Context, ttl time.Duration) (clientv3.LeaseID, error) {
	seconds := max(int64(math.Ceil(ttl.Seconds())), 1)
	lease, err := s.client.Grant(ctx, seconds)
	if err != nil {
		return 0, fmt.Errorf("grant lease: %w", err)
	}
	return lease.ID, nil
}

// =============================================================================
// KV
// =============================================================================

func (s *etcdStore) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		value string
		ok    bool
	)
	err := s.run(ctx, "get", key, func(ctx context.Context) error {
		resp, err := s.client.Get(ctx, s.key(key))
		if err != nil {
			return err
		}
		if len(resp.Kvs) > 0 {
			value, ok = string(resp.Kvs[0].Value), true
		}
		return nil
	}, key)
	return value, ok, err
}

func (s *etcdStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.run(ctx, "set", key, func(ctx context.Context) error {
		var opts []clientv3.OpOption
		if ttl > 0 {
			id, err := s.grant(ctx, ttl)
			if err != nil {
				return err
			}
			opts = append(opts, clientv3.WithLease(id))
		}
		_, err := s.client.Put(ctx, s.key(key), value, opts...)
		return err
	}, key)
}

func (s *etcdStore) SetIfAbsent(ctx context.Context, key, value string) (bool, error) {
	var ok bool
	err := s.run(ctx, "setnx", key, func(ctx context.Context) error {
		k := s.key(key)
		var err error
		ok, err = s.txn(ctx, clientv3.Compare(clientv3.CreateRevision(k), "=", 0), clientv3.OpPut(k, value))
		return err
	}, key)
	return ok, err
}

func (s *etcdStore) GetAndSet(ctx context.Context, key, value string) (string, bool, error) {
	var (
		old     string
		existed bool
	)
	err := s.run(ctx, "getset", key, func(ctx context.Context) error {
		resp, err := s.client.Put(ctx, s.key(key), value, clientv3.WithPrevKV())
		if err != nil {
			return err
		}
		if resp.PrevKv != nil {
			old, existed = string(resp.PrevKv.Value), true
		}
		return nil
	}, key)
	return old, existed, err
}

func (s *etcdStore) CompareAndSwap(ctx context.Context, key, old, value string) (bool, error) {
	var ok bool
	err := s.run(ctx, "cas", key, func(ctx context.Context) error {
		k := s.key(key)
		var err error
		ok, err = s.txn(ctx, clientv3.Compare(clientv3.Value(k), "=", old), clientv3.OpPut(k, value))
		return err
	}, key)
	return ok, err
}

func (s *etcdStore) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	var ok bool
	err := s.run(ctx, "cad", key, func(ctx context.Context) error {
		k := s.key(key)
		var err error
		ok, err = s.txn(ctx, clientv3.Compare(clientv3.Value(k), "=", value), clientv3.OpDelete(k))
		return err
	}, key)
	return ok, err
}

func (s *etcdStore) Delete(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := s.run(ctx, "del", key, func(ctx context.Context) error {
		resp, err := s.client.Delete(ctx, s.key(key))
		if err != nil {
			return err
		}
		ok = resp.Deleted > 0
		return nil
	}, key)
	return ok, err
}

func (s *etcdStore) Exists(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := s.run(ctx, "exists", key, func(ctx context.Context) error {
		resp, err := s.client.Get(ctx, s.key(key), clientv3.WithCountOnly())
		if err != nil {
			return err
		}
		ok = resp.Count > 0
		return nil
	}, key)
	return ok, err
}

func (s *etcdStore) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	var n int64
	err := s.run(ctx, "incrby", key, func(ctx context.Context) error {
		k := s.key(key)
		var err error
		n, err = optimistic(ctx, func() (int64, error) {
			resp, err := s.client.Get(ctx, k)
			if err != nil {
				return 0, err
			}
			var (
				cur  int64
				rev  int64
				opts []clientv3.OpOption
			)
			if len(resp.Kvs) > 0 {
				kv := resp.Kvs[0]
				cur, err = strconv.ParseInt(string(kv.Value), 10, 64)
				if err != nil {
					return 0, ErrNotInteger
				}
				rev = kv.ModRevision
				if kv.Lease != 0 {
					opts = append(opts, clientv3.WithIgnoreLease())
				}
			}
			next := cur + delta
			ok, err := s.txn(ctx, clientv3.Compare(clientv3.ModRevision(k), "=", rev),
				clientv3.OpPut(k, strconv.FormatInt(next, 10), opts...))
			if err != nil {
				return 0, err
			}
			if !ok {
				return 0, errRevisionConflict
			}
			return next, nil
		})
		return err
	}, key)
	return n, err
}

func (s *etcdStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, ErrInvalidTTL
	}
	var ok bool
	err := s.run(ctx, "expire", key, func(ctx context.Context) error {
		k := s.key(key)
		var err error
		ok, err = optimistic(ctx, func() (bool, error) {
			resp, err := s.client.Get(ctx, k)
			if err != nil {
				return false, err
			}
			if len(resp.Kvs) == 0 {
				return false, nil
			}
			kv := resp.Kvs[0]
			id, err := s.grant(ctx, ttl)
			if err != nil {
				return false, err
			}
			swapped, err := s.txn(ctx, clientv3.Compare(clientv3.ModRevision(k), "=", kv.ModRevision),
				clientv3.OpPut(k, string(kv.Value), clientv3.WithLease(id)))
			if err != nil {
				return false, err
			}
			if !swapped {
				return false, errRevisionConflict
			}
			return true, nil
		})
		return err
	}, key)
	return ok, err
}

// TTL 读取键绑定租约的剩余秒数，未绑定租约的键不过期。
// 租约已到期或剩余不足一秒时按键不存在处理。
func (s *etcdStore) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	var (
		ttl time.Duration
		ok  bool
	)
	err := s.run(ctx, "ttl", key, func(ctx context.Context) error {
		resp, err := s.client.Get(ctx, s.key(key))
		if err != nil || len(resp.Kvs) == 0 {
			return err
		}
		lease := resp.Kvs[0].Lease
		if lease == 0 {
			ok = true
			return nil
		}
		live, err := s.client.TimeToLive(ctx, clientv3.LeaseID(lease))
		if err != nil {
			return fmt.Errorf("lease ttl: %w", err)
		}
		if live.TTL > 0 {
			ttl, ok = time.Duration(live.TTL)*time.Second, true
		}
		return nil
	}, key)
	return ttl, ok, err
}

// =============================================================================
// Sets
// =============================================================================

func (s *etcdStore) memberPrefix(set string) string {
	return s.key(set) + etcdMembersSegment
}

func (s *etcdStore) AddUnique(ctx context.Context, set, member string) (bool, error) {
	var ok bool
	err := s.run(ctx, "sadd", set, func(ctx context.Context) error {
		k := s.memberPrefix(set) + member
		var err error
		ok, err = s.txn(ctx, clientv3.Compare(clientv3.CreateRevision(k), "=", 0), clientv3.OpPut(k, ""))
		return err
	}, set, member)
	return ok, err
}

func (s *etcdStore) RemoveMember(ctx context.Context, set, member string) (bool, error) {
	var ok bool
	err := s.run(ctx, "srem", set, func(ctx context.Context) error {
		resp, err := s.client.Delete(ctx, s.memberPrefix(set)+member)
		if err != nil {
			return err
		}
		ok = resp.Deleted > 0
		return nil
	}, set, member)
	return ok, err
}

func (s *etcdStore) Cardinality(ctx context.Context, set string) (int64, error) {
	var n int64
	err := s.run(ctx, "scard", set, func(ctx context.Context) error {
		resp, err := s.client.Get(ctx, s.memberPrefix(set), clientv3.WithPrefix(), clientv3.WithCountOnly())
		if err != nil {
			return err
		}
		n = resp.Count
		return nil
	}, set)
	return n, err
}

func (s *etcdStore) Members(ctx context.Context, set string) ([]string, error) {
	var members []string
	err := s.run(ctx, "smembers", set, func(ctx context.Context) error {
		prefix := s.memberPrefix(set)
		resp, err := s.client.Get(ctx, prefix, clientv3.WithPrefix(), clientv3.WithKeysOnly())
		if err != nil {
			return err
		}
		members = make([]string, 0, len(resp.Kvs))
		for _, kv := range resp.Kvs {
			members = append(members, strings.TrimPrefix(string(kv.Key), prefix))
		}
		return nil
	}, set)
	return members, err
}

// =============================================================================
// Hashes
// =============================================================================

// ReplaceFields 把字段映射编码为单个 JSON 值，一次 Put 完成清空与重写。
func (s *etcdStore) ReplaceFields(ctx context.Context, key string, fields map[string]string) error {
	return s.run(ctx, "hreplace", key, func(ctx context.Context) error {
		if len(fields) == 0 {
			_, err := s.client.Delete(ctx, s.key(key))
			return err
		}
		data, err := json.Marshal(fields)
		if err != nil {
			return err
		}
		_, err = s.client.Put(ctx, s.key(key), string(data))
		return err
	}, key)
}

func (s *etcdStore) Fields(ctx context.Context, key string) (map[string]string, bool, error) {
	var fields map[string]string
	err := s.run(ctx, "hgetall", key, func(ctx context.Context) error {
		resp, err := s.client.Get(ctx, s.key(key))
		if err != nil || len(resp.Kvs) == 0 {
			return err
		}
		return json.Unmarshal(resp.Kvs[0].Value, &fields)
	}, key)
	if err != nil || len(fields) == 0 {
		return nil, false, err
	}
	return fields, true, nil
}

// =============================================================================
// Broadcaster
// =============================================================================

// Publish etcd 没有发布订阅语义。
func (s *etcdStore) Publish(_ context.Context, channel, _ string) (int64, error) {
	return 0, fmt.Errorf("xstore: publish %q: %w", channel, ErrUnsupported)
}

// AppendScored 以 <key>/scored/<分数编码>/<uuid> 为键追加，键的字典序即分数顺序。
func (s *etcdStore) AppendScored(ctx context.Context, key string, score float64, member string) error {
	return s.run(ctx, "zadd", key, func(ctx context.Context) error {
		k := s.key(key) + etcdScoredSegment + scoreKey(score) + "/" + uuid.NewString()
		_, err := s.client.Put(ctx, k, member)
		return err
	}, key)
}

// scoreKey 把 float64 编码为 16 位十六进制，字典序与数值序一致，覆盖负数与全部量级。
// 正数翻转符号位，负数按位取反。
func scoreKey(score float64) string {
	bits := math.Float64bits(score)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	return fmt.Sprintf("%016x", bits)
}

// =============================================================================
// 生命周期
// =============================================================================

func (s *etcdStore) Ping(ctx context.Context) error {
	return s.ping(ctx, func(ctx context.Context) error {
		_, err := s.client.Get(ctx, s.key(etcdHealthKey), clientv3.WithCountOnly())
		return err
	})
}

func (s *etcdStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if !s.opts.closeClient {
		return nil
	}
	return s.client.Close()
}

package xstore

import (
	"context"
	"time"
)

// KV 单键原子操作。
type KV interface {
	// Get 读取键值，键不存在时 ok 为 false。
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set 写入键值，ttl <= 0 表示不过期。
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetIfAbsent 仅在键不存在时写入，返回是否写入成功。
	SetIfAbsent(ctx context.Context, key, value string) (bool, error)

	// GetAndSet 原子写入新值并返回旧值，键原先不存在时 existed 为 false。
	GetAndSet(ctx context.Context, key, value string) (old string, existed bool, err error)

	// CompareAndSwap 仅在当前值等于 old 时替换为 value。
	CompareAndSwap(ctx context.Context, key, old, value string) (bool, error)

	// CompareAndDelete 仅在当前值等于 value 时删除。
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)

	// Delete 删除键，返回键是否存在。
	Delete(ctx context.Context, key string) (bool, error)

	Exists(ctx context.Context, key string) (bool, error)

	// Increment 原子加 delta 并返回新值，键不存在时从 0 开始。
	Increment(ctx context.Context, key string, delta int64) (int64, error)

	// Expire 为已存在的键设置过期时间，键不存在时返回 false。
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// TTL 返回键的剩余存活时间，键不存在时 ok 为 false，ttl 为 0 表示不过期。
	TTL(ctx context.Context, key string) (ttl time.Duration, ok bool, err error)
}

// Sets 集合操作，成员唯一。
type Sets interface {
	// AddUnique 仅在成员不存在时加入，返回是否加入成功。
	AddUnique(ctx context.Context, set, member string) (bool, error)

	// RemoveMember 移除成员，返回成员是否存在。
	RemoveMember(ctx context.Context, set, member string) (bool, error)

	Cardinality(ctx context.Context, set string) (int64, error)

	// Members 返回全部成员，顺序不保证。
	Members(ctx context.Context, set string) ([]string, error)
}

// Hashes 字段映射操作。
type Hashes interface {
	// ReplaceFields 原子地清空 key 下的字段并写入 fields，fields 为空时等价于删除。
	ReplaceFields(ctx context.Context, key string, fields map[string]string) error

	// Fields 读取全部字段，key 不存在时 ok 为 false。
	Fields(ctx context.Context, key string) (fields map[string]string, ok bool, err error)
}

// Broadcaster 日志路由使用的发布与追加操作。
type Broadcaster interface {
	// Publish 向频道广播消息，返回接收方数量。
	Publish(ctx context.Context, channel, message string) (int64, error)

	// AppendScored 以 score 为分数向有序集合追加成员。
	AppendScored(ctx context.Context, key string, score float64, member string) error
}

// Store 组合全部能力，由各后端实现。
type Store interface {
	KV
	Sets
	Hashes
	Broadcaster

	// Ping 健康检查，超时由 WithHealthTimeout 控制。
	Ping(ctx context.Context) error

	// Stats 返回操作计数快照。
	Stats() Stats

	// Close 释放底层客户端，可重复调用。
	Close() error
}

// Package xstore 定义远端键值存储的原子操作契约，并提供 Redis、etcd 两种后端。
//
// 租约锁、ID 分配器、记录协调器、缓存等上层组件只依赖这里的窄接口：
//
//   - [KV]：单键字符串操作，包括 setIfAbsent、getAndSet、compare-and-swap/delete
//   - [Sets]：集合成员操作（addUnique / removeMember / cardinality）
//   - [Hashes]：字段映射的原子整体替换
//   - [Broadcaster]：发布与按分数追加，仅日志路由使用
//
// 所有方法的竞争结果（键已存在、成员已存在）以 bool 返回，不是错误；
// 传输错误包装操作名和键后原样上抛，组件内部不做重试。
//
// # 后端
//
//	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
//	store, err := xstore.NewRedis(rdb, xstore.WithKeyPrefix("xkv:"))
//
//	cli, _ := clientv3.New(clientv3.Config{Endpoints: []string{"127.0.0.1:2379"}})
//	store, err := xstore.NewEtcd(cli)
//
// etcd 后端不支持 Publish（返回 [ErrUnsupported]），字段映射以单个 JSON 值存储。
//
// # 熔断
//
// [WithBreaker] 为任意 Store 增加 gobreaker 熔断，熔断打开时快速失败并返回 [ErrCircuitOpen]。
package xstore

// Package storage 提供键值存储抽象及其上的适配器。
//
// 子包列表：
//   - xstore: 存储能力接口，Redis 与 etcd 后端，熔断包装
//   - xrecord: 以字段映射保存的记录，自动分配 ID
//   - xcache: 缓存适配器，可叠加 ristretto 本地层
//   - xcounter: 原子计数器
//   - xsession: 会话数据存储
package storage

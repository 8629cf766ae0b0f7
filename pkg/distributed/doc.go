// Package distributed 提供基于 xstore 的分布式协调原语。
//
// 子包列表：
//   - xdlock: 租约互斥锁，到期租约可被安全接管
//   - xalloc: 集合内唯一整数 ID 分配
package distributed

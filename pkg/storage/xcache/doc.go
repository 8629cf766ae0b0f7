// Package xcache 提供基于 xstore 的缓存适配器。
//
// Cache 在 [xstore.KV] 之上提供 Get/Set/Add/Delete/Expire 与读穿透的 Remember，
// Remember 使用 singleflight 合并同一进程内对同一键的并发回源。
//
// 通过 [WithLocal] 可叠加 ristretto 进程内缓存层，读取优先命中本地，
// 写入与删除同步失效本地副本。从存储回填本地层时，存活时间不超过存储侧剩余 TTL。
// 本地层写入是异步的，测试中可调用 [Cache.Wait]。
package xcache

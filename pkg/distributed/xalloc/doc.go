// Package xalloc 在集合上分配不冲突的整数 ID。
//
// 分配以集合基数作为起始猜测，用 AddUnique 提交；
// 候选已被占用时加一重试，直到提交成功。存储错误立即返回。
// 重试次数不设上限，竞争只会延长循环而不会变成失败。
//
// 释放的 ID 会被重新分配，分配结果只保证在存活成员中唯一，不保证单调递增。
//
//	a, _ := xalloc.New(store, "users")
//	id, err := a.Allocate(ctx)
package xalloc

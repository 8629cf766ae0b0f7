// Package xdlock 提供基于租约的分布式互斥锁，只依赖存储的单键原子操作。
//
// # 存储格式
//
// 每把锁对应一个键（默认前缀 "mutex:"），值为 "<到期纳秒时间戳>:<随机令牌>"。
// 键存在即表示有人持有或刚持有锁；持有者崩溃后租约到期，其他进程可以接管。
//
// # 获取流程
//
//  1. SetIfAbsent 写入候选值，成功即获得锁。
//  2. 否则读取现值，未到期返回 false。
//  3. 已到期时用 GetAndSet 换入候选值，并与第 2 步读到的值比较：
//     一致则接管成功；不一致说明其他进程先完成了接管，本次返回 false，
//     并用 CompareAndSwap 把被换出的胜者值写回。
//
// 令牌使每次获取可区分，接管判定与解锁判定都是精确比较，不依赖时间戳精度。
//
// # 续期
//
// 锁不会自动续期，临界区超过租约时长时调用 [Mutex.Extend]。
// Extend 或 Unlock 发现锁已被接管时触发 Hooks.OnLost 并记录 Warn 日志。
//
// # 时钟
//
// 正确性要求 leaseDuration 大于进程间最大时钟偏差与操作延迟之和。
//
// # 使用
//
//	m, err := xdlock.New(store, "orders", xdlock.WithLeaseDuration(5*time.Second))
//	if err != nil {
//	    return err
//	}
//	err = m.Do(ctx, func(ctx context.Context) error {
//	    return process(ctx)
//	})
package xdlock

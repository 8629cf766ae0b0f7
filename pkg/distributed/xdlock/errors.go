package xdlock

import "errors"

// 预定义错误，使用 errors.Is 匹配。
// 锁被占用不是错误，TryLock 返回 false。
var (
	// ErrEmptyKey 锁名为空或仅含空白。
	ErrEmptyKey = errors.New("xdlock: key must not be empty")

	// ErrNilStore 存储为 nil。
	ErrNilStore = errors.New("xdlock: store is nil")

	// ErrLockTimeout Lock 在 context 结束前未能获得锁。
	// 返回的错误同时包装 ctx.Err()。
	ErrLockTimeout = errors.New("xdlock: timed out waiting for lock")

	// ErrLockLost 持有的租约已到期并被其他进程接管。
	// 此时临界区曾在无保护状态下运行，调用方必须处理。
	ErrLockLost = errors.New("xdlock: lock lost to another holder")

	// ErrNotHeld 当前句柄未持有锁。
	ErrNotHeld = errors.New("xdlock: lock not held")

	// ErrVetoed Before 钩子拒绝了本次操作，同时包装钩子返回的错误。
	ErrVetoed = errors.New("xdlock: operation vetoed by hook")
)

package xstore

import (
	"context"
	"errors"
)

// 配置错误。
var (
	// ErrNilClient 表示传入的客户端为 nil。
	ErrNilClient = errors.New("xstore: nil client")

	// ErrNilStore 表示传入的 Store 为 nil。
	ErrNilStore = errors.New("xstore: nil store")

	// ErrInvalidConfig 表示配置无效。
	ErrInvalidConfig = errors.New("xstore: invalid config")
)

// 操作错误。
var (
	// ErrEmptyKey 表示键、集合名或成员为空。
	ErrEmptyKey = errors.New("xstore: empty key")

	// ErrInvalidTTL 表示 Expire 的 ttl 非正。
	ErrInvalidTTL = errors.New("xstore: ttl must be positive")

	// ErrNotInteger 表示 Increment 的目标值不是整数。
	ErrNotInteger = errors.New("xstore: value is not an integer")

	// ErrUnsupported 表示当前后端不支持该操作。
	ErrUnsupported = errors.New("xstore: operation not supported by backend")

	// ErrClosed 表示 Store 已关闭。
	ErrClosed = errors.New("xstore: store closed")

	// ErrCircuitOpen 表示熔断器打开，请求被拒绝。
	ErrCircuitOpen = errors.New("xstore: circuit open")
)

// IsLogical 判断 err 是否为调用方引起的逻辑错误。
// 逻辑错误不代表后端故障，熔断器不计为失败。
func IsLogical(err error) bool {
	return errors.Is(err, ErrEmptyKey) ||
		errors.Is(err, ErrInvalidTTL) ||
		errors.Is(err, ErrNotInteger) ||
		errors.Is(err, ErrUnsupported) ||
		errors.Is(err, context.Canceled)
}

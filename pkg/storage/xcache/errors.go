package xcache

import "errors"

var (
	// ErrNilStore 表示传入的 Store 为 nil。
	ErrNilStore = errors.New("xcache: nil store")

	// ErrEmptyKey 表示缓存键为空。
	ErrEmptyKey = errors.New("xcache: empty key")

	// ErrNilLoader 表示 Remember 的回源函数为 nil。
	ErrNilLoader = errors.New("xcache: nil loader")

	// ErrLoadPanic 表示回源函数发生 panic。
	ErrLoadPanic = errors.New("xcache: loader panicked")
)

package xalloc

import "errors"

var (
	// ErrEmptyCollection 集合名为空或仅含空白。
	ErrEmptyCollection = errors.New("xalloc: collection name must not be empty")

	// ErrNilStore 存储为 nil。
	ErrNilStore = errors.New("xalloc: store is nil")

	// ErrNegativeID 认领或释放的 ID 为负数。
	ErrNegativeID = errors.New("xalloc: id must not be negative")
)

package xrecord

import "errors"

var (
	// ErrNotFound 记录不存在。
	ErrNotFound = errors.New("xrecord: record not found")

	// ErrDuplicateID 预设 ID 已被其他记录占用。
	ErrDuplicateID = errors.New("xrecord: id already taken")

	// ErrNotSaved 记录尚未保存，无法删除。
	ErrNotSaved = errors.New("xrecord: record has not been saved")

	// ErrNilRecord 记录为 nil。
	ErrNilRecord = errors.New("xrecord: record is nil")

	// ErrNilStore 存储为 nil。
	ErrNilStore = errors.New("xrecord: store is nil")

	// ErrEmptyName 集合名为空。
	ErrEmptyName = errors.New("xrecord: collection name must not be empty")

	// ErrVetoed Before 钩子拒绝了本次操作，同时包装钩子返回的错误。
	ErrVetoed = errors.New("xrecord: operation vetoed by hook")
)

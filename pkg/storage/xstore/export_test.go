package xstore

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
)

// NewMiniRedisForTest 向外部测试包暴露 newMiniRedis。
func NewMiniRedisForTest(t *testing.T, opts ...Option) (Store, *miniredis.Miniredis) {
	t.Helper()
	return newMiniRedis(t, opts...)
}

// Package xstoretest 提供与后端无关的 xstore.Store 一致性测试套件。
//
// 每个后端在自己的测试中调用 [Run]：
//
//	func TestRedisConformance(t *testing.T) {
//		xstoretest.Run(t, xstoretest.Harness{
//			New: func(t *testing.T) xstore.Store { ... },
//		})
//	}
package xstoretest

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/omeyang/xkv/pkg/storage/xstore"
)

// Harness 描述被测后端。
type Harness struct {
	// New 为每个子测试创建独立的 Store，清理由实现方通过 t.Cleanup 注册。
	New func(t *testing.T) xstore.Store

	// Advance 推进后端时钟，nil 时跳过依赖过期的用例。
	Advance func(t *testing.T, d time.Duration)

	// SupportsPublish 后端是否支持 Publish。
	SupportsPublish bool
}

// Run 执行全部一致性用例。
func Run(t *testing.T, h Harness) {
	t.Helper()
	require.NotNil(t, h.New, "Harness.New is required")

	cases := []struct {
		name string
		fn   func(t *testing.T, h Harness)
	}{
		{"GetMissing", testGetMissing},
		{"SetIfAbsent", testSetIfAbsent},
		{"GetAndSet", testGetAndSet},
		{"CompareAndSwap", testCompareAndSwap},
		{"CompareAndDelete", testCompareAndDelete},
		{"DeleteExists", testDeleteExists},
		{"Increment", testIncrement},
		{"Expire", testExpire},
		{"SetWithTTL", testSetWithTTL},
		{"TTL", testTTL},
		{"Sets", testSets},
		{"ReplaceFields", testReplaceFields},
		{"Broadcast", testBroadcast},
		{"EmptyKey", testEmptyKey},
		{"ConcurrentSetIfAbsent", testConcurrentSetIfAbsent},
		{"ConcurrentAddUnique", testConcurrentAddUnique},
		{"PingStatsClose", testPingStatsClose},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			c.fn(t, h)
		})
	}
}

func testGetMissing(t *testing.T, h Harness) {
	s := h.New(t)
	v, ok, err := s.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, v)
}

func testSetIfAbsent(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	ok, err := s.SetIfAbsent(ctx, "k", "v1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SetIfAbsent(ctx, "k", "v2")
	require.NoError(t, err)
	assert.False(t, ok)

	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v1", v)
}

func testGetAndSet(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	old, existed, err := s.GetAndSet(ctx, "k", "a")
	require.NoError(t, err)
	assert.False(t, existed)
	assert.Empty(t, old)

	old, existed, err = s.GetAndSet(ctx, "k", "b")
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, "a", old)

	v, _, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "b", v)
}

func testCompareAndSwap(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	ok, err := s.CompareAndSwap(ctx, "k", "a", "b")
	require.NoError(t, err)
	assert.False(t, ok, "absent key never matches")

	require.NoError(t, s.Set(ctx, "k", "a", 0))
	ok, err = s.CompareAndSwap(ctx, "k", "x", "b")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.CompareAndSwap(ctx, "k", "a", "b")
	require.NoError(t, err)
	assert.True(t, ok)

	v, _, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "b", v)
}

func testCompareAndDelete(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "mine", 0))

	ok, err := s.CompareAndDelete(ctx, "k", "theirs")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.CompareAndDelete(ctx, "k", "mine")
	require.NoError(t, err)
	assert.True(t, ok)

	exists, err := s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)

	ok, err = s.CompareAndDelete(ctx, "k", "mine")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testDeleteExists(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	ok, err := s.Delete(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", "v", 0))
	exists, err := s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)

	ok, err = s.Delete(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func testIncrement(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	n, err := s.Increment(ctx, "counter", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	n, err = s.Increment(ctx, "counter", -7)
	require.NoError(t, err)
	assert.Equal(t, int64(-2), n)

	require.NoError(t, s.Set(ctx, "text", "abc", 0))
	_, err = s.Increment(ctx, "text", 1)
	assert.ErrorIs(t, err, xstore.ErrNotInteger)

	var g errgroup.Group
	for range 20 {
		g.Go(func() error {
			_, err := s.Increment(ctx, "parallel", 1)
			return err
		})
	}
	require.NoError(t, g.Wait())
	v, _, err := s.Get(ctx, "parallel")
	require.NoError(t, err)
	assert.Equal(t, "20", v)
}

func testExpire(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	ok, err := s.Expire(ctx, "missing", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Expire(ctx, "missing", 0)
	assert.ErrorIs(t, err, xstore.ErrInvalidTTL)

	require.NoError(t, s.Set(ctx, "k", "v", 0))
	ok, err = s.Expire(ctx, "k", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	if h.Advance == nil {
		return
	}
	h.Advance(t, 3*time.Second)
	exists, err := s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)
}

func testSetWithTTL(t *testing.T, h Harness) {
	if h.Advance == nil {
		t.Skip("backend clock cannot be advanced")
	}
	s := h.New(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "short", "v", time.Second))
	require.NoError(t, s.Set(ctx, "forever", "v", 0))
	h.Advance(t, 3*time.Second)

	_, ok, err := s.Get(ctx, "short")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = s.Get(ctx, "forever")
	require.NoError(t, err)
	assert.True(t, ok)
}

func testTTL(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	_, ok, err := s.TTL(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "forever", "v", 0))
	ttl, ok, err := s.TTL(ctx, "forever")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, ttl, "zero means no expiry")

	require.NoError(t, s.Set(ctx, "short", "v", 10*time.Second))
	ttl, ok, err = s.TTL(ctx, "short")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Positive(t, ttl)
	assert.LessOrEqual(t, ttl, 10*time.Second)

	if h.Advance == nil {
		return
	}
	h.Advance(t, 11*time.Second)
	_, ok, err = s.TTL(ctx, "short")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testSets(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	n, err := s.Cardinality(ctx, "ids")
	require.NoError(t, err)
	assert.Zero(t, n)

	for _, m := range []string{"0", "1", "2"} {
		ok, err := s.AddUnique(ctx, "ids", m)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := s.AddUnique(ctx, "ids", "1")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err = s.Cardinality(ctx, "ids")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	ok, err = s.RemoveMember(ctx, "ids", "1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.RemoveMember(ctx, "ids", "1")
	require.NoError(t, err)
	assert.False(t, ok)

	members, err := s.Members(ctx, "ids")
	require.NoError(t, err)
	sort.Strings(members)
	assert.Equal(t, []string{"0", "2"}, members)

	ok, err = s.AddUnique(ctx, "ids", "1")
	require.NoError(t, err)
	assert.True(t, ok, "removed member can be re-added")
}

func testReplaceFields(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	_, ok, err := s.Fields(ctx, "rec:1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.ReplaceFields(ctx, "rec:1", map[string]string{"id": "1", "name": "a", "old": "x"}))
	require.NoError(t, s.ReplaceFields(ctx, "rec:1", map[string]string{"id": "1", "name": "b"}))

	fields, ok, err := s.Fields(ctx, "rec:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, map[string]string{"id": "1", "name": "b"}, fields)

	require.NoError(t, s.ReplaceFields(ctx, "rec:1", nil))
	_, ok, err = s.Fields(ctx, "rec:1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testBroadcast(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	_, err := s.Publish(ctx, "logs", `{"message":"hi"}`)
	if h.SupportsPublish {
		require.NoError(t, err)
	} else {
		assert.ErrorIs(t, err, xstore.ErrUnsupported)
	}

	now := float64(time.Now().UnixNano()) / 1e9
	require.NoError(t, s.AppendScored(ctx, "logs", now, `{"message":"a"}`))
	require.NoError(t, s.AppendScored(ctx, "logs", now+1, `{"message":"b"}`))
}

func testEmptyKey(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	_, _, err := s.Get(ctx, "")
	assert.ErrorIs(t, err, xstore.ErrEmptyKey)
	_, err = s.SetIfAbsent(ctx, "", "v")
	assert.ErrorIs(t, err, xstore.ErrEmptyKey)
	_, err = s.AddUnique(ctx, "set", "")
	assert.ErrorIs(t, err, xstore.ErrEmptyKey)
	_, err = s.Cardinality(ctx, "")
	assert.ErrorIs(t, err, xstore.ErrEmptyKey)
	assert.ErrorIs(t, s.ReplaceFields(ctx, "", map[string]string{"a": "b"}), xstore.ErrEmptyKey)
}

func testConcurrentSetIfAbsent(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	var wins atomic.Int32
	var g errgroup.Group
	for i := range 16 {
		g.Go(func() error {
			ok, err := s.SetIfAbsent(ctx, "race", fmt.Sprintf("v%d", i))
			if ok {
				wins.Add(1)
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), wins.Load())
}

func testConcurrentAddUnique(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	var wins atomic.Int32
	var g errgroup.Group
	for range 16 {
		g.Go(func() error {
			ok, err := s.AddUnique(ctx, "race", "7")
			if ok {
				wins.Add(1)
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), wins.Load())
}

func testPingStatsClose(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	require.NoError(t, s.Ping(ctx))
	_, _, err := s.Get(ctx, "k")
	require.NoError(t, err)

	stats := s.Stats()
	assert.GreaterOrEqual(t, stats.Ops, int64(1))
	assert.GreaterOrEqual(t, stats.Pings, int64(1))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, _, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, xstore.ErrClosed)
}

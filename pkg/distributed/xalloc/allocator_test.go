package xalloc_test

import (
	"context"
	"slices"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/omeyang/xkv/pkg/distributed/xalloc"
	"github.com/omeyang/xkv/pkg/observability/xmetrics"
	"github.com/omeyang/xkv/pkg/storage/xstore"
)

func setupAllocator(t *testing.T, opts ...xalloc.Option) (*xalloc.Allocator, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := xstore.NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	a, err := xalloc.New(s, "users", opts...)
	require.NoError(t, err)
	return a, mr
}

func TestNew_Validation(t *testing.T) {
	_, err := xalloc.New(nil, "users")
	assert.ErrorIs(t, err, xalloc.ErrNilStore)

	a, _ := setupAllocator(t)
	assert.Equal(t, "users", a.Collection())

	mr := miniredis.RunT(t)
	s, err := xstore.NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	for _, name := range []string{"", " \t"} {
		_, err := xalloc.New(s, name)
		assert.ErrorIs(t, err, xalloc.ErrEmptyCollection)
	}
}

func TestAllocator_ThreeConcurrentOnEmpty(t *testing.T) {
	a, _ := setupAllocator(t)

	var (
		mu  sync.Mutex
		ids []int64
		g   errgroup.Group
	)
	for range 3 {
		g.Go(func() error {
			id, err := a.Allocate(context.Background())
			mu.Lock()
			ids = append(ids, id)
			mu.Unlock()
			return err
		})
	}
	require.NoError(t, g.Wait())

	slices.Sort(ids)
	assert.Equal(t, []int64{0, 1, 2}, ids)
}

func TestAllocator_UniqueUnderContention(t *testing.T) {
	a, _ := setupAllocator(t)
	const workers, perWorker = 8, 25

	results := make(chan int64, workers*perWorker)
	var g errgroup.Group
	for range workers {
		g.Go(func() error {
			for range perWorker {
				id, err := a.Allocate(context.Background())
				if err != nil {
					return err
				}
				results <- id
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	close(results)

	seen := make(map[int64]struct{}, workers*perWorker)
	for id := range results {
		_, dup := seen[id]
		require.False(t, dup, "id %d allocated twice", id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, workers*perWorker)

	n, err := a.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(workers*perWorker), n)
}

func TestAllocator_ReuseAfterRelease(t *testing.T) {
	a, _ := setupAllocator(t)
	ctx := context.Background()

	for want := range int64(3) {
		id, err := a.Allocate(ctx)
		require.NoError(t, err)
		require.Equal(t, want, id)
	}

	released, err := a.Release(ctx, 2)
	require.NoError(t, err)
	assert.True(t, released)

	id, err := a.Allocate(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), id, "freed slot is handed out again")

	released, err = a.Release(ctx, 99)
	require.NoError(t, err)
	assert.False(t, released)
}

func TestAllocator_SkipsCollisions(t *testing.T) {
	obs := &attrObserver{}
	a, mr := setupAllocator(t, xalloc.WithObserver(obs))
	ctx := context.Background()

	// 基数 2，但 2、3 已被占用：候选 2 → 3 → 4。
	_, err := mr.SAdd("users", "2", "3")
	require.NoError(t, err)

	id, err := a.Allocate(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), id)
	assert.Equal(t, int64(2), obs.last["retries"])
	assert.Equal(t, int64(4), obs.last["id"])
}

func TestAllocator_Claim(t *testing.T) {
	a, _ := setupAllocator(t)
	ctx := context.Background()

	ok, err := a.Claim(ctx, 42)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.Claim(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = a.Claim(ctx, -1)
	assert.ErrorIs(t, err, xalloc.ErrNegativeID)
	_, err = a.Release(ctx, -1)
	assert.ErrorIs(t, err, xalloc.ErrNegativeID)
}

func TestAllocator_IDs(t *testing.T) {
	a, mr := setupAllocator(t)
	ctx := context.Background()

	_, err := mr.SAdd("users", "0", "7", "not-a-number")
	require.NoError(t, err)

	ids, err := a.IDs(ctx)
	require.NoError(t, err)
	slices.Sort(ids)
	assert.Equal(t, []int64{0, 7}, ids)
}

func TestAllocator_TransportError(t *testing.T) {
	a, mr := setupAllocator(t)
	mr.Close()

	_, err := a.Allocate(context.Background())
	assert.Error(t, err)
}

// attrObserver 记录最近一次 span 结束时的属性。
type attrObserver struct {
	mu   sync.Mutex
	last map[string]any
}

func (o *attrObserver) Start(ctx context.Context, _ xmetrics.SpanOptions) (context.Context, xmetrics.Span) {
	return ctx, attrSpan{o}
}

type attrSpan struct{ o *attrObserver }

func (s attrSpan) End(r xmetrics.Result) {
	s.o.mu.Lock()
	defer s.o.mu.Unlock()
	s.o.last = make(map[string]any, len(r.Attrs))
	for _, a := range r.Attrs {
		s.o.last[a.Key] = a.Value
	}
}

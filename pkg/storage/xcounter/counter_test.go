package xcounter_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/omeyang/xkv/pkg/storage/xcounter"
	"github.com/omeyang/xkv/pkg/storage/xstore"
)

func newStore(t *testing.T) (xstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := xstore.NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestNew_Validation(t *testing.T) {
	store, _ := newStore(t)

	_, err := xcounter.New(nil, "c")
	assert.ErrorIs(t, err, xcounter.ErrNilStore)

	_, err = xcounter.New(store, "  ")
	assert.ErrorIs(t, err, xcounter.ErrEmptyName)
}

func TestCounter_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)
	c, err := xcounter.New(store, "logins")
	require.NoError(t, err)
	assert.Equal(t, "logins", c.Name())

	v, err := c.Value(ctx)
	require.NoError(t, err)
	assert.Zero(t, v)

	v, err = c.Increment(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, err = c.Increment(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(11), v)

	v, err = c.Decrement(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(8), v)

	v, err = c.Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(8), v)

	require.NoError(t, c.Clear(ctx))
	v, err = c.Value(ctx)
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestCounter_Concurrent(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)
	c, err := xcounter.New(store, "hits")
	require.NoError(t, err)

	var g errgroup.Group
	for range 50 {
		g.Go(func() error {
			_, err := c.Increment(ctx, 2)
			return err
		})
	}
	require.NoError(t, g.Wait())

	v, err := c.Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(100), v)
}

func TestCounter_NotInteger(t *testing.T) {
	ctx := context.Background()
	store, mr := newStore(t)
	require.NoError(t, mr.Set("bad", "abc"))

	c, err := xcounter.New(store, "bad")
	require.NoError(t, err)

	_, err = c.Value(ctx)
	assert.ErrorIs(t, err, xstore.ErrNotInteger)

	_, err = c.Increment(ctx, 1)
	assert.ErrorIs(t, err, xstore.ErrNotInteger)
}

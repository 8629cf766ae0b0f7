package xstore

import (
	"context"
	"errors"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/mock/gomock"
)

func newMockEtcd(t *testing.T, opts ...Option) (*etcdStore, *MocketcdClient) {
	t.Helper()
	ctrl := gomock.NewController(t)
	mockClient := NewMocketcdClient(ctrl)
	return newEtcdStore(mockClient, opts...), mockClient
}

func txnResult(succeeded bool) clientv3.OpResponse {
	return (&clientv3.TxnResponse{Succeeded: succeeded}).OpResponse()
}

func getResult1(value string, modRevision int64) *clientv3.GetResponse {
	return &clientv3.GetResponse{
		Kvs:   []*mvccpb.KeyValue{{Value: []byte(value), ModRevision: modRevision}},
		Count: 1,
	}
}

func TestNewEtcd_NilClient(t *testing.T) {
	s, err := NewEtcd(nil)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrNilClient)
}

// =============================================================================
// KV
// =============================================================================

func TestEtcdStore_Get(t *testing.T) {
	s, m := newMockEtcd(t, WithKeyPrefix("p:"))
	ctx := context.Background()

	m.EXPECT().Get(gomock.Any(), "p:k").Return(getResult1("v", 2), nil)
	m.EXPECT().Get(gomock.Any(), "p:missing").Return(&clientv3.GetResponse{}, nil)

	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	_, ok, err = s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEtcdStore_Get_TransportError(t *testing.T) {
	s, m := newMockEtcd(t)
	cause := errors.New("connection refused")

	m.EXPECT().Get(gomock.Any(), "k").Return(nil, cause)

	_, _, err := s.Get(context.Background(), "k")
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, int64(1), s.Stats().Errors)
}

func TestEtcdStore_SetIfAbsent(t *testing.T) {
	tests := []struct {
		name      string
		succeeded bool
	}{
		{"created", true},
		{"exists", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, m := newMockEtcd(t)
			m.EXPECT().Do(gomock.Any(), gomock.Any()).Return(txnResult(tt.succeeded), nil)

			ok, err := s.SetIfAbsent(context.Background(), "k", "v")
			require.NoError(t, err)
			assert.Equal(t, tt.succeeded, ok)
		})
	}
}

func TestEtcdStore_Set_WithTTL(t *testing.T) {
	s, m := newMockEtcd(t)

	gomock.InOrder(
		m.EXPECT().Grant(gomock.Any(), int64(2)).Return(&clientv3.LeaseGrantResponse{ID: 42}, nil),
		m.EXPECT().Put(gomock.Any(), "k", "v", gomock.Any()).Return(&clientv3.PutResponse{}, nil),
	)

	require.NoError(t, s.Set(context.Background(), "k", "v", 1500*time.Millisecond))
}

func TestEtcdStore_Set_GrantError(t *testing.T) {
	s, m := newMockEtcd(t)
	m.EXPECT().Grant(gomock.Any(), int64(1)).Return(nil, errors.New("lease quota exceeded"))

	err := s.Set(context.Background(), "k", "v", 10*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grant lease")
}

func TestEtcdStore_GetAndSet(t *testing.T) {
	s, m := newMockEtcd(t)
	ctx := context.Background()

	m.EXPECT().Put(gomock.Any(), "k", "new", gomock.Any()).
		Return(&clientv3.PutResponse{PrevKv: &mvccpb.KeyValue{Value: []byte("old")}}, nil)
	m.EXPECT().Put(gomock.Any(), "fresh", "new", gomock.Any()).
		Return(&clientv3.PutResponse{}, nil)

	old, existed, err := s.GetAndSet(ctx, "k", "new")
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, "old", old)

	old, existed, err = s.GetAndSet(ctx, "fresh", "new")
	require.NoError(t, err)
	assert.False(t, existed)
	assert.Empty(t, old)
}

func TestEtcdStore_CompareAndDelete(t *testing.T) {
	s, m := newMockEtcd(t)
	m.EXPECT().Do(gomock.Any(), gomock.Any()).Return(txnResult(false), nil)

	ok, err := s.CompareAndDelete(context.Background(), "k", "mine")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEtcdStore_Delete(t *testing.T) {
	s, m := newMockEtcd(t)
	m.EXPECT().Delete(gomock.Any(), "k").Return(&clientv3.DeleteResponse{Deleted: 1}, nil)

	ok, err := s.Delete(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEtcdStore_Increment_RetriesOnConflict(t *testing.T) {
	s, m := newMockEtcd(t)

	gomock.InOrder(
		m.EXPECT().Get(gomock.Any(), "n").Return(getResult1("1", 3), nil),
		m.EXPECT().Do(gomock.Any(), gomock.Any()).Return(txnResult(false), nil),
		m.EXPECT().Get(gomock.Any(), "n").Return(getResult1("2", 4), nil),
		m.EXPECT().Do(gomock.Any(), gomock.Any()).Return(txnResult(true), nil),
	)

	n, err := s.Increment(context.Background(), "n", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestEtcdStore_Increment_NotInteger(t *testing.T) {
	s, m := newMockEtcd(t)
	m.EXPECT().Get(gomock.Any(), "n").Return(getResult1("abc", 3), nil)

	_, err := s.Increment(context.Background(), "n", 1)
	assert.ErrorIs(t, err, ErrNotInteger)
}

func TestEtcdStore_Increment_ContextCanceled(t *testing.T) {
	s, m := newMockEtcd(t)
	ctx, cancel := context.WithCancel(context.Background())

	m.EXPECT().Get(gomock.Any(), "n").Return(getResult1("1", 3), nil).AnyTimes()
	m.EXPECT().Do(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, clientv3.Op) (clientv3.OpResponse, error) {
		cancel()
		return txnResult(false), nil
	}).AnyTimes()

	_, err := s.Increment(ctx, "n", 1)
	require.Error(t, err)
}

func TestEtcdStore_Expire(t *testing.T) {
	s, m := newMockEtcd(t)
	ctx := context.Background()

	m.EXPECT().Get(gomock.Any(), "missing").Return(&clientv3.GetResponse{}, nil)
	ok, err := s.Expire(ctx, "missing", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	gomock.InOrder(
		m.EXPECT().Get(gomock.Any(), "k").Return(getResult1("v", 7), nil),
		m.EXPECT().Grant(gomock.Any(), int64(1)).Return(&clientv3.LeaseGrantResponse{ID: 9}, nil),
		m.EXPECT().Do(gomock.Any(), gomock.Any()).Return(txnResult(true), nil),
	)
	ok, err = s.Expire(ctx, "k", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.Expire(ctx, "k", 0)
	assert.ErrorIs(t, err, ErrInvalidTTL)
}

// =============================================================================
// Sets / Hashes
// =============================================================================

func TestEtcdStore_AddUnique(t *testing.T) {
	s, m := newMockEtcd(t)
	gomock.InOrder(
		m.EXPECT().Do(gomock.Any(), gomock.Any()).Return(txnResult(true), nil),
		m.EXPECT().Do(gomock.Any(), gomock.Any()).Return(txnResult(false), nil),
	)

	ok, err := s.AddUnique(context.Background(), "ids", "1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AddUnique(context.Background(), "ids", "1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEtcdStore_RemoveMember(t *testing.T) {
	s, m := newMockEtcd(t, WithKeyPrefix("p:"))
	m.EXPECT().Delete(gomock.Any(), "p:ids/members/4").Return(&clientv3.DeleteResponse{Deleted: 1}, nil)

	ok, err := s.RemoveMember(context.Background(), "ids", "4")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEtcdStore_Cardinality(t *testing.T) {
	s, m := newMockEtcd(t)
	m.EXPECT().Get(gomock.Any(), "ids/members/", gomock.Any(), gomock.Any()).
		Return(&clientv3.GetResponse{Count: 3}, nil)

	n, err := s.Cardinality(context.Background(), "ids")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestEtcdStore_Members(t *testing.T) {
	s, m := newMockEtcd(t)
	m.EXPECT().Get(gomock.Any(), "ids/members/", gomock.Any(), gomock.Any()).
		Return(&clientv3.GetResponse{Kvs: []*mvccpb.KeyValue{
			{Key: []byte("ids/members/0")},
			{Key: []byte("ids/members/2")},
		}}, nil)

	members, err := s.Members(context.Background(), "ids")
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "2"}, members)
}

func TestEtcdStore_ReplaceFields(t *testing.T) {
	s, m := newMockEtcd(t)
	ctx := context.Background()

	m.EXPECT().Put(gomock.Any(), "rec", `{"id":"1","name":"a"}`).Return(&clientv3.PutResponse{}, nil)
	require.NoError(t, s.ReplaceFields(ctx, "rec", map[string]string{"name": "a", "id": "1"}))

	m.EXPECT().Delete(gomock.Any(), "rec").Return(&clientv3.DeleteResponse{Deleted: 1}, nil)
	require.NoError(t, s.ReplaceFields(ctx, "rec", nil))
}

func TestEtcdStore_Fields(t *testing.T) {
	s, m := newMockEtcd(t)
	ctx := context.Background()

	m.EXPECT().Get(gomock.Any(), "rec").Return(getResult1(`{"id":"1"}`, 5), nil)
	fields, ok, err := s.Fields(ctx, "rec")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, map[string]string{"id": "1"}, fields)

	m.EXPECT().Get(gomock.Any(), "bad").Return(getResult1(`not-json`, 5), nil)
	_, ok, err = s.Fields(ctx, "bad")
	require.Error(t, err)
	assert.False(t, ok)
}

// =============================================================================
// Broadcaster / 生命周期
// =============================================================================

func TestEtcdStore_Publish_Unsupported(t *testing.T) {
	s, _ := newMockEtcd(t)

	_, err := s.Publish(context.Background(), "logs", "msg")
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.True(t, IsLogical(err))
}

func TestEtcdStore_AppendScored(t *testing.T) {
	s, m := newMockEtcd(t)
	m.EXPECT().Put(gomock.Any(), gomock.Any(), "entry").DoAndReturn(
		func(_ context.Context, key, _ string, _ ...clientv3.OpOption) (*clientv3.PutResponse, error) {
			assert.Regexp(t, `^logs/scored/bff8000000000000/[0-9a-f-]{36}$`, key)
			return &clientv3.PutResponse{}, nil
		})

	require.NoError(t, s.AppendScored(context.Background(), "logs", 1.5, "entry"))
}

func TestScoreKey_Ordering(t *testing.T) {
	scores := []float64{math.Inf(-1), -1e300, -5, -1, -0.5, 0, 1e-9, 1.5, 1e6, 1e300, math.Inf(1)}
	keys := make([]string, len(scores))
	for i, score := range scores {
		keys[i] = scoreKey(score)
		assert.Len(t, keys[i], 16)
	}
	assert.True(t, sort.StringsAreSorted(keys), "keys: %v", keys)
}

func TestEtcdStore_TTL(t *testing.T) {
	s, m := newMockEtcd(t)
	ctx := context.Background()

	leased := getResult1("v", 3)
	leased.Kvs[0].Lease = 42

	m.EXPECT().Get(gomock.Any(), "missing").Return(&clientv3.GetResponse{}, nil)
	m.EXPECT().Get(gomock.Any(), "forever").Return(getResult1("v", 2), nil)
	m.EXPECT().Get(gomock.Any(), "short").Return(leased, nil).Times(2)
	gomock.InOrder(
		m.EXPECT().TimeToLive(gomock.Any(), clientv3.LeaseID(42)).
			Return(&clientv3.LeaseTimeToLiveResponse{ID: 42, TTL: 7}, nil),
		m.EXPECT().TimeToLive(gomock.Any(), clientv3.LeaseID(42)).
			Return(&clientv3.LeaseTimeToLiveResponse{ID: 42, TTL: -1}, nil),
	)

	_, ok, err := s.TTL(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	ttl, ok, err := s.TTL(ctx, "forever")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, ttl)

	ttl, ok, err = s.TTL(ctx, "short")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 7*time.Second, ttl)

	_, ok, err = s.TTL(ctx, "short")
	require.NoError(t, err)
	assert.False(t, ok, "expired lease")
}

func TestEtcdStore_Ping(t *testing.T) {
	s, m := newMockEtcd(t)
	m.EXPECT().Get(gomock.Any(), etcdHealthKey, gomock.Any()).Return(&clientv3.GetResponse{}, nil)

	require.NoError(t, s.Ping(context.Background()))
	assert.Equal(t, int64(1), s.Stats().Pings)
}

func TestEtcdStore_Close(t *testing.T) {
	s, m := newMockEtcd(t)
	m.EXPECT().Close().Return(nil).Times(1)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, _, err := s.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Ping(context.Background()), ErrClosed)
}

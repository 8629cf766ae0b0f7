package xstore

import (
	"context"

	clientv3 "go.etcd.io/etcd/client/v3"
)

//go:generate mockgen -source=etcd_interface.go -destination=etcd_mock_test.go -package=xstore

// etcdClient etcd 后端依赖的最小操作集，*clientv3.Client 满足此接口。
// 事务统一经 Do(OpTxn) 发出，便于在测试中注入。
type etcdClient interface {
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
	Put(ctx context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error)
	Delete(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.DeleteResponse, error)
	Do(ctx context.Context, op clientv3.Op) (clientv3.OpResponse, error)
	Grant(ctx context.Context, ttl int64) (*clientv3.LeaseGrantResponse, error)
	TimeToLive(ctx context.Context, id clientv3.LeaseID, opts ...clientv3.LeaseOption) (*clientv3.LeaseTimeToLiveResponse, error)
	Close() error
}

var _ etcdClient = (*clientv3.Client)(nil)

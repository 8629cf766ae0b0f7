package xalloc

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/omeyang/xkv/pkg/observability/xlog"
	"github.com/omeyang/xkv/pkg/observability/xmetrics"
	"github.com/omeyang/xkv/pkg/storage/xstore"
)

// Option 分配器选项。
type Option func(*Allocator)

// WithObserver 设置观测器，nil 忽略。
func WithObserver(observer xmetrics.Observer) Option {
	return func(a *Allocator) {
		if observer != nil {
			a.observer = observer
		}
	}
}

// WithLogger 设置日志记录器，nil 忽略。
func WithLogger(logger xlog.Logger) Option {
	return func(a *Allocator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// Allocator 在单个成员集合上分配 ID，并发安全。
type Allocator struct {
	store      xstore.Sets
	collection string
	observer   xmetrics.Observer
	logger     xlog.Logger
}

// New 创建分配器，collection 同时是成员集合的名称。
func New(store xstore.Sets, collection string, opts ...Option) (*Allocator, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if strings.TrimSpace(collection) == "" {
		return nil, ErrEmptyCollection
	}
	a := &Allocator{
		store:      store,
		collection: collection,
		observer:   xmetrics.NoopObserver{},
		logger:     xlog.Discard(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a, nil
}

// Collection 返回集合名。
func (a *Allocator) Collection() string {
	return a.collection
}

// Allocate 分配一个当前未被占用的 ID 并登记为成员。
func (a *Allocator) Allocate(ctx context.Context) (id int64, err error) {
	ctx, span := xmetrics.Start(ctx, a.observer, xmetrics.SpanOptions{
		Component: "xalloc",
		Operation: "allocate",
		Kind:      xmetrics.KindInternal,
		Attrs:     []xmetrics.Attr{xmetrics.String("collection", a.collection)},
	})
	var retries int64
	defer func() {
		span.End(xmetrics.Result{Err: err, Attrs: []xmetrics.Attr{
			xmetrics.Int64("id", id),
			xmetrics.Int64("retries", retries),
		}})
	}()

	candidate, err := a.store.Cardinality(ctx, a.collection)
	if err != nil {
		return 0, err
	}
	for {
		added, err := a.store.AddUnique(ctx, a.collection, strconv.FormatInt(candidate, 10))
		if err != nil {
			return 0, err
		}
		if added {
			break
		}
		candidate++
		retries++
	}

	if retries > 0 {
		a.logger.Debug(ctx, "id allocated after collisions",
			xlog.Component("xalloc"), xlog.Key(a.collection), xlog.Count(retries))
	}
	return candidate, nil
}

// Claim 登记调用方指定的 ID，已被占用时返回 false。
func (a *Allocator) Claim(ctx context.Context, id int64) (bool, error) {
	if id < 0 {
		return false, fmt.Errorf("%w: %d", ErrNegativeID, id)
	}
	return a.store.AddUnique(ctx, a.collection, strconv.FormatInt(id, 10))
}

// Release 释放 ID，使其可被再次分配。返回 ID 此前是否被占用。
func (a *Allocator) Release(ctx context.Context, id int64) (bool, error) {
	if id < 0 {
		return false, fmt.Errorf("%w: %d", ErrNegativeID, id)
	}
	return a.store.RemoveMember(ctx, a.collection, strconv.FormatInt(id, 10))
}

// Count 返回当前已占用的 ID 数量。
func (a *Allocator) Count(ctx context.Context) (int64, error) {
	return a.store.Cardinality(ctx, a.collection)
}

// IDs 返回全部已占用的 ID，顺序不保证。非数字成员被跳过。
func (a *Allocator) IDs(ctx context.Context) ([]int64, error) {
	members, err := a.store.Members(ctx, a.collection)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

package xrecord

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"strings"

	"github.com/omeyang/xkv/pkg/distributed/xalloc"
	"github.com/omeyang/xkv/pkg/observability/xlog"
	"github.com/omeyang/xkv/pkg/observability/xmetrics"
	"github.com/omeyang/xkv/pkg/storage/xstore"
)

// Store 集合依赖的存储能力。
type Store interface {
	xstore.Sets
	xstore.Hashes
}

// Option 集合选项。
type Option func(*Collection)

// WithHooks 设置保存与删除钩子。
func WithHooks(h Hooks) Option {
	return func(c *Collection) {
		c.hooks = h
	}
}

// WithObserver 设置观测器，nil 忽略。分配器共用同一观测器。
func WithObserver(observer xmetrics.Observer) Option {
	return func(c *Collection) {
		if observer != nil {
			c.observer = observer
		}
	}
}

// WithLogger 设置日志记录器，nil 忽略。
func WithLogger(logger xlog.Logger) Option {
	return func(c *Collection) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Collection 一类记录的协调器，并发安全。
type Collection struct {
	store    Store
	name     string
	alloc    *xalloc.Allocator
	hooks    Hooks
	observer xmetrics.Observer
	logger   xlog.Logger
}

// NewCollection 创建集合协调器。
func NewCollection(store Store, name string, opts ...Option) (*Collection, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyName
	}
	c := &Collection{
		store:    store,
		name:     name,
		observer: xmetrics.NoopObserver{},
		logger:   xlog.Discard(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	alloc, err := xalloc.New(store, name, xalloc.WithObserver(c.observer), xalloc.WithLogger(c.logger))
	if err != nil {
		return nil, err
	}
	c.alloc = alloc
	return c, nil
}

// Name 返回集合名。
func (c *Collection) Name() string {
	return c.name
}

// Key 返回 id 对应的记录键。
func (c *Collection) Key(id int64) string {
	return c.key(id)
}

func (c *Collection) key(id int64) string {
	return c.name + ":" + strconv.FormatInt(id, 10)
}

// New 创建尚未分配 ID 的新记录，fields 被复制。
func (c *Collection) New(fields map[string]string) *Record {
	return &Record{Fields: maps.Clone(fields), isNew: true}
}

// NewWithID 创建预设 ID 的新记录，首次保存时认领该 ID。
func (c *Collection) NewWithID(id int64, fields map[string]string) *Record {
	return &Record{Fields: maps.Clone(fields), id: id, hasID: true, isNew: true}
}

func (c *Collection) span(ctx context.Context, op string) (context.Context, xmetrics.Span) {
	return xmetrics.Start(ctx, c.observer, xmetrics.SpanOptions{
		Component: "xrecord",
		Operation: op,
		Kind:      xmetrics.KindInternal,
		Attrs:     []xmetrics.Attr{xmetrics.String("collection", c.name)},
	})
}

// =============================================================================
// 写入
// =============================================================================

// Save 保存记录。新记录先分配或认领 ID，再整体写入字段。
// 写入失败时释放本次分配或认领的 ID，记录恢复到保存前的状态。
func (c *Collection) Save(ctx context.Context, r *Record) (err error) {
	if r == nil {
		return ErrNilRecord
	}
	if err := c.before(ctx, c.hooks.BeforeSave, r); err != nil {
		return err
	}

	ctx, span := c.span(ctx, "save")
	defer func() { span.End(xmetrics.Result{Err: err}) }()

	claimed, hadID := false, r.hasID
	if r.isNew {
		if err := c.assignID(ctx, r); err != nil {
			return err
		}
		claimed = true
	}

	if err := c.store.ReplaceFields(ctx, c.key(r.id), r.payload()); err != nil {
		if claimed {
			if _, relErr := c.alloc.Release(ctx, r.id); relErr != nil {
				err = errors.Join(err, relErr)
			}
			if !hadID {
				r.id, r.hasID = 0, false
			}
		}
		return err
	}

	r.isNew = false
	c.after(ctx, c.hooks.AfterSave, r, "save")
	return nil
}

func (c *Collection) assignID(ctx context.Context, r *Record) error {
	if !r.hasID {
		id, err := c.alloc.Allocate(ctx)
		if err != nil {
			return err
		}
		r.id, r.hasID = id, true
		return nil
	}

	ok, err := c.alloc.Claim(ctx, r.id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, c.key(r.id))
	}
	return nil
}

// SaveAll 依次保存多条记录，遇到第一个错误即停止。
func (c *Collection) SaveAll(ctx context.Context, records ...*Record) error {
	for i, r := range records {
		if err := c.Save(ctx, r); err != nil {
			return fmt.Errorf("xrecord: save record %d: %w", i, err)
		}
	}
	return nil
}

// Delete 删除记录字段并释放其 ID。删除后记录回到新记录状态，保留原 ID。
func (c *Collection) Delete(ctx context.Context, r *Record) (err error) {
	if r == nil {
		return ErrNilRecord
	}
	if r.isNew || !r.hasID {
		return ErrNotSaved
	}
	if err := c.before(ctx, c.hooks.BeforeDelete, r); err != nil {
		return err
	}

	ctx, span := c.span(ctx, "delete")
	defer func() { span.End(xmetrics.Result{Err: err}) }()

	if err := c.store.ReplaceFields(ctx, c.key(r.id), nil); err != nil {
		return err
	}
	if _, err := c.alloc.Release(ctx, r.id); err != nil {
		return err
	}

	r.isNew = true
	c.after(ctx, c.hooks.AfterDelete, r, "delete")
	return nil
}

// =============================================================================
// 读取
// =============================================================================

// Find 按 ID 读取记录，不存在时返回 [ErrNotFound]。
// BeforeFind 拒绝时返回 [ErrVetoed]，不存在的记录不触发 AfterFind。
func (c *Collection) Find(ctx context.Context, id int64) (*Record, error) {
	if err := c.beforeFind(ctx, id); err != nil {
		return nil, err
	}
	fields, ok, err := c.store.Fields(ctx, c.key(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, c.key(id))
	}
	r := loaded(id, fields)
	c.after(ctx, c.hooks.AfterFind, r, "find")
	return r, nil
}

// FindAll 按 ID 批量读取，跳过不存在的记录，结果顺序与 ids 一致。
func (c *Collection) FindAll(ctx context.Context, ids ...int64) ([]*Record, error) {
	records := make([]*Record, 0, len(ids))
	for _, id := range ids {
		r, err := c.Find(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

// Count 返回已保存记录数。
func (c *Collection) Count(ctx context.Context) (int64, error) {
	return c.alloc.Count(ctx)
}

// IDs 返回全部记录 ID，顺序不保证。
func (c *Collection) IDs(ctx context.Context) ([]int64, error) {
	return c.alloc.IDs(ctx)
}

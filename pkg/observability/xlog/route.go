package xlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrNilSink 表示路由目标为 nil。
var ErrNilSink = errors.New("xlog: nil route sink")

// RouteSink 日志路由目标，xstore.Store 满足此接口。
type RouteSink interface {
	Publish(ctx context.Context, channel, message string) (int64, error)
	AppendScored(ctx context.Context, key string, score float64, member string) error
}

// RouteEntry 路由到存储的单条日志。
type RouteEntry struct {
	Level    string         `json:"level"`
	Category string         `json:"category"`
	Time     float64        `json:"time"`
	Message  string         `json:"message"`
	Attrs    map[string]any `json:"attrs,omitempty"`
}

// KeyCategory 覆盖默认分类的属性 key。
const KeyCategory = "category"

const (
	defaultRouteChannel  = "xkv.log"
	defaultRouteCategory = "application"
)

type routeOptions struct {
	channel  string
	category string
	persist  bool
	level    slog.Leveler
}

// RouteOption 配置路由 handler。
type RouteOption func(*routeOptions)

// WithRouteChannel 设置频道名（持久模式下为有序集合键）。
func WithRouteChannel(name string) RouteOption {
	return func(o *routeOptions) {
		if name != "" {
			o.channel = name
		}
	}
}

// WithRouteCategory 设置默认分类。
func WithRouteCategory(category string) RouteOption {
	return func(o *routeOptions) {
		if category != "" {
			o.category = category
		}
	}
}

// WithRoutePersist true 时按时间分数追加到有序集合，false 时 Publish。
func WithRoutePersist(persist bool) RouteOption {
	return func(o *routeOptions) {
		o.persist = persist
	}
}

// WithRouteLevel 设置最低路由级别，默认 Info。
func WithRouteLevel(level slog.Leveler) RouteOption {
	return func(o *routeOptions) {
		if level != nil {
			o.level = level
		}
	}
}

// RouteHandler 把日志记录序列化为 JSON 并写入 [RouteSink]。
type RouteHandler struct {
	sink   RouteSink
	opts   routeOptions
	attrs  []slog.Attr
	groups []string
}

var _ slog.Handler = (*RouteHandler)(nil)

// NewRouteHandler 创建路由 handler。
func NewRouteHandler(sink RouteSink, opts ...RouteOption) (*RouteHandler, error) {
	if sink == nil {
		return nil, ErrNilSink
	}
	o := routeOptions{
		channel:  defaultRouteChannel,
		category: defaultRouteCategory,
		level:    slog.LevelInfo,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &RouteHandler{sink: sink, opts: o}, nil
}

func (h *RouteHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.level.Level()
}

func (h *RouteHandler) Handle(ctx context.Context, r slog.Record) error {
	entry := RouteEntry{
		Level:    strings.ToLower(r.Level.String()),
		Category: h.opts.category,
		Time:     float64(r.Time.UnixNano()) / 1e9,
		Message:  r.Message,
	}

	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		h.collect(attrs, nil, a)
	}
	prefix := h.groups
	r.Attrs(func(a slog.Attr) bool {
		h.collect(attrs, prefix, a)
		return true
	})
	if c, ok := attrs[KeyCategory].(string); ok && c != "" {
		entry.Category = c
		delete(attrs, KeyCategory)
	}
	if len(attrs) > 0 {
		entry.Attrs = attrs
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("xlog: marshal route entry: %w", err)
	}

	if h.opts.persist {
		return h.sink.AppendScored(ctx, h.opts.channel, entry.Time, string(payload))
	}
	_, err = h.sink.Publish(ctx, h.opts.channel, string(payload))
	return err
}

func (h *RouteHandler) collect(dst map[string]any, groups []string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		sub := groups
		if a.Key != "" {
			sub = append(append([]string(nil), groups...), a.Key)
		}
		for _, ga := range a.Value.Group() {
			h.collect(dst, sub, ga)
		}
		return
	}
	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}
	v := a.Value.Any()
	if err, ok := v.(error); ok {
		v = err.Error()
	}
	dst[key] = v
}

func (h *RouteHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, a := range attrs {
		if len(h.groups) > 0 {
			a = slog.Group(strings.Join(h.groups, "."), a)
		}
		clone.attrs = append(clone.attrs, a)
	}
	return &clone
}

func (h *RouteHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

// Fanout 把记录分发给多个 handler，各 handler 的错误合并返回。
func Fanout(handlers ...slog.Handler) slog.Handler {
	return fanout(handlers)
}

type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

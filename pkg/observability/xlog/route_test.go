package xlog_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xkv/pkg/observability/xlog"
)

type scored struct {
	key    string
	score  float64
	member string
}

type recordingSink struct {
	mu        sync.Mutex
	published map[string][]string
	appended  []scored
	err       error
}

func newRecordingSink() *recordingSink {
	return &recordingSink{published: make(map[string][]string)}
}

func (s *recordingSink) Publish(_ context.Context, channel, message string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.published[channel] = append(s.published[channel], message)
	return 1, nil
}

func (s *recordingSink) AppendScored(_ context.Context, key string, score float64, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.appended = append(s.appended, scored{key: key, score: score, member: member})
	return nil
}

func decodeEntry(t *testing.T, raw string) xlog.RouteEntry {
	t.Helper()
	var e xlog.RouteEntry
	require.NoError(t, json.Unmarshal([]byte(raw), &e))
	return e
}

func TestNewRouteHandler_NilSink(t *testing.T) {
	_, err := xlog.NewRouteHandler(nil)
	assert.ErrorIs(t, err, xlog.ErrNilSink)
}

func TestRouteHandler_Publish(t *testing.T) {
	sink := newRecordingSink()
	h, err := xlog.NewRouteHandler(sink, xlog.WithRouteChannel("logs"))
	require.NoError(t, err)

	logger := slog.New(h)
	logger.Debug("dropped")
	logger.With("node", "n1").WithGroup("req").Info("lock acquired", "key", "mutex:a", xlog.KeyCategory, "ignored-in-group")
	logger.Warn("lease lost", xlog.KeyCategory, "xdlock", "error", errors.New("gone"))

	require.Len(t, sink.published["logs"], 2)

	first := decodeEntry(t, sink.published["logs"][0])
	assert.Equal(t, "info", first.Level)
	assert.Equal(t, "application", first.Category)
	assert.Equal(t, "lock acquired", first.Message)
	assert.Equal(t, "n1", first.Attrs["node"])
	assert.Equal(t, "mutex:a", first.Attrs["req.key"])
	assert.Positive(t, first.Time)

	second := decodeEntry(t, sink.published["logs"][1])
	assert.Equal(t, "warn", second.Level)
	assert.Equal(t, "xdlock", second.Category)
	assert.Equal(t, "gone", second.Attrs["error"])
	assert.NotContains(t, second.Attrs, xlog.KeyCategory)
}

func TestRouteHandler_Persist(t *testing.T) {
	sink := newRecordingSink()
	h, err := xlog.NewRouteHandler(sink,
		xlog.WithRoutePersist(true),
		xlog.WithRouteCategory("audit"),
		xlog.WithRouteLevel(slog.LevelDebug),
	)
	require.NoError(t, err)

	slog.New(h).Debug("saved")

	require.Len(t, sink.appended, 1)
	got := sink.appended[0]
	assert.Equal(t, "xkv.log", got.key)
	entry := decodeEntry(t, got.member)
	assert.Equal(t, "audit", entry.Category)
	assert.InDelta(t, entry.Time, got.score, 1e-6)
}

func TestRouteHandler_SinkError(t *testing.T) {
	sink := newRecordingSink()
	sink.err = errors.New("store down")
	h, err := xlog.NewRouteHandler(sink)
	require.NoError(t, err)

	var got error
	logger, _, err := xlog.New().
		SetOutput(&bytes.Buffer{}).
		SetHandlerWrapper(func(base slog.Handler) slog.Handler { return xlog.Fanout(base, h) }).
		SetOnError(func(err error) { got = err }).
		Build()
	require.NoError(t, err)

	logger.Info(context.Background(), "routed")
	assert.ErrorContains(t, got, "store down")
}

func TestFanout_Levels(t *testing.T) {
	var buf bytes.Buffer
	sink := newRecordingSink()
	route, err := xlog.NewRouteHandler(sink, xlog.WithRouteLevel(slog.LevelError))
	require.NoError(t, err)

	text := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(xlog.Fanout(text, route)).With("svc", "xkv").WithGroup("g")

	logger.Info("only text")
	logger.Error("both")

	assert.Contains(t, buf.String(), "only text")
	assert.Contains(t, buf.String(), "both")
	require.Len(t, sink.published["xkv.log"], 1)
	entry := decodeEntry(t, sink.published["xkv.log"][0])
	assert.Equal(t, "both", entry.Message)
	assert.Equal(t, "xkv", entry.Attrs["svc"])
}

// Package xsession 提供基于 xstore 的会话数据存储。
//
// 会话数据以 prefix + id + suffix 为键整体存取，每次写入刷新过期时间。
package xsession

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/omeyang/xkv/pkg/storage/xstore"
)

const (
	// DefaultKeyPrefix 会话键默认前缀。
	DefaultKeyPrefix = "xkv.session."

	// DefaultTimeout 会话默认过期时间。
	DefaultTimeout = 24 * time.Minute
)

var (
	// ErrNilStore 表示传入的 Store 为 nil。
	ErrNilStore = errors.New("xsession: nil store")

	// ErrEmptyID 表示会话 ID 为空。
	ErrEmptyID = errors.New("xsession: empty session id")
)

// Config 会话存储配置。
type Config struct {
	KeyPrefix string        `koanf:"key_prefix" json:"key_prefix" yaml:"key_prefix"`
	KeySuffix string        `koanf:"key_suffix" json:"key_suffix" yaml:"key_suffix"`
	Timeout   time.Duration `koanf:"timeout" json:"timeout" yaml:"timeout"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() Config {
	return Config{KeyPrefix: DefaultKeyPrefix, Timeout: DefaultTimeout}
}

// Option 会话存储选项。
type Option func(*Store)

// WithKeyPrefix 设置键前缀。
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithKeySuffix 设置键后缀。
func WithKeySuffix(suffix string) Option {
	return func(s *Store) {
		s.suffix = suffix
	}
}

// WithTimeout 设置会话过期时间，<= 0 忽略。
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// Store 会话存储，并发安全。
type Store struct {
	kv      xstore.KV
	prefix  string
	suffix  string
	timeout time.Duration
}

// New 创建会话存储。
func New(kv xstore.KV, opts ...Option) (*Store, error) {
	if kv == nil {
		return nil, ErrNilStore
	}
	s := &Store{kv: kv, prefix: DefaultKeyPrefix, timeout: DefaultTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// FromConfig 按配置创建会话存储，opts 在配置之后应用。
// KeyPrefix 为空时保留 [DefaultKeyPrefix]，需要空前缀时传入 WithKeyPrefix("")。
func FromConfig(kv xstore.KV, cfg Config, opts ...Option) (*Store, error) {
	base := []Option{WithKeySuffix(cfg.KeySuffix), WithTimeout(cfg.Timeout)}
	if cfg.KeyPrefix != "" {
		base = append(base, WithKeyPrefix(cfg.KeyPrefix))
	}
	return New(kv, append(base, opts...)...)
}

// Key 返回会话 ID 对应的存储键。
func (s *Store) Key(id string) string {
	return s.prefix + id + s.suffix
}

// Timeout 返回会话过期时间。
func (s *Store) Timeout() time.Duration {
	return s.timeout
}

// Read 读取会话数据，会话不存在或已过期时返回空串。
func (s *Store) Read(ctx context.Context, id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", ErrEmptyID
	}
	data, _, err := s.kv.Get(ctx, s.Key(id))
	return data, err
}

// Write 写入会话数据并重置过期时间。
func (s *Store) Write(ctx context.Context, id, data string) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptyID
	}
	return s.kv.Set(ctx, s.Key(id), data, s.timeout)
}

// Destroy 删除会话，会话不存在时不报错。
func (s *Store) Destroy(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptyID
	}
	_, err := s.kv.Delete(ctx, s.Key(id))
	return err
}

package xconf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeSection struct {
	Backend   string        `koanf:"backend"`
	KeyPrefix string        `koanf:"key_prefix"`
	Timeout   time.Duration `koanf:"timeout"`
	Endpoints []string      `koanf:"endpoints"`
}

const yamlConfig = `
store:
  backend: etcd
  timeout: 3s
  endpoints:
    - 127.0.0.1:2379
    - 127.0.0.1:22379
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNew_YAMLWithDefaults(t *testing.T) {
	path := writeFile(t, "xkv.yaml", yamlConfig)

	cfg, err := New(path, WithDefaults(map[string]any{
		"store.backend":    "redis",
		"store.key_prefix": "xkv:",
	}))
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Path())
	assert.Equal(t, FormatYAML, cfg.Format())

	var sc storeSection
	require.NoError(t, cfg.Unmarshal("store", &sc))
	assert.Equal(t, "etcd", sc.Backend)
	assert.Equal(t, "xkv:", sc.KeyPrefix)
	assert.Equal(t, 3*time.Second, sc.Timeout)
	assert.Equal(t, []string{"127.0.0.1:2379", "127.0.0.1:22379"}, sc.Endpoints)
	assert.Equal(t, "etcd", cfg.Client().String("store.backend"))
}

func TestNew_Errors(t *testing.T) {
	_, err := New("")
	assert.ErrorIs(t, err, ErrEmptyPath)

	_, err = New("config.toml")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = New(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrLoadFailed)

	bad := writeFile(t, "bad.json", "{not json")
	_, err = New(bad)
	assert.ErrorIs(t, err, ErrParseFailed)
}

func TestNewFromBytes(t *testing.T) {
	cfg, err := NewFromBytes([]byte(`{"store":{"backend":"redis","timeout":"250ms"}}`), FormatJSON)
	require.NoError(t, err)
	assert.Empty(t, cfg.Path())

	var sc storeSection
	require.NoError(t, cfg.Unmarshal("store", &sc))
	assert.Equal(t, "redis", sc.Backend)
	assert.Equal(t, 250*time.Millisecond, sc.Timeout)
	assert.ErrorIs(t, cfg.Reload(), ErrNotReloadable)

	_, err = NewFromBytes(nil, Format("ini"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	empty, err := NewFromBytes(nil, FormatYAML, WithDefaults(map[string]any{"store.backend": "redis"}))
	require.NoError(t, err)
	assert.Equal(t, "redis", empty.Client().String("store.backend"))
}

func TestConfig_Reload(t *testing.T) {
	path := writeFile(t, "xkv.yml", "store:\n  backend: redis\n")
	cfg, err := New(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("store:\n  backend: etcd\n"), 0o600))
	require.NoError(t, cfg.Reload())
	assert.Equal(t, "etcd", cfg.Client().String("store.backend"))
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "xkv.yaml", yamlConfig)

	sc, err := Load[storeSection](path, "store")
	require.NoError(t, err)
	assert.Equal(t, "etcd", sc.Backend)

	_, err = Load[storeSection]("", "store")
	assert.ErrorIs(t, err, ErrEmptyPath)
}

func TestOptions_IgnoreEmpty(t *testing.T) {
	o := applyOptions([]Option{WithDelim(""), WithTag(""), nil})
	assert.Equal(t, ".", o.Delim)
	assert.Equal(t, "koanf", o.Tag)

	o = applyOptions([]Option{WithDelim("/"), WithTag("json")})
	assert.Equal(t, "/", o.Delim)
	assert.Equal(t, "json", o.Tag)
}

// Package xconf 基于 koanf 加载 YAML/JSON 配置。
//
// 只做加载与反序列化，配置结构体由使用方定义，字段使用 koanf 标签：
//
//	type StoreConfig struct {
//		Backend string `koanf:"backend"`
//	}
//
//	cfg, err := xconf.New("xkv.yaml", xconf.WithDefaults(map[string]any{"store.backend": "redis"}))
//	var sc StoreConfig
//	err = cfg.Unmarshal("store", &sc)
package xconf

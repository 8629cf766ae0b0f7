package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xkv/pkg/config/xconf"
	"github.com/omeyang/xkv/pkg/distributed/xdlock"
	"github.com/omeyang/xkv/pkg/observability/xlog"
	"github.com/omeyang/xkv/pkg/observability/xmetrics"
	"github.com/omeyang/xkv/pkg/storage/xstore"
)

// 环境变量。
const (
	envConfig  = "XKV_CONFIG"
	envBackend = "XKV_BACKEND"
	envAddr    = "XKV_ADDR"
)

// appConfig 配置文件结构。
//
//	store:
//	  backend: redis
//	  redis:
//	    addrs: ["127.0.0.1:6379"]
//	mutex:
//	  lease_duration: 30s
//	log:
//	  level: info
//	  route:
//	    enabled: true
//	    channel: xkv.log
type appConfig struct {
	Store   xstore.Config `koanf:"store"`
	Mutex   xdlock.Config `koanf:"mutex"`
	Log     logConfig     `koanf:"log"`
	Metrics metricsConfig `koanf:"metrics"`
}

type logConfig struct {
	Level  string      `koanf:"level"`
	Format string      `koanf:"format"`
	File   string      `koanf:"file"`
	Route  routeConfig `koanf:"route"`
}

// routeConfig 把 CLI 日志同时路由到存储，便于集中查看。
type routeConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Channel  string `koanf:"channel"`
	Category string `koanf:"category"`
	Persist  bool   `koanf:"persist"`
}

type metricsConfig struct {
	// Enabled 使用 OpenTelemetry 全局 provider 记录 span 与指标。
	Enabled bool `koanf:"enabled"`
}

func defaultAppConfig() appConfig {
	return appConfig{
		Store: xstore.DefaultConfig(),
		Mutex: xdlock.DefaultConfig(),
		Log:   logConfig{Level: "warn", Format: "text"},
	}
}

// loadConfig 在默认值之上依次叠加配置文件与命令行参数。
func loadConfig(cmd *cli.Command) (appConfig, error) {
	cfg := defaultAppConfig()

	if path := cmd.String("config"); path != "" {
		c, err := xconf.New(path)
		if err != nil {
			return cfg, fmt.Errorf("load config %s: %w", path, err)
		}
		if err := c.Unmarshal("", &cfg); err != nil {
			return cfg, err
		}
	}

	if cmd.IsSet("backend") {
		cfg.Store.Backend = cmd.String("backend")
	}
	if addrs := cmd.StringSlice("addr"); len(addrs) > 0 {
		if strings.EqualFold(cfg.Store.Backend, xstore.BackendEtcd) {
			cfg.Store.Etcd.Endpoints = addrs
		} else {
			cfg.Store.Redis.Addrs = addrs
		}
	}
	if cmd.IsSet("prefix") {
		cfg.Store.KeyPrefix = cmd.String("prefix")
	}
	if cmd.IsSet("log-level") {
		cfg.Log.Level = cmd.String("log-level")
	}

	if err := cfg.Store.Validate(); err != nil {
		return cfg, &usageError{msg: err.Error()}
	}
	return cfg, nil
}

// env 一次命令执行所需的组件。
type env struct {
	cfg      appConfig
	store    xstore.Store
	logger   xlog.Logger
	observer xmetrics.Observer
	out      io.Writer
	cleanup  func() error
}

// setup 加载配置、构建日志并打开存储，调用方负责 close。
func setup(ctx context.Context, cmd *cli.Command) (*env, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger, cleanup, err := buildLogger(cfg.Log, nil)
	if err != nil {
		return nil, &usageError{msg: err.Error()}
	}

	observer := xmetrics.Observer(xmetrics.NoopObserver{})
	if cfg.Metrics.Enabled {
		if observer, err = xmetrics.NewOTelObserver(xmetrics.WithInstrumentationName("xkvctl")); err != nil {
			return nil, errors.Join(err, cleanup())
		}
	}

	store, err := xstore.Open(ctx, cfg.Store, xstore.WithLogger(logger), xstore.WithObserver(observer))
	if err != nil {
		return nil, errors.Join(err, cleanup())
	}

	e := &env{
		cfg:      cfg,
		store:    store,
		logger:   logger,
		observer: observer,
		out:      cmd.Root().Writer,
		cleanup:  cleanup,
	}
	if e.out == nil {
		e.out = os.Stdout
	}

	if cfg.Log.Route.Enabled {
		routed, routedCleanup, err := buildLogger(cfg.Log, store)
		if err != nil {
			return nil, errors.Join(err, e.close())
		}
		e.logger = routed
		e.cleanup = func() error { return errors.Join(routedCleanup(), cleanup()) }
	}
	return e, nil
}

func (e *env) close() error {
	return errors.Join(e.store.Close(), e.cleanup())
}

// buildLogger 构建日志记录器，sink 非 nil 时同时路由到存储。
func buildLogger(cfg logConfig, sink xlog.RouteSink) (xlog.Logger, func() error, error) {
	b := xlog.New().
		SetLevelString(cfg.Level).
		SetFormat(cfg.Format)
	if cfg.File != "" {
		b.SetRotation(cfg.File)
	}

	if sink != nil {
		route, err := xlog.NewRouteHandler(sink,
			xlog.WithRouteChannel(cfg.Route.Channel),
			xlog.WithRouteCategory(cfg.Route.Category),
			xlog.WithRoutePersist(cfg.Route.Persist),
		)
		if err != nil {
			return nil, nil, err
		}
		b.SetHandlerWrapper(func(h slog.Handler) slog.Handler {
			return xlog.Fanout(h, route)
		})
	}

	logger, cleanup, err := b.Build()
	if err != nil {
		return nil, nil, err
	}
	return logger, cleanup, nil
}

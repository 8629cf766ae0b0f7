package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xkv/pkg/distributed/xalloc"
	"github.com/omeyang/xkv/pkg/distributed/xdlock"
	"github.com/omeyang/xkv/pkg/storage/xrecord"
)

// withEnv 为命令准备超时 context 与组件，执行后释放。
func withEnv(fn func(ctx context.Context, cmd *cli.Command, e *env) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) (err error) {
		ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
		defer cancel()

		e, err := setup(ctx, cmd)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := e.close(); closeErr != nil && err == nil {
				err = closeErr
			}
		}()
		return fn(ctx, cmd, e)
	}
}

func requireArgs(cmd *cli.Command, n int) ([]string, error) {
	args := cmd.Args().Slice()
	if len(args) < n {
		return nil, usageErrorf("%s 需要参数: %s", cmd.Name, cmd.ArgsUsage)
	}
	return args, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 0 {
		return 0, usageErrorf("无效 ID: %q", s)
	}
	return id, nil
}

// =============================================================================
// 锁
// =============================================================================

func createLockCommand() *cli.Command {
	return &cli.Command{
		Name:      "lock",
		Usage:     "获取锁并输出租约值，租约到期前需 unlock 或 extend",
		ArgsUsage: "<name>",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "wait",
				Aliases: []string{"w"},
				Usage:   "等待锁的最长时间，0 表示只尝试一次",
			},
			&cli.DurationFlag{
				Name:  "lease",
				Usage: "租约时长，覆盖配置",
			},
		},
		Action: withEnv(cmdLock),
	}
}

func cmdLock(ctx context.Context, cmd *cli.Command, e *env) error {
	args, err := requireArgs(cmd, 1)
	if err != nil {
		return err
	}
	m, err := e.mutex(args[0], xdlock.WithLeaseDuration(cmd.Duration("lease")))
	if err != nil {
		return err
	}

	acquired := false
	if wait := cmd.Duration("wait"); wait > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, wait)
		defer cancel()
		err = m.Lock(waitCtx)
		acquired = err == nil
		if errors.Is(err, xdlock.ErrLockTimeout) {
			err = nil
		}
	} else {
		acquired, err = m.TryLock(ctx)
	}
	if err != nil {
		return err
	}
	if !acquired {
		fmt.Fprintf(os.Stderr, "锁 %s 被其他持有者占用\n", m.Key())
		return &exitError{code: exitContended}
	}

	fmt.Fprintln(e.out, m.Lease())
	return nil
}

func createUnlockCommand() *cli.Command {
	return &cli.Command{
		Name:      "unlock",
		Usage:     "以 lock 输出的租约值释放锁",
		ArgsUsage: "<name>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "lease",
				Usage:    "lock 命令输出的租约值",
				Required: true,
			},
		},
		Action: withEnv(cmdUnlock),
	}
}

func cmdUnlock(ctx context.Context, cmd *cli.Command, e *env) error {
	args, err := requireArgs(cmd, 1)
	if err != nil {
		return err
	}
	m, err := e.mutex(args[0], xdlock.WithLease(cmd.String("lease")))
	if err != nil {
		return err
	}

	released, err := m.Unlock(ctx)
	if err != nil {
		return err
	}
	if !released {
		fmt.Fprintf(os.Stderr, "锁 %s 的租约已丢失\n", m.Key())
		return &exitError{code: exitContended}
	}
	fmt.Fprintln(e.out, "released")
	return nil
}

func createExtendCommand() *cli.Command {
	return &cli.Command{
		Name:      "extend",
		Usage:     "续期锁并输出新的租约值",
		ArgsUsage: "<name>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "lease",
				Usage:    "当前租约值",
				Required: true,
			},
		},
		Action: withEnv(cmdExtend),
	}
}

func cmdExtend(ctx context.Context, cmd *cli.Command, e *env) error {
	args, err := requireArgs(cmd, 1)
	if err != nil {
		return err
	}
	m, err := e.mutex(args[0], xdlock.WithLease(cmd.String("lease")))
	if err != nil {
		return err
	}

	if err := m.Extend(ctx); err != nil {
		if errors.Is(err, xdlock.ErrLockLost) {
			fmt.Fprintf(os.Stderr, "锁 %s 的租约已丢失\n", m.Key())
			return &exitError{code: exitContended}
		}
		return err
	}
	fmt.Fprintln(e.out, m.Lease())
	return nil
}

func (e *env) mutex(name string, opts ...xdlock.Option) (*xdlock.Mutex, error) {
	base := []xdlock.Option{xdlock.WithLogger(e.logger), xdlock.WithObserver(e.observer)}
	m, err := xdlock.FromConfig(e.store, name, e.cfg.Mutex, append(base, opts...)...)
	if errors.Is(err, xdlock.ErrEmptyKey) {
		return nil, usageErrorf("锁名不能为空")
	}
	return m, err
}

// =============================================================================
// ID 分配
// =============================================================================

func createAllocCommand() *cli.Command {
	return &cli.Command{
		Name:      "alloc",
		Usage:     "在集合中分配唯一 ID，或以 --release 释放",
		ArgsUsage: "<collection>",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:  "release",
				Usage: "释放指定 ID",
				Value: -1,
			},
		},
		Action: withEnv(cmdAlloc),
	}
}

func cmdAlloc(ctx context.Context, cmd *cli.Command, e *env) error {
	args, err := requireArgs(cmd, 1)
	if err != nil {
		return err
	}
	a, err := xalloc.New(e.store, args[0], xalloc.WithLogger(e.logger), xalloc.WithObserver(e.observer))
	if errors.Is(err, xalloc.ErrEmptyCollection) {
		return usageErrorf("集合名不能为空")
	}
	if err != nil {
		return err
	}

	if cmd.IsSet("release") {
		released, err := a.Release(ctx, cmd.Int64("release"))
		if err != nil {
			return err
		}
		fmt.Fprintln(e.out, released)
		return nil
	}

	id, err := a.Allocate(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, id)
	return nil
}

// =============================================================================
// 记录
// =============================================================================

func createRecordCommand() *cli.Command {
	return &cli.Command{
		Name:  "record",
		Usage: "读取、保存或删除记录",
		Commands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "读取记录并以 JSON 输出",
				ArgsUsage: "<name> <id>",
				Action:    withEnv(cmdRecordGet),
			},
			{
				Name:      "put",
				Usage:     "保存记录并输出 ID；指定 --id 时更新或按该 ID 创建",
				ArgsUsage: "<name> <field=value>...",
				Flags: []cli.Flag{
					&cli.Int64Flag{
						Name:  "id",
						Usage: "记录 ID",
					},
				},
				Action: withEnv(cmdRecordPut),
			},
			{
				Name:      "delete",
				Usage:     "删除记录并释放其 ID",
				ArgsUsage: "<name> <id>",
				Action:    withEnv(cmdRecordDelete),
			},
		},
	}
}

func (e *env) collection(name string) (*xrecord.Collection, error) {
	c, err := xrecord.NewCollection(e.store, name, xrecord.WithLogger(e.logger), xrecord.WithObserver(e.observer))
	if errors.Is(err, xrecord.ErrEmptyName) {
		return nil, usageErrorf("记录名不能为空")
	}
	return c, err
}

func cmdRecordGet(ctx context.Context, cmd *cli.Command, e *env) error {
	args, err := requireArgs(cmd, 2)
	if err != nil {
		return err
	}
	id, err := parseID(args[1])
	if err != nil {
		return err
	}
	c, err := e.collection(args[0])
	if err != nil {
		return err
	}

	r, err := c.Find(ctx, id)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return enc.Encode(r.Fields)
}

func cmdRecordPut(ctx context.Context, cmd *cli.Command, e *env) error {
	args, err := requireArgs(cmd, 2)
	if err != nil {
		return err
	}
	fields, err := parseFields(args[1:])
	if err != nil {
		return err
	}
	c, err := e.collection(args[0])
	if err != nil {
		return err
	}

	var r *xrecord.Record
	if cmd.IsSet("id") {
		id := cmd.Int64("id")
		if id < 0 {
			return usageErrorf("无效 ID: %d", id)
		}
		r, err = c.Find(ctx, id)
		switch {
		case errors.Is(err, xrecord.ErrNotFound):
			r = c.NewWithID(id, fields)
		case err != nil:
			return err
		default:
			for k, v := range fields {
				r.Set(k, v)
			}
		}
	} else {
		r = c.New(fields)
	}

	if err := c.Save(ctx, r); err != nil {
		return err
	}
	id, _ := r.ID()
	fmt.Fprintln(e.out, id)
	return nil
}

func cmdRecordDelete(ctx context.Context, cmd *cli.Command, e *env) error {
	args, err := requireArgs(cmd, 2)
	if err != nil {
		return err
	}
	id, err := parseID(args[1])
	if err != nil {
		return err
	}
	c, err := e.collection(args[0])
	if err != nil {
		return err
	}

	r, err := c.Find(ctx, id)
	if err != nil {
		return err
	}
	if err := c.Delete(ctx, r); err != nil {
		return err
	}
	fmt.Fprintln(e.out, "deleted")
	return nil
}

// parseFields 解析 field=value 参数，值可以为空，主键字段由集合维护。
func parseFields(pairs []string) (map[string]string, error) {
	fields := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, usageErrorf("字段格式应为 field=value: %q", p)
		}
		if k == xrecord.PrimaryKeyField {
			return nil, usageErrorf("字段 %q 由集合维护，请使用 --id", k)
		}
		fields[k] = v
	}
	return fields, nil
}

// =============================================================================
// 健康检查
// =============================================================================

func createHealthCommand() *cli.Command {
	return &cli.Command{
		Name:   "health",
		Usage:  "检查存储连通性",
		Action: withEnv(cmdHealth),
	}
}

func cmdHealth(ctx context.Context, _ *cli.Command, e *env) error {
	if err := e.store.Ping(ctx); err != nil {
		return err
	}
	s := e.store.Stats()
	fmt.Fprintf(e.out, "ok backend=%s pings=%d ping_errors=%d\n",
		e.cfg.Store.Backend, s.Pings, s.PingErrors)
	return nil
}

// xkvctl 是 xkv 协调原语的命令行工具。
//
// 用法:
//
//	xkvctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-c, --config    配置文件路径（YAML/JSON）
//	    --backend   存储后端：redis 或 etcd
//	    --addr      Redis 地址或 etcd endpoint，可重复
//	    --prefix    所有键的前缀
//	-t, --timeout   命令超时时间 (默认: 10s)
//	    --log-level 日志级别 (默认: warn)
//
// 命令:
//
//	lock <name>                 获取锁并输出租约值
//	unlock <name> --lease <v>   以租约值释放锁
//	extend <name> --lease <v>   续期锁并输出新租约值
//	alloc <collection>          分配一个唯一 ID
//	record get <name> <id>      读取记录，以 JSON 输出字段
//	record put <name> k=v ...   保存记录，输出 ID
//	record delete <name> <id>   删除记录
//	health                      健康检查并输出操作计数
//
// 退出码:
//
//	0: 成功
//	1: 执行失败
//	2: 参数错误
//	3: 锁未获得或未释放（被他人持有或租约已丢失）
//
// 示例:
//
//	xkvctl --addr 127.0.0.1:6379 lock deploy --wait 30s
//	xkvctl unlock deploy --lease "1767225600000000000:1b4e..."
//	xkvctl -c xkv.yaml record put users name=alice role=admin
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
)

const defaultTimeout = 10 * time.Second

// 版本信息，通过 -ldflags "-X main.Version=..." 注入。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// 退出码。
const (
	exitOK        = 0
	exitFailure   = 1
	exitUsage     = 2
	exitContended = 3
)

func main() {
	os.Exit(run(os.Args))
}

func createApp() *cli.Command {
	return &cli.Command{
		Name:    "xkvctl",
		Usage:   "xkv 分布式锁、ID 分配与记录的命令行工具",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "配置文件路径（YAML/JSON）",
				Sources: cli.EnvVars(envConfig),
			},
			&cli.StringFlag{
				Name:    "backend",
				Usage:   "存储后端：redis 或 etcd",
				Sources: cli.EnvVars(envBackend),
			},
			&cli.StringSliceFlag{
				Name:    "addr",
				Usage:   "Redis 地址或 etcd endpoint，可重复指定",
				Sources: cli.EnvVars(envAddr),
			},
			&cli.StringFlag{
				Name:  "prefix",
				Usage: "所有键的前缀",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "命令超时时间",
				Value:   defaultTimeout,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "日志级别 (debug/info/warn/error)",
			},
		},
		Commands: []*cli.Command{
			createLockCommand(),
			createUnlockCommand(),
			createExtendCommand(),
			createAllocCommand(),
			createRecordCommand(),
			createHealthCommand(),
		},
		// 由 run 统一映射退出码，禁止框架直接 os.Exit。
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return exitCode(createApp().Run(ctx, args))
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	var usageErr *usageError
	if errors.As(err, &usageErr) {
		fmt.Fprintf(os.Stderr, "参数错误: %v\n", usageErr)
		return exitUsage
	}
	fmt.Fprintf(os.Stderr, "错误: %v\n", err)
	return exitFailure
}

// exitError 命令已完成输出，仅需设置非零退出码。
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// usageError 参数错误。
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usageErrorf(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

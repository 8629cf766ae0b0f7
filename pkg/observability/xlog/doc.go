// Package xlog 提供基于 log/slog 的结构化日志。
//
// 所有日志方法强制传入 context.Context，属性只接受 slog.Attr。
// 组件库默认使用 [Discard]，调用方通过各组件的 WithLogger 选项注入实际 Logger。
//
// # 构建
//
//	logger, cleanup, err := xlog.New().
//		SetLevelString("debug").
//		SetFormat("json").
//		SetRotation("/var/log/xkv/app.log", xlog.RotateMaxSizeMB(100)).
//		Build()
//	defer cleanup()
//
// # 日志路由
//
// [NewRouteHandler] 把日志记录转发到键值存储：
// 广播模式使用 Publish，持久模式以记录时间为分数追加到有序集合。
// 它实现 slog.Handler，可通过 [Builder.SetHandlerWrapper] 与文件输出组合。
package xlog

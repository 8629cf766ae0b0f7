// Package xmetrics 提供统一的可观测性接口（metrics + tracing）。
//
// 存储原语、租约锁、ID 分配器等组件只依赖 Observer/Span/Attr 接口，
// 默认使用 NoopObserver；需要观测时注入 NewOTelObserver 返回的实现。
//
// # 使用示例
//
//	obs, _ := xmetrics.NewOTelObserver()
//	ctx, span := xmetrics.Start(ctx, obs, xmetrics.SpanOptions{
//		Component: "xdlock",
//		Operation: "try_lock",
//		Kind:      xmetrics.KindClient,
//	})
//	defer span.End(xmetrics.Result{Err: err})
//
// # 指标命名
//
//   - xkv.operation.total
//   - xkv.operation.duration
//
// 统一属性：component / operation / status。
package xmetrics

package xlog

import (
	"context"
	"log/slog"
)

// Logger 日志接口
//
// 方法签名只接受 slog.Attr，避免隐式 key-value 转换。
type Logger interface {
	Debug(ctx context.Context, msg string, attrs ...slog.Attr)
	Info(ctx context.Context, msg string, attrs ...slog.Attr)
	Warn(ctx context.Context, msg string, attrs ...slog.Attr)
	Error(ctx context.Context, msg string, attrs ...slog.Attr)

	// With 返回带额外属性的派生 Logger，派生 logger 共享父级的级别。
	With(attrs ...slog.Attr) Logger
}

// Leveler 级别控制接口，与 Logger 分离。
type Leveler interface {
	SetLevel(level Level)
	GetLevel() Level
	Enabled(ctx context.Context, level Level) bool
}

// LoggerWithLevel 组合接口：Logger + Leveler，Build() 返回此接口。
type LoggerWithLevel interface {
	Logger
	Leveler
}

// Discard 返回丢弃所有输出的 Logger。
func Discard() Logger {
	return discardLogger{}
}

type discardLogger struct{}

func (discardLogger) Debug(context.Context, string, ...slog.Attr) {}
func (discardLogger) Info(context.Context, string, ...slog.Attr) {}
func (discardLogger) Warn(context.Context, string, ...slog.Attr) {}
func (discardLogger) Error(context.Context, string, ...slog.Attr) {}
func (d discardLogger) With(...slog.Attr) Logger { return d }

// OrDiscard 在 l 为 nil 时返回 [Discard]。
func OrDiscard(l Logger) Logger {
	if l == nil {
		return Discard()
	}
	return l
}

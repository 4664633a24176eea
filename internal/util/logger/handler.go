package logger

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

var (
	globalOutput   io.Writer
	globalOutputMu sync.RWMutex
)

// dynamicWriter 在每次写入时查找 globalOutput，
// 这样 handler 创建后修改输出目标也能生效
type dynamicWriter struct{}

func (w *dynamicWriter) Write(p []byte) (n int, err error) {
	globalOutputMu.RLock()
	output := globalOutput
	globalOutputMu.RUnlock()
	return output.Write(p)
}

// componentHandler 按 component 属性选择级别的 slog.Handler
//
// pkg/lib/log 的 LazyLogger 通过 With("component", name) 附加组件名，
// WithAttrs 在看到该属性时切换为该组件配置的级别。
type componentHandler struct {
	cfg   *Config
	level slog.Level
	inner slog.Handler
}

// newComponentHandler 创建根 Handler
func newComponentHandler(cfg *Config) slog.Handler {
	opts := &slog.HandlerOptions{
		// 级别过滤由 componentHandler 完成
		Level:     slog.LevelDebug,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "ts"
			}
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok {
					a.Value = slog.StringValue(levelToString(lvl))
				}
			}
			return a
		},
	}

	output := &dynamicWriter{}

	var inner slog.Handler
	if cfg.Format == FormatJSON {
		inner = slog.NewJSONHandler(output, opts)
	} else {
		inner = slog.NewTextHandler(output, opts)
	}

	return &componentHandler{
		cfg:   cfg,
		level: cfg.DefaultLevel,
		inner: inner,
	}
}

// Enabled 检查是否启用指定级别
func (h *componentHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle 处理日志记录
func (h *componentHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.inner.Handle(ctx, r)
}

// WithAttrs 添加属性
func (h *componentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	level := h.level
	for _, a := range attrs {
		if a.Key == "component" {
			level = h.cfg.LevelForSubsystem(a.Value.String())
		}
	}
	return &componentHandler{
		cfg:   h.cfg,
		level: level,
		inner: h.inner.WithAttrs(attrs),
	}
}

// WithGroup 添加组
func (h *componentHandler) WithGroup(name string) slog.Handler {
	return &componentHandler{
		cfg:   h.cfg,
		level: h.level,
		inner: h.inner.WithGroup(name),
	}
}

// levelToString 将日志级别转换为小写字符串
func levelToString(level slog.Level) string {
	switch level {
	case slog.LevelDebug:
		return "debug"
	case slog.LevelInfo:
		return "info"
	case slog.LevelWarn:
		return "warn"
	case slog.LevelError:
		return "error"
	default:
		return "info"
	}
}

// discardHandler 丢弃所有日志的 Handler（用于测试）
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// DiscardHandler 返回一个丢弃所有日志的 Handler
func DiscardHandler() slog.Handler {
	return discardHandler{}
}

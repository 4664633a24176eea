// Package logger 提供 overlay 进程级日志安装
//
// 组件通过 pkg/lib/log 获取 LazyLogger；进程入口调用 Install
// 把按组件分级的 handler 安装为 slog 默认 handler：
//
//	logger.Install(os.Stderr, logger.ConfigFromEnv())
//
//	# tracker 组件 debug，其余 info
//	OVERLAY_LOG_LEVEL=tracker=debug,info
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Install 安装全局 handler
//
// cfg 为 nil 时使用环境变量配置。
func Install(w io.Writer, cfg *Config) *slog.Logger {
	if cfg == nil {
		cfg = ConfigFromEnv()
	}
	SetOutput(w)
	l := slog.New(newComponentHandler(cfg))
	slog.SetDefault(l)
	return l
}

// SetOutput 设置全局日志输出目标
//
// 已安装的 handler 通过 dynamicWriter 写入，切换后立即生效。
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	globalOutputMu.Lock()
	globalOutput = w
	globalOutputMu.Unlock()
}

// Discard 返回一个丢弃所有日志的 Logger
//
// 主要用于测试，避免日志输出干扰测试结果。
func Discard() *slog.Logger {
	return slog.New(DiscardHandler())
}

// Package logger 提供统一的日志配置
//
// 支持通过环境变量配置日志级别：
//   - OVERLAY_LOG_LEVEL: 设置日志级别，支持按组件配置
//     格式: 组件=级别,组件=级别,默认级别
//     示例: tracker=debug,propagation=warn,info
//   - OVERLAY_LOG_FORMAT: 日志格式 (text 或 json)
//   - OVERLAY_LOG_ADD_SOURCE: 是否输出源码位置 (true 或 false)
package logger

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// LogFormat 日志输出格式
type LogFormat int

const (
	// FormatText 文本格式（默认）
	FormatText LogFormat = iota
	// FormatJSON JSON 格式
	FormatJSON
)

// Config 日志配置
type Config struct {
	// DefaultLevel 默认日志级别
	DefaultLevel slog.Level

	// SubsystemLevels 各组件的日志级别
	SubsystemLevels map[string]slog.Level

	// Format 输出格式
	Format LogFormat

	// AddSource 是否添加源码位置
	AddSource bool
}

// LevelForSubsystem 获取指定组件的日志级别
func (c *Config) LevelForSubsystem(subsystem string) slog.Level {
	if level, ok := c.SubsystemLevels[subsystem]; ok {
		return level
	}
	return c.DefaultLevel
}

var (
	configCache *Config
	configOnce  sync.Once
)

// ConfigFromEnv 从环境变量解析配置（结果缓存）
func ConfigFromEnv() *Config {
	configOnce.Do(func() {
		configCache = parseConfig()
	})
	return configCache
}

// parseConfig 解析环境变量配置
func parseConfig() *Config {
	cfg := &Config{
		DefaultLevel:    slog.LevelInfo,
		SubsystemLevels: make(map[string]slog.Level),
		Format:          FormatText,
	}

	if levelStr := os.Getenv("OVERLAY_LOG_LEVEL"); levelStr != "" {
		ParseLevelSpec(cfg, levelStr)
	}

	if formatStr := os.Getenv("OVERLAY_LOG_FORMAT"); formatStr != "" {
		cfg.Format = ParseFormat(formatStr)
	}

	if addSourceStr := os.Getenv("OVERLAY_LOG_ADD_SOURCE"); addSourceStr != "" {
		cfg.AddSource = addSourceStr != "false" && addSourceStr != "0"
	}

	return cfg
}

// ParseFormat 解析日志格式名称，未知格式回退为文本
func ParseFormat(name string) LogFormat {
	if strings.EqualFold(strings.TrimSpace(name), "json") {
		return FormatJSON
	}
	return FormatText
}

// ParseLevelSpec 解析日志级别配置字符串并写入 cfg
//
// 格式: component=level,component=level,defaultLevel
// 示例: tracker=debug,transport=warn,info
func ParseLevelSpec(cfg *Config, levelStr string) {
	if cfg.SubsystemLevels == nil {
		cfg.SubsystemLevels = make(map[string]slog.Level)
	}
	for _, part := range strings.Split(levelStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if name, levelName, ok := strings.Cut(part, "="); ok {
			if level, ok := parseLevel(strings.TrimSpace(levelName)); ok {
				cfg.SubsystemLevels[strings.TrimSpace(name)] = level
			}
			continue
		}

		if level, ok := parseLevel(part); ok {
			cfg.DefaultLevel = level
		}
	}
}

// parseLevel 解析日志级别名称
func parseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// ResetConfig 重置配置缓存（仅用于测试）
func ResetConfig() {
	configOnce = sync.Once{}
	configCache = nil
}

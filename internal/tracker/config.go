package tracker

import (
	"time"

	"github.com/dep2p/go-overlay/config"
	"github.com/dep2p/go-overlay/internal/tracker/overlay"
)

// Config tracker 配置
type Config struct {
	// MaxNeighborsPerNode 目标度数 D
	MaxNeighborsPerNode int

	// MaxSwapAttempts 单次计算的边交换上限
	MaxSwapAttempts int

	// Sender 指令下发配置
	Sender SenderConfig
}

// SenderConfig 指令下发配置
type SenderConfig struct {
	DebounceWait time.Duration
	MaxWait      time.Duration
	SendTimeout  time.Duration

	// RateLimit 每秒发送上限，0 表示不限
	RateLimit float64
	RateBurst int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		MaxNeighborsPerNode: overlay.DefaultMaxNeighborsPerNode,
		MaxSwapAttempts:     overlay.DefaultMaxSwapAttempts,
		Sender:              DefaultSenderConfig(),
	}
}

// DefaultSenderConfig 返回默认下发配置
func DefaultSenderConfig() SenderConfig {
	return SenderConfig{
		DebounceWait: 100 * time.Millisecond,
		MaxWait:      2 * time.Second,
		SendTimeout:  10 * time.Second,
	}
}

// ConfigFromUnified 从顶层配置创建 tracker 配置
func ConfigFromUnified(cfg *config.TrackerConfig) Config {
	if cfg == nil {
		return DefaultConfig()
	}
	return Config{
		MaxNeighborsPerNode: cfg.Topology.MaxNeighborsPerNode,
		MaxSwapAttempts:     cfg.Topology.MaxSwapAttempts,
		Sender: SenderConfig{
			DebounceWait: cfg.Instructions.DebounceWait.Duration(),
			MaxWait:      cfg.Instructions.MaxWait.Duration(),
			SendTimeout:  cfg.Instructions.SendTimeout.Duration(),
			RateLimit:    cfg.Instructions.RateLimit,
			RateBurst:    cfg.Instructions.RateBurst,
		},
	}
}

package config

import (
	"fmt"
	"time"
)

// InstructionSenderConfig tracker 侧指令下发配置
type InstructionSenderConfig struct {
	// DebounceWait 静默期：该时长内没有新指令即发送
	// 默认: 100ms
	DebounceWait Duration `json:"debounce_wait"`

	// MaxWait 从第一条缓冲指令起的最长等待
	// 默认: 2s
	MaxWait Duration `json:"max_wait"`

	// SendTimeout 单条指令发送超时
	// 默认: 10s
	SendTimeout Duration `json:"send_timeout"`

	// RateLimit 每秒最多发送的指令数，0 表示不限
	// 默认: 0
	RateLimit float64 `json:"rate_limit"`

	// RateBurst 令牌桶容量，RateLimit > 0 时生效
	// 默认: 100
	RateBurst int `json:"rate_burst"`
}

// DefaultInstructionSenderConfig 返回默认指令下发配置
func DefaultInstructionSenderConfig() InstructionSenderConfig {
	return InstructionSenderConfig{
		DebounceWait: Duration(100 * time.Millisecond),
		MaxWait:      Duration(2 * time.Second),
		SendTimeout:  Duration(10 * time.Second),
		RateLimit:    0,
		RateBurst:    100,
	}
}

// Validate 验证指令下发配置
func (c *InstructionSenderConfig) Validate() error {
	if c.DebounceWait <= 0 {
		return fmt.Errorf("%w: instructions: debounce_wait must be > 0", ErrInvalidConfig)
	}
	if c.MaxWait < c.DebounceWait {
		return fmt.Errorf("%w: instructions: max_wait must be >= debounce_wait", ErrInvalidConfig)
	}
	if c.SendTimeout <= 0 {
		return fmt.Errorf("%w: instructions: send_timeout must be > 0", ErrInvalidConfig)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%w: instructions: rate_limit must be >= 0", ErrInvalidConfig)
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		return fmt.Errorf("%w: instructions: rate_burst must be >= 1", ErrInvalidConfig)
	}
	return nil
}

// InstructionRetryConfig 节点侧指令重试配置
type InstructionRetryConfig struct {
	// RetryInterval 重新应用最后一条指令的间隔
	// 默认: 3m
	RetryInterval Duration `json:"retry_interval"`

	// FullStatusEvery 每第 N 次自动重试强制推送完整状态
	// 默认: 10
	FullStatusEvery int `json:"full_status_every"`
}

// DefaultInstructionRetryConfig 返回默认指令重试配置
func DefaultInstructionRetryConfig() InstructionRetryConfig {
	return InstructionRetryConfig{
		RetryInterval:   Duration(3 * time.Minute),
		FullStatusEvery: 10,
	}
}

// Validate 验证指令重试配置
func (c *InstructionRetryConfig) Validate() error {
	if c.RetryInterval <= 0 {
		return fmt.Errorf("%w: instructions: retry_interval must be > 0", ErrInvalidConfig)
	}
	if c.FullStatusEvery < 1 {
		return fmt.Errorf("%w: instructions: full_status_every must be >= 1", ErrInvalidConfig)
	}
	return nil
}

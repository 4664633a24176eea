package config

import (
	"fmt"
	"time"
)

// WebSocketConfig websocket 传输配置
type WebSocketConfig struct {
	// ReadBufferSize 读缓冲区大小
	ReadBufferSize int `json:"read_buffer_size,omitempty"`

	// WriteBufferSize 写缓冲区大小
	WriteBufferSize int `json:"write_buffer_size,omitempty"`

	// HandshakeTimeout 握手超时
	HandshakeTimeout Duration `json:"handshake_timeout"`

	// EnableCompression 是否启用 permessage-deflate
	EnableCompression bool `json:"enable_compression,omitempty"`

	// WriteTimeout 单帧写超时（调用方 context 没有截止时间时使用）
	WriteTimeout Duration `json:"write_timeout"`

	// PingInterval ping 间隔，同时用于测量 RTT
	PingInterval Duration `json:"ping_interval"`

	// MaxMessageSize 单帧最大字节数
	MaxMessageSize int64 `json:"max_message_size"`
}

// DefaultWebSocketConfig 返回默认 websocket 配置
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		ReadBufferSize:    4096,                       // 读缓冲区：4 KB
		WriteBufferSize:   4096,                       // 写缓冲区：4 KB
		HandshakeTimeout:  Duration(10 * time.Second), // 握手超时：10 秒
		EnableCompression: false,
		WriteTimeout:      Duration(10 * time.Second),
		PingInterval:      Duration(5 * time.Second),
		MaxMessageSize:    1 << 20, // 1 MB
	}
}

// Validate 验证 websocket 配置
func (c *WebSocketConfig) Validate() error {
	if c.ReadBufferSize < 0 || c.WriteBufferSize < 0 {
		return fmt.Errorf("%w: websocket: buffer sizes must be >= 0", ErrInvalidConfig)
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("%w: websocket: handshake_timeout must be > 0", ErrInvalidConfig)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("%w: websocket: write_timeout must be > 0", ErrInvalidConfig)
	}
	if c.PingInterval < 0 {
		return fmt.Errorf("%w: websocket: ping_interval must be >= 0", ErrInvalidConfig)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("%w: websocket: max_message_size must be > 0", ErrInvalidConfig)
	}
	return nil
}

package config

import (
	"fmt"
	"time"
)

// ConnectionConfig 邻居连接配置
type ConnectionConfig struct {
	// ConnectTimeout 建立邻居连接的超时
	// 默认: 15s
	ConnectTimeout Duration `json:"connect_timeout"`

	// SendTimeout 向邻居发送一条消息的超时
	// 默认: 10s
	SendTimeout Duration `json:"send_timeout"`

	// MaxConsecutiveDeliveryFailures 连续投递失败达到该值时断开邻居，0 表示不断开
	// 默认: 100
	MaxConsecutiveDeliveryFailures int `json:"max_consecutive_delivery_failures"`

	// TrackerReconnectInterval 与 tracker 断开后的重连间隔
	// 默认: 5s
	TrackerReconnectInterval Duration `json:"tracker_reconnect_interval"`
}

// DefaultConnectionConfig 返回默认连接配置
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		ConnectTimeout:                 Duration(15 * time.Second),
		SendTimeout:                    Duration(10 * time.Second),
		MaxConsecutiveDeliveryFailures: 100,
		TrackerReconnectInterval:       Duration(5 * time.Second),
	}
}

// Validate 验证连接配置
func (c *ConnectionConfig) Validate() error {
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("%w: connection: connect_timeout must be > 0", ErrInvalidConfig)
	}
	if c.SendTimeout <= 0 {
		return fmt.Errorf("%w: connection: send_timeout must be > 0", ErrInvalidConfig)
	}
	if c.TrackerReconnectInterval <= 0 {
		return fmt.Errorf("%w: connection: tracker_reconnect_interval must be > 0", ErrInvalidConfig)
	}
	if c.MaxConsecutiveDeliveryFailures < 0 {
		return fmt.Errorf("%w: connection: max_consecutive_delivery_failures must be >= 0", ErrInvalidConfig)
	}
	return nil
}

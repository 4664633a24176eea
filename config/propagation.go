package config

import (
	"fmt"
	"time"
)

// PropagationConfig 消息传播配置
type PropagationConfig struct {
	// TTL 传播任务的最长存活时间
	// 默认: 30s
	TTL Duration `json:"ttl"`

	// MaxMessages 同时跟踪的传播任务上限，超出时最早的任务被淘汰
	// 默认: 10000
	MaxMessages int `json:"max_messages"`

	// MinPropagationTargets 任务完成所需的确认邻居数
	// 0 表示只发送不跟踪；负值表示取 floor(D/2)
	// 默认: -1
	MinPropagationTargets int `json:"min_propagation_targets"`
}

// DefaultPropagationConfig 返回默认传播配置
func DefaultPropagationConfig() PropagationConfig {
	return PropagationConfig{
		TTL:                   Duration(30 * time.Second),
		MaxMessages:           10000,
		MinPropagationTargets: -1,
	}
}

// Validate 验证传播配置
func (c *PropagationConfig) Validate() error {
	if c.TTL <= 0 {
		return fmt.Errorf("%w: propagation: ttl must be > 0", ErrInvalidConfig)
	}
	if c.MaxMessages < 1 {
		return fmt.Errorf("%w: propagation: max_messages must be >= 1", ErrInvalidConfig)
	}
	return nil
}

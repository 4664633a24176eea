package propagation

import (
	"time"

	"github.com/dep2p/go-overlay/config"
)

// Config 传播配置
type Config struct {
	// TTL 传播任务的存活时间
	TTL time.Duration

	// MaxMessages 任务存储容量
	MaxMessages int

	// MinPropagationTargets 任务完成所需的确认邻居数，0 表示不跟踪任务
	MinPropagationTargets int
}

// DefaultConfig 返回默认配置（D=4 时确认数为 2）
func DefaultConfig() Config {
	return Config{
		TTL:                   30 * time.Second,
		MaxMessages:           10000,
		MinPropagationTargets: config.DefaultTopologyConfig().MaxNeighborsPerNode / 2,
	}
}

// ConfigFromUnified 从统一配置创建传播配置
func ConfigFromUnified(cfg *config.NodeConfig) Config {
	if cfg == nil {
		return DefaultConfig()
	}
	return Config{
		TTL:                   cfg.Propagation.TTL.Duration(),
		MaxMessages:           cfg.Propagation.MaxMessages,
		MinPropagationTargets: cfg.MinPropagationTargets(),
	}
}

package config

import "fmt"

// TopologyConfig 邻居图配置
type TopologyConfig struct {
	// MaxNeighborsPerNode 每个节点在每个流分区上的目标邻居数 D
	// 默认: 4
	MaxNeighborsPerNode int `json:"max_neighbors_per_node"`

	// MaxSwapAttempts 单次计算中边交换的尝试上限
	// 默认: 64
	MaxSwapAttempts int `json:"max_swap_attempts"`
}

// DefaultTopologyConfig 返回默认邻居图配置
func DefaultTopologyConfig() TopologyConfig {
	return TopologyConfig{
		MaxNeighborsPerNode: 4,
		MaxSwapAttempts:     64,
	}
}

// Validate 验证邻居图配置
func (c *TopologyConfig) Validate() error {
	if c.MaxNeighborsPerNode < 1 {
		return fmt.Errorf("%w: topology: max_neighbors_per_node must be >= 1", ErrInvalidConfig)
	}
	if c.MaxSwapAttempts < 1 {
		return fmt.Errorf("%w: topology: max_swap_attempts must be >= 1", ErrInvalidConfig)
	}
	return nil
}

package node

import (
	"time"

	"github.com/dep2p/go-overlay/config"
	"github.com/dep2p/go-overlay/internal/node/propagation"
	"github.com/dep2p/go-overlay/pkg/types"
)

// Config 节点配置
type Config struct {
	// ConnectTimeout 应用指令时连接单个邻居的超时
	ConnectTimeout time.Duration

	// SendTimeout 单次数据发送与状态上报的超时
	SendTimeout time.Duration

	// MaxConsecutiveDeliveryFailures 连续投递失败上限，达到后断开邻居；0 表示不断开
	MaxConsecutiveDeliveryFailures int

	// TrackerReconnectInterval 与 tracker 断开后的重连间隔
	TrackerReconnectInterval time.Duration

	// RetryInterval 重新应用最后一条指令的间隔
	RetryInterval time.Duration

	// FullStatusEvery 每第 N 次自动重试强制上报完整状态
	FullStatusEvery int

	// RttUpdateInterval 状态中附带 RTT 的最小间隔
	RttUpdateInterval time.Duration

	// Location 上报给 tracker 的位置
	Location *types.Location

	// Extra 上报给 tracker 的附加元数据
	Extra map[string]string

	// Propagation 传播配置
	Propagation propagation.Config
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	conn := config.DefaultConnectionConfig()
	retry := config.DefaultInstructionRetryConfig()
	return Config{
		ConnectTimeout:                 conn.ConnectTimeout.Duration(),
		SendTimeout:                    conn.SendTimeout.Duration(),
		MaxConsecutiveDeliveryFailures: conn.MaxConsecutiveDeliveryFailures,
		TrackerReconnectInterval:       conn.TrackerReconnectInterval.Duration(),
		RetryInterval:                  retry.RetryInterval.Duration(),
		FullStatusEvery:                retry.FullStatusEvery,
		RttUpdateInterval:              15 * time.Second,
		Propagation:                    propagation.DefaultConfig(),
	}
}

// ConfigFromUnified 从统一配置创建节点配置
func ConfigFromUnified(cfg *config.NodeConfig) Config {
	if cfg == nil {
		return DefaultConfig()
	}
	c := DefaultConfig()
	c.ConnectTimeout = cfg.Connection.ConnectTimeout.Duration()
	c.SendTimeout = cfg.Connection.SendTimeout.Duration()
	c.MaxConsecutiveDeliveryFailures = cfg.Connection.MaxConsecutiveDeliveryFailures
	c.TrackerReconnectInterval = cfg.Connection.TrackerReconnectInterval.Duration()
	c.RetryInterval = cfg.Instructions.RetryInterval.Duration()
	c.FullStatusEvery = cfg.Instructions.FullStatusEvery
	c.Location = cfg.Location
	c.Extra = cfg.Extra
	c.Propagation = propagation.ConfigFromUnified(cfg)
	return c
}

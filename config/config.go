// Package config 提供 tracker 与节点的配置
//
// 每个进程一个顶层配置（TrackerConfig / NodeConfig），按功能嵌入子配置，
// 子配置在独立文件中定义并各自提供 Default*Config() 与 Validate()。
//
// 使用示例：
//
//	cfg := config.NewTrackerConfig()
//	cfg.Topology.MaxNeighborsPerNode = 8
//
//	// 从 JSON 文件加载（未出现的字段保留默认值）
//	cfg, err := config.LoadTrackerConfig("tracker.json")
package config

import (
	"fmt"

	"github.com/dep2p/go-overlay/pkg/types"
)

// ============================================================================
//                              TrackerConfig
// ============================================================================

// TrackerConfig tracker 进程配置
type TrackerConfig struct {
	// ListenAddr websocket 监听地址，节点连接 ws://<addr>/tracker
	// 默认: ":30300"
	ListenAddr string `json:"listen_addr"`

	// Transport websocket 传输配置
	Transport WebSocketConfig `json:"transport"`

	// Topology 邻居图配置
	Topology TopologyConfig `json:"topology"`

	// Instructions 指令下发配置
	Instructions InstructionSenderConfig `json:"instructions"`

	// Diagnostics 自省服务配置
	Diagnostics DiagnosticsConfig `json:"diagnostics"`
}

// NewTrackerConfig 创建默认 tracker 配置
func NewTrackerConfig() *TrackerConfig {
	return &TrackerConfig{
		ListenAddr:   ":30300",
		Transport:    DefaultWebSocketConfig(),
		Topology:     DefaultTopologyConfig(),
		Instructions: DefaultInstructionSenderConfig(),
		Diagnostics:  DefaultDiagnosticsConfig(),
	}
}

// Validate 验证 tracker 配置
func (c *TrackerConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: tracker config is nil", ErrInvalidConfig)
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("%w: listen_addr is empty", ErrInvalidConfig)
	}
	if err := c.Transport.Validate(); err != nil {
		return err
	}
	if err := c.Topology.Validate(); err != nil {
		return err
	}
	if err := c.Instructions.Validate(); err != nil {
		return err
	}
	return c.Diagnostics.Validate()
}

// ============================================================================
//                              NodeConfig
// ============================================================================

// NodeConfig 节点进程配置
type NodeConfig struct {
	// ID 节点 ID；websocket 部署下即对外可拨号的 host:port
	// 为空时由命令行根据监听地址生成
	ID string `json:"id"`

	// ListenAddr 节点间 websocket 监听地址，对端连接 ws://<id>/node
	// 默认: ":30400"
	ListenAddr string `json:"listen_addr"`

	// TrackerURL tracker 地址
	// 默认: "ws://127.0.0.1:30300/tracker"
	TrackerURL string `json:"tracker_url"`

	// Transport websocket 传输配置
	Transport WebSocketConfig `json:"transport"`

	// Topology 邻居图配置（用于推导传播目标数）
	Topology TopologyConfig `json:"topology"`

	// Propagation 传播配置
	Propagation PropagationConfig `json:"propagation"`

	// Connection 邻居连接配置
	Connection ConnectionConfig `json:"connection"`

	// Instructions 指令重试配置
	Instructions InstructionRetryConfig `json:"instructions"`

	// Location 上报给 tracker 的地理位置（可选）
	Location *types.Location `json:"location,omitempty"`

	// Extra 上报给 tracker 的附加元数据（可选）
	Extra map[string]string `json:"extra,omitempty"`

	// Diagnostics 自省服务配置
	Diagnostics DiagnosticsConfig `json:"diagnostics"`
}

// NewNodeConfig 创建默认节点配置
func NewNodeConfig() *NodeConfig {
	return &NodeConfig{
		ListenAddr:   ":30400",
		TrackerURL:   "ws://127.0.0.1:30300/tracker",
		Transport:    DefaultWebSocketConfig(),
		Topology:     DefaultTopologyConfig(),
		Propagation:  DefaultPropagationConfig(),
		Connection:   DefaultConnectionConfig(),
		Instructions: DefaultInstructionRetryConfig(),
		Diagnostics:  DefaultDiagnosticsConfig(),
	}
}

// Validate 验证节点配置
func (c *NodeConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: node config is nil", ErrInvalidConfig)
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("%w: listen_addr is empty", ErrInvalidConfig)
	}
	if c.TrackerURL == "" {
		return fmt.Errorf("%w: tracker_url is empty", ErrInvalidConfig)
	}
	if err := c.Transport.Validate(); err != nil {
		return err
	}
	if err := c.Topology.Validate(); err != nil {
		return err
	}
	if err := c.Propagation.Validate(); err != nil {
		return err
	}
	if err := c.Connection.Validate(); err != nil {
		return err
	}
	if err := c.Instructions.Validate(); err != nil {
		return err
	}
	return c.Diagnostics.Validate()
}

// MinPropagationTargets 解析后的最小传播目标数
//
// 未显式配置（负值）时取 floor(D/2)。
func (c *NodeConfig) MinPropagationTargets() int {
	if c.Propagation.MinPropagationTargets >= 0 {
		return c.Propagation.MinPropagationTargets
	}
	return c.Topology.MaxNeighborsPerNode / 2
}

package overlay

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-overlay/config"
	"github.com/dep2p/go-overlay/internal/introspect"
	"github.com/dep2p/go-overlay/internal/node"
	"github.com/dep2p/go-overlay/pkg/interfaces"
	"github.com/dep2p/go-overlay/pkg/types"
)

// Node 覆盖网络节点，用户交互的主入口
//
// 流分区相关的操作在 Start 之前也可以调用：加入的流分区在连上
// tracker 后统一上报。
type Node struct {
	runner

	node       *node.Node
	gatherer   prometheus.Gatherer
	introspect *introspect.Server
}

// NewNode 创建节点
//
// 使用 websocket 传输时 cfg.ID 必须是对端可拨号的 host:port。
func NewNode(cfg *config.NodeConfig, opts ...Option) (*Node, error) {
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}

	n := &Node{}
	app, err := buildNodeApp(cfg, o, n)
	if err != nil {
		return nil, err
	}
	if err := app.Err(); err != nil {
		return nil, fmt.Errorf("build node: %w", err)
	}
	n.runner = runner{
		name: "node",
		app:  app,
		abandon: func() error {
			return n.node.Stop()
		},
	}
	return n, nil
}

// Start 启动节点并连接 tracker
//
// tracker 暂时不可达不视为失败，节点在后台重连。
func (n *Node) Start(ctx context.Context) error {
	return n.start(ctx)
}

// Close 关闭节点及其传输，可重复调用
func (n *Node) Close() error {
	return n.close()
}

// ID 节点 ID
func (n *Node) ID() types.NodeID {
	return n.node.ID()
}

// IntrospectAddr 自省服务的实际监听地址；未启用时返回空串
func (n *Node) IntrospectAddr() string {
	if n.introspect == nil {
		return ""
	}
	return n.introspect.Addr()
}

// Gatherer 指标 registry
func (n *Node) Gatherer() prometheus.Gatherer {
	return n.gatherer
}

// ════════════════════════════════════════════════════════════════════════════
//                              流分区
// ════════════════════════════════════════════════════════════════════════════

// Subscribe 加入流分区
func (n *Node) Subscribe(sp types.StreamPartID) error {
	return n.node.Subscribe(sp)
}

// Unsubscribe 退出流分区
func (n *Node) Unsubscribe(sp types.StreamPartID) {
	n.node.Unsubscribe(sp)
}

// Publish 发布消息到其所属的流分区
//
// 未加入的流分区会被隐式加入。
func (n *Node) Publish(msg *types.StreamMessage) error {
	if !n.isRunning() {
		return ErrNotStarted
	}
	return n.node.Publish(msg)
}

// Events 订阅节点事件；不指定类型则接收全部事件
func (n *Node) Events(eventTypes ...types.EventType) (interfaces.Subscription, error) {
	return n.node.Events(eventTypes...)
}

// StreamParts 已加入的流分区
func (n *Node) StreamParts() []types.StreamPartID {
	return n.node.StreamParts()
}

// Neighbors 流分区上的邻居
func (n *Node) Neighbors(sp types.StreamPartID) []types.NodeID {
	return n.node.Neighbors(sp)
}

// AverageLatency 首次出现消息的平均时延（毫秒）
func (n *Node) AverageLatency() (float64, bool) {
	return n.node.AverageLatency()
}

package interfaces

import (
	"context"

	"github.com/dep2p/go-overlay/pkg/types"
)

// ============================================================================
//                              节点间传输
// ============================================================================

// NodeToNode 节点间数据通道
//
// 节点 ID 即拨号地址，Connect 不需要额外的地址提示。
type NodeToNode interface {
	// LocalID 本地节点 ID
	LocalID() types.NodeID

	// Connect 建立到 peer 的连接；已连接时直接返回
	Connect(ctx context.Context, peer types.NodeID) error

	// Disconnect 断开 peer，未连接时无操作
	Disconnect(peer types.NodeID, reason string)

	// Send 向已连接的 peer 发送数据消息
	Send(ctx context.Context, peer types.NodeID, msg *types.StreamMessage) error

	// IsConnected 是否已连接 peer
	IsConnected(peer types.NodeID) bool

	// Peers 当前连接的所有 peer
	Peers() []types.NodeID

	// SetHandler 设置回调，必须在连接任何 peer 之前调用
	SetHandler(h NodeToNodeHandler)

	// Close 关闭所有连接
	Close() error
}

// NodeToNodeHandler 节点间传输回调
type NodeToNodeHandler interface {
	OnPeerConnected(peer types.NodeID)
	OnPeerDisconnected(peer types.NodeID)
	OnData(msg *types.StreamMessage, source types.NodeID)
}

// ============================================================================
//                              节点到 tracker
// ============================================================================

// NodeToTracker 节点侧 tracker 连接
type NodeToTracker interface {
	// Connect 连接 tracker
	Connect(ctx context.Context) error

	// SendStatus 上报某个流分区的状态
	SendStatus(ctx context.Context, status types.Status) error

	// SetHandler 设置回调
	SetHandler(h NodeToTrackerHandler)

	// Close 断开 tracker
	Close() error
}

// NodeToTrackerHandler 节点侧 tracker 回调
type NodeToTrackerHandler interface {
	OnTrackerConnected()
	OnTrackerDisconnected()
	OnInstruction(inst types.Instruction)
}

// ============================================================================
//                              tracker 服务端
// ============================================================================

// TrackerServer tracker 侧传输
type TrackerServer interface {
	// SendInstruction 向节点发送指令
	SendInstruction(ctx context.Context, node types.NodeID, inst types.Instruction) error

	// Disconnect 断开节点（例如收到非法状态）
	Disconnect(node types.NodeID, reason string)

	// SetHandler 设置回调
	SetHandler(h TrackerServerHandler)

	// Close 关闭服务端
	Close() error
}

// TrackerServerHandler tracker 侧回调
type TrackerServerHandler interface {
	OnNodeConnected(node types.NodeID)
	OnNodeDisconnected(node types.NodeID)
	OnStatus(status types.Status, source types.NodeID)
}

// RttReporter 可选接口：传输层测得的到各 peer 的往返时延（毫秒）
type RttReporter interface {
	Rtts() map[types.NodeID]int64
}

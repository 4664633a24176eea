package node

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/dep2p/go-overlay/internal/metrics"
	"github.com/dep2p/go-overlay/internal/node/instruction"
	"github.com/dep2p/go-overlay/internal/node/propagation"
	"github.com/dep2p/go-overlay/internal/node/streampart"
	"github.com/dep2p/go-overlay/pkg/interfaces"
	"github.com/dep2p/go-overlay/pkg/lib/log"
	"github.com/dep2p/go-overlay/pkg/types"
)

var logger = log.Logger("node")

// 断开原因
const (
	reasonNoSharedStreamParts = "no shared stream parts"
	reasonDeliveryFailures    = "consecutive delivery failures"
)

// Node overlay 节点
type Node struct {
	cfg     Config
	id      types.NodeID
	n2n     interfaces.NodeToNode
	tracker interfaces.NodeToTracker
	bus     interfaces.EventBus
	clock   clock.Clock
	metrics *metrics.Node
	started time.Time

	streams     *streampart.Manager
	propagation *propagation.Propagation
	throttler   *instruction.Throttler
	retries     *instruction.RetryManager

	mu               sync.Mutex
	deliveryFailures map[types.NodeID]int
	avgLatency       float64
	hasLatency       bool
	lastRttReport    time.Time
	reconnectTimer   *clock.Timer
	stopped          bool

	ctx    context.Context
	cancel context.CancelFunc
}

var (
	_ interfaces.NodeToNodeHandler    = (*Node)(nil)
	_ interfaces.NodeToTrackerHandler = (*Node)(nil)
)

// New 创建节点并注册为两个传输的回调
//
// 节点拥有传输的所有权，Stop 时关闭它们。
func New(cfg Config, n2n interfaces.NodeToNode, tracker interfaces.NodeToTracker, opts ...Option) *Node {
	o := newOptions(opts)
	ctx, cancel := context.WithCancel(context.Background())

	n := &Node{
		cfg:              cfg,
		id:               n2n.LocalID(),
		n2n:              n2n,
		tracker:          tracker,
		bus:              o.bus,
		clock:            o.clock,
		metrics:          o.metrics,
		started:          o.clock.Now(),
		streams:          streampart.NewManager(),
		deliveryFailures: make(map[types.NodeID]int),
		ctx:              ctx,
		cancel:           cancel,
	}
	n.propagation = propagation.New(cfg.Propagation, n.streams.Neighbors, n.sendToNeighbor, o.metrics,
		propagation.WithClock(o.clock))
	n.throttler = instruction.NewThrottler(n.handleInstruction)
	n.retries = instruction.NewRetryManager(o.clock, cfg.RetryInterval, cfg.FullStatusEvery, n.retryInstruction)

	n2n.SetHandler(n)
	tracker.SetHandler(n)
	return n
}

// ID 本节点 ID
func (n *Node) ID() types.NodeID {
	return n.id
}

// Start 连接 tracker
//
// 首次连接失败不视为启动失败，节点按重连间隔继续尝试。
func (n *Node) Start(ctx context.Context) error {
	if n.isStopped() {
		return ErrStopped
	}
	cctx, cancel := context.WithTimeout(ctx, n.cfg.ConnectTimeout)
	defer cancel()
	if err := n.tracker.Connect(cctx); err != nil {
		logger.Warn("tracker connect failed", "node", n.id, "err", err)
		n.scheduleReconnect()
	}
	return nil
}

// Stop 停止所有后台任务并关闭传输，可重复调用
func (n *Node) Stop() error {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return nil
	}
	n.stopped = true
	if n.reconnectTimer != nil {
		n.reconnectTimer.Stop()
	}
	n.mu.Unlock()

	n.cancel()
	n.retries.Stop()
	n.throttler.Stop()
	n.propagation.Stop()

	err := multierr.Combine(n.tracker.Close(), n.n2n.Close())
	logger.Info("node stopped", "node", n.id)
	return err
}

// Subscribe 加入流分区并向 tracker 上报状态
func (n *Node) Subscribe(sp types.StreamPartID) error {
	if err := sp.Validate(); err != nil {
		return err
	}
	if n.isStopped() {
		return ErrStopped
	}
	n.subscribeIfNotYet(sp, true)
	return nil
}

// Unsubscribe 退出流分区
//
// 不再共享任何流分区的邻居立即断开。
func (n *Node) Unsubscribe(sp types.StreamPartID) {
	if !n.streams.IsSetUp(sp) {
		return
	}
	neighbors := n.streams.Remove(sp)
	n.throttler.RemoveStreamPart(sp)
	n.retries.RemoveStreamPart(sp)
	logger.Info("unsubscribed", "node", n.id, "streamPart", sp, "neighbors", len(neighbors))

	for _, nb := range neighbors {
		n.emit(&types.NodeUnsubscribedEvent{
			BaseEvent:  types.NewBaseEvent(types.EventNodeUnsubscribed),
			Node:       nb,
			StreamPart: sp,
		})
		n.disconnectIfUnshared(nb)
	}
	n.updateNeighborGauge()
	n.reportStatus(n.ctx, types.Status{StreamPart: sp, Counter: types.CounterUnsubscribe})
}

// Publish 发布本节点产生的消息
func (n *Node) Publish(msg *types.StreamMessage) error {
	if msg == nil {
		return ErrNilMessage
	}
	if err := msg.StreamPart().Validate(); err != nil {
		return err
	}
	if n.isStopped() {
		return ErrStopped
	}
	n.onDataReceived(msg, nil)
	return nil
}

// Events 订阅节点事件；不指定类型则接收全部事件
func (n *Node) Events(eventTypes ...types.EventType) (interfaces.Subscription, error) {
	return n.bus.Subscribe(eventTypes)
}

// StreamParts 已加入的流分区
func (n *Node) StreamParts() []types.StreamPartID {
	return n.streams.StreamParts()
}

// Neighbors 流分区上的邻居
func (n *Node) Neighbors(sp types.StreamPartID) []types.NodeID {
	return n.streams.Neighbors(sp)
}

// AllNeighbors 所有流分区上的邻居（去重）
func (n *Node) AllNeighbors() []types.NodeID {
	return n.streams.AllNeighbors()
}

// Status 流分区的当前状态
func (n *Node) Status(sp types.StreamPartID) (types.Status, error) {
	return n.streams.Status(sp)
}

// AverageLatency 首次出现消息的平均时延（毫秒）；尚无样本时 ok 为 false
func (n *Node) AverageLatency() (float64, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.avgLatency, n.hasLatency
}

// PropagationTasks 未完成的传播任务数
func (n *Node) PropagationTasks() int {
	return n.propagation.NumberOfTasks()
}

// ============================================================================
//                              节点间传输回调
// ============================================================================

// OnPeerConnected 与 peer 建立连接
func (n *Node) OnPeerConnected(peer types.NodeID) {
	logger.Debug("peer connected", "node", n.id, "peer", peer)
	n.emit(&types.NodeConnectedEvent{
		BaseEvent: types.NewBaseEvent(types.EventNodeConnected),
		Node:      peer,
	})
}

// OnPeerDisconnected 与 peer 的连接断开
func (n *Node) OnPeerDisconnected(peer types.NodeID) {
	logger.Debug("peer disconnected", "node", n.id, "peer", peer)
	n.removeNeighborEverywhere(peer)
	n.emit(&types.NodeDisconnectedEvent{
		BaseEvent: types.NewBaseEvent(types.EventNodeDisconnected),
		Node:      peer,
	})
}

// OnData 收到邻居转发的数据
func (n *Node) OnData(msg *types.StreamMessage, source types.NodeID) {
	if n.isStopped() {
		return
	}
	n.onDataReceived(msg, &source)
}

// ============================================================================
//                              内部方法
// ============================================================================

// subscribeIfNotYet 隐式加入流分区
func (n *Node) subscribeIfNotYet(sp types.StreamPartID, sendStatus bool) {
	if n.streams.IsSetUp(sp) {
		return
	}
	if err := n.streams.SetUp(sp); err != nil {
		// 并发加入
		return
	}
	logger.Info("subscribed", "node", n.id, "streamPart", sp)
	if sendStatus {
		n.sendStatus(n.ctx, sp)
	}
}

// subscribeToNode 把已连接的 peer 加入流分区的邻居集合
func (n *Node) subscribeToNode(node types.NodeID, sp types.StreamPartID) {
	if err := n.streams.AddNeighbor(sp, node); err != nil {
		logger.Debug("stream part gone before neighbor added", "node", n.id, "streamPart", sp, "peer", node)
		return
	}
	n.propagation.OnNeighborJoined(node, sp)
	n.updateNeighborGauge()
	n.emit(&types.NodeSubscribedEvent{
		BaseEvent:  types.NewBaseEvent(types.EventNodeSubscribed),
		Node:       node,
		StreamPart: sp,
	})
}

// unsubscribeFromNode 把 peer 移出流分区的邻居集合
func (n *Node) unsubscribeFromNode(node types.NodeID, sp types.StreamPartID) {
	if !n.streams.RemoveNeighbor(sp, node) {
		return
	}
	n.updateNeighborGauge()
	n.emit(&types.NodeUnsubscribedEvent{
		BaseEvent:  types.NewBaseEvent(types.EventNodeUnsubscribed),
		Node:       node,
		StreamPart: sp,
	})
	n.disconnectIfUnshared(node)
}

// disconnectIfUnshared 不再共享流分区时断开 peer
func (n *Node) disconnectIfUnshared(node types.NodeID) {
	if n.streams.IsNodePresent(node) {
		return
	}
	n.n2n.Disconnect(node, reasonNoSharedStreamParts)
}

// removeNeighborEverywhere 从所有流分区移除 peer，并为受影响的流分区上报状态
func (n *Node) removeNeighborEverywhere(peer types.NodeID) {
	affected := n.streams.RemoveNodeFromAll(peer)

	n.mu.Lock()
	delete(n.deliveryFailures, peer)
	n.mu.Unlock()

	if len(affected) == 0 {
		return
	}
	n.updateNeighborGauge()
	for _, sp := range affected {
		n.sendStatus(n.ctx, sp)
	}
}

func (n *Node) updateNeighborGauge() {
	n.metrics.Neighbors.Set(float64(len(n.streams.AllNeighbors())))
}

func (n *Node) emit(event types.Event) {
	n.bus.Emit(event)
}

func (n *Node) isStopped() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stopped
}

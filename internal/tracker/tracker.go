package tracker

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/dep2p/go-overlay/internal/metrics"
	"github.com/dep2p/go-overlay/internal/tracker/overlay"
	"github.com/dep2p/go-overlay/pkg/interfaces"
	"github.com/dep2p/go-overlay/pkg/lib/log"
	"github.com/dep2p/go-overlay/pkg/types"
)

var logger = log.Logger("tracker")

// 断开原因
const reasonInvalidStatus = "invalid status"

// Tracker 协调所有流分区的邻居图
type Tracker struct {
	cfg     Config
	server  interfaces.TrackerServer
	counter *InstructionCounter
	sender  *InstructionSender
	metrics *metrics.Tracker
	shuffle overlay.ShuffleFunc

	mu        sync.Mutex
	overlays  map[types.StreamPartID]*overlay.Topology
	connected map[types.NodeID]struct{}
	rtts      map[types.NodeID]map[types.NodeID]int64
	locations map[types.NodeID]types.Location
	extra     map[types.NodeID]map[string]string
	stopped   bool
}

var _ interfaces.TrackerServerHandler = (*Tracker)(nil)

// New 创建 tracker 并注册为 server 的回调
func New(cfg Config, server interfaces.TrackerServer, opts ...Option) *Tracker {
	o := newOptions(opts)

	t := &Tracker{
		cfg:       cfg,
		server:    server,
		counter:   NewInstructionCounter(),
		metrics:   o.metrics,
		shuffle:   o.shuffle,
		overlays:  make(map[types.StreamPartID]*overlay.Topology),
		connected: make(map[types.NodeID]struct{}),
		rtts:      make(map[types.NodeID]map[types.NodeID]int64),
		locations: make(map[types.NodeID]types.Location),
		extra:     make(map[types.NodeID]map[string]string),
	}
	t.sender = NewInstructionSender(cfg.Sender, t.sendInstruction, opts...)
	server.SetHandler(t)
	return t
}

// ============================================================================
//                              传输回调
// ============================================================================

// OnNodeConnected 节点连接
func (t *Tracker) OnNodeConnected(node types.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.connected[node] = struct{}{}
	logger.Debug("node connected", "node", node)
}

// OnNodeDisconnected 节点断开：从所有流分区移除并重新计算其原邻居
func (t *Tracker) OnNodeDisconnected(node types.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	logger.Debug("node disconnected", "node", node)
	delete(t.connected, node)
	delete(t.rtts, node)
	delete(t.locations, node)
	delete(t.extra, node)

	for _, sp := range t.streamPartsLocked() {
		if t.overlays[sp].HasNode(node) {
			t.leaveLocked(sp, node)
		}
	}
	t.counter.RemoveNode(node)
	t.updateGaugesLocked()
}

// OnStatus 收到节点状态；格式非法的状态导致断开该节点
func (t *Tracker) OnStatus(status types.Status, source types.NodeID) {
	if err := validateStatus(status, source); err != nil {
		t.metrics.StatusInvalid.Inc()
		logger.Warn("invalid status received", "node", source, "err", err)
		t.server.Disconnect(source, reasonInvalidStatus)
		return
	}
	t.ProcessStatus(status, source)
}

// ============================================================================
//                              状态处理
// ============================================================================

// ProcessStatus 处理一条已校验的节点状态
func (t *Tracker) ProcessStatus(status types.Status, source types.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}

	if !t.counter.IsMostRecent(status, source) {
		t.metrics.StatusStale.Inc()
		logger.Debug("ignoring stale status",
			"node", source,
			"streamPart", status.StreamPart,
			"counter", status.Counter)
		return
	}
	t.metrics.StatusProcessed.Inc()

	if status.Rtts != nil {
		rtts := make(map[types.NodeID]int64, len(status.Rtts))
		for n, rtt := range status.Rtts {
			rtts[n] = rtt
		}
		t.rtts[source] = rtts
	}
	if status.Location != nil {
		t.locations[source] = *status.Location
	}
	if status.Extra != nil {
		extra := make(map[string]string, len(status.Extra))
		for k, v := range status.Extra {
			extra[k] = v
		}
		t.extra[source] = extra
	}

	sp := status.StreamPart
	topo, ok := t.overlays[sp]
	if !ok {
		topo = overlay.New(t.cfg.MaxNeighborsPerNode,
			overlay.WithShuffle(t.shuffle),
			overlay.WithMaxSwapAttempts(t.cfg.MaxSwapAttempts))
		t.overlays[sp] = topo
	}

	if status.IsUnsubscribe() {
		t.leaveLocked(sp, source)
	} else {
		topo.Update(source, status.Neighbors)
		t.formAndSendLocked(source, sp, false)
	}
	t.updateGaugesLocked()
}

// Stop 停止处理状态并丢弃未发送的指令
func (t *Tracker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()

	t.sender.Stop()
	logger.Debug("tracker stopped")
}

// formAndSendLocked 针对 node 计算修正并缓冲指令
func (t *Tracker) formAndSendLocked(node types.NodeID, sp types.StreamPartID, force bool) {
	topo, ok := t.overlays[sp]
	if !ok {
		return
	}

	instructions, err := topo.FormInstructions(node, force)
	if err != nil {
		var violation *overlay.InvariantViolation
		if errors.As(err, &violation) {
			t.metrics.InvariantViolations.Inc()
			logger.Error("topology invariant violated, instructions discarded",
				"bug", true,
				"streamPart", sp,
				"node", violation.Node,
				"err", err)
			return
		}
		logger.Error("failed to form instructions", "streamPart", sp, "node", node, "err", err)
		return
	}

	// 只有流分区中唯一的节点才收到空指令
	if topo.HasNode(node) && topo.NumberOfNodes() == 1 && len(instructions) == 0 {
		t.sender.AddInstruction(types.Instruction{
			NodeID:     node,
			StreamPart: sp,
			Neighbors:  []types.NodeID{},
			Counter:    types.CounterLoneNode,
		})
		return
	}

	targets := make([]types.NodeID, 0, len(instructions))
	for n := range instructions {
		targets = append(targets, n)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })

	for _, n := range targets {
		t.sender.AddInstruction(types.Instruction{
			NodeID:     n,
			StreamPart: sp,
			Neighbors:  instructions[n],
			Counter:    t.counter.SetOrIncrement(n, sp),
		})
	}
}

// leaveLocked 节点离开流分区；空的邻居图连同计数器一起删除
func (t *Tracker) leaveLocked(sp types.StreamPartID, node types.NodeID) {
	topo, ok := t.overlays[sp]
	if !ok {
		return
	}

	former := topo.Leave(node)
	t.counter.RemoveNodeFromStreamPart(node, sp)

	if topo.IsEmpty() {
		t.counter.RemoveStreamPart(sp)
		t.sender.DropStreamPart(sp)
		delete(t.overlays, sp)
		return
	}
	for _, n := range former {
		t.formAndSendLocked(n, sp, true)
	}
}

func (t *Tracker) sendInstruction(ctx context.Context, node types.NodeID, inst types.Instruction) error {
	return t.server.SendInstruction(ctx, node, inst)
}

func (t *Tracker) updateGaugesLocked() {
	nodes := make(map[types.NodeID]struct{})
	for _, topo := range t.overlays {
		for n := range topo.State() {
			nodes[n] = struct{}{}
		}
	}
	t.metrics.StreamParts.Set(float64(len(t.overlays)))
	t.metrics.Nodes.Set(float64(len(nodes)))
}

func (t *Tracker) streamPartsLocked() []types.StreamPartID {
	out := make([]types.StreamPartID, 0, len(t.overlays))
	for sp := range t.overlays {
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// validateStatus 基本格式检查
func validateStatus(status types.Status, source types.NodeID) error {
	if source.IsEmpty() {
		return types.ErrEmptyNodeID
	}
	if err := status.StreamPart.Validate(); err != nil {
		return err
	}
	if status.Counter < 0 && !status.IsUnsubscribe() {
		return ErrInvalidCounter
	}
	for _, n := range status.Neighbors {
		if n.IsEmpty() {
			return types.ErrEmptyNodeID
		}
	}
	return nil
}

package node

import (
	"context"

	"github.com/dep2p/go-overlay/pkg/interfaces"
	"github.com/dep2p/go-overlay/pkg/types"
)

// ============================================================================
//                              tracker 连接
// ============================================================================

// OnTrackerConnected 连上 tracker 后为每个流分区上报状态
func (n *Node) OnTrackerConnected() {
	if n.isStopped() {
		return
	}
	logger.Info("connected to tracker", "node", n.id)
	for _, sp := range n.streams.StreamParts() {
		n.sendStatus(n.ctx, sp)
	}
}

// OnTrackerDisconnected 与 tracker 断开
//
// tracker 重启后计数器从头开始，因此丢弃指令的防回退状态。
func (n *Node) OnTrackerDisconnected() {
	if n.isStopped() {
		return
	}
	logger.Warn("disconnected from tracker", "node", n.id)
	n.throttler.Reset()
	n.scheduleReconnect()
}

func (n *Node) scheduleReconnect() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.stopped {
		return
	}
	if n.reconnectTimer != nil {
		n.reconnectTimer.Stop()
	}
	n.reconnectTimer = n.clock.AfterFunc(n.cfg.TrackerReconnectInterval, n.reconnect)
}

func (n *Node) reconnect() {
	if n.isStopped() {
		return
	}
	ctx, cancel := context.WithTimeout(n.ctx, n.cfg.ConnectTimeout)
	defer cancel()

	if err := n.tracker.Connect(ctx); err != nil {
		logger.Debug("tracker reconnect failed", "node", n.id, "err", err)
		n.scheduleReconnect()
	}
}

// ============================================================================
//                              状态上报
// ============================================================================

// sendStatus 上报流分区的当前状态；流分区已移除时上报退出
func (n *Node) sendStatus(ctx context.Context, sp types.StreamPartID) {
	status, err := n.streams.Status(sp)
	if err != nil {
		status = types.Status{StreamPart: sp, Counter: types.CounterUnsubscribe}
	}
	n.reportStatus(ctx, status)
}

// reportStatus 补充节点级字段后发送
func (n *Node) reportStatus(ctx context.Context, status types.Status) {
	status.Location = n.cfg.Location
	status.Extra = n.cfg.Extra
	status.Started = n.started
	status.Rtts = n.rttsForStatus()

	sctx, cancel := context.WithTimeout(ctx, n.cfg.SendTimeout)
	defer cancel()
	if err := n.tracker.SendStatus(sctx, status); err != nil {
		logger.Debug("failed to send status", "node", n.id, "streamPart", status.StreamPart, "err", err)
		return
	}
	if status.Rtts != nil {
		n.mu.Lock()
		n.lastRttReport = n.clock.Now()
		n.mu.Unlock()
	}
}

// rttsForStatus 首次成功上报以及此后每隔 RttUpdateInterval 附带一次 RTT
func (n *Node) rttsForStatus() map[types.NodeID]int64 {
	reporter, ok := n.n2n.(interfaces.RttReporter)
	if !ok {
		return nil
	}

	n.mu.Lock()
	last := n.lastRttReport
	n.mu.Unlock()
	if !last.IsZero() && n.clock.Since(last) < n.cfg.RttUpdateInterval {
		return nil
	}

	rtts := reporter.Rtts()
	if rtts == nil {
		rtts = make(map[types.NodeID]int64)
	}
	return rtts
}

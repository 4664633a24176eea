package node

import (
	"context"
	"errors"

	"github.com/dep2p/go-overlay/internal/node/dedup"
	"github.com/dep2p/go-overlay/pkg/types"
)

// 平均时延的指数加权系数
const latencySmoothing = 0.8

// onDataReceived 处理一条数据消息；source 为 nil 表示本节点发布
func (n *Node) onDataReceived(msg *types.StreamMessage, source *types.NodeID) {
	sp := msg.StreamPart()
	n.metrics.DataReceived.Inc()

	// 只接受当前邻居转发的消息
	if source != nil && !n.streams.HasNeighbor(sp, *source) {
		logger.Debug("ignoring data from non-neighbor", "node", n.id, "streamPart", sp, "source", *source)
		return
	}

	n.emit(&types.MessageReceivedEvent{
		BaseEvent: types.NewBaseEvent(types.EventMessageReceived),
		Message:   msg,
		Source:    source,
	})

	n.subscribeIfNotYet(sp, true)

	result, err := n.streams.MarkAndCheck(msg.ID, msg.PrevMsgRef)
	switch {
	case errors.Is(err, dedup.ErrInvalidNumbering):
		n.metrics.InvalidNumbering.Inc()
		logger.Warn("dropping message with invalid numbering", "node", n.id, "msg", msg.ID, "prev", msg.PrevMsgRef)
		return
	case err != nil:
		logger.Debug("dropping message", "node", n.id, "msg", msg.ID, "err", err)
		return
	}

	switch result {
	case dedup.Duplicate:
		n.metrics.Duplicates.Inc()
		return
	case dedup.Gap:
		n.metrics.Gaps.Inc()
		logger.Warn("gap detected", "node", n.id, "msg", msg.ID, "prev", msg.PrevMsgRef)
	}

	n.emit(&types.UnseenMessageReceivedEvent{
		BaseEvent: types.NewBaseEvent(types.EventUnseenMessageReceived),
		Message:   msg,
		Source:    source,
	})
	n.recordLatency(msg)
	n.propagation.FeedUnseenMessage(msg, source)
}

// recordLatency 更新首次出现消息的平均时延
func (n *Node) recordLatency(msg *types.StreamMessage) {
	current := float64(n.clock.Now().UnixMilli() - msg.ID.Timestamp)

	n.mu.Lock()
	if n.hasLatency {
		n.avgLatency = latencySmoothing*n.avgLatency + (1-latencySmoothing)*current
	} else {
		n.avgLatency = current
		n.hasLatency = true
	}
	avg := n.avgLatency
	n.mu.Unlock()

	n.metrics.Latency.Set(avg)
}

// sendToNeighbor 传播引擎的发送函数
//
// 连续失败达到上限时断开邻居并从所有流分区移除。
func (n *Node) sendToNeighbor(ctx context.Context, neighbor types.NodeID, msg *types.StreamMessage) error {
	sctx, cancel := context.WithTimeout(ctx, n.cfg.SendTimeout)
	defer cancel()

	err := n.n2n.Send(sctx, neighbor, msg)
	if err == nil {
		n.mu.Lock()
		delete(n.deliveryFailures, neighbor)
		n.mu.Unlock()
		return nil
	}

	n.metrics.DeliveryFailures.Inc()
	n.mu.Lock()
	n.deliveryFailures[neighbor]++
	failures := n.deliveryFailures[neighbor]
	limit := n.cfg.MaxConsecutiveDeliveryFailures
	force := limit > 0 && failures >= limit
	if force {
		delete(n.deliveryFailures, neighbor)
	}
	n.mu.Unlock()

	logger.Debug("delivery failed", "node", n.id, "peer", neighbor, "failures", failures, "err", err)
	if force {
		logger.Warn("disconnecting neighbor after consecutive delivery failures",
			"node", n.id, "peer", neighbor, "failures", failures)
		n.metrics.ForcedDisconnects.Inc()
		n.n2n.Disconnect(neighbor, reasonDeliveryFailures)
		n.removeNeighborEverywhere(neighbor)
	}
	return err
}

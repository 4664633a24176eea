package node

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-overlay/internal/node/instruction"
	"github.com/dep2p/go-overlay/pkg/types"
)

// ============================================================================
//                              tracker 指令
// ============================================================================

// OnInstruction 收到 tracker 指令
func (n *Node) OnInstruction(inst types.Instruction) {
	if n.isStopped() {
		return
	}
	if err := inst.StreamPart.Validate(); err != nil {
		logger.Warn("ignoring invalid instruction", "node", n.id, "err", err)
		n.metrics.InstructionsDropped.Inc()
		return
	}
	if !n.throttler.Add(inst) {
		n.metrics.InstructionsDropped.Inc()
	}
}

// handleInstruction Throttler 的执行函数：应用指令，新指令登记重试
func (n *Node) handleInstruction(ctx context.Context, a instruction.Apply) {
	n.applyInstruction(ctx, a.Instruction, a.Reattempt)
	if !a.Retry && n.streams.IsSetUp(a.Instruction.StreamPart) {
		n.retries.Add(a.Instruction)
	}
}

// retryInstruction RetryManager 的执行函数
//
// 重试经 Throttler 排队，与新指令串行；同一流分区有应用在执行时跳过本次重试。
func (n *Node) retryInstruction(_ context.Context, inst types.Instruction, reattempt bool) {
	if !n.throttler.Retry(inst, reattempt) {
		logger.Debug("skipping instruction retry, apply in flight", "node", n.id, "streamPart", inst.StreamPart)
		return
	}
	n.metrics.InstructionRetries.Inc()
}

// applyInstruction 使邻居集合与指令一致
//
// reattempt 为 true 且所有连接都成功时不上报状态。
func (n *Node) applyInstruction(ctx context.Context, inst types.Instruction, reattempt bool) {
	sp := inst.StreamPart
	n.subscribeIfNotYet(sp, false)

	logger.Debug("applying instruction",
		"node", n.id,
		"streamPart", sp,
		"counter", inst.Counter,
		"neighbors", len(inst.Neighbors),
		"reattempt", reattempt)

	wanted := make(map[types.NodeID]struct{}, len(inst.Neighbors))
	for _, nb := range inst.Neighbors {
		wanted[nb] = struct{}{}
	}
	for _, current := range n.streams.Neighbors(sp) {
		if _, ok := wanted[current]; !ok {
			n.unsubscribeFromNode(current, sp)
		}
	}

	failed := n.connectNeighbors(ctx, sp, inst.Neighbors) != nil

	if !inst.IsLoneNode() {
		if err := n.streams.UpdateCounter(sp, inst.Counter); err != nil {
			logger.Debug("stream part gone during apply", "node", n.id, "streamPart", sp)
			return
		}
	}
	n.metrics.InstructionsApplied.Inc()

	if !reattempt || failed {
		n.sendStatus(ctx, sp)
	}
}

// connectNeighbors 并发连接指令列出的邻居，返回第一个失败
func (n *Node) connectNeighbors(ctx context.Context, sp types.StreamPartID, neighbors []types.NodeID) error {
	var g errgroup.Group
	for _, nb := range neighbors {
		if nb == n.id {
			continue
		}
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, n.cfg.ConnectTimeout)
			defer cancel()

			if err := n.n2n.Connect(cctx, nb); err != nil {
				logger.Debug("failed to connect neighbor", "node", n.id, "streamPart", sp, "peer", nb, "err", err)
				return fmt.Errorf("connect %s: %w", nb, err)
			}
			n.subscribeToNode(nb, sp)
			return nil
		})
	}
	return g.Wait()
}

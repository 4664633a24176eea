package tracker

import (
	"sync"

	"github.com/dep2p/go-overlay/pkg/types"
)

// InstructionCounter 记录每个 (节点, 流分区) 最后下发的指令计数器
type InstructionCounter struct {
	mu       sync.Mutex
	counters map[types.NodeID]map[types.StreamPartID]int64
}

// NewInstructionCounter 创建计数器
func NewInstructionCounter() *InstructionCounter {
	return &InstructionCounter{
		counters: make(map[types.NodeID]map[types.StreamPartID]int64),
	}
}

// SetOrIncrement 递增并返回 (node, sp) 的计数器，首次调用返回 1
func (c *InstructionCounter) SetOrIncrement(node types.NodeID, sp types.StreamPartID) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	perNode, ok := c.counters[node]
	if !ok {
		perNode = make(map[types.StreamPartID]int64)
		c.counters[node] = perNode
	}
	perNode[sp]++
	return perNode[sp]
}

// IsMostRecent 状态是否反映了最新指令
//
// 状态计数器不小于已下发值，或者是退订状态时返回 true。
func (c *InstructionCounter) IsMostRecent(status types.Status, source types.NodeID) bool {
	if status.IsUnsubscribe() {
		return true
	}
	return status.Counter >= c.Get(source, status.StreamPart)
}

// Get 返回 (node, sp) 当前计数器，未知时为 0
func (c *InstructionCounter) Get(node types.NodeID, sp types.StreamPartID) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters[node][sp]
}

// RemoveNode 删除节点在所有流分区上的计数器
func (c *InstructionCounter) RemoveNode(node types.NodeID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counters, node)
}

// RemoveNodeFromStreamPart 删除节点在某流分区上的计数器
func (c *InstructionCounter) RemoveNodeFromStreamPart(node types.NodeID, sp types.StreamPartID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	perNode, ok := c.counters[node]
	if !ok {
		return
	}
	delete(perNode, sp)
	if len(perNode) == 0 {
		delete(c.counters, node)
	}
}

// RemoveStreamPart 删除某流分区上所有节点的计数器
func (c *InstructionCounter) RemoveStreamPart(sp types.StreamPartID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for node, perNode := range c.counters {
		delete(perNode, sp)
		if len(perNode) == 0 {
			delete(c.counters, node)
		}
	}
}

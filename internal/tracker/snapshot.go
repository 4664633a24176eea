package tracker

import (
	"sort"

	"github.com/dep2p/go-overlay/pkg/types"
)

// ============================================================================
//                              只读快照
// ============================================================================

// StreamParts 拥有非空邻居图的流分区（有序）
func (t *Tracker) StreamParts() []types.StreamPartID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.streamPartsLocked()
}

// Topology 某流分区邻居图的快照
func (t *Tracker) Topology(sp types.StreamPartID) (map[types.NodeID][]types.NodeID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	topo, ok := t.overlays[sp]
	if !ok {
		return nil, false
	}
	return topo.State(), true
}

// Topologies 所有流分区邻居图的快照
func (t *Tracker) Topologies() map[types.StreamPartID]map[types.NodeID][]types.NodeID {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[types.StreamPartID]map[types.NodeID][]types.NodeID, len(t.overlays))
	for sp, topo := range t.overlays {
		out[sp] = topo.State()
	}
	return out
}

// OverlayConnectionRtts 节点上报的到各邻居的 RTT（毫秒）
func (t *Tracker) OverlayConnectionRtts() map[types.NodeID]map[types.NodeID]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[types.NodeID]map[types.NodeID]int64, len(t.rtts))
	for node, rtts := range t.rtts {
		inner := make(map[types.NodeID]int64, len(rtts))
		for n, rtt := range rtts {
			inner[n] = rtt
		}
		out[node] = inner
	}
	return out
}

// NodeLocations 节点上报的地理位置
func (t *Tracker) NodeLocations() map[types.NodeID]types.Location {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[types.NodeID]types.Location, len(t.locations))
	for node, loc := range t.locations {
		out[node] = loc
	}
	return out
}

// ExtraMetadata 节点上报的附加元数据
func (t *Tracker) ExtraMetadata() map[types.NodeID]map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[types.NodeID]map[string]string, len(t.extra))
	for node, extra := range t.extra {
		inner := make(map[string]string, len(extra))
		for k, v := range extra {
			inner[k] = v
		}
		out[node] = inner
	}
	return out
}

// Nodes 当前连接的节点（有序）
func (t *Tracker) Nodes() []types.NodeID {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]types.NodeID, 0, len(t.connected))
	for n := range t.connected {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

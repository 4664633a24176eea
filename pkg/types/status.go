package types

import "time"

// ============================================================================
//                              计数器哨兵值
// ============================================================================

const (
	// CounterUnsubscribe 状态报告哨兵值：节点已退出该流分区
	//
	// tracker 总是接受带此计数器的报告。
	CounterUnsubscribe int64 = -1

	// CounterLoneNode 指令哨兵值：节点是拓扑中唯一的节点
	//
	// node 总是应用带此计数器的指令。
	CounterLoneNode int64 = -2
)

// ============================================================================
//                              Status
// ============================================================================

// Location 节点地理位置（由外部服务提供，overlay 只做透传）
type Location struct {
	Country   string  `json:"country,omitempty"`
	City      string  `json:"city,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// Status 节点向 tracker 上报的状态
type Status struct {
	StreamPart StreamPartID
	Neighbors  []NodeID
	Counter    int64

	// Rtts 到各邻居的往返时延（毫秒），可选
	Rtts map[NodeID]int64

	// Location 节点位置，可选
	Location *Location

	// Extra 附加元数据
	Extra map[string]string

	// Started 节点启动时间
	Started time.Time
}

// IsUnsubscribe 是否为退出报告
func (s *Status) IsUnsubscribe() bool {
	return s.Counter == CounterUnsubscribe
}

// ============================================================================
//                              Instruction
// ============================================================================

// Instruction tracker 下发给节点的拓扑指令
//
// 不可变值；Counter 对每个 (NodeID, StreamPart) 严格递增。
type Instruction struct {
	NodeID     NodeID
	StreamPart StreamPartID
	Neighbors  []NodeID
	Counter    int64
}

// IsLoneNode 是否为孤立节点指令
func (i *Instruction) IsLoneNode() bool {
	return i.Counter == CounterLoneNode
}

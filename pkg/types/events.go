package types

import "time"

// ============================================================================
//                              Event - 事件接口
// ============================================================================

// Event 向上层（客户端交付层）暴露的控制事件
type Event interface {
	// Type 返回事件类型
	Type() EventType

	// Timestamp 返回事件时间戳
	Timestamp() time.Time
}

// EventType 事件类型
type EventType string

// 事件类型常量
const (
	EventNodeConnected         EventType = "node:connected"
	EventNodeDisconnected      EventType = "node:disconnected"
	EventNodeSubscribed        EventType = "node:subscribed"
	EventNodeUnsubscribed      EventType = "node:unsubscribed"
	EventMessageReceived       EventType = "node:message-received"
	EventUnseenMessageReceived EventType = "node:unseen-message-received"
)

// BaseEvent 基础事件实现
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

// Type 返回事件类型
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp 返回事件时间戳
func (e BaseEvent) Timestamp() time.Time {
	return e.Time
}

// NewBaseEvent 创建基础事件
func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		EventType: eventType,
		Time:      time.Now(),
	}
}

// ============================================================================
//                              连接事件
// ============================================================================

// NodeConnectedEvent 与邻居建立了连接
type NodeConnectedEvent struct {
	BaseEvent
	Node NodeID
}

// NodeDisconnectedEvent 与邻居的连接断开
type NodeDisconnectedEvent struct {
	BaseEvent
	Node NodeID
}

// ============================================================================
//                              订阅事件
// ============================================================================

// NodeSubscribedEvent 邻居加入本节点在某流分区上的邻居集合
type NodeSubscribedEvent struct {
	BaseEvent
	Node       NodeID
	StreamPart StreamPartID
}

// NodeUnsubscribedEvent 邻居离开本节点在某流分区上的邻居集合
type NodeUnsubscribedEvent struct {
	BaseEvent
	Node       NodeID
	StreamPart StreamPartID
}

// ============================================================================
//                              消息事件
// ============================================================================

// MessageReceivedEvent 收到原始消息（去重之前）
//
// Source 为 nil 表示本节点自己发布的消息。
type MessageReceivedEvent struct {
	BaseEvent
	Message *StreamMessage
	Source  *NodeID
}

// UnseenMessageReceivedEvent 收到首次出现的消息（去重之后）
type UnseenMessageReceivedEvent struct {
	BaseEvent
	Message *StreamMessage
	Source  *NodeID
}

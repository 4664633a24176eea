package types

import (
	"fmt"

	"github.com/google/uuid"
)

// ============================================================================
//                              MessageRef
// ============================================================================

// MessageRef 消息编号 (timestamp, sequenceNumber)
//
// 同一 (流分区, 发布者, 消息链) 内按字典序单调递增。
type MessageRef struct {
	Timestamp      int64
	SequenceNumber int64
}

// Compare 比较两个编号
//
// 返回 -1 / 0 / 1。
func (r MessageRef) Compare(other MessageRef) int {
	switch {
	case r.Timestamp < other.Timestamp:
		return -1
	case r.Timestamp > other.Timestamp:
		return 1
	case r.SequenceNumber < other.SequenceNumber:
		return -1
	case r.SequenceNumber > other.SequenceNumber:
		return 1
	default:
		return 0
	}
}

// String 返回 "timestamp|seq" 形式
func (r MessageRef) String() string {
	return fmt.Sprintf("%d|%d", r.Timestamp, r.SequenceNumber)
}

// ============================================================================
//                              MessageID
// ============================================================================

// MessageID 消息标识
type MessageID struct {
	StreamPart     StreamPartID
	Timestamp      int64
	SequenceNumber int64
	PublisherID    string
	MsgChainID     string
}

// Ref 返回消息自身的编号
func (id MessageID) Ref() MessageRef {
	return MessageRef{Timestamp: id.Timestamp, SequenceNumber: id.SequenceNumber}
}

// String 返回可读的消息标识
func (id MessageID) String() string {
	return fmt.Sprintf("%s/%d/%d/%s/%s", id.StreamPart, id.Timestamp, id.SequenceNumber, id.PublisherID, id.MsgChainID)
}

// NewMsgChainID 生成新的消息链标识
func NewMsgChainID() string {
	return uuid.NewString()
}

// ============================================================================
//                              StreamMessage
// ============================================================================

// StreamMessage 流消息
//
// 内容对 overlay 不透明。PrevMsgRef 为 nil 表示发布者没有提供前序编号。
type StreamMessage struct {
	ID         MessageID
	PrevMsgRef *MessageRef
	Content    []byte
}

// StreamPart 返回消息所属的流分区
func (m *StreamMessage) StreamPart() StreamPartID {
	return m.ID.StreamPart
}

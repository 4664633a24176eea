package types

import (
	"fmt"
	"strconv"
	"strings"
)

// ============================================================================
//                              NodeID
// ============================================================================

// NodeID 节点标识
//
// 在一次连接会话内保持稳定的不透明字符串。
type NodeID string

// String 返回字符串表示
func (id NodeID) String() string {
	return string(id)
}

// IsEmpty 检查是否为空
func (id NodeID) IsEmpty() bool {
	return id == ""
}

// NodeIDsToStrings 转换为字符串切片
func NodeIDsToStrings(ids []NodeID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

// StringsToNodeIDs 从字符串切片转换
func StringsToNodeIDs(ss []string) []NodeID {
	out := make([]NodeID, len(ss))
	for i, s := range ss {
		out[i] = NodeID(s)
	}
	return out
}

// ============================================================================
//                              StreamPartID
// ============================================================================

// StreamID 流标识（主题名）
type StreamID string

// streamPartSeparator 流分区键分隔符
const streamPartSeparator = "#"

// StreamPartID 流分区标识
//
// 由主题名和数字分区组成，作为所有按主题划分状态的 map 键。
type StreamPartID struct {
	StreamID  StreamID
	Partition int
}

// NewStreamPartID 创建流分区标识
func NewStreamPartID(stream StreamID, partition int) StreamPartID {
	return StreamPartID{StreamID: stream, Partition: partition}
}

// String 返回 "stream#partition" 形式的键
func (sp StreamPartID) String() string {
	return string(sp.StreamID) + streamPartSeparator + strconv.Itoa(sp.Partition)
}

// Validate 校验流分区标识
func (sp StreamPartID) Validate() error {
	if sp.StreamID == "" {
		return ErrEmptyStreamID
	}
	if sp.Partition < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPartition, sp.Partition)
	}
	return nil
}

// ParseStreamPartID 解析 "stream#partition" 形式的键
//
// 流名本身可以包含 '#'，以最后一个分隔符为准。
func ParseStreamPartID(key string) (StreamPartID, error) {
	idx := strings.LastIndex(key, streamPartSeparator)
	if idx <= 0 {
		return StreamPartID{}, fmt.Errorf("%w: %q", ErrInvalidStreamPartID, key)
	}
	partition, err := strconv.Atoi(key[idx+1:])
	if err != nil {
		return StreamPartID{}, fmt.Errorf("%w: %q", ErrInvalidStreamPartID, key)
	}
	sp := StreamPartID{StreamID: StreamID(key[:idx]), Partition: partition}
	if err := sp.Validate(); err != nil {
		return StreamPartID{}, err
	}
	return sp, nil
}

package types

import "errors"

// ============================================================================
//                              ID 相关错误
// ============================================================================

var (
	// ErrEmptyStreamID 空流标识
	ErrEmptyStreamID = errors.New("empty stream ID")

	// ErrInvalidPartition 无效分区
	ErrInvalidPartition = errors.New("invalid partition")

	// ErrInvalidStreamPartID 无效的流分区键
	ErrInvalidStreamPartID = errors.New("invalid stream part ID")

	// ErrEmptyNodeID 空节点标识
	ErrEmptyNodeID = errors.New("empty node ID")
)

// ============================================================================
//                              连接相关错误
// ============================================================================

var (
	// ErrNotConnected 未连接
	ErrNotConnected = errors.New("not connected")

	// ErrConnectTimeout 连接超时
	ErrConnectTimeout = errors.New("connect timeout")

	// ErrTransportClosed 传输层已关闭
	ErrTransportClosed = errors.New("transport closed")
)

// ============================================================================
//                              发送错误
// ============================================================================

// SendError 向某个 peer 发送数据失败
type SendError struct {
	Peer  NodeID
	Cause error
}

func (e *SendError) Error() string {
	return "send to " + string(e.Peer) + ": " + e.Cause.Error()
}

func (e *SendError) Unwrap() error {
	return e.Cause
}

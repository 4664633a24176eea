package node

import "errors"

var (
	// ErrStopped 节点已停止
	ErrStopped = errors.New("node: stopped")

	// ErrNilMessage 发布了空消息
	ErrNilMessage = errors.New("node: nil message")
)

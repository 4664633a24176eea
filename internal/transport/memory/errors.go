package memory

import "errors"

var (
	// ErrUnknownPeer 网络中没有该 ID 的端点
	ErrUnknownPeer = errors.New("memory: unknown peer")

	// ErrDuplicateID ID 已被占用
	ErrDuplicateID = errors.New("memory: duplicate id")

	// ErrSelfConnect 不能连接自己
	ErrSelfConnect = errors.New("memory: cannot connect to self")

	// ErrLinkDown 链路被测试注入为不可达
	ErrLinkDown = errors.New("memory: link down")
)

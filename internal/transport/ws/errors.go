package ws

import "errors"

var (
	// ErrMissingNodeID 握手请求缺少节点 ID
	ErrMissingNodeID = errors.New("ws: missing node id header")

	// ErrSelfConnect 不能连接自己
	ErrSelfConnect = errors.New("ws: cannot connect to self")
)

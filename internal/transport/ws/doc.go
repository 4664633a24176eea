// Package ws 基于 gorilla/websocket 的传输实现
//
// 路径约定：
//
//	ws://<tracker>/tracker   节点 → tracker（状态上行，指令下行）
//	ws://<node-id>/node      节点 ↔ 节点（数据帧）
//
// 拨号方通过 HeaderNodeID 请求头声明自己的节点 ID。节点 ID 即对外可
// 拨号的 host:port。每条连接一个读 goroutine，帧格式见 internal/protocol/wire。
//
// 两个节点同时互相拨号时，双方都保留由较小 ID 发起的那条连接。
package ws

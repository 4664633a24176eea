// Package wire 定义 node 与 tracker 之间、node 与 node 之间的帧编码
//
// 每个帧是一条 protobuf 兼容的消息：
//
//	field 1 (varint) 帧类型
//	field 2 (bytes)  载荷
//
// 载荷按帧类型分别编码（见 codec.go 中各 append 函数的字段表）。
// 解码时跳过未知字段，便于后续扩展。
package wire

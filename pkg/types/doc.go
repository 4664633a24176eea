// Package types 定义 overlay 的公共数据结构
//
// 这是整个系统的最底层包，不依赖任何其他内部包。
// 所有类型都是值类型，用于在 tracker、node、传输层之间传递数据。
//
// # 文件组织
//
//   - ids.go     - NodeID, StreamID, StreamPartID
//   - message.go - MessageRef, MessageID, StreamMessage
//   - status.go  - Status, Instruction, 计数器哨兵值
//   - events.go  - 向上层暴露的控制事件
//   - errors.go  - 公共错误定义
//
// # 与 wire 的区别
//
// pkg/types 定义内存结构，internal/protocol/wire 定义网络帧格式。
package types

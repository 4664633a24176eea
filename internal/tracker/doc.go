// Package tracker 实现 tracker：收集节点状态，维护每个流分区的邻居图，
// 并以防抖批量的方式向节点下发邻居指令
//
// # 数据流
//
//	节点状态 -> InstructionCounter 过滤过期状态
//	         -> overlay.Topology 更新并计算修正
//	         -> InstructionSender 按流分区防抖后发送
//
// # 计数器
//
// 每条指令携带 (节点, 流分区) 维度单调递增的计数器，节点在状态中回显
// 最后应用的计数器。计数器小于 tracker 已下发值的状态说明节点尚未看到
// 最新指令，被视为过期并忽略。特殊值：
//   - types.CounterUnsubscribe：节点离开流分区，总是接受
//   - types.CounterLoneNode：下发给流分区中唯一节点的空指令
//
// # 并发
//
// Tracker 的所有状态由一把互斥锁保护；指令发送在防抖定时器的 goroutine
// 中进行，不持有 Tracker 的锁。
package tracker

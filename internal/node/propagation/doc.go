// Package propagation 实现节点侧的消息传播
//
// 新消息被发送给同一流分区的所有邻居（来源除外），并作为传播任务
// 保留一段时间：在任务完成前加入的新邻居也会收到该消息。任务在
// 确认数达到 MinPropagationTargets、超过 TTL 或被容量淘汰时结束。
//
// 任务存储是带 TTL 的有界 FIFO，只使用 Peek 访问，插入顺序即淘汰顺序。
package propagation

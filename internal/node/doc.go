// Package node 实现 overlay 节点
//
// Node 把各子组件粘合在一起：
//   - streampart.Manager 记录本节点参与的流分区、邻居与去重状态
//   - instruction.Throttler / RetryManager 应用与重试 tracker 指令
//   - propagation.Propagation 把首次出现的消息转发给邻居
//
// 传输层通过 interfaces.NodeToNode 与 interfaces.NodeToTracker 注入，
// 回调在传输层的 goroutine 上执行。控制事件经 interfaces.EventBus 向上层发布。
//
// 使用示例：
//
//	n := node.New(node.DefaultConfig(), n2n, trackerClient)
//	if err := n.Start(ctx); err != nil { ... }
//	defer n.Stop()
//	n.Subscribe(types.NewStreamPartID("stream", 0))
package node

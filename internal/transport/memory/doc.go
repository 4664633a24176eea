// Package memory 实现进程内传输
//
// Network 是一个进程内的 "网络"：节点端点、tracker 服务端与 tracker
// 客户端都在其上按 ID 注册。所有帧经过 wire 编解码，接收方的回调在
// 接收方自己的有序队列上串行执行，不在发送方的调用栈内执行。
//
// 用于多节点集成测试与本地模拟：
//
//	net := memory.NewNetwork()
//	server := net.NewTrackerServer("tracker")
//	ep := net.NewNodeEndpoint("node-1")
//	client := net.NewTrackerClient("node-1", "tracker")
package memory

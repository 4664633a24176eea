// Package overlay 提供 tracker 协调的流数据覆盖网络
//
// 网络由一个 tracker 与若干节点组成。节点把自己加入的流分区上报给
// tracker，tracker 为每个流分区维护一张度数有上限的邻居图，并通过指令
// 告诉每个节点应连接哪些邻居。数据消息沿邻居图以 gossip 方式传播，
// 每个节点对消息去重并检测消息链中的缺口。
//
// # 核心概念
//
//   - Tracker: 邻居图的协调者，接收状态、下发指令
//   - Node: 覆盖网络成员，加入流分区、发布与转发消息
//   - StreamPartID: 流 ID 与分区号组成的覆盖网络单元
//
// # 快速开始
//
//	import "github.com/dep2p/go-overlay"
//
//	// 1. 启动 tracker
//	tr, err := overlay.NewTracker(config.NewTrackerConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := tr.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer tr.Close()
//
//	// 2. 启动节点并加入流分区
//	cfg := config.NewNodeConfig()
//	cfg.ID = "127.0.0.1:30400"
//	n, err := overlay.NewNode(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := n.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer n.Close()
//
//	sp := types.NewStreamPartID("sensors", 0)
//	_ = n.Subscribe(sp)
//
//	// 3. 接收首次出现的消息
//	sub, _ := n.Events(types.EventUnseenMessageReceived)
//	for ev := range sub.Out() {
//	    msg := ev.(*types.UnseenMessageReceivedEvent).Message
//	    fmt.Println(msg.ID, string(msg.Content))
//	}
//
// # 架构
//
//	┌─────────────────────────────────────────────────────────────────┐
//	│  入口层     overlay.Tracker / overlay.Node（Fx 应用门面）         │
//	├─────────────────────────────────────────────────────────────────┤
//	│  协调层     internal/tracker（邻居图、指令计数、指令下发）          │
//	│  节点层     internal/node（成员表、去重、指令应用、传播）           │
//	├─────────────────────────────────────────────────────────────────┤
//	│  传输层     internal/transport/ws / memory，internal/protocol/wire │
//	├─────────────────────────────────────────────────────────────────┤
//	│  支撑层     config、metrics、eventbus、introspect、pkg/lib/log     │
//	└─────────────────────────────────────────────────────────────────┘
//
// # 进程内网络
//
// 测试与模拟可以通过 WithTrackerServer / WithNodeTransports 注入
// internal/transport/memory 的传输，不占用任何端口。
package overlay

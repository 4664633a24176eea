// Package introspect 提供本地自省 HTTP 服务
//
// tracker 与节点进程都可以启用，提供 JSON 格式的拓扑与运行状态，
// 以及 Prometheus 指标。默认绑定到 127.0.0.1，不暴露到网络。
//
// # 端点
//
//	GET /topology              - 所有流分区的邻居图（tracker）或本节点的邻居（节点）
//	GET /topology/{streamPart} - 单个流分区，streamPart 形如 "stream%230"
//	GET /rtts                  - 各节点上报的邻居 RTT（tracker）
//	GET /locations             - 各节点上报的位置（tracker）
//	GET /node                  - 本节点概况（节点）
//	GET /metrics               - Prometheus 指标
//	GET /debug/pprof/*         - Go pprof 端点
//	GET /health                - 健康检查
//
// # 使用示例
//
//	server := introspect.New(introspect.Config{
//	    Addr:     "127.0.0.1:6060",
//	    Tracker:  tr,
//	    Gatherer: reg,
//	})
//	server.Start(ctx)
//	defer server.Stop()
//
// 通过 config.Diagnostics.EnableIntrospect 配置启用。
package introspect

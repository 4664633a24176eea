package node

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-overlay/internal/metrics"
	"github.com/dep2p/go-overlay/pkg/interfaces"
)

// ============================================================================
// Fx 模块
// ============================================================================

// Module 返回 Fx 模块
//
// 依赖 *config.NodeConfig、两个节点侧传输与 EventBus。
func Module() fx.Option {
	return fx.Module("node",
		fx.Provide(
			ConfigFromUnified,
			ProvideMetrics,
			ProvideNode,
		),
		fx.Invoke(registerLifecycle),
	)
}

// metricsInput 指标输入参数
type metricsInput struct {
	fx.In
	Registerer prometheus.Registerer `optional:"true"`
}

// ProvideMetrics 提供节点指标；没有 Registerer 时不注册
func ProvideMetrics(input metricsInput) *metrics.Node {
	return metrics.NewNode(input.Registerer)
}

// nodeInput 节点输入参数
type nodeInput struct {
	fx.In
	Config  Config
	N2N     interfaces.NodeToNode
	Tracker interfaces.NodeToTracker
	Bus     interfaces.EventBus
	Metrics *metrics.Node
}

// ProvideNode 提供节点
func ProvideNode(input nodeInput) *Node {
	return New(input.Config, input.N2N, input.Tracker,
		WithEventBus(input.Bus),
		WithMetrics(input.Metrics),
	)
}

// registerLifecycle 启动时连接 tracker，停止时关闭节点与传输
func registerLifecycle(lc fx.Lifecycle, n *Node) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return n.Start(ctx)
		},
		OnStop: func(_ context.Context) error {
			return n.Stop()
		},
	})
}

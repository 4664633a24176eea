package tracker

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
// 依赖 *config.TrackerConfig 与 interfaces.TrackerServer。
func Module() fx.Option {
	return fx.Module("tracker",
		fx.Provide(
			ConfigFromUnified,
			ProvideMetrics,
			ProvideTracker,
		),
		fx.Invoke(registerLifecycle),
	)
}

// metricsInput 指标输入参数
type metricsInput struct {
	fx.In
	Registerer prometheus.Registerer `optional:"true"`
}

// ProvideMetrics 提供 tracker 指标；没有 Registerer 时不注册
func ProvideMetrics(input metricsInput) *metrics.Tracker {
	return metrics.NewTracker(input.Registerer)
}

// ProvideTracker 提供 tracker 并注册为 server 的回调
func ProvideTracker(cfg Config, server interfaces.TrackerServer, m *metrics.Tracker) *Tracker {
	return New(cfg, server, WithMetrics(m))
}

// registerLifecycle 停止时先停止 tracker 再关闭传输
func registerLifecycle(lc fx.Lifecycle, t *Tracker, server interfaces.TrackerServer) {
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			t.Stop()
			return server.Close()
		},
	})
}

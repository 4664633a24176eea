package eventbus

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-overlay/pkg/interfaces"
)

// ============================================================================
// Fx 模块
// ============================================================================

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("eventbus",
		fx.Provide(ProvideEventBus),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideEventBus 提供 EventBus 实例
func ProvideEventBus() interfaces.EventBus {
	return NewBus()
}

// registerLifecycle 停止时关闭全部订阅
func registerLifecycle(lc fx.Lifecycle, bus interfaces.EventBus) {
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return bus.Close()
		},
	})
}

package overlay

import (
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-overlay/config"
	"github.com/dep2p/go-overlay/internal/eventbus"
	"github.com/dep2p/go-overlay/internal/introspect"
	"github.com/dep2p/go-overlay/internal/metrics"
	"github.com/dep2p/go-overlay/internal/node"
	"github.com/dep2p/go-overlay/internal/tracker"
	"github.com/dep2p/go-overlay/internal/transport/ws"
	"github.com/dep2p/go-overlay/pkg/interfaces"
)

// buildTrackerApp 构建 tracker 的 Fx 应用
//
// 加载顺序（按依赖）：
//  1. 配置与指标 registry
//  2. 传输：websocket 服务端或外部注入的服务端
//  3. tracker 与可选的自省服务
func buildTrackerApp(cfg *config.TrackerConfig, o *options, t *Tracker) (*fx.App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	modules := []fx.Option{
		fx.Supply(cfg),
		metrics.Module(),
	}

	if o.trackerServer != nil {
		server := o.trackerServer
		modules = append(modules, fx.Provide(func() interfaces.TrackerServer { return server }))
	} else {
		modules = append(modules, ws.TrackerModule())
	}

	modules = append(modules, tracker.Module())

	if cfg.Diagnostics.EnableIntrospect {
		modules = append(modules, introspect.Module())
	}

	modules = append(modules, o.fxOptions...)
	modules = append(modules,
		fx.Populate(&t.tracker, &t.server, &t.gatherer),
		fx.WithLogger(silentFxLogger),
	)
	if cfg.Diagnostics.EnableIntrospect {
		modules = append(modules, fx.Populate(&t.introspect))
	}

	return fx.New(modules...), nil
}

// buildNodeApp 构建节点的 Fx 应用
func buildNodeApp(cfg *config.NodeConfig, o *options, n *Node) (*fx.App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	modules := []fx.Option{
		fx.Supply(cfg),
		metrics.Module(),
		eventbus.Module(),
	}

	if o.n2n != nil {
		n2n, client := o.n2n, o.trackerClient
		modules = append(modules, fx.Provide(
			func() interfaces.NodeToNode { return n2n },
			func() interfaces.NodeToTracker { return client },
		))
	} else {
		if cfg.ID == "" {
			return nil, fmt.Errorf("%w: node id is empty", config.ErrInvalidConfig)
		}
		modules = append(modules, ws.NodeModule())
	}

	modules = append(modules, node.Module())

	if cfg.Diagnostics.EnableIntrospect {
		modules = append(modules, introspect.Module())
	}

	modules = append(modules, o.fxOptions...)
	modules = append(modules,
		fx.Populate(&n.node, &n.gatherer),
		fx.WithLogger(silentFxLogger),
	)
	if cfg.Diagnostics.EnableIntrospect {
		modules = append(modules, fx.Populate(&n.introspect))
	}

	return fx.New(modules...), nil
}

// silentFxLogger 关闭 Fx 自身的事件日志
func silentFxLogger() fxevent.Logger {
	return &fxevent.ZapLogger{Logger: zap.NewNop()}
}

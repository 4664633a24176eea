package introspect

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-overlay/config"
	"github.com/dep2p/go-overlay/internal/node"
	"github.com/dep2p/go-overlay/internal/tracker"
)

// Module 返回自省服务 Fx 模块
func Module() fx.Option {
	return fx.Module("introspect",
		fx.Provide(NewFromParams),
		fx.Invoke(registerLifecycle),
	)
}

// Params 自省服务依赖参数
type Params struct {
	fx.In

	TrackerConfig *config.TrackerConfig `optional:"true"`
	NodeConfig    *config.NodeConfig    `optional:"true"`
	Tracker       *tracker.Tracker      `optional:"true"`
	Node          *node.Node            `optional:"true"`
	Gatherer      prometheus.Gatherer   `optional:"true"`
}

// Output 自省服务输出
type Output struct {
	fx.Out

	Server *Server `optional:"true"`
}

// ConfigFromUnified 从诊断配置创建服务配置；未启用时返回 nil
func ConfigFromUnified(cfg config.DiagnosticsConfig) *Config {
	if !cfg.EnableIntrospect {
		return nil
	}
	addr := cfg.IntrospectAddr
	if addr == "" {
		addr = DefaultAddr
	}
	return &Config{Addr: addr}
}

// NewFromParams 从参数创建自省服务
func NewFromParams(params Params) Output {
	var cfg *Config
	switch {
	case params.TrackerConfig != nil:
		cfg = ConfigFromUnified(params.TrackerConfig.Diagnostics)
	case params.NodeConfig != nil:
		cfg = ConfigFromUnified(params.NodeConfig.Diagnostics)
	}
	if cfg == nil {
		return Output{}
	}

	if params.Tracker != nil {
		cfg.Tracker = params.Tracker
	}
	if params.Node != nil {
		cfg.Node = params.Node
	}
	cfg.Gatherer = params.Gatherer
	return Output{Server: New(*cfg)}
}

// registerLifecycle 注册生命周期钩子
func registerLifecycle(lc fx.Lifecycle, server *Server) {
	if server == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return server.Start(ctx)
		},
		OnStop: func(_ context.Context) error {
			return server.Stop()
		},
	})
}

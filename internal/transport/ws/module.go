package ws

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-overlay/config"
	"github.com/dep2p/go-overlay/pkg/interfaces"
	"github.com/dep2p/go-overlay/pkg/types"
)

// ============================================================================
// Fx 模块
// ============================================================================

// TrackerModule 提供 websocket tracker 服务端
//
// 服务端由 tracker 模块在停止时关闭。
func TrackerModule() fx.Option {
	return fx.Module("transport/ws/tracker",
		fx.Provide(ProvideTrackerServer),
	)
}

// NodeModule 提供节点侧的两个 websocket 传输
//
// 传输由节点在停止时关闭。
func NodeModule() fx.Option {
	return fx.Module("transport/ws/node",
		fx.Provide(
			ProvideNodeEndpoint,
			ProvideTrackerClient,
		),
	)
}

// ProvideTrackerServer 在配置的地址上监听
func ProvideTrackerServer(cfg *config.TrackerConfig) (interfaces.TrackerServer, error) {
	return ListenTracker(ConfigFromUnified(cfg.Transport), cfg.ListenAddr)
}

// ProvideNodeEndpoint 在配置的地址上监听节点连接
func ProvideNodeEndpoint(cfg *config.NodeConfig) (interfaces.NodeToNode, error) {
	return ListenNode(ConfigFromUnified(cfg.Transport), cfg.ListenAddr, types.NodeID(cfg.ID))
}

// ProvideTrackerClient 以节点 ID 连接配置的 tracker
func ProvideTrackerClient(cfg *config.NodeConfig, n2n interfaces.NodeToNode) interfaces.NodeToTracker {
	return NewTrackerClient(ConfigFromUnified(cfg.Transport), n2n.LocalID(), cfg.TrackerURL)
}

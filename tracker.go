package overlay

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-overlay/config"
	"github.com/dep2p/go-overlay/internal/introspect"
	"github.com/dep2p/go-overlay/internal/tracker"
	"github.com/dep2p/go-overlay/pkg/interfaces"
	"github.com/dep2p/go-overlay/pkg/types"
)

// Tracker 覆盖网络的协调者
type Tracker struct {
	runner

	tracker    *tracker.Tracker
	server     interfaces.TrackerServer
	gatherer   prometheus.Gatherer
	introspect *introspect.Server
}

// NewTracker 创建 tracker
//
// 默认在 cfg.ListenAddr 上监听 websocket；构造完成时端口已被占用。
func NewTracker(cfg *config.TrackerConfig, opts ...Option) (*Tracker, error) {
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}

	t := &Tracker{}
	app, err := buildTrackerApp(cfg, o, t)
	if err != nil {
		return nil, err
	}
	if err := app.Err(); err != nil {
		return nil, fmt.Errorf("build tracker: %w", err)
	}
	t.runner = runner{
		name: "tracker",
		app:  app,
		abandon: func() error {
			t.tracker.Stop()
			return t.server.Close()
		},
	}
	return t, nil
}

// Start 启动 tracker
func (t *Tracker) Start(ctx context.Context) error {
	return t.start(ctx)
}

// Close 停止 tracker 并关闭传输，可重复调用
func (t *Tracker) Close() error {
	return t.close()
}

// URL 节点连接 tracker 的地址；非 websocket 传输返回空串
func (t *Tracker) URL() string {
	if s, ok := t.server.(interface{ URL() string }); ok {
		return s.URL()
	}
	return ""
}

// IntrospectAddr 自省服务的实际监听地址；未启用时返回空串
func (t *Tracker) IntrospectAddr() string {
	if t.introspect == nil {
		return ""
	}
	return t.introspect.Addr()
}

// Gatherer 指标 registry
func (t *Tracker) Gatherer() prometheus.Gatherer {
	return t.gatherer
}

// ════════════════════════════════════════════════════════════════════════════
//                              拓扑快照
// ════════════════════════════════════════════════════════════════════════════

// StreamParts 当前有成员的流分区
func (t *Tracker) StreamParts() []types.StreamPartID {
	return t.tracker.StreamParts()
}

// Topology 流分区的邻接表快照
func (t *Tracker) Topology(sp types.StreamPartID) (map[types.NodeID][]types.NodeID, bool) {
	return t.tracker.Topology(sp)
}

// Topologies 所有流分区的邻接表快照
func (t *Tracker) Topologies() map[types.StreamPartID]map[types.NodeID][]types.NodeID {
	return t.tracker.Topologies()
}

// Nodes 当前连接的节点
func (t *Tracker) Nodes() []types.NodeID {
	return t.tracker.Nodes()
}

// OverlayConnectionRtts 节点上报的邻居 RTT（毫秒）
func (t *Tracker) OverlayConnectionRtts() map[types.NodeID]map[types.NodeID]int64 {
	return t.tracker.OverlayConnectionRtts()
}

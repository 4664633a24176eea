package node

import (
	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-overlay/internal/eventbus"
	"github.com/dep2p/go-overlay/internal/metrics"
	"github.com/dep2p/go-overlay/pkg/interfaces"
)

// Option 节点选项
type Option func(*options)

type options struct {
	clock   clock.Clock
	metrics *metrics.Node
	bus     interfaces.EventBus
}

func newOptions(opts []Option) *options {
	o := &options{clock: clock.New()}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = metrics.NewNode(nil)
	}
	if o.bus == nil {
		o.bus = eventbus.NewBus()
	}
	return o
}

// WithClock 设置时钟（测试中使用 clock.NewMock()）
func WithClock(clk clock.Clock) Option {
	return func(o *options) {
		if clk != nil {
			o.clock = clk
		}
	}
}

// WithMetrics 设置指标
func WithMetrics(m *metrics.Node) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithEventBus 设置事件总线；未设置时使用私有总线
func WithEventBus(bus interfaces.EventBus) Option {
	return func(o *options) {
		o.bus = bus
	}
}

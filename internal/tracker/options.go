package tracker

import (
	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-overlay/internal/metrics"
	"github.com/dep2p/go-overlay/internal/tracker/overlay"
)

// Option tracker 与 InstructionSender 共用的选项
type Option func(*options)

type options struct {
	clock   clock.Clock
	shuffle overlay.ShuffleFunc
	metrics *metrics.Tracker
}

func newOptions(opts []Option) *options {
	o := &options{
		clock:   clock.New(),
		shuffle: overlay.RandomShuffle,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = metrics.NewTracker(nil)
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

// WithShuffle 设置邻居图的打乱函数
func WithShuffle(shuffle overlay.ShuffleFunc) Option {
	return func(o *options) {
		if shuffle != nil {
			o.shuffle = shuffle
		}
	}
}

// WithMetrics 设置指标
func WithMetrics(m *metrics.Tracker) Option {
	return func(o *options) {
		o.metrics = m
	}
}

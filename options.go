package overlay

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-overlay/pkg/interfaces"
)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	// 外部提供的 tracker 服务端；为空时按配置监听 websocket
	trackerServer interfaces.TrackerServer

	// 外部提供的节点侧传输；为空时按配置监听 websocket
	n2n           interfaces.NodeToNode
	trackerClient interfaces.NodeToTracker

	// 用户自定义 Fx 选项
	fxOptions []fx.Option
}

func newOptions(opts []Option) (*options, error) {
	o := &options{}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// WithTrackerServer 使用给定的 tracker 服务端代替 websocket 监听
//
// 服务端在 tracker 停止时关闭。
func WithTrackerServer(server interfaces.TrackerServer) Option {
	return func(o *options) error {
		if server == nil {
			return ErrNilOption
		}
		o.trackerServer = server
		return nil
	}
}

// WithNodeTransports 使用给定的节点侧传输代替 websocket
//
// 节点 ID 取 n2n.LocalID()，传输在节点停止时关闭。
func WithNodeTransports(n2n interfaces.NodeToNode, tracker interfaces.NodeToTracker) Option {
	return func(o *options) error {
		if n2n == nil || tracker == nil {
			return ErrNilOption
		}
		o.n2n = n2n
		o.trackerClient = tracker
		return nil
	}
}

// WithFxOptions 追加 Fx 选项
//
// 用于替换或补充内部组件，例如在测试中注入自定义 Registerer。
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) error {
		o.fxOptions = append(o.fxOptions, opts...)
		return nil
	}
}

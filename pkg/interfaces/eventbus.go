package interfaces

import "github.com/dep2p/go-overlay/pkg/types"

// EventBus 节点事件总线
//
// 订阅按事件类型过滤；慢消费者的事件被丢弃，不会阻塞发布者。
type EventBus interface {
	// Subscribe 订阅一个或多个事件类型；不指定类型则接收全部事件
	Subscribe(eventTypes []types.EventType, opts ...SubscriptionOpt) (Subscription, error)

	// Emit 发布事件
	Emit(event types.Event)

	// Close 关闭总线及其所有订阅
	Close() error
}

// Subscription 事件订阅
type Subscription interface {
	// Out 事件通道，订阅关闭后被关闭
	Out() <-chan types.Event

	// Close 取消订阅，可重复调用
	Close() error
}

// SubscriptionOpt 订阅选项
type SubscriptionOpt func(*SubscriptionSettings)

// SubscriptionSettings 订阅设置
type SubscriptionSettings struct {
	Buffer int
}

// BufSize 设置订阅缓冲区大小
func BufSize(size int) SubscriptionOpt {
	return func(s *SubscriptionSettings) {
		s.Buffer = size
	}
}

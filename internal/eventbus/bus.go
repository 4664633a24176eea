// Package eventbus 实现节点事件总线
//
// 订阅者按事件类型注册；发布时事件只投递给关心该类型的订阅者。
// 订阅缓冲区满时事件被丢弃并计数，发布者永不阻塞。
package eventbus

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dep2p/go-overlay/pkg/interfaces"
	"github.com/dep2p/go-overlay/pkg/lib/log"
	"github.com/dep2p/go-overlay/pkg/types"
)

var logger = log.Logger("eventbus")

// ============================================================================
// 错误定义
// ============================================================================

var (
	// ErrClosed 事件总线已关闭
	ErrClosed = errors.New("eventbus: closed")
)

// 默认订阅缓冲区大小
const defaultBuffer = 64

// ============================================================================
// Bus 实现
// ============================================================================

// Bus 事件总线
type Bus struct {
	mu sync.RWMutex

	// byType 事件类型 -> 订阅者
	byType map[types.EventType][]*Subscription

	// wildcard 接收全部事件的订阅者
	wildcard []*Subscription

	closed    bool
	dropCount atomic.Int64
}

var _ interfaces.EventBus = (*Bus)(nil)

// NewBus 创建事件总线
func NewBus() *Bus {
	return &Bus{
		byType: make(map[types.EventType][]*Subscription),
	}
}

// Subscribe 订阅事件
func (b *Bus) Subscribe(eventTypes []types.EventType, opts ...interfaces.SubscriptionOpt) (interfaces.Subscription, error) {
	settings := &interfaces.SubscriptionSettings{Buffer: defaultBuffer}
	for _, opt := range opts {
		opt(settings)
	}
	if settings.Buffer < 0 {
		settings.Buffer = 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	sub := &Subscription{
		bus:   b,
		types: append([]types.EventType(nil), eventTypes...),
		out:   make(chan types.Event, settings.Buffer),
	}
	if len(eventTypes) == 0 {
		b.wildcard = append(b.wildcard, sub)
	} else {
		for _, t := range eventTypes {
			b.byType[t] = append(b.byType[t], sub)
		}
	}
	return sub, nil
}

// Emit 发布事件
func (b *Bus) Emit(event types.Event) {
	if event == nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, sub := range b.byType[event.Type()] {
		b.deliver(sub, event)
	}
	for _, sub := range b.wildcard {
		b.deliver(sub, event)
	}
}

// Dropped 因缓冲区满丢弃的事件总数
func (b *Bus) Dropped() int64 {
	return b.dropCount.Load()
}

// Close 关闭总线及全部订阅
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true

	seen := make(map[*Subscription]struct{})
	var subs []*Subscription
	collect := func(list []*Subscription) {
		for _, s := range list {
			if _, ok := seen[s]; !ok {
				seen[s] = struct{}{}
				subs = append(subs, s)
			}
		}
	}
	for _, list := range b.byType {
		collect(list)
	}
	collect(b.wildcard)
	b.byType = make(map[types.EventType][]*Subscription)
	b.wildcard = nil
	b.mu.Unlock()

	for _, s := range subs {
		s.closeChannel()
	}
	return nil
}

// ============================================================================
// 内部方法
// ============================================================================

// deliver 非阻塞投递；调用方持有读锁
func (b *Bus) deliver(sub *Subscription, event types.Event) {
	if sub.closed.Load() {
		return
	}
	select {
	case sub.out <- event:
	default:
		dropped := b.dropCount.Add(1)

		// 每丢弃 100 个事件警告一次，避免日志泛滥
		if dropped%100 == 1 {
			logger.Warn("slow subscriber",
				"dropped", dropped,
				"type", event.Type())
		}
	}
}

// removeSub 移除订阅
func (b *Bus) removeSub(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(sub.types) == 0 {
		b.wildcard = without(b.wildcard, sub)
		return
	}
	for _, t := range sub.types {
		list := without(b.byType[t], sub)
		if len(list) == 0 {
			delete(b.byType, t)
		} else {
			b.byType[t] = list
		}
	}
}

func without(list []*Subscription, sub *Subscription) []*Subscription {
	for i, s := range list {
		if s == sub {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}

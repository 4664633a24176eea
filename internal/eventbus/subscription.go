package eventbus

import (
	"sync"
	"sync/atomic"

	"github.com/dep2p/go-overlay/pkg/interfaces"
	"github.com/dep2p/go-overlay/pkg/types"
)

// Subscription 订阅
type Subscription struct {
	bus       *Bus
	types     []types.EventType
	out       chan types.Event
	closeOnce sync.Once
	closed    atomic.Bool
}

var _ interfaces.Subscription = (*Subscription)(nil)

// Out 返回事件通道
func (s *Subscription) Out() <-chan types.Event {
	return s.out
}

// Close 取消订阅
//
// 并发安全，可多次调用。先从总线摘除再关闭通道，
// 因此关闭之后不会再有投递。
func (s *Subscription) Close() error {
	s.bus.removeSub(s)
	s.closeChannel()
	return nil
}

func (s *Subscription) closeChannel() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)

		// 等待进行中的 Emit（持有读锁）结束后再关闭
		s.bus.mu.Lock()
		close(s.out)
		s.bus.mu.Unlock()
	})
}

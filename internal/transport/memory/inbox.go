package memory

import (
	"sync"

	"github.com/dep2p/go-overlay/pkg/types"
)

// inbox 无界有序回调队列
//
// 每个端点一个，回调在专属 goroutine 中按投递顺序执行。
type inbox struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	notify chan struct{}
}

func newInbox() *inbox {
	i := &inbox{notify: make(chan struct{}, 1)}
	go i.run()
	return i
}

func (i *inbox) post(fn func()) error {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return types.ErrTransportClosed
	}
	i.queue = append(i.queue, fn)
	i.mu.Unlock()

	select {
	case i.notify <- struct{}{}:
	default:
	}
	return nil
}

// close 停止队列；可以在回调内部调用
func (i *inbox) close() {
	i.mu.Lock()
	i.closed = true
	i.queue = nil
	i.mu.Unlock()

	select {
	case i.notify <- struct{}{}:
	default:
	}
}

func (i *inbox) run() {
	for {
		i.mu.Lock()
		for len(i.queue) == 0 && !i.closed {
			i.mu.Unlock()
			<-i.notify
			i.mu.Lock()
		}
		if i.closed {
			i.mu.Unlock()
			return
		}
		batch := i.queue
		i.queue = nil
		i.mu.Unlock()

		for _, fn := range batch {
			fn()
		}
	}
}

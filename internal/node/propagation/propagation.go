package propagation

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dep2p/go-overlay/internal/metrics"
	"github.com/dep2p/go-overlay/pkg/lib/log"
	"github.com/dep2p/go-overlay/pkg/types"
)

var logger = log.Logger("node/propagation")

// NeighborsFunc 返回流分区的当前邻居
type NeighborsFunc func(sp types.StreamPartID) []types.NodeID

// SendFunc 向邻居发送消息；返回 nil 表示对端已确认
type SendFunc func(ctx context.Context, neighbor types.NodeID, msg *types.StreamMessage) error

// task 传播任务
type task struct {
	msg    *types.StreamMessage
	source *types.NodeID

	// attempted 已发送或正在发送的邻居；发送失败时移除
	attempted map[types.NodeID]struct{}
	acked     map[types.NodeID]struct{}

	// done 任务已完成（主动移除，不计入淘汰）
	done atomic.Bool

	added time.Time
}

func (t *task) isSource(node types.NodeID) bool {
	return t.source != nil && *t.source == node
}

// Option 传播引擎选项
type Option func(*Propagation)

// WithClock 设置判断任务过期所用的时钟
func WithClock(clk clock.Clock) Option {
	return func(p *Propagation) {
		if clk != nil {
			p.clock = clk
		}
	}
}

// Propagation 消息传播引擎
//
// 任务存储只按插入顺序访问，最早插入的任务最先被淘汰；
// 过期任务在每次访问存储时清理。
type Propagation struct {
	cfg       Config
	neighbors NeighborsFunc
	send      SendFunc
	metrics   *metrics.Node
	clock     clock.Clock

	mu      sync.Mutex
	tasks   *lru.Cache[types.MessageID, *task]
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New 创建传播引擎；m 为 nil 时使用未注册的指标
func New(cfg Config, neighbors NeighborsFunc, send SendFunc, m *metrics.Node, opts ...Option) *Propagation {
	if m == nil {
		m = metrics.NewNode(nil)
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Propagation{
		cfg:       cfg,
		neighbors: neighbors,
		send:      send,
		metrics:   m,
		clock:     clock.New(),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	if cfg.MinPropagationTargets > 0 {
		// 容量为正时 NewWithEvict 不会失败
		p.tasks, _ = lru.NewWithEvict[types.MessageID, *task](max(cfg.MaxMessages, 1), p.onEvict)
	}
	return p
}

// onEvict 由任务存储在持锁状态下调用，不能回调存储
func (p *Propagation) onEvict(id types.MessageID, t *task) {
	if t.done.Load() {
		return
	}
	p.metrics.TasksEvicted.Inc()
	logger.Debug("propagation task evicted", "message", id)
}

// FeedUnseenMessage 传播一条新消息
//
// source 为 nil 表示本节点发布的消息。
func (p *Propagation) FeedUnseenMessage(msg *types.StreamMessage, source *types.NodeID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return
	}

	t := &task{
		msg:       msg,
		source:    source,
		attempted: make(map[types.NodeID]struct{}),
		acked:     make(map[types.NodeID]struct{}),
		added:     p.clock.Now(),
	}
	if p.tasks != nil {
		p.expireLocked()
		p.tasks.Add(msg.ID, t)
	}

	for _, neighbor := range p.neighbors(msg.StreamPart()) {
		p.sendLocked(t, neighbor)
	}
}

// OnNeighborJoined 把进行中的任务补发给新邻居
func (p *Propagation) OnNeighborJoined(neighbor types.NodeID, sp types.StreamPartID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped || p.tasks == nil {
		return
	}

	p.expireLocked()
	for _, t := range p.tasks.Values() {
		if t.msg.StreamPart() != sp || t.done.Load() {
			continue
		}
		p.sendLocked(t, neighbor)
	}
}

// NumberOfTasks 当前跟踪的未过期任务数
func (p *Propagation) NumberOfTasks() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.tasks == nil {
		return 0
	}
	p.expireLocked()
	return p.tasks.Len()
}

// expireLocked 从最早的任务开始移除超过 TTL 的任务
func (p *Propagation) expireLocked() {
	now := p.clock.Now()
	for {
		_, t, ok := p.tasks.GetOldest()
		if !ok || now.Sub(t.added) < p.cfg.TTL {
			return
		}
		p.tasks.RemoveOldest()
	}
}

// Stop 停止传播并等待进行中的发送返回
func (p *Propagation) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	if p.tasks != nil {
		for _, t := range p.tasks.Values() {
			t.done.Store(true)
		}
		p.tasks.Purge()
	}
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}

func (p *Propagation) sendLocked(t *task, neighbor types.NodeID) {
	if t.isSource(neighbor) {
		return
	}
	if _, ok := t.attempted[neighbor]; ok {
		return
	}
	t.attempted[neighbor] = struct{}{}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		err := p.send(p.ctx, neighbor, t.msg)
		p.onSendResult(t, neighbor, err)
	}()
}

func (p *Propagation) onSendResult(t *task, neighbor types.NodeID, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		delete(t.attempted, neighbor)
		logger.Debug("propagation send failed",
			"message", t.msg.ID,
			"neighbor", neighbor,
			"err", err)
		return
	}

	p.metrics.Propagated.Inc()
	if p.tasks == nil || t.done.Load() {
		return
	}
	t.acked[neighbor] = struct{}{}
	if len(t.acked) >= p.cfg.MinPropagationTargets {
		t.done.Store(true)
		p.tasks.Remove(t.msg.ID)
	}
}

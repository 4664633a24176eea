package instruction

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-overlay/pkg/types"
)

// RetryFunc 重新应用指令；reattempt 为 false 时必须上报完整状态
type RetryFunc func(ctx context.Context, inst types.Instruction, reattempt bool)

// RetryManager 按流分区周期性重新应用最后一条指令
type RetryManager struct {
	clock     clock.Clock
	interval  time.Duration
	fullEvery int
	retry     RetryFunc

	mu      sync.Mutex
	entries map[types.StreamPartID]*retryEntry
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
}

type retryEntry struct {
	inst  types.Instruction
	timer *clock.Timer
	count int
	armed bool
}

// NewRetryManager 创建 RetryManager
//
// fullEvery 为 N 时第 1、N+1、2N+1... 次重试上报完整状态。
func NewRetryManager(clk clock.Clock, interval time.Duration, fullEvery int, retry RetryFunc) *RetryManager {
	if clk == nil {
		clk = clock.New()
	}
	if fullEvery < 1 {
		fullEvery = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RetryManager{
		clock:     clk,
		interval:  interval,
		fullEvery: fullEvery,
		retry:     retry,
		entries:   make(map[types.StreamPartID]*retryEntry),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Add 记录流分区的最新指令并重新开始计时
func (r *RetryManager) Add(inst types.Instruction) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return
	}
	if old, ok := r.entries[inst.StreamPart]; ok {
		old.timer.Stop()
	}
	e := &retryEntry{inst: inst}
	r.entries[inst.StreamPart] = e
	r.scheduleLocked(inst.StreamPart, e)
}

// RemoveStreamPart 停止流分区的重试
func (r *RetryManager) RemoveStreamPart(sp types.StreamPartID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[sp]; ok {
		e.timer.Stop()
		delete(r.entries, sp)
	}
}

// Pending 流分区是否有待重试的指令
func (r *RetryManager) Pending(sp types.StreamPartID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[sp]
	return ok
}

// Stop 停止所有重试
func (r *RetryManager) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return
	}
	r.stopped = true
	r.cancel()
	for sp, e := range r.entries {
		e.timer.Stop()
		delete(r.entries, sp)
	}
}

func (r *RetryManager) scheduleLocked(sp types.StreamPartID, e *retryEntry) {
	e.armed = true
	e.timer = r.clock.AfterFunc(r.interval, func() {
		r.fire(sp, e)
	})
}

func (r *RetryManager) fire(sp types.StreamPartID, e *retryEntry) {
	r.mu.Lock()
	if r.stopped || r.entries[sp] != e {
		r.mu.Unlock()
		return
	}
	inst := e.inst
	reattempt := e.count%r.fullEvery != 0
	e.count++
	e.armed = false
	r.mu.Unlock()

	r.retry(r.ctx, inst, reattempt)

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.stopped && r.entries[sp] == e {
		r.scheduleLocked(sp, e)
	}
}

// isArmed 流分区的重试定时器是否已武装
func (r *RetryManager) isArmed(sp types.StreamPartID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[sp]
	return ok && e.armed
}

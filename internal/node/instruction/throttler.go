package instruction

import (
	"context"
	"sync"

	"github.com/dep2p/go-overlay/pkg/lib/log"
	"github.com/dep2p/go-overlay/pkg/types"
)

var logger = log.Logger("node/instruction")

// Apply 一次待执行的应用
type Apply struct {
	Instruction types.Instruction

	// Retry 由 Retry 提交，而非来自 tracker 的新指令
	Retry bool

	// Reattempt 连接全部成功时不必上报状态
	Reattempt bool
}

// HandleFunc 执行一次应用；ctx 在 Throttler 停止时取消
type HandleFunc func(ctx context.Context, a Apply)

// Throttler 按流分区单飞执行指令
//
// 新指令与重试共用同一个等待槽，同一流分区任意时刻最多一个应用在执行。
type Throttler struct {
	handle HandleFunc

	mu      sync.Mutex
	parts   map[types.StreamPartID]*throttleState
	stopped bool
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

type throttleState struct {
	highest    int64
	hasHighest bool
	pending    *Apply
	running    bool

	// 状态已被移除，执行协程退出时从表中删除
	detached bool
}

// NewThrottler 创建 Throttler
func NewThrottler(handle HandleFunc) *Throttler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Throttler{
		handle: handle,
		parts:  make(map[types.StreamPartID]*throttleState),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add 提交指令，返回是否被接受
//
// 计数器低于该流分区已接受的最大值的指令被丢弃；
// types.CounterLoneNode 总是被接受且不改变最大值。
func (t *Throttler) Add(inst types.Instruction) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return false
	}

	st := t.stateLocked(inst.StreamPart)
	if !inst.IsLoneNode() {
		if st.hasHighest && inst.Counter < st.highest {
			logger.Debug("dropping out-of-date instruction",
				"streamPart", inst.StreamPart,
				"counter", inst.Counter,
				"highest", st.highest)
			return false
		}
		st.highest = inst.Counter
		st.hasHighest = true
	}

	if st.pending != nil {
		logger.Debug("superseding queued instruction",
			"streamPart", inst.StreamPart,
			"old", st.pending.Instruction.Counter,
			"new", inst.Counter)
	}
	st.pending = &Apply{Instruction: inst}
	t.startLocked(inst.StreamPart, st)
	return true
}

// Retry 提交一次重试，返回是否被接受
//
// 流分区有进行中或等待中的应用时跳过；
// 计数器已被更新的指令超越时同样跳过。
func (t *Throttler) Retry(inst types.Instruction, reattempt bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return false
	}

	if st, ok := t.parts[inst.StreamPart]; ok {
		if st.running || st.pending != nil {
			return false
		}
		if !inst.IsLoneNode() && st.hasHighest && inst.Counter < st.highest {
			return false
		}
	}
	st := t.stateLocked(inst.StreamPart)
	st.pending = &Apply{Instruction: inst, Retry: true, Reattempt: reattempt}
	t.startLocked(inst.StreamPart, st)
	return true
}

// RemoveStreamPart 丢弃流分区的等待指令与计数器状态
//
// 进行中的应用会执行完，但不再取下一条；在此之前提交的
// 新指令排队到同一个执行协程。
func (t *Throttler) RemoveStreamPart(sp types.StreamPartID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if st, ok := t.parts[sp]; ok {
		t.dropLocked(sp, st)
	}
}

// Reset 丢弃所有流分区的状态（例如 tracker 重连后计数器重新开始）
func (t *Throttler) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for sp, st := range t.parts {
		t.dropLocked(sp, st)
	}
}

// Stop 丢弃等待指令，取消进行中的应用并等待其返回
func (t *Throttler) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	for _, st := range t.parts {
		st.pending = nil
	}
	t.mu.Unlock()

	t.cancel()
	t.wg.Wait()
}

func (t *Throttler) stateLocked(sp types.StreamPartID) *throttleState {
	st, ok := t.parts[sp]
	if !ok {
		st = &throttleState{}
		t.parts[sp] = st
	}
	st.detached = false
	return st
}

func (t *Throttler) startLocked(sp types.StreamPartID, st *throttleState) {
	if st.running {
		return
	}
	st.running = true
	t.wg.Add(1)
	go t.run(sp, st)
}

// dropLocked 清空状态；执行中的状态保留在表中以维持单飞
func (t *Throttler) dropLocked(sp types.StreamPartID, st *throttleState) {
	if !st.running {
		delete(t.parts, sp)
		return
	}
	st.pending = nil
	st.highest = 0
	st.hasHighest = false
	st.detached = true
}

func (t *Throttler) run(sp types.StreamPartID, st *throttleState) {
	defer t.wg.Done()

	for {
		t.mu.Lock()
		if t.stopped || st.pending == nil {
			st.running = false
			st.pending = nil
			if st.detached && t.parts[sp] == st {
				delete(t.parts, sp)
			}
			t.mu.Unlock()
			return
		}
		next := *st.pending
		st.pending = nil
		t.mu.Unlock()

		t.handle(t.ctx, next)
	}
}

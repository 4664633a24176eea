package tracker

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/time/rate"

	"github.com/dep2p/go-overlay/internal/metrics"
	"github.com/dep2p/go-overlay/internal/util/debounce"
	"github.com/dep2p/go-overlay/pkg/lib/log"
	"github.com/dep2p/go-overlay/pkg/types"
)

var senderLogger = log.Logger("tracker/sender")

// SendFunc 把指令交给传输层
type SendFunc func(ctx context.Context, node types.NodeID, inst types.Instruction) error

// InstructionSender 按流分区防抖批量下发指令
//
// 同一流分区内同一节点的指令后到覆盖先到。缓冲区在静默 DebounceWait
// 或首条指令起 MaxWait 后整体发送，每条只发一次，失败只记录不重试：
// 节点侧的重试管理器负责兜底。
type InstructionSender struct {
	cfg     SenderConfig
	send    SendFunc
	limiter *rate.Limiter
	metrics *metrics.Tracker

	mu      sync.Mutex
	buffers map[types.StreamPartID]map[types.NodeID]types.Instruction
	stopped bool

	timers   *debounce.Keyed[types.StreamPartID]
	inflight sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewInstructionSender 创建指令下发器
func NewInstructionSender(cfg SenderConfig, send SendFunc, opts ...Option) *InstructionSender {
	o := newOptions(opts)
	ctx, cancel := context.WithCancel(context.Background())

	s := &InstructionSender{
		cfg:     cfg,
		send:    send,
		metrics: o.metrics,
		buffers: make(map[types.StreamPartID]map[types.NodeID]types.Instruction),
		ctx:     ctx,
		cancel:  cancel,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	s.timers = debounce.New(o.clock, cfg.DebounceWait, cfg.MaxWait, s.flush)
	return s
}

// AddInstruction 缓冲一条指令
func (s *InstructionSender) AddInstruction(inst types.Instruction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	buf, ok := s.buffers[inst.StreamPart]
	if !ok {
		buf = make(map[types.NodeID]types.Instruction)
		s.buffers[inst.StreamPart] = buf
	}
	buf[inst.NodeID] = inst
	s.metrics.InstructionsBuffered.Inc()
	s.timers.Touch(inst.StreamPart)
}

// Buffered 返回某流分区当前缓冲的指令数
func (s *InstructionSender) Buffered(sp types.StreamPartID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffers[sp])
}

// DropStreamPart 丢弃流分区的缓冲指令并取消其定时器
func (s *InstructionSender) DropStreamPart(sp types.StreamPartID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.buffers[sp]); n > 0 {
		senderLogger.Debug("dropping buffered instructions", "streamPart", sp, "count", n)
	}
	delete(s.buffers, sp)
	s.timers.Cancel(sp)
}

// Stop 丢弃所有缓冲指令并等待进行中的发送结束
func (s *InstructionSender) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.buffers = make(map[types.StreamPartID]map[types.NodeID]types.Instruction)
	s.mu.Unlock()

	s.timers.Stop()
	s.cancel()
	s.inflight.Wait()
}

// flush 防抖定时器回调
func (s *InstructionSender) flush(sp types.StreamPartID) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	buf := s.buffers[sp]
	delete(s.buffers, sp)
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	if len(buf) == 0 {
		return
	}
	s.metrics.Flushes.Inc()

	nodes := make([]types.NodeID, 0, len(buf))
	for node := range buf {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })

	senderLogger.Debug("flushing instructions", "streamPart", sp, "count", len(nodes))
	for _, node := range nodes {
		s.sendOne(buf[node])
	}
}

func (s *InstructionSender) sendOne(inst types.Instruction) {
	if s.limiter != nil && !s.limiter.Allow() {
		s.metrics.InstructionsLimited.Inc()
		if err := s.limiter.Wait(s.ctx); err != nil {
			return
		}
	}

	ctx := s.ctx
	if s.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, s.cfg.SendTimeout)
		defer cancel()
	}

	if err := s.send(ctx, inst.NodeID, inst); err != nil {
		s.metrics.InstructionsFailed.Inc()
		senderLogger.Warn("failed to send instruction",
			"node", inst.NodeID,
			"streamPart", inst.StreamPart,
			"counter", inst.Counter,
			"err", err)
		return
	}
	s.metrics.InstructionsSent.Inc()
}

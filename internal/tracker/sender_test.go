package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-overlay/internal/metrics"
	"github.com/dep2p/go-overlay/pkg/types"
)

// sink 记录每次 flush 的指令批次
type sink struct {
	mu      sync.Mutex
	sent    []types.Instruction
	sentAt  []time.Time
	clk     clock.Clock
	failFor types.NodeID
}

func (s *sink) send(_ context.Context, node types.NodeID, inst types.Instruction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if node == s.failFor {
		return errors.New("unreachable")
	}
	s.sent = append(s.sent, inst)
	s.sentAt = append(s.sentAt, s.clk.Now())
	return nil
}

func (s *sink) snapshot() ([]types.Instruction, []time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Instruction(nil), s.sent...), append([]time.Time(nil), s.sentAt...)
}

func (s *sink) count() int {
	insts, _ := s.snapshot()
	return len(insts)
}

func instruction(node types.NodeID, counter int64, neighbors ...types.NodeID) types.Instruction {
	return types.Instruction{NodeID: node, StreamPart: spA, Neighbors: neighbors, Counter: counter}
}

func newTestSender(t *testing.T, clk *clock.Mock, s *sink, m *metrics.Tracker) *InstructionSender {
	t.Helper()
	sender := NewInstructionSender(DefaultSenderConfig(), s.send, WithClock(clk), WithMetrics(m))
	t.Cleanup(sender.Stop)
	return sender
}

// t=0 与 t=50ms 各加入一批指令，t=150ms 恰好发送一次，每个节点取最新
func TestInstructionSender_DebounceFlush(t *testing.T) {
	clk := clock.NewMock()
	s := &sink{clk: clk}
	start := clk.Now()
	m := metrics.NewTracker(nil)
	sender := newTestSender(t, clk, s, m)

	sender.AddInstruction(instruction("n1", 1, "n2"))
	clk.Add(50 * time.Millisecond)
	sender.AddInstruction(instruction("n1", 2, "n3"))
	sender.AddInstruction(instruction("n2", 1, "n1"))
	assert.Equal(t, 2, sender.Buffered(spA))

	clk.Add(99 * time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, s.count())

	clk.Add(1 * time.Millisecond)
	require.Eventually(t, func() bool { return s.count() == 2 }, time.Second, 5*time.Millisecond)

	sent, at := s.snapshot()
	assert.Equal(t, instruction("n1", 2, "n3"), sent[0])
	assert.Equal(t, instruction("n2", 1, "n1"), sent[1])
	for _, ts := range at {
		assert.Equal(t, 150*time.Millisecond, ts.Sub(start))
	}
	assert.Equal(t, 0, sender.Buffered(spA))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Flushes))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.InstructionsBuffered))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.InstructionsSent))
}

// 每 50ms 持续加入指令时，在 t=2000ms 因 MaxWait 强制发送
func TestInstructionSender_MaxWaitFlush(t *testing.T) {
	clk := clock.NewMock()
	s := &sink{clk: clk}
	start := clk.Now()
	sender := newTestSender(t, clk, s, nil)

	for i := 0; i < 40; i++ {
		sender.AddInstruction(instruction("n1", int64(i+1)))
		clk.Add(50 * time.Millisecond)
	}
	require.Eventually(t, func() bool { return s.count() == 1 }, time.Second, 5*time.Millisecond)

	sent, at := s.snapshot()
	assert.Equal(t, int64(40), sent[0].Counter)
	assert.Equal(t, 2000*time.Millisecond, at[0].Sub(start))

	// 持续活动不影响下一轮再次受 MaxWait 约束
	sender.AddInstruction(instruction("n1", 41))
	clk.Add(100 * time.Millisecond)
	require.Eventually(t, func() bool { return s.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestInstructionSender_StreamPartsIndependent(t *testing.T) {
	clk := clock.NewMock()
	s := &sink{clk: clk}
	sender := newTestSender(t, clk, s, nil)

	sender.AddInstruction(instruction("n1", 1))
	clk.Add(60 * time.Millisecond)
	sender.AddInstruction(types.Instruction{NodeID: "n1", StreamPart: spB, Counter: 1})
	clk.Add(50 * time.Millisecond)

	require.Eventually(t, func() bool { return s.count() == 1 }, time.Second, 5*time.Millisecond)
	sent, _ := s.snapshot()
	assert.Equal(t, spA, sent[0].StreamPart)
	assert.Equal(t, 1, sender.Buffered(spB))
}

func TestInstructionSender_DropStreamPart(t *testing.T) {
	clk := clock.NewMock()
	s := &sink{clk: clk}
	sender := newTestSender(t, clk, s, nil)

	sender.AddInstruction(instruction("n1", 1))
	sender.AddInstruction(types.Instruction{NodeID: "n1", StreamPart: spB, Counter: 1})
	sender.DropStreamPart(spA)
	assert.Zero(t, sender.Buffered(spA))
	assert.False(t, sender.timers.Pending(spA))

	clk.Add(5 * time.Second)
	require.Eventually(t, func() bool { return s.count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	sent, _ := s.snapshot()
	require.Len(t, sent, 1)
	assert.Equal(t, spB, sent[0].StreamPart)
}

func TestInstructionSender_FailureNotRetried(t *testing.T) {
	clk := clock.NewMock()
	s := &sink{clk: clk, failFor: "n1"}
	m := metrics.NewTracker(nil)
	sender := newTestSender(t, clk, s, m)

	sender.AddInstruction(instruction("n1", 1))
	sender.AddInstruction(instruction("n2", 1))
	clk.Add(100 * time.Millisecond)

	require.Eventually(t, func() bool { return testutil.ToFloat64(m.InstructionsFailed) == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return s.count() == 1 }, time.Second, 5*time.Millisecond)

	clk.Add(5 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, s.count())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InstructionsFailed))
}

func TestInstructionSender_StopDiscards(t *testing.T) {
	clk := clock.NewMock()
	s := &sink{clk: clk}
	sender := NewInstructionSender(DefaultSenderConfig(), s.send, WithClock(clk))

	sender.AddInstruction(instruction("n1", 1))
	sender.Stop()
	sender.Stop()

	sender.AddInstruction(instruction("n2", 1))
	clk.Add(5 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, s.count())
	assert.Equal(t, 0, sender.Buffered(spA))
}

func TestInstructionSender_RateLimited(t *testing.T) {
	clk := clock.NewMock()
	s := &sink{clk: clk}
	m := metrics.NewTracker(nil)
	cfg := DefaultSenderConfig()
	cfg.RateLimit = 1000
	cfg.RateBurst = 1
	sender := NewInstructionSender(cfg, s.send, WithClock(clk), WithMetrics(m))
	t.Cleanup(sender.Stop)

	sender.AddInstruction(instruction("n1", 1))
	sender.AddInstruction(instruction("n2", 1))
	sender.AddInstruction(instruction("n3", 1))
	clk.Add(100 * time.Millisecond)

	require.Eventually(t, func() bool { return s.count() == 3 }, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.InstructionsLimited), 1.0)
}

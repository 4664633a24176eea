package instruction

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-overlay/pkg/types"
)

type retryCall struct {
	inst      types.Instruction
	reattempt bool
}

type retryRecorder struct {
	mu    sync.Mutex
	calls []retryCall
}

func (r *retryRecorder) retry(_ context.Context, i types.Instruction, reattempt bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, retryCall{inst: i, reattempt: reattempt})
}

func (r *retryRecorder) snapshot() []retryCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]retryCall(nil), r.calls...)
}

const interval = 3 * time.Minute

// tick 推进一个周期并等待重试完成、定时器重新武装
func tick(t *testing.T, clk *clock.Mock, rm *RetryManager, rec *retryRecorder, want int) {
	t.Helper()
	clk.Add(interval)
	require.Eventually(t, func() bool { return len(rec.snapshot()) == want }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return rm.isArmed(spA) }, time.Second, time.Millisecond)
}

func TestRetryManager_FullStatusEveryTenth(t *testing.T) {
	clk := clock.NewMock()
	rec := &retryRecorder{}
	rm := NewRetryManager(clk, interval, 10, rec.retry)
	defer rm.Stop()

	rm.Add(inst(spA, 3))
	require.True(t, rm.Pending(spA))

	for i := 1; i <= 21; i++ {
		tick(t, clk, rm, rec, i)
	}

	calls := rec.snapshot()
	for i, c := range calls {
		assert.Equal(t, int64(3), c.inst.Counter)
		full := i == 0 || i == 10 || i == 20
		assert.Equal(t, !full, c.reattempt, "retry #%d", i+1)
	}
}

func TestRetryManager_AddRestartsSchedule(t *testing.T) {
	clk := clock.NewMock()
	rec := &retryRecorder{}
	rm := NewRetryManager(clk, interval, 10, rec.retry)
	defer rm.Stop()

	rm.Add(inst(spA, 1))
	clk.Add(2 * time.Minute)
	rm.Add(inst(spA, 2))
	clk.Add(2 * time.Minute)
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, rec.snapshot())

	clk.Add(time.Minute)
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, time.Millisecond)
	call := rec.snapshot()[0]
	assert.Equal(t, int64(2), call.inst.Counter)
	assert.False(t, call.reattempt)
}

func TestRetryManager_RemoveAndStop(t *testing.T) {
	clk := clock.NewMock()
	rec := &retryRecorder{}
	rm := NewRetryManager(clk, interval, 10, rec.retry)

	rm.Add(inst(spA, 1))
	rm.Add(inst(spB, 1))
	rm.RemoveStreamPart(spA)
	assert.False(t, rm.Pending(spA))
	assert.True(t, rm.Pending(spB))

	rm.Stop()
	rm.Stop()
	assert.False(t, rm.Pending(spB))
	rm.Add(inst(spA, 2))
	assert.False(t, rm.Pending(spA))

	clk.Add(10 * time.Minute)
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

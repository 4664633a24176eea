package propagation

import (
	"context"
	"errors"
	"sort"
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

var sp = types.NewStreamPartID("stream", 0)

// fakeNet 记录发送并按节点注入失败
type fakeNet struct {
	mu        sync.Mutex
	neighbors map[types.StreamPartID][]types.NodeID
	sent      map[types.NodeID][]types.MessageID
	failing   map[types.NodeID]bool
}

func newFakeNet(neighbors ...types.NodeID) *fakeNet {
	return &fakeNet{
		neighbors: map[types.StreamPartID][]types.NodeID{sp: neighbors},
		sent:      make(map[types.NodeID][]types.MessageID),
		failing:   make(map[types.NodeID]bool),
	}
}

func (f *fakeNet) getNeighbors(sp types.StreamPartID) []types.NodeID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.NodeID(nil), f.neighbors[sp]...)
}

func (f *fakeNet) send(_ context.Context, neighbor types.NodeID, msg *types.StreamMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[neighbor] {
		return errors.New("send failed")
	}
	f.sent[neighbor] = append(f.sent[neighbor], msg.ID)
	return nil
}

func (f *fakeNet) setFailing(node types.NodeID, failing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing[node] = failing
}

func (f *fakeNet) addNeighbor(node types.NodeID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.neighbors[sp] = append(f.neighbors[sp], node)
}

func (f *fakeNet) receivers() []types.NodeID {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.NodeID
	for n := range f.sent {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (f *fakeNet) count(node types.NodeID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent[node])
}

func message(ts int64) *types.StreamMessage {
	return &types.StreamMessage{
		ID: types.MessageID{
			StreamPart:  sp,
			Timestamp:   ts,
			PublisherID: "publisher",
			MsgChainID:  "chain",
		},
		Content: []byte("hello"),
	}
}

func testConfig(minTargets int) Config {
	return Config{TTL: time.Minute, MaxMessages: 100, MinPropagationTargets: minTargets}
}

func nodeID(s string) *types.NodeID {
	id := types.NodeID(s)
	return &id
}

func TestPropagation_SendsToAllNeighborsExceptSource(t *testing.T) {
	net := newFakeNet("a", "b", "c")
	p := New(testConfig(2), net.getNeighbors, net.send, nil)
	defer p.Stop()

	p.FeedUnseenMessage(message(1), nodeID("b"))

	require.Eventually(t, func() bool {
		return len(net.receivers()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []types.NodeID{"a", "c"}, net.receivers())
}

func TestPropagation_TaskCompletesAtMinTargets(t *testing.T) {
	net := newFakeNet("a", "b")
	m := metrics.NewNode(nil)
	p := New(testConfig(2), net.getNeighbors, net.send, m)
	defer p.Stop()

	p.FeedUnseenMessage(message(1), nil)

	require.Eventually(t, func() bool { return p.NumberOfTasks() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Propagated))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.TasksEvicted))

	// 已完成的任务不再补发给新邻居
	net.addNeighbor("c")
	p.OnNeighborJoined("c", sp)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, net.count("c"))
}

func TestPropagation_NeighborJoinedReceivesPendingTask(t *testing.T) {
	net := newFakeNet("a")
	p := New(testConfig(2), net.getNeighbors, net.send, nil)
	defer p.Stop()

	p.FeedUnseenMessage(message(1), nil)
	require.Eventually(t, func() bool { return net.count("a") == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, p.NumberOfTasks())

	net.addNeighbor("b")
	p.OnNeighborJoined("b", sp)
	require.Eventually(t, func() bool { return net.count("b") == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return p.NumberOfTasks() == 0 }, time.Second, 5*time.Millisecond)

	// 已确认的邻居不会重复收到
	assert.Equal(t, 1, net.count("a"))
}

func TestPropagation_NeighborJoinedSkipsSourceAndOtherStreamParts(t *testing.T) {
	net := newFakeNet()
	p := New(testConfig(2), net.getNeighbors, net.send, nil)
	defer p.Stop()

	p.FeedUnseenMessage(message(1), nodeID("origin"))
	p.OnNeighborJoined("origin", sp)
	p.OnNeighborJoined("x", types.NewStreamPartID("other", 0))

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, net.receivers())
	assert.Equal(t, 1, p.NumberOfTasks())
}

func TestPropagation_FailedSendRetriedOnRejoin(t *testing.T) {
	net := newFakeNet("a")
	net.setFailing("a", true)
	p := New(testConfig(1), net.getNeighbors, net.send, nil)
	defer p.Stop()

	p.FeedUnseenMessage(message(1), nil)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, p.NumberOfTasks())

	net.setFailing("a", false)
	p.OnNeighborJoined("a", sp)
	require.Eventually(t, func() bool { return net.count("a") == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return p.NumberOfTasks() == 0 }, time.Second, 5*time.Millisecond)
}

func TestPropagation_CapacityEvictsOldest(t *testing.T) {
	net := newFakeNet()
	m := metrics.NewNode(nil)
	cfg := testConfig(2)
	cfg.MaxMessages = 3
	p := New(cfg, net.getNeighbors, net.send, m)
	defer p.Stop()

	for ts := int64(1); ts <= 5; ts++ {
		p.FeedUnseenMessage(message(ts), nil)
	}
	assert.Equal(t, 3, p.NumberOfTasks())
	assert.Equal(t, float64(2), testutil.ToFloat64(m.TasksEvicted))

	// 最早的两条已淘汰，新邻居只收到剩下的三条
	net.addNeighbor("late")
	p.OnNeighborJoined("late", sp)
	require.Eventually(t, func() bool { return net.count("late") == 3 }, time.Second, 5*time.Millisecond)

	net.mu.Lock()
	got := append([]types.MessageID(nil), net.sent["late"]...)
	net.mu.Unlock()
	sort.Slice(got, func(i, j int) bool { return got[i].Timestamp < got[j].Timestamp })
	assert.Equal(t, int64(3), got[0].Timestamp)
	assert.Equal(t, int64(5), got[2].Timestamp)
}

func TestPropagation_TasksExpire(t *testing.T) {
	clk := clock.NewMock()
	net := newFakeNet()
	m := metrics.NewNode(nil)
	cfg := testConfig(2)
	cfg.TTL = 30 * time.Second
	p := New(cfg, net.getNeighbors, net.send, m, WithClock(clk))
	defer p.Stop()

	p.FeedUnseenMessage(message(1), nil)
	clk.Add(20 * time.Second)
	p.FeedUnseenMessage(message(2), nil)
	assert.Equal(t, 2, p.NumberOfTasks())

	clk.Add(10 * time.Second)
	assert.Equal(t, 1, p.NumberOfTasks())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TasksEvicted))

	// 过期任务不再补发给新邻居
	net.addNeighbor("late")
	p.OnNeighborJoined("late", sp)
	require.Eventually(t, func() bool { return net.count("late") == 1 }, time.Second, 5*time.Millisecond)

	clk.Add(20 * time.Second)
	assert.Zero(t, p.NumberOfTasks())
	assert.Equal(t, float64(2), testutil.ToFloat64(m.TasksEvicted))
}

func TestPropagation_FireAndForget(t *testing.T) {
	net := newFakeNet("a", "b")
	p := New(testConfig(0), net.getNeighbors, net.send, nil)
	defer p.Stop()

	p.FeedUnseenMessage(message(1), nil)
	require.Eventually(t, func() bool { return len(net.receivers()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, p.NumberOfTasks())

	net.addNeighbor("c")
	p.OnNeighborJoined("c", sp)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, net.count("c"))
}

func TestPropagation_StopCancelsSends(t *testing.T) {
	started := make(chan struct{}, 1)
	send := func(ctx context.Context, _ types.NodeID, _ *types.StreamMessage) error {
		started <- struct{}{}
		<-ctx.Done()
		return ctx.Err()
	}
	neighbors := func(types.StreamPartID) []types.NodeID { return []types.NodeID{"a"} }
	m := metrics.NewNode(nil)
	p := New(testConfig(2), neighbors, send, m)

	p.FeedUnseenMessage(message(1), nil)
	<-started

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}

	assert.Equal(t, 0, p.NumberOfTasks())
	assert.Equal(t, float64(0), testutil.ToFloat64(m.TasksEvicted))

	p.FeedUnseenMessage(message(2), nil)
	assert.Equal(t, 0, p.NumberOfTasks())
}

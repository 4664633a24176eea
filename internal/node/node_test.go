package node

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-overlay/internal/metrics"
	"github.com/dep2p/go-overlay/internal/tracker"
	"github.com/dep2p/go-overlay/internal/transport/memory"
	"github.com/dep2p/go-overlay/pkg/interfaces"
	"github.com/dep2p/go-overlay/pkg/types"
)

const (
	waitFor  = 3 * time.Second
	tick     = 5 * time.Millisecond
	trackers = "tracker"
)

var sp = types.NewStreamPartID("stream", 0)

// ============================================================================
//                              测试夹具
// ============================================================================

type cluster struct {
	t       *testing.T
	net     *memory.Network
	tracker *tracker.Tracker
	nodes   []*Node
	metrics []*metrics.Node
}

func testNodeConfig() Config {
	cfg := DefaultConfig()
	cfg.ConnectTimeout = time.Second
	cfg.SendTimeout = time.Second
	cfg.TrackerReconnectInterval = 50 * time.Millisecond
	return cfg
}

func newCluster(t *testing.T) *cluster {
	t.Helper()
	net := memory.NewNetwork()
	server, err := net.NewTrackerServer(trackers)
	require.NoError(t, err)

	cfg := tracker.DefaultConfig()
	cfg.Sender.DebounceWait = time.Millisecond
	cfg.Sender.MaxWait = 10 * time.Millisecond
	tr := tracker.New(cfg, server)
	t.Cleanup(func() {
		tr.Stop()
		_ = server.Close()
	})
	return &cluster{t: t, net: net, tracker: tr}
}

func (c *cluster) addNode(id types.NodeID, cfg Config, opts ...Option) *Node {
	c.t.Helper()
	ep, err := c.net.NewNodeEndpoint(id)
	require.NoError(c.t, err)
	m := metrics.NewNode(nil)
	opts = append([]Option{WithMetrics(m)}, opts...)
	n := New(cfg, ep, c.net.NewTrackerClient(id, trackers), opts...)
	require.NoError(c.t, n.Start(context.Background()))
	c.t.Cleanup(func() { _ = n.Stop() })
	c.nodes = append(c.nodes, n)
	c.metrics = append(c.metrics, m)
	return n
}

// settled 每个节点的邻居与 tracker 的邻居图一致
func (c *cluster) settled(sp types.StreamPartID) bool {
	topo, ok := c.tracker.Topology(sp)
	if !ok || len(topo) != len(c.nodes) {
		return false
	}
	for _, n := range c.nodes {
		if !sameSet(topo[n.ID()], n.Neighbors(sp)) {
			return false
		}
	}
	return true
}

func sameSet(a, b []types.NodeID) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]types.NodeID(nil), a...)
	y := append([]types.NodeID(nil), b...)
	sort.Slice(x, func(i, j int) bool { return x[i] < x[j] })
	sort.Slice(y, func(i, j int) bool { return y[i] < y[j] })
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

func message(sp types.StreamPartID, ts, seq int64, prev *types.MessageRef) *types.StreamMessage {
	return &types.StreamMessage{
		ID: types.MessageID{
			StreamPart:     sp,
			Timestamp:      ts,
			SequenceNumber: seq,
			PublisherID:    "publisher",
			MsgChainID:     "chain",
		},
		PrevMsgRef: prev,
		Content:    []byte(fmt.Sprintf("msg-%d-%d", ts, seq)),
	}
}

// collector 收集订阅中的事件
type collector struct {
	mu     sync.Mutex
	events []types.Event
}

func collect(t *testing.T, sub interfaces.Subscription) *collector {
	t.Helper()
	c := &collector{}
	go func() {
		for ev := range sub.Out() {
			c.mu.Lock()
			c.events = append(c.events, ev)
			c.mu.Unlock()
		}
	}()
	t.Cleanup(func() { _ = sub.Close() })
	return c
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *collector) snapshot() []types.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Event(nil), c.events...)
}

// statusSink 记录状态的 tracker 侧回调
type statusSink struct {
	mu        sync.Mutex
	connected int
	statuses  []types.Status
}

func (s *statusSink) OnNodeConnected(types.NodeID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected++
}

func (s *statusSink) OnNodeDisconnected(types.NodeID) {}

func (s *statusSink) OnStatus(status types.Status, _ types.NodeID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
}

func (s *statusSink) snapshot() (int, []types.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected, append([]types.Status(nil), s.statuses...)
}

// rttEndpoint 附带固定 RTT 的内存端点
type rttEndpoint struct {
	*memory.NodeEndpoint
	rtts map[types.NodeID]int64
}

func (e *rttEndpoint) Rtts() map[types.NodeID]int64 {
	return e.rtts
}

// slowEndpoint 连接 slow 时阻塞，直到 release 关闭或 ctx 取消
type slowEndpoint struct {
	*memory.NodeEndpoint
	slow    types.NodeID
	entered chan struct{}
	release chan struct{}
}

func (e *slowEndpoint) Connect(ctx context.Context, peer types.NodeID) error {
	if peer != e.slow {
		return e.NodeEndpoint.Connect(ctx, peer)
	}
	e.entered <- struct{}{}
	select {
	case <-e.release:
		return e.NodeEndpoint.Connect(ctx, peer)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ============================================================================
//                              拓扑与传播
// ============================================================================

func TestNode_SubscribeFormsTopology(t *testing.T) {
	c := newCluster(t)
	for i := 0; i < 3; i++ {
		n := c.addNode(types.NodeID(fmt.Sprintf("node-%d", i)), testNodeConfig())
		require.NoError(t, n.Subscribe(sp))
	}

	require.Eventually(t, func() bool { return c.settled(sp) }, waitFor, tick)
	for _, n := range c.nodes {
		assert.Len(t, n.Neighbors(sp), 2)
		assert.Equal(t, []types.StreamPartID{sp}, n.StreamParts())

		status, err := n.Status(sp)
		require.NoError(t, err)
		assert.Positive(t, status.Counter)
	}
}

func TestNode_PublishReachesEveryNode(t *testing.T) {
	c := newCluster(t)
	collectors := make([]*collector, 0, 5)
	for i := 0; i < 5; i++ {
		n := c.addNode(types.NodeID(fmt.Sprintf("node-%d", i)), testNodeConfig())
		sub, err := n.Events(types.EventUnseenMessageReceived)
		require.NoError(t, err)
		collectors = append(collectors, collect(t, sub))
		require.NoError(t, n.Subscribe(sp))
	}
	require.Eventually(t, func() bool { return c.settled(sp) }, waitFor, tick)

	// 每条消息使用独立的消息链，多路径到达的先后顺序不影响去重
	publisher := c.nodes[0]
	for i := 0; i < 3; i++ {
		msg := message(sp, 1000, 0, nil)
		msg.ID.MsgChainID = fmt.Sprintf("chain-%d", i)
		require.NoError(t, publisher.Publish(msg))
	}

	require.Eventually(t, func() bool {
		for _, col := range collectors {
			if col.len() != 3 {
				return false
			}
		}
		return true
	}, waitFor, tick)

	// 每条消息在每个节点上只被交付一次
	time.Sleep(50 * time.Millisecond)
	for i, col := range collectors {
		events := col.snapshot()
		require.Len(t, events, 3, "node-%d", i)
		chains := make(map[string]bool)
		for _, ev := range events {
			unseen, ok := ev.(*types.UnseenMessageReceivedEvent)
			require.True(t, ok)
			chains[unseen.Message.ID.MsgChainID] = true
			if i == 0 {
				assert.Nil(t, unseen.Source)
			} else {
				assert.NotNil(t, unseen.Source)
			}
		}
		assert.Len(t, chains, 3, "node-%d", i)
	}
	for _, m := range c.metrics[1:] {
		assert.Zero(t, testutil.ToFloat64(m.Gaps))
	}
}

func TestNode_UnsubscribeDisconnectsUnsharedNeighbors(t *testing.T) {
	c := newCluster(t)
	a := c.addNode("a", testNodeConfig())
	b := c.addNode("b", testNodeConfig())
	require.NoError(t, a.Subscribe(sp))
	require.NoError(t, b.Subscribe(sp))
	require.Eventually(t, func() bool { return c.settled(sp) }, waitFor, tick)

	sub, err := a.Events(types.EventNodeUnsubscribed)
	require.NoError(t, err)
	events := collect(t, sub)

	a.Unsubscribe(sp)
	assert.Empty(t, a.StreamParts())
	require.Eventually(t, func() bool { return events.len() == 1 }, waitFor, tick)

	require.Eventually(t, func() bool {
		topo, ok := c.tracker.Topology(sp)
		return ok && len(topo) == 1 && len(b.Neighbors(sp)) == 0
	}, waitFor, tick)
	ev := events.snapshot()[0].(*types.NodeUnsubscribedEvent)
	assert.Equal(t, types.NodeID("b"), ev.Node)

	// 重复退出无操作
	a.Unsubscribe(sp)
}

// ============================================================================
//                              数据路径
// ============================================================================

func TestNode_DuplicatesGapsAndInvalidNumbering(t *testing.T) {
	c := newCluster(t)
	n := c.addNode("solo", testNodeConfig())
	m := c.metrics[0]

	sub, err := n.Events(types.EventMessageReceived, types.EventUnseenMessageReceived)
	require.NoError(t, err)
	events := collect(t, sub)

	first := message(sp, 100, 0, nil)
	require.NoError(t, n.Publish(first))
	require.NoError(t, n.Publish(first))
	assert.Equal(t, []types.StreamPartID{sp}, n.StreamParts(), "publish subscribes implicitly")

	// 前序编号不是上一条：gap，但仍然交付
	gapPrev := types.MessageRef{Timestamp: 150}
	require.NoError(t, n.Publish(message(sp, 200, 0, &gapPrev)))

	invalidPrev := types.MessageRef{Timestamp: 500}
	require.NoError(t, n.Publish(message(sp, 300, 0, &invalidPrev)))

	assert.Equal(t, 4.0, testutil.ToFloat64(m.DataReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Duplicates))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Gaps))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InvalidNumbering))

	// 4 条原始事件 + 2 条首次出现事件
	require.Eventually(t, func() bool { return events.len() == 6 }, waitFor, tick)
	var unseen int
	for _, ev := range events.snapshot() {
		if ev.Type() == types.EventUnseenMessageReceived {
			unseen++
		}
	}
	assert.Equal(t, 2, unseen)

	assert.ErrorIs(t, n.Publish(nil), ErrNilMessage)
	assert.ErrorIs(t, n.Publish(message(types.StreamPartID{}, 1, 0, nil)), types.ErrEmptyStreamID)
}

func TestNode_IgnoresDataFromNonNeighbor(t *testing.T) {
	c := newCluster(t)
	n := c.addNode("a", testNodeConfig())
	m := c.metrics[0]

	sub, err := n.Events()
	require.NoError(t, err)
	events := collect(t, sub)

	n.OnData(message(sp, 1, 0, nil), "stranger")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DataReceived))
	assert.Empty(t, n.StreamParts())
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, events.len())
}

func TestNode_AverageLatency(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.UnixMilli(10_000))

	c := newCluster(t)
	n := c.addNode("a", testNodeConfig(), WithClock(clk))

	_, ok := n.AverageLatency()
	assert.False(t, ok)

	require.NoError(t, n.Publish(message(sp, 9_900, 0, nil)))
	avg, ok := n.AverageLatency()
	require.True(t, ok)
	assert.InDelta(t, 100, avg, 0.001)

	second := message(sp, 9_800, 0, nil)
	second.ID.MsgChainID = "other-chain"
	require.NoError(t, n.Publish(second))
	avg, _ = n.AverageLatency()
	assert.InDelta(t, 0.8*100+0.2*200, avg, 0.001)
	assert.InDelta(t, avg, testutil.ToFloat64(c.metrics[0].Latency), 0.001)
}

func TestNode_ForcedDisconnectAfterDeliveryFailures(t *testing.T) {
	cfg := testNodeConfig()
	cfg.MaxConsecutiveDeliveryFailures = 3
	cfg.Propagation.MinPropagationTargets = 0

	c := newCluster(t)
	a := c.addNode("a", cfg)
	b := c.addNode("b", cfg)
	require.NoError(t, a.Subscribe(sp))
	require.NoError(t, b.Subscribe(sp))
	require.Eventually(t, func() bool { return c.settled(sp) }, waitFor, tick)

	c.net.SetLinkDown("a", "b", true)
	for seq := int64(0); seq < 3; seq++ {
		require.NoError(t, a.Publish(message(sp, 100, seq, nil)))
	}

	m := c.metrics[0]
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.ForcedDisconnects) == 1
	}, waitFor, tick)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.DeliveryFailures))
	assert.Zero(t, testutil.ToFloat64(m.Propagated))
}

// ============================================================================
//                              指令
// ============================================================================

func TestNode_AppliesInstructions(t *testing.T) {
	net := memory.NewNetwork()
	newNode := func(id types.NodeID) (*Node, *metrics.Node) {
		ep, err := net.NewNodeEndpoint(id)
		require.NoError(t, err)
		m := metrics.NewNode(nil)
		n := New(testNodeConfig(), ep, net.NewTrackerClient(id, trackers), WithMetrics(m))
		t.Cleanup(func() { _ = n.Stop() })
		return n, m
	}
	a, m := newNode("a")
	newNode("b")

	sub, err := a.Events(types.EventNodeSubscribed, types.EventNodeUnsubscribed)
	require.NoError(t, err)
	events := collect(t, sub)

	a.OnInstruction(types.Instruction{NodeID: "a", StreamPart: sp, Neighbors: []types.NodeID{"b"}, Counter: 2})
	require.Eventually(t, func() bool { return sameSet(a.Neighbors(sp), []types.NodeID{"b"}) }, waitFor, tick)
	require.Eventually(t, func() bool {
		status, err := a.Status(sp)
		return err == nil && status.Counter == 2
	}, waitFor, tick)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.InstructionsApplied) == 1
	}, waitFor, tick)

	// 过期指令被丢弃
	a.OnInstruction(types.Instruction{NodeID: "a", StreamPart: sp, Counter: 1})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InstructionsDropped))

	// 孤立节点指令清空邻居并断开不再共享流分区的 peer
	a.OnInstruction(types.Instruction{NodeID: "a", StreamPart: sp, Counter: types.CounterLoneNode})
	require.Eventually(t, func() bool { return len(a.Neighbors(sp)) == 0 }, waitFor, tick)
	require.Eventually(t, func() bool { return !a.n2n.IsConnected("b") }, waitFor, tick)
	status, err := a.Status(sp)
	require.NoError(t, err)
	assert.Equal(t, int64(2), status.Counter, "lone node instruction keeps the counter")

	require.Eventually(t, func() bool { return events.len() == 2 }, waitFor, tick)
	got := events.snapshot()
	assert.Equal(t, types.EventNodeSubscribed, got[0].Type())
	assert.Equal(t, types.EventNodeUnsubscribed, got[1].Type())
}

func TestNode_InstructionConnectFailureReportsStatus(t *testing.T) {
	net := memory.NewNetwork()
	server, err := net.NewTrackerServer(trackers)
	require.NoError(t, err)
	defer server.Close()
	sink := &statusSink{}
	server.SetHandler(sink)

	ep, err := net.NewNodeEndpoint("a")
	require.NoError(t, err)
	n := New(testNodeConfig(), ep, net.NewTrackerClient("a", trackers))
	defer n.Stop()
	require.NoError(t, n.Start(context.Background()))

	n.OnInstruction(types.Instruction{NodeID: "a", StreamPart: sp, Neighbors: []types.NodeID{"missing"}, Counter: 1})

	// 连接失败后上报的状态带有指令的计数器与空邻居
	require.Eventually(t, func() bool {
		_, statuses := sink.snapshot()
		for _, s := range statuses {
			if s.StreamPart == sp && s.Counter == 1 && len(s.Neighbors) == 0 {
				return true
			}
		}
		return false
	}, waitFor, tick)
	assert.Empty(t, n.Neighbors(sp))
}

func TestNode_RetryNotBlockedByOtherStreamPart(t *testing.T) {
	clk := clock.NewMock()
	net := memory.NewNetwork()
	ep, err := net.NewNodeEndpoint("a")
	require.NoError(t, err)
	_, err = net.NewNodeEndpoint("b")
	require.NoError(t, err)

	slow := &slowEndpoint{
		NodeEndpoint: ep,
		slow:         "b",
		entered:      make(chan struct{}, 1),
		release:      make(chan struct{}),
	}
	cfg := testNodeConfig()
	cfg.ConnectTimeout = time.Minute
	m := metrics.NewNode(nil)
	n := New(cfg, slow, net.NewTrackerClient("a", trackers), WithClock(clk), WithMetrics(m))
	defer n.Stop()
	defer close(slow.release)

	spA := types.NewStreamPartID("stream-a", 0)
	spB := types.NewStreamPartID("stream-b", 0)

	n.OnInstruction(types.Instruction{NodeID: "a", StreamPart: spA, Counter: 1})
	require.Eventually(t, func() bool { return n.retries.Pending(spA) }, waitFor, tick)

	// spB 的应用卡在连接上
	n.OnInstruction(types.Instruction{NodeID: "a", StreamPart: spB, Neighbors: []types.NodeID{"b"}, Counter: 1})
	select {
	case <-slow.entered:
	case <-time.After(waitFor):
		t.Fatal("apply for the second stream part did not start")
	}

	clk.Add(cfg.RetryInterval)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.InstructionRetries) == 1
	}, waitFor, tick)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.InstructionsApplied) == 2
	}, waitFor, tick)
}

// ============================================================================
//                              tracker 连接
// ============================================================================

func TestNode_ReconnectsToTracker(t *testing.T) {
	clk := clock.NewMock()
	net := memory.NewNetwork()
	server, err := net.NewTrackerServer(trackers)
	require.NoError(t, err)
	defer server.Close()
	sink := &statusSink{}
	server.SetHandler(sink)

	ep, err := net.NewNodeEndpoint("a")
	require.NoError(t, err)
	cfg := testNodeConfig()
	n := New(cfg, ep, net.NewTrackerClient("a", trackers), WithClock(clk))
	defer n.Stop()

	// 未连接时的状态上报被丢弃，连接后统一补报
	require.NoError(t, n.Subscribe(sp))
	require.NoError(t, n.Start(context.Background()))

	require.Eventually(t, func() bool {
		connected, statuses := sink.snapshot()
		return connected == 1 && len(statuses) == 1
	}, waitFor, tick)

	server.Disconnect("a", "test")

	// 断开回调异步执行，反复推进时钟直到重连
	require.Eventually(t, func() bool {
		clk.Add(cfg.TrackerReconnectInterval)
		connected, statuses := sink.snapshot()
		return connected == 2 && len(statuses) == 2
	}, waitFor, tick)

	_, statuses := sink.snapshot()
	assert.Equal(t, sp, statuses[1].StreamPart, "status resent after reconnect")
}

func TestNode_StartWithoutTrackerRetries(t *testing.T) {
	clk := clock.NewMock()
	net := memory.NewNetwork()
	ep, err := net.NewNodeEndpoint("a")
	require.NoError(t, err)
	cfg := testNodeConfig()
	n := New(cfg, ep, net.NewTrackerClient("a", trackers), WithClock(clk))
	defer n.Stop()

	require.NoError(t, n.Start(context.Background()))

	server, err := net.NewTrackerServer(trackers)
	require.NoError(t, err)
	defer server.Close()
	sink := &statusSink{}
	server.SetHandler(sink)

	require.Eventually(t, func() bool {
		clk.Add(cfg.TrackerReconnectInterval)
		connected, _ := sink.snapshot()
		return connected == 1
	}, waitFor, tick)
}

func TestNode_StatusCarriesNodeMetadata(t *testing.T) {
	clk := clock.NewMock()
	net := memory.NewNetwork()
	server, err := net.NewTrackerServer(trackers)
	require.NoError(t, err)
	defer server.Close()
	sink := &statusSink{}
	server.SetHandler(sink)

	ep, err := net.NewNodeEndpoint("a")
	require.NoError(t, err)
	cfg := testNodeConfig()
	cfg.Location = &types.Location{Country: "FI", City: "Helsinki"}
	cfg.Extra = map[string]string{"version": "test"}
	rtts := map[types.NodeID]int64{"b": 12}
	n := New(cfg, &rttEndpoint{NodeEndpoint: ep, rtts: rtts}, net.NewTrackerClient("a", trackers), WithClock(clk))
	defer n.Stop()

	sp1 := types.NewStreamPartID("stream", 1)
	sp2 := types.NewStreamPartID("stream", 2)
	sp3 := types.NewStreamPartID("stream", 3)

	require.NoError(t, n.Subscribe(sp1))
	require.NoError(t, n.Start(context.Background()))
	require.Eventually(t, func() bool {
		_, statuses := sink.snapshot()
		return len(statuses) == 1
	}, waitFor, tick)

	require.NoError(t, n.Subscribe(sp2))
	clk.Add(cfg.RttUpdateInterval)
	require.NoError(t, n.Subscribe(sp3))

	require.Eventually(t, func() bool {
		_, statuses := sink.snapshot()
		return len(statuses) == 3
	}, waitFor, tick)
	_, statuses := sink.snapshot()

	for _, s := range statuses {
		assert.Equal(t, "Helsinki", s.Location.City)
		assert.Equal(t, "test", s.Extra["version"])
		assert.Zero(t, s.Counter)
	}
	assert.Equal(t, rtts, statuses[0].Rtts)
	assert.Empty(t, statuses[1].Rtts)
	assert.Equal(t, rtts, statuses[2].Rtts)
}

func TestNode_StopIsIdempotent(t *testing.T) {
	c := newCluster(t)
	n := c.addNode("a", testNodeConfig())

	require.NoError(t, n.Stop())
	require.NoError(t, n.Stop())
	assert.ErrorIs(t, n.Subscribe(sp), ErrStopped)
	assert.ErrorIs(t, n.Publish(message(sp, 1, 0, nil)), ErrStopped)
	assert.ErrorIs(t, n.Start(context.Background()), ErrStopped)
}

package overlay

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-overlay/pkg/types"
)

func identity([]types.NodeID) {}

func ids(names ...string) []types.NodeID {
	return types.StringsToNodeIDs(names)
}

// fullyConnected 构造 n 个节点两两相连的图（node-1..node-n）
func fullyConnected(t *testing.T, topo *Topology, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		topo.Update(types.NodeID(fmt.Sprintf("node-%d", i)), nil)
	}
	for i := 1; i <= n; i++ {
		var others []types.NodeID
		for j := 1; j <= n; j++ {
			if i != j {
				others = append(others, types.NodeID(fmt.Sprintf("node-%d", j)))
			}
		}
		topo.Update(types.NodeID(fmt.Sprintf("node-%d", i)), others)
	}
}

// assertSymmetric 检查邻接关系对称且无自环
func assertSymmetric(t *testing.T, topo *Topology) {
	t.Helper()
	state := topo.State()
	for node, neighbors := range state {
		for _, n := range neighbors {
			assert.NotEqual(t, node, n, "self loop at %s", node)
			assert.Contains(t, state[n], node, "edge %s-%s not mirrored", node, n)
		}
	}
}

func TestTopology_Empty(t *testing.T) {
	topo := New(4)
	assert.True(t, topo.IsEmpty())
	assert.Equal(t, 0, topo.NumberOfNodes())
	assert.False(t, topo.HasNode("node-1"))
	assert.Nil(t, topo.Neighbors("node-1"))
	assert.Nil(t, topo.Leave("node-1"))

	instructions, err := topo.FormInstructions("node-1", true)
	require.NoError(t, err)
	assert.Empty(t, instructions)
}

func TestTopology_DefaultDegree(t *testing.T) {
	assert.Equal(t, DefaultMaxNeighborsPerNode, New(0).MaxNeighbors())
}

func TestTopology_UpdateIgnoresUnknownAndSelf(t *testing.T) {
	topo := New(4)
	topo.Update("node-1", ids("node-1", "node-2", "ghost"))
	assert.Empty(t, topo.Neighbors("node-1"))

	topo.Update("node-2", ids("node-1"))
	assert.Equal(t, ids("node-2"), topo.Neighbors("node-1"))
	assert.Equal(t, ids("node-1"), topo.Neighbors("node-2"))
}

func TestTopology_UpdateMirrorsRemovals(t *testing.T) {
	topo := New(4)
	fullyConnected(t, topo, 3)

	topo.Update("node-1", ids("node-2"))
	assert.Equal(t, ids("node-2"), topo.Neighbors("node-1"))
	assert.Equal(t, ids("node-2"), topo.Neighbors("node-3"))
	assertSymmetric(t, topo)
}

func TestTopology_FirstNodes(t *testing.T) {
	topo := New(3, WithShuffle(identity))

	topo.Update("node-1", nil)
	instructions, err := topo.FormInstructions("node-1", false)
	require.NoError(t, err)
	assert.Empty(t, instructions)

	topo.Update("node-2", nil)
	instructions, err = topo.FormInstructions("node-2", false)
	require.NoError(t, err)
	assert.Equal(t, Instructions{
		"node-1": ids("node-2"),
		"node-2": ids("node-1"),
	}, instructions)
}

func TestTopology_JoinFillsOpenSlots(t *testing.T) {
	topo := New(3, WithShuffle(identity))
	fullyConnected(t, topo, 3)

	topo.Update("node-4", ids("node-1"))
	instructions, err := topo.FormInstructions("node-4", false)
	require.NoError(t, err)
	assert.Equal(t, Instructions{
		"node-2": ids("node-1", "node-3", "node-4"),
		"node-3": ids("node-1", "node-2", "node-4"),
		"node-4": ids("node-1", "node-2", "node-3"),
	}, instructions)
	assertSymmetric(t, topo)
}

func TestTopology_JoinFullMeshRewires(t *testing.T) {
	topo := New(3, WithShuffle(identity))
	fullyConnected(t, topo, 4)

	topo.Update("node-5", nil)
	instructions, err := topo.FormInstructions("node-5", false)
	require.NoError(t, err)
	assert.Equal(t, Instructions{
		"node-1": ids("node-3", "node-4", "node-5"),
		"node-2": ids("node-3", "node-4", "node-5"),
		"node-5": ids("node-1", "node-2"),
	}, instructions)

	topo.Update("node-6", nil)
	instructions, err = topo.FormInstructions("node-6", false)
	require.NoError(t, err)
	assert.Equal(t, Instructions{
		"node-1": ids("node-4", "node-5", "node-6"),
		"node-3": ids("node-2", "node-4", "node-6"),
		"node-5": ids("node-1", "node-2", "node-6"),
		"node-6": ids("node-1", "node-3", "node-5"),
	}, instructions)
	assertSymmetric(t, topo)

	// node-6 离开后，node-1 从空位补齐
	topo.Leave("node-6")
	topo.Update("node-1", ids("node-4", "node-5"))
	instructions, err = topo.FormInstructions("node-1", false)
	require.NoError(t, err)
	assert.Equal(t, Instructions{
		"node-1": ids("node-3", "node-4", "node-5"),
		"node-3": ids("node-1", "node-2", "node-4"),
	}, instructions)
	assert.Equal(t, ids("node-1", "node-2"), topo.Neighbors("node-5"))
}

func TestTopology_TrimsExcessNeighbors(t *testing.T) {
	topo := New(2, WithShuffle(identity))
	fullyConnected(t, topo, 4)

	instructions, err := topo.FormInstructions("node-1", false)
	require.NoError(t, err)
	assert.Equal(t, ids("node-2", "node-3"), instructions["node-1"])
	assert.Equal(t, ids("node-2", "node-3"), instructions["node-4"])
	assert.Len(t, topo.Neighbors("node-1"), 2)
	assertSymmetric(t, topo)
}

func TestTopology_ForceGenerate(t *testing.T) {
	topo := New(4, WithShuffle(identity))
	fullyConnected(t, topo, 3)

	instructions, err := topo.FormInstructions("node-1", false)
	require.NoError(t, err)
	assert.Empty(t, instructions)

	instructions, err = topo.FormInstructions("node-1", true)
	require.NoError(t, err)
	assert.Equal(t, Instructions{"node-1": ids("node-2", "node-3")}, instructions)
}

func TestTopology_Leave(t *testing.T) {
	topo := New(4)
	fullyConnected(t, topo, 3)

	former := topo.Leave("node-2")
	assert.Equal(t, ids("node-1", "node-3"), former)
	assert.False(t, topo.HasNode("node-2"))
	assert.Equal(t, ids("node-3"), topo.Neighbors("node-1"))
	assert.Equal(t, 2, topo.NumberOfNodes())
	assertSymmetric(t, topo)
}

// 5 个节点、D=4 时任意加入顺序下最终每个节点都恰好有 4 个邻居
func TestTopology_FiveNodesConverge(t *testing.T) {
	topo := New(4)
	names := ids("node-1", "node-2", "node-3", "node-4", "node-5")
	for _, n := range names {
		topo.Update(n, nil)
		_, err := topo.FormInstructions(n, false)
		require.NoError(t, err)
	}
	for _, n := range names {
		assert.Len(t, topo.Neighbors(n), 4, "node %s", n)
	}
	assertSymmetric(t, topo)
}

// 随机打乱下度数上限与对称性始终成立
func TestTopology_DegreeBoundUnderChurn(t *testing.T) {
	const d = 4
	topo := New(d)
	var joined []types.NodeID

	for i := 0; i < 60; i++ {
		n := types.NodeID(fmt.Sprintf("node-%02d", i))
		topo.Update(n, nil)
		_, err := topo.FormInstructions(n, false)
		require.NoError(t, err)
		joined = append(joined, n)

		if i%7 == 6 {
			leaving := joined[0]
			joined = joined[1:]
			for _, former := range topo.Leave(leaving) {
				_, err := topo.FormInstructions(former, true)
				require.NoError(t, err)
			}
		}

		for node, neighbors := range topo.State() {
			assert.LessOrEqual(t, len(neighbors), d, "node %s", node)
		}
	}
	assertSymmetric(t, topo)

	// 足够多节点时，最多只有一个节点缺邻居
	lacking := 0
	for _, neighbors := range topo.State() {
		if len(neighbors) < d-1 {
			lacking++
		}
	}
	assert.LessOrEqual(t, lacking, 1)
}

func TestTopology_SwapAttemptsBounded(t *testing.T) {
	bounded := New(4, WithShuffle(identity), WithMaxSwapAttempts(1))
	fullyConnected(t, bounded, 5)
	bounded.Update("node-6", nil)
	_, err := bounded.FormInstructions("node-6", false)
	require.NoError(t, err)
	assert.Len(t, bounded.Neighbors("node-6"), 2)

	unbounded := New(4, WithShuffle(identity))
	fullyConnected(t, unbounded, 5)
	unbounded.Update("node-6", nil)
	_, err = unbounded.FormInstructions("node-6", false)
	require.NoError(t, err)
	assert.Equal(t, ids("node-1", "node-2", "node-3", "node-4"), unbounded.Neighbors("node-6"))
	assertSymmetric(t, unbounded)
}

func TestInvariantViolation(t *testing.T) {
	var err error = &InvariantViolation{Node: "node-1", Detail: "node is its own neighbor"}
	assert.True(t, errors.Is(err, ErrInvariantViolation))
	assert.Contains(t, err.Error(), "node-1")

	var iv *InvariantViolation
	assert.True(t, errors.As(fmt.Errorf("wrap: %w", err), &iv))
}

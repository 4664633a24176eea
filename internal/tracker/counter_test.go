package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dep2p/go-overlay/pkg/types"
)

var (
	spA = types.NewStreamPartID("stream-a", 0)
	spB = types.NewStreamPartID("stream-b", 0)
)

func statusWith(sp types.StreamPartID, counter int64) types.Status {
	return types.Status{StreamPart: sp, Counter: counter}
}

func TestInstructionCounter_SetOrIncrement(t *testing.T) {
	c := NewInstructionCounter()

	assert.Equal(t, int64(1), c.SetOrIncrement("n1", spA))
	assert.Equal(t, int64(2), c.SetOrIncrement("n1", spA))
	assert.Equal(t, int64(1), c.SetOrIncrement("n1", spB))
	assert.Equal(t, int64(1), c.SetOrIncrement("n2", spA))
	assert.Equal(t, int64(2), c.Get("n1", spA))
	assert.Equal(t, int64(0), c.Get("n3", spA))
}

func TestInstructionCounter_IsMostRecent(t *testing.T) {
	c := NewInstructionCounter()

	// 未下发过指令时任何非负计数器都是最新的
	assert.True(t, c.IsMostRecent(statusWith(spA, 0), "n1"))

	c.SetOrIncrement("n1", spA)
	c.SetOrIncrement("n1", spA)

	assert.False(t, c.IsMostRecent(statusWith(spA, 0), "n1"))
	assert.False(t, c.IsMostRecent(statusWith(spA, 1), "n1"))
	assert.True(t, c.IsMostRecent(statusWith(spA, 2), "n1"))
	assert.True(t, c.IsMostRecent(statusWith(spA, 3), "n1"))
	assert.True(t, c.IsMostRecent(statusWith(spA, types.CounterUnsubscribe), "n1"))

	// 其他节点、其他流分区互不影响
	assert.True(t, c.IsMostRecent(statusWith(spA, 0), "n2"))
	assert.True(t, c.IsMostRecent(statusWith(spB, 0), "n1"))
}

func TestInstructionCounter_Remove(t *testing.T) {
	c := NewInstructionCounter()
	c.SetOrIncrement("n1", spA)
	c.SetOrIncrement("n1", spB)
	c.SetOrIncrement("n2", spA)

	c.RemoveNodeFromStreamPart("n1", spA)
	assert.Equal(t, int64(0), c.Get("n1", spA))
	assert.Equal(t, int64(1), c.Get("n1", spB))

	c.RemoveStreamPart(spA)
	assert.Equal(t, int64(0), c.Get("n2", spA))
	assert.Equal(t, int64(1), c.Get("n1", spB))

	c.RemoveNode("n1")
	assert.Equal(t, int64(0), c.Get("n1", spB))

	// 删除不存在的条目无副作用
	c.RemoveNode("ghost")
	c.RemoveNodeFromStreamPart("ghost", spA)
	c.RemoveStreamPart(spB)
}

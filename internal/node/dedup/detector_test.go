package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-overlay/pkg/types"
)

func ref(ts, seq int64) types.MessageRef {
	return types.MessageRef{Timestamp: ts, SequenceNumber: seq}
}

func refPtr(ts, seq int64) *types.MessageRef {
	r := ref(ts, seq)
	return &r
}

func TestDetector_StartsEmpty(t *testing.T) {
	d := NewDetector()
	assert.Equal(t, "", d.String())
	_, ok := d.Last()
	assert.False(t, ok)
}

func TestDetector_FirstCheckAccepts(t *testing.T) {
	d := NewDetector()
	res, err := d.MarkAndCheck(refPtr(1, 5), ref(10, 10))
	require.NoError(t, err)
	assert.Equal(t, Accepted, res)
	assert.Equal(t, "10|10", d.String())
}

func TestDetector_InOrder(t *testing.T) {
	d := NewDetector()
	_, err := d.MarkAndCheck(nil, ref(10, 0))
	require.NoError(t, err)

	steps := []struct {
		prev *types.MessageRef
		cur  types.MessageRef
	}{
		{refPtr(10, 0), ref(20, 0)},
		{refPtr(20, 0), ref(30, 0)},
		{nil, ref(30, 1)},
		{refPtr(30, 1), ref(30, 5)},
	}
	for _, s := range steps {
		res, err := d.MarkAndCheck(s.prev, s.cur)
		require.NoError(t, err)
		assert.Equal(t, Accepted, res)
	}
	assert.Equal(t, "30|5", d.String())
}

// 对应场景：状态 (10,0)，依次喂入重复、正常、缺口
func TestDetector_Scenario(t *testing.T) {
	d := NewDetector()
	_, err := d.MarkAndCheck(nil, ref(10, 0))
	require.NoError(t, err)

	res, err := d.MarkAndCheck(refPtr(10, 0), ref(10, 0))
	require.NoError(t, err)
	assert.Equal(t, Duplicate, res)
	assert.False(t, res.IsUnseen())

	res, err = d.MarkAndCheck(refPtr(10, 0), ref(20, 0))
	require.NoError(t, err)
	assert.Equal(t, Accepted, res)
	last, _ := d.Last()
	assert.Equal(t, ref(20, 0), last)

	res, err = d.MarkAndCheck(refPtr(5, 0), ref(30, 0))
	require.NoError(t, err)
	assert.Equal(t, Gap, res)
	assert.True(t, res.IsUnseen())
	assert.Equal(t, "30|0", d.String())
}

func TestDetector_DuplicatesDoNotChangeState(t *testing.T) {
	d := NewDetector()
	_, _ = d.MarkAndCheck(nil, ref(100, 0))

	for _, cur := range []types.MessageRef{ref(100, 0), ref(99, 9), ref(5, 0)} {
		res, err := d.MarkAndCheck(nil, cur)
		require.NoError(t, err)
		assert.Equal(t, Duplicate, res)
		assert.Equal(t, "100|0", d.String())
	}
}

func TestDetector_SkippedNumbersAreGaps(t *testing.T) {
	d := NewDetector()
	_, _ = d.MarkAndCheck(nil, ref(10, 0))

	res, err := d.MarkAndCheck(refPtr(15, 0), ref(20, 0))
	require.NoError(t, err)
	assert.Equal(t, Gap, res)

	res, err = d.MarkAndCheck(refPtr(20, 0), ref(40, 0))
	require.NoError(t, err)
	assert.Equal(t, Accepted, res)
}

func TestDetector_InvalidNumbering(t *testing.T) {
	d := NewDetector()
	_, err := d.MarkAndCheck(refPtr(5, 0), ref(1, 0))
	assert.ErrorIs(t, err, ErrInvalidNumbering)
	_, err = d.MarkAndCheck(refPtr(5, 5), ref(5, 5))
	assert.ErrorIs(t, err, ErrInvalidNumbering)

	// 非法编号不改变状态
	assert.Equal(t, "", d.String())
}

func TestResult_String(t *testing.T) {
	assert.Equal(t, "accepted", Accepted.String())
	assert.Equal(t, "gap", Gap.String())
	assert.Equal(t, "duplicate", Duplicate.String())
}

package plasmite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_PoolStateIsEmpty(t *testing.T) {
	st := newTestState(4096, 0)
	assert.True(t, st.IsEmpty())

	st.h.OldestSeq = 1
	st.h.NewestSeq = 3
	assert.False(t, st.IsEmpty())
}

func Test_PoolStateBounds(t *testing.T) {
	st := newTestState(4096, 0)
	_, _, ok := st.Bounds()
	assert.False(t, ok)

	st.h.OldestSeq = 2
	st.h.NewestSeq = 5
	oldest, newest, ok := st.Bounds()
	assert.True(t, ok)
	assert.Equal(t, uint64(2), oldest)
	assert.Equal(t, uint64(5), newest)
	assert.Equal(t, uint64(4), st.messageCount())
}

func Test_PoolStateSlotForDisabledWhenNoCapacity(t *testing.T) {
	st := newTestState(4096, 0)
	_, _, ok := st.SlotFor(5)
	assert.False(t, ok)
}

func Test_PoolStateSlotForWraps(t *testing.T) {
	st := newTestState(4096, 4)
	off1, idx1, ok := st.SlotFor(1)
	require.True(t, ok)
	off2, idx2, ok := st.SlotFor(5)
	require.True(t, ok)
	assert.Equal(t, idx1, idx2)
	assert.Equal(t, off1, off2)
}

func Test_CheckInvariantsCatchesBadRingOffset(t *testing.T) {
	st := newTestState(4096, 4)
	st.h.RingOffset++
	err := st.checkInvariants()
	require.NotNil(t, err)
	assert.Equal(t, KindCorrupt, err.Kind)
}

func Test_CheckInvariantsCatchesOutOfBoundsHeadOff(t *testing.T) {
	st := newTestState(4096, 0)
	st.h.HeadOff = st.h.RingOffset + st.h.RingSize
	err := st.checkInvariants()
	require.NotNil(t, err)
	assert.Equal(t, KindCorrupt, err.Kind)
}

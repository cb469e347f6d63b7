package plasmite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestState(ringSize, indexCapacity uint64) PoolState {
	indexOffset := uint64(headerSize)
	ringOffset := indexOffset + indexCapacity*indexSlotBytes
	return PoolState{h: headerFields{
		Magic:         headerMagic,
		FormatVersion: formatVersion1,
		HeaderSize:    uint64(headerSize),
		IndexOffset:   indexOffset,
		IndexCapacity: indexCapacity,
		RingOffset:    ringOffset,
		RingSize:      ringSize,
		FileSize:      ringOffset + ringSize,
		HeadOff:       ringOffset,
		TailOff:       ringOffset,
		TailNextOff:   ringOffset,
	}}
}

func noTailFrames(int64) (uint32, uint64, *Error) {
	return 0, 0, newErr(KindInternal, "no tail frames expected in this test")
}

func Test_PlanAppendFirstMessage(t *testing.T) {
	st := newTestState(4096, 0)
	plan, err := planAppend(st, 10, noTailFrames)
	require.Nil(t, err)
	assert.Equal(t, uint64(1), plan.Seq)
	assert.Equal(t, uint64(1), plan.NewNewestSeq)
	assert.Equal(t, uint64(1), plan.NewOldestSeq)
	assert.Nil(t, plan.WrapWrite)
	assert.Empty(t, plan.DroppedSeqs)
}

func Test_PlanAppendRejectsOversizedPayload(t *testing.T) {
	st := newTestState(64, 0)
	_, err := planAppend(st, 1000, noTailFrames)
	require.NotNil(t, err)
	assert.Equal(t, KindUsage, err.Kind)
}

func Test_PlanAppendWrapsNearRingEnd(t *testing.T) {
	st := newTestState(64, 0)
	st.h.HeadOff = st.h.RingOffset + 60
	st.h.TailOff = st.h.RingOffset + 60
	st.h.TailNextOff = st.h.RingOffset + 60

	plan, err := planAppend(st, 8, noTailFrames)
	require.Nil(t, err)
	require.NotNil(t, plan.WrapWrite)
	assert.Equal(t, int64(st.h.RingOffset), plan.FrameOffset)
}

func Test_PlanAppendOverwritesOldestWhenFull(t *testing.T) {
	st := newTestState(64, 0)
	firstFrameLen := frameLenFor(4)
	st.h.OldestSeq = 1
	st.h.NewestSeq = 1
	st.h.HeadOff = st.h.RingOffset + uint64(firstFrameLen)
	st.h.TailOff = st.h.RingOffset
	st.h.TailNextOff = st.h.RingOffset + uint64(firstFrameLen)

	readTail := func(off int64) (uint32, uint64, *Error) {
		assert.Equal(t, int64(st.h.RingOffset), off)
		return firstFrameLen, 1, nil
	}

	plan, err := planAppend(st, 32, readTail)
	require.Nil(t, err)
	assert.Equal(t, uint64(2), plan.Seq)
	assert.Contains(t, plan.DroppedSeqs, uint64(1))
	assert.Equal(t, uint64(2), plan.NewOldestSeq)
}

func Test_PlanAppendIndexWriteWhenCapacitySet(t *testing.T) {
	st := newTestState(4096, 8)
	plan, err := planAppend(st, 10, noTailFrames)
	require.Nil(t, err)
	require.NotNil(t, plan.IndexWrite)
	assert.Equal(t, uint64(1), plan.IndexWrite.Seq)
}

func Test_WithPayloadSetsOffsetAfterFrameHeader(t *testing.T) {
	st := newTestState(4096, 0)
	plan, err := planAppend(st, 4, noTailFrames)
	require.Nil(t, err)
	plan = plan.withPayload([]byte("data"))
	assert.Equal(t, plan.FrameOffset+frameHeaderSize, plan.PayloadWrite.Offset)
	assert.Equal(t, []byte("data"), plan.PayloadWrite.Bytes)
}

package plasmite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_EncodeDecodeWritingFrame(t *testing.T) {
	payload := []byte("hello world")
	buf := make([]byte, 256)
	copy(buf, encodeWriting(7, uint32(len(payload))))
	copy(buf[frameHeaderSize:], payload)

	meta, err := decodeFrame(buf, 0, int64(len(buf)))
	require.Nil(t, err)
	assert.Equal(t, frameWriting, meta.State)
	assert.Equal(t, uint64(7), meta.Seq)
	assert.Equal(t, uint32(len(payload)), meta.PayloadLen)
}

func Test_DecodeCommittedFrameVerifiesMarker(t *testing.T) {
	payload := []byte("abc")
	buf := make([]byte, 256)
	copy(buf, encodeWriting(3, uint32(len(payload))))
	copy(buf[frameHeaderSize:], payload)
	copy(buf[markerOffset(uint32(len(payload))):], commitMarkerValue[:])
	buf[commitStateOffset] = byte(frameCommitted)

	meta, err := decodeFrame(buf, 0, int64(len(buf)))
	require.Nil(t, err)
	assert.Equal(t, frameCommitted, meta.State)
	assert.Equal(t, payload, payloadBytes(buf, 0, meta))
}

func Test_DecodeCommittedFrameRejectsBadMarker(t *testing.T) {
	payload := []byte("abc")
	buf := make([]byte, 256)
	copy(buf, encodeWriting(3, uint32(len(payload))))
	copy(buf[frameHeaderSize:], payload)
	// Leave the marker bytes zeroed instead of writing commitMarkerValue.
	buf[commitStateOffset] = byte(frameCommitted)

	_, err := decodeFrame(buf, 0, int64(len(buf)))
	require.NotNil(t, err)
	assert.Equal(t, KindCorrupt, err.Kind)
}

func Test_DecodeFrameRejectsBadMagic(t *testing.T) {
	buf := make([]byte, 256)
	_, err := decodeFrame(buf, 0, int64(len(buf)))
	require.NotNil(t, err)
	assert.Equal(t, KindCorrupt, err.Kind)
}

func Test_FrameLenForIsAlignedAndIncludesMarker(t *testing.T) {
	fl := frameLenFor(5)
	assert.Equal(t, int64(0), int64(fl)%frameAlign)
	assert.GreaterOrEqual(t, fl, uint32(frameHeaderSize+5+commitMarkerSize))
}

func Test_EncodeWrapMarksRemaining(t *testing.T) {
	buf := make([]byte, 256)
	copy(buf, encodeWrap(100))
	meta, err := decodeFrame(buf, 0, int64(len(buf)))
	require.Nil(t, err)
	assert.Equal(t, frameWrap, meta.State)
	assert.Equal(t, uint32(100), meta.FrameLen)
}

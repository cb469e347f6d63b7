package plasmite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_RawCodecRoundTrip(t *testing.T) {
	c := RawCodec{}
	now := time.Unix(1700000000, 0).UTC()
	meta := Meta{Time: now, Tags: [][]byte{[]byte("a"), []byte("bb")}}

	encoded, err := c.Encode(meta, []byte("payload bytes"))
	require.NoError(t, err)

	decodedMeta, data, err := c.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, now, decodedMeta.Time)
	assert.Equal(t, meta.Tags, decodedMeta.Tags)
	assert.Equal(t, []byte("payload bytes"), data)
}

func Test_RawCodecRoundTripNoTags(t *testing.T) {
	c := RawCodec{}
	now := time.Unix(1, 0).UTC()
	encoded, err := c.Encode(Meta{Time: now}, []byte("x"))
	require.NoError(t, err)

	meta, data, err := c.Decode(encoded)
	require.NoError(t, err)
	assert.Empty(t, meta.Tags)
	assert.Equal(t, []byte("x"), data)
}

func Test_RawCodecDecodeRejectsTruncatedInput(t *testing.T) {
	c := RawCodec{}
	_, _, err := c.Decode([]byte{1, 2, 3})
	require.Error(t, err)
	assert.Equal(t, KindCorrupt, KindOf(err))
}

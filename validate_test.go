package plasmite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ValidateCleanPool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.plasmite")
	p, err := CreatePool(path, CreateOptions{RingSize: 4096, IndexCapacity: 8})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err = p.Append(context.Background(), []byte("ok"), nil, DurabilityFlush)
		require.NoError(t, err)
	}
	require.NoError(t, p.Close())

	report, err := Validate(path, true)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, "ok", report.Status())
	assert.Nil(t, report.Err())
	assert.Equal(t, uint64(5), report.MessageCount)
	assert.Equal(t, uint64(5), report.LastGoodSeq)
}

func Test_ValidateTailOnlyReportsMessageCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.plasmite")
	p, err := CreatePool(path, CreateOptions{RingSize: 4096})
	require.NoError(t, err)
	_, err = p.Append(context.Background(), []byte("one"), nil, DurabilityFast)
	require.NoError(t, err)
	require.NoError(t, p.Close())

	report, err := Validate(path, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), report.MessageCount)
	assert.Empty(t, report.ScannedMessages)
}

func Test_ValidateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.plasmite")
	p, err := CreatePool(path, CreateOptions{RingSize: 4096, IndexCapacity: 8})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err = p.Append(context.Background(), []byte("ok"), nil, DurabilityFlush)
		require.NoError(t, err)
	}
	require.NoError(t, p.Close())

	first, err := Validate(path, true)
	require.NoError(t, err)
	second, err := Validate(path, true)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func Test_ValidateMissingPool(t *testing.T) {
	_, err := Validate(filepath.Join(t.TempDir(), "nope.plasmite"), true)
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}

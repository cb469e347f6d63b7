package plasmite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_InfoReportsUsageAfterAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.plasmite")
	p, err := CreatePool(path, CreateOptions{RingSize: 4096, IndexCapacity: 8})
	require.NoError(t, err)
	defer p.Close()

	info, err := p.Info()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), info.MessageCount)
	assert.Equal(t, float64(0), info.Utilization)

	_, err = p.Append(context.Background(), []byte("twelve bytes"), nil, DurabilityFast)
	require.NoError(t, err)

	info, err = p.Info()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.MessageCount)
	assert.Greater(t, info.Utilization, float64(0))
	assert.Equal(t, uint64(1), info.NewestSeq)
}

func Test_InfoAfterWrappingStaysWithinRingSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.plasmite")
	p, err := CreatePool(path, CreateOptions{RingSize: 128})
	require.NoError(t, err)
	defer p.Close()

	for i := 0; i < 6; i++ {
		_, err = p.Append(context.Background(), []byte("payload12"), nil, DurabilityFast)
		require.NoError(t, err)
	}

	info, err := p.Info()
	require.NoError(t, err)
	total := uint64(info.UsedBytes) + uint64(info.WastedBytes) + uint64(info.FreeBytes)
	assert.Equal(t, uint64(info.RingSize), total)
	assert.InDelta(t, 0, info.Utilization, 1.0)
}

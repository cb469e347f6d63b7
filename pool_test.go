package plasmite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_CreatePoolRejectsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.plasmite")
	p, err := CreatePool(path, CreateOptions{RingSize: 4096})
	require.NoError(t, err)
	defer p.Close()

	_, err = CreatePool(path, CreateOptions{RingSize: 4096})
	require.Error(t, err)
	assert.Equal(t, KindAlreadyExists, KindOf(err))
}

func Test_AppendAndGetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.plasmite")
	p, err := CreatePool(path, CreateOptions{RingSize: 8192, IndexCapacity: 16})
	require.NoError(t, err)
	defer p.Close()

	receipt, err := p.Append(context.Background(), []byte("hello"), [][]byte{[]byte("tag1")}, DurabilityFlush)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), receipt.Seq)

	env, err := p.Get(1)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), env.Data)
	assert.Equal(t, [][]byte{[]byte("tag1")}, env.Tags)
}

func Test_GetMissingSequenceIsNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.plasmite")
	p, err := CreatePool(path, CreateOptions{RingSize: 4096})
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Get(99)
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func Test_AppendOnReadOnlyHandleFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.plasmite")
	writer, err := CreatePool(path, CreateOptions{RingSize: 4096})
	require.NoError(t, err)
	_, err = writer.Append(context.Background(), []byte("seed"), nil, DurabilityFast)
	require.NoError(t, err)
	writer.Close()

	reader, err := OpenPool(path, OpenOptions{Writable: false})
	require.NoError(t, err)
	defer reader.Close()

	_, err = reader.Append(context.Background(), []byte("nope"), nil, DurabilityFast)
	require.Error(t, err)
	assert.Equal(t, KindUsage, KindOf(err))
}

func Test_OpenPoolMissingFileIsNotFound(t *testing.T) {
	_, err := OpenPool(filepath.Join(t.TempDir(), "nope.plasmite"), OpenOptions{})
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func Test_SecondWriterSeesBusy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.plasmite")
	p, err := CreatePool(path, CreateOptions{RingSize: 4096})
	require.NoError(t, err)
	defer p.Close()

	_, err = OpenPool(path, OpenOptions{Writable: true})
	require.Error(t, err)
	assert.Equal(t, KindBusy, KindOf(err))
}

func Test_AppendWrapsAndDropsOldest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.plasmite")
	p, err := CreatePool(path, CreateOptions{RingSize: 256, IndexCapacity: 8})
	require.NoError(t, err)
	defer p.Close()

	var lastReceipt Receipt
	for i := 0; i < 20; i++ {
		lastReceipt, err = p.Append(context.Background(), []byte("payload-data"), nil, DurabilityFast)
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(20), lastReceipt.Seq)

	_, err = p.Get(1)
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))

	info, err := p.Info()
	require.NoError(t, err)
	assert.Greater(t, info.OldestSeq, uint64(1))
	assert.Equal(t, lastReceipt.Seq, info.NewestSeq)

	// oldest_seq must have advanced past every dropped frame, and every
	// seq it now claims live must actually be gettable: bounds identity
	// (newest - oldest + 1 == visible committed frame count).
	var scanned uint64
	for seq := info.OldestSeq; seq <= info.NewestSeq; seq++ {
		env, gerr := p.Get(seq)
		require.NoError(t, gerr, "seq %d should be live per reported bounds", seq)
		assert.Equal(t, seq, env.Seq)
		scanned++
	}
	assert.Equal(t, info.NewestSeq-info.OldestSeq+1, scanned)

	env, err := p.Get(lastReceipt.Seq)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload-data"), env.Data)
}

func Test_GetFallsBackToScanWhenIndexSlotIsStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.plasmite")
	p, err := CreatePool(path, CreateOptions{RingSize: 65536, IndexCapacity: 4})
	require.NoError(t, err)
	defer p.Close()

	for i := 0; i < 10; i++ {
		_, err = p.Append(context.Background(), []byte("payload"), nil, DurabilityFast)
		require.NoError(t, err)
	}

	// Slot (9 mod 4 == 1) now holds seq 9, the last writer to that slot;
	// seq 1 maps to the same slot but is still live (the ring here is big
	// enough that nothing has been physically overwritten), so the index
	// hit is a mismatch and Get(1) must fall back to a full scan rather
	// than reporting NotFound just because the slot disagrees.
	env, err := p.Get(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), env.Seq)

	env, err = p.Get(9)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), env.Seq)
}

func Test_ResizeRequiresEmptyPool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.plasmite")
	p, err := CreatePool(path, CreateOptions{RingSize: 4096})
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Append(context.Background(), []byte("x"), nil, DurabilityFast)
	require.NoError(t, err)

	err = p.Resize(8192)
	require.Error(t, err)
	assert.Equal(t, KindUsage, KindOf(err))
}

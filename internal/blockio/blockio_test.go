package blockio_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvbfs-project/kvbfs/internal/blockio"
	"github.com/kvbfs-project/kvbfs/internal/keycodec"
	"github.com/kvbfs-project/kvbfs/internal/kv"
)

func newStore(t *testing.T) kv.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kvbfs.db")
	store, err := kv.OpenEmbedded(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestWriteReadWithinOneBlock(t *testing.T) {
	store := newStore(t)
	const ino = 5

	require.NoError(t, blockio.WriteAt(store, ino, 10, []byte("hello")))

	buf := make([]byte, 5)
	require.NoError(t, blockio.ReadAt(store, ino, 10, buf))
	assert.Equal(t, "hello", string(buf))

	// Bytes before the write, within the same block, read as a hole.
	hole := make([]byte, 10)
	require.NoError(t, blockio.ReadAt(store, ino, 0, hole))
	assert.Equal(t, make([]byte, 10), hole)
}

func TestWriteSpanningBlockBoundary(t *testing.T) {
	store := newStore(t)
	const ino = 6

	data := make([]byte, 100)
	for i := range data {
		data[i] = byte(i)
	}
	offset := int64(blockio.BlockSize - 50)
	require.NoError(t, blockio.WriteAt(store, ino, offset, data))

	readBack := make([]byte, 100)
	require.NoError(t, blockio.ReadAt(store, ino, offset, readBack))
	assert.Equal(t, data, readBack)
}

func TestReadEntirelySparseHole(t *testing.T) {
	store := newStore(t)
	buf := make([]byte, 4096)
	for i := range buf {
		buf[i] = 0xff
	}
	require.NoError(t, blockio.ReadAt(store, 99, 0, buf))
	assert.Equal(t, make([]byte, 4096), buf)
}

func TestTruncateShrinkZeroesTailAndDropsBlocks(t *testing.T) {
	store := newStore(t)
	const ino = 7

	data := make([]byte, blockio.BlockSize*3)
	for i := range data {
		data[i] = 1
	}
	require.NoError(t, blockio.WriteAt(store, ino, 0, data))

	newSize := uint64(blockio.BlockSize + 10)
	require.NoError(t, blockio.Truncate(store, ino, uint64(len(data)), newSize))

	buf := make([]byte, blockio.BlockSize*3)
	require.NoError(t, blockio.ReadAt(store, ino, 0, buf))

	for i := 0; i < int(newSize); i++ {
		assert.Equal(t, byte(1), buf[i], "byte %d within new size should survive", i)
	}
	for i := int(newSize); i < len(buf); i++ {
		assert.Equal(t, byte(0), buf[i], "byte %d beyond new size should read as zero", i)
	}
}

func TestDeleteAllRemovesEveryBlock(t *testing.T) {
	store := newStore(t)
	const ino = 8

	require.NoError(t, blockio.WriteAt(store, ino, 0, make([]byte, blockio.BlockSize*2)))
	require.NoError(t, blockio.DeleteAll(store, ino))

	it, err := store.NewIterator(keycodec.BlockPrefix(ino))
	require.NoError(t, err)
	defer it.Close()
	assert.False(t, it.Valid())
}

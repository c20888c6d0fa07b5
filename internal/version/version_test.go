package version_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvbfs-project/kvbfs/internal/blockio"
	"github.com/kvbfs-project/kvbfs/internal/kv"
	"github.com/kvbfs-project/kvbfs/internal/metrics"
	"github.com/kvbfs-project/kvbfs/internal/superblock"
	"github.com/kvbfs-project/kvbfs/internal/version"
)

func newStore(t *testing.T) kv.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kvbfs.db")
	store, err := kv.OpenEmbedded(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := newStore(t)
	const ino = 10

	require.NoError(t, blockio.WriteAt(store, ino, 0, []byte("version one contents")))
	node := &superblock.Inode{Ino: ino, Size: uint64(len("version one contents")), MtimeNs: 111}

	ver, err := version.Snapshot(store, node, metrics.Noop())
	require.NoError(t, err)
	assert.EqualValues(t, 1, ver)

	require.NoError(t, blockio.WriteAt(store, ino, 0, []byte("version two is different!")))
	node.Size = uint64(len("version two is different!"))
	node.MtimeNs = 222
	ver2, err := version.Snapshot(store, node, metrics.Noop())
	require.NoError(t, err)
	assert.EqualValues(t, 2, ver2)

	buf := make([]byte, len("version one contents"))
	require.NoError(t, version.ReadAt(store, ino, 1, 0, buf))
	assert.Equal(t, "version one contents", string(buf))

	buf2 := make([]byte, len("version two is different!"))
	require.NoError(t, version.ReadAt(store, ino, 2, 0, buf2))
	assert.Equal(t, "version two is different!", string(buf2))

	// Live content (not a version) is untouched by snapshotting.
	live := make([]byte, node.Size)
	require.NoError(t, blockio.ReadAt(store, ino, 0, live))
	assert.Equal(t, "version two is different!", string(live))
}

func TestListIsAscending(t *testing.T) {
	store := newStore(t)
	const ino = 11
	node := &superblock.Inode{Ino: ino}

	for i := 0; i < 5; i++ {
		_, err := version.Snapshot(store, node, metrics.Noop())
		require.NoError(t, err)
	}

	metas, err := version.List(store, ino)
	require.NoError(t, err)
	require.Len(t, metas, 5)
	for i, m := range metas {
		assert.EqualValues(t, i+1, m.Version)
	}
}

func TestRetentionCapPrunesOldest(t *testing.T) {
	store := newStore(t)
	const ino = 12
	node := &superblock.Inode{Ino: ino}

	for i := 0; i < version.RetentionCap+10; i++ {
		_, err := version.Snapshot(store, node, metrics.Noop())
		require.NoError(t, err)
	}

	metas, err := version.List(store, ino)
	require.NoError(t, err)
	require.Len(t, metas, version.RetentionCap)
	assert.EqualValues(t, 11, metas[0].Version, "oldest 10 versions should have been pruned")
	assert.EqualValues(t, version.RetentionCap+10, metas[len(metas)-1].Version)
}

func TestDeleteAllRemovesHistory(t *testing.T) {
	store := newStore(t)
	const ino = 13
	node := &superblock.Inode{Ino: ino}

	_, err := version.Snapshot(store, node, metrics.Noop())
	require.NoError(t, err)
	_, err = version.Snapshot(store, node, metrics.Noop())
	require.NoError(t, err)

	require.NoError(t, version.DeleteAll(store, ino))

	metas, err := version.List(store, ino)
	require.NoError(t, err)
	assert.Empty(t, metas)
}

package inodecache_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvbfs-project/kvbfs/internal/inodecache"
	"github.com/kvbfs-project/kvbfs/internal/kv"
	"github.com/kvbfs-project/kvbfs/internal/superblock"
)

func newStore(t *testing.T) kv.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kvbfs.db")
	store, err := kv.OpenEmbedded(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAcquireLoadsAndCaches(t *testing.T) {
	store := newStore(t)
	sb, err := superblock.Bootstrap(store, 1)
	require.NoError(t, err)
	_ = sb

	var destroyed []uint64
	c := inodecache.New(store, func(ino uint64) error {
		destroyed = append(destroyed, ino)
		return nil
	})

	h1, err := c.Acquire(superblock.RootIno)
	require.NoError(t, err)
	h2, err := c.Acquire(superblock.RootIno)
	require.NoError(t, err)
	assert.Same(t, h1, h2, "second Acquire should hit the cache, not reload")
	assert.Equal(t, 1, c.Len())

	require.NoError(t, c.Release(h1, 1))
	require.NoError(t, c.Release(h2, 1))
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, destroyed)
}

func TestDeferredDeleteWaitsForZeroRefcount(t *testing.T) {
	store := newStore(t)
	_, err := superblock.Bootstrap(store, 1)
	require.NoError(t, err)

	var destroyed []uint64
	c := inodecache.New(store, func(ino uint64) error {
		destroyed = append(destroyed, ino)
		return nil
	})

	h1, err := c.Acquire(superblock.RootIno)
	require.NoError(t, err)
	h2, err := c.Acquire(superblock.RootIno)
	require.NoError(t, err)

	c.MarkDeleted(superblock.RootIno)

	require.NoError(t, c.Release(h1, 1))
	assert.Empty(t, destroyed, "destroy must wait for the last reference")

	require.NoError(t, c.Release(h2, 1))
	assert.Equal(t, []uint64{superblock.RootIno}, destroyed)
}

func TestMutateMarksDirtyAndSyncPersists(t *testing.T) {
	store := newStore(t)
	_, err := superblock.Bootstrap(store, 1)
	require.NoError(t, err)

	c := inodecache.New(store, nil)
	h, err := c.Acquire(superblock.RootIno)
	require.NoError(t, err)

	h.Mutate(func(n *superblock.Inode) { n.Size = 4096 })
	require.NoError(t, c.Sync(superblock.RootIno))

	reloaded, err := superblock.LoadInode(store, superblock.RootIno)
	require.NoError(t, err)
	assert.EqualValues(t, 4096, reloaded.Size)

	require.NoError(t, c.Release(h, 1))
}

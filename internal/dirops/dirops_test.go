package dirops_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvbfs-project/kvbfs/internal/dirops"
	"github.com/kvbfs-project/kvbfs/internal/fserrors"
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

func TestAddLookupRemove(t *testing.T) {
	store := newStore(t)

	require.NoError(t, dirops.Add(store, 1, "foo.txt", 5, superblock.KindFile))

	d, err := dirops.Lookup(store, 1, "foo.txt")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), d.Ino)
	assert.Equal(t, superblock.KindFile, d.Kind)

	require.NoError(t, dirops.Remove(store, 1, "foo.txt"))
	_, err = dirops.Lookup(store, 1, "foo.txt")
	require.Error(t, err)
	assert.Equal(t, fserrors.NotFound, fserrors.CodeOf(err))
}

func TestAddDuplicateNameFails(t *testing.T) {
	store := newStore(t)
	require.NoError(t, dirops.Add(store, 1, "dup", 5, superblock.KindFile))
	err := dirops.Add(store, 1, "dup", 6, superblock.KindFile)
	require.Error(t, err)
	assert.Equal(t, fserrors.Exists, fserrors.CodeOf(err))
}

func TestIsEmpty(t *testing.T) {
	store := newStore(t)
	empty, err := dirops.IsEmpty(store, 1)
	require.NoError(t, err)
	assert.True(t, empty)

	require.NoError(t, dirops.Add(store, 1, "a", 2, superblock.KindFile))
	empty, err = dirops.IsEmpty(store, 1)
	require.NoError(t, err)
	assert.False(t, empty)
}

func TestListOrdersByName(t *testing.T) {
	store := newStore(t)
	require.NoError(t, dirops.Add(store, 1, "charlie", 4, superblock.KindFile))
	require.NoError(t, dirops.Add(store, 1, "alpha", 2, superblock.KindDir))
	require.NoError(t, dirops.Add(store, 1, "bravo", 3, superblock.KindFile))

	entries, err := dirops.List(store, 1)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, []string{entries[0].Name, entries[1].Name, entries[2].Name})
}

func TestReplaceRetargetsEntry(t *testing.T) {
	store := newStore(t)
	require.NoError(t, dirops.Add(store, 1, "link", 2, superblock.KindFile))
	require.NoError(t, dirops.Replace(store, 1, "link", 9, superblock.KindFile))

	d, err := dirops.Lookup(store, 1, "link")
	require.NoError(t, err)
	assert.Equal(t, uint64(9), d.Ino)
}

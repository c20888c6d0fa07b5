package vtree_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvbfs-project/kvbfs/internal/blockio"
	"github.com/kvbfs-project/kvbfs/internal/dirops"
	"github.com/kvbfs-project/kvbfs/internal/kv"
	"github.com/kvbfs-project/kvbfs/internal/metrics"
	"github.com/kvbfs-project/kvbfs/internal/superblock"
	"github.com/kvbfs-project/kvbfs/internal/version"
	"github.com/kvbfs-project/kvbfs/internal/vtree"
)

func newStore(t *testing.T) kv.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kvbfs.db")
	store, err := kv.OpenEmbedded(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRootVinoIsStableAndVirtual(t *testing.T) {
	a := vtree.RootVino()
	b := vtree.RootVino()
	assert.Equal(t, a, b)
	assert.True(t, vtree.IsVirtualIno(a))
	assert.False(t, vtree.IsVirtualIno(superblock.RootIno))
}

func TestLookupMirrorsRealDirectory(t *testing.T) {
	store := newStore(t)
	_, err := superblock.Bootstrap(store, 1)
	require.NoError(t, err)

	fileNode := &superblock.Inode{Ino: 5, Kind: superblock.KindFile, Size: 3}
	require.NoError(t, superblock.SaveInode(store, fileNode))
	require.NoError(t, dirops.Add(store, superblock.RootIno, "report.txt", 5, superblock.KindFile))

	entry, err := vtree.Lookup(store, vtree.RootVino(), "report.txt")
	require.NoError(t, err)
	assert.Equal(t, vtree.MirrorDir, entry.Kind)

	sameEntry, err := vtree.Lookup(store, vtree.RootVino(), "report.txt")
	require.NoError(t, err)
	assert.Equal(t, entry.Vino, sameEntry.Vino, "lookup must be idempotent")
}

func TestLookupVersionLeafAndReadBack(t *testing.T) {
	store := newStore(t)
	_, err := superblock.Bootstrap(store, 1)
	require.NoError(t, err)

	const fileIno = 6
	require.NoError(t, blockio.WriteAt(store, fileIno, 0, []byte("first draft")))
	node := &superblock.Inode{Ino: fileIno, Kind: superblock.KindFile, Size: uint64(len("first draft")), MtimeNs: 500}
	require.NoError(t, superblock.SaveInode(store, node))
	require.NoError(t, dirops.Add(store, superblock.RootIno, "draft.txt", fileIno, superblock.KindFile))

	_, err = version.Snapshot(store, node, metrics.Noop())
	require.NoError(t, err)

	fileMirror, err := vtree.Lookup(store, vtree.RootVino(), "draft.txt")
	require.NoError(t, err)
	assert.Equal(t, vtree.MirrorDir, fileMirror.Kind)

	children, err := vtree.ListChildren(store, fileMirror.Vino)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "1", children[0].Name)

	leaf, err := vtree.Lookup(store, fileMirror.Vino, "1")
	require.NoError(t, err)
	assert.Equal(t, vtree.VersionFile, leaf.Kind)

	buf := make([]byte, len("first draft"))
	require.NoError(t, vtree.ReadAt(store, leaf.Vino, 0, buf))
	assert.Equal(t, "first draft", string(buf))

	attr, err := vtree.GetAttr(store, leaf.Vino)
	require.NoError(t, err)
	assert.EqualValues(t, len("first draft"), attr.Size)
	assert.Equal(t, uint32(0444), attr.Mode)
}

func TestListChildrenOfRootMirrorsRootDirents(t *testing.T) {
	store := newStore(t)
	_, err := superblock.Bootstrap(store, 1)
	require.NoError(t, err)

	require.NoError(t, superblock.SaveInode(store, &superblock.Inode{Ino: 2, Kind: superblock.KindDir}))
	require.NoError(t, dirops.Add(store, superblock.RootIno, "subdir", 2, superblock.KindDir))

	children, err := vtree.ListChildren(store, vtree.RootVino())
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "subdir", children[0].Name)
	assert.Equal(t, vtree.MirrorDir, children[0].Kind)
}

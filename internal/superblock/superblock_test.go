package superblock_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func TestBootstrapCreatesRootDir(t *testing.T) {
	store := newStore(t)

	sb, err := superblock.Bootstrap(store, 1000)
	require.NoError(t, err)
	require.NotNil(t, sb)

	root, err := superblock.LoadInode(store, superblock.RootIno)
	require.NoError(t, err)
	assert.Equal(t, superblock.KindDir, root.Kind)
	assert.EqualValues(t, 2, root.Nlink)
}

func TestBootstrapIsIdempotent(t *testing.T) {
	store := newStore(t)

	sb1, err := superblock.Bootstrap(store, 1000)
	require.NoError(t, err)
	ino, err := sb1.AllocateIno()
	require.NoError(t, err)
	assert.Equal(t, superblock.FirstFreeIno, ino)

	sb2, err := superblock.Bootstrap(store, 2000)
	require.NoError(t, err)
	next, err := sb2.AllocateIno()
	require.NoError(t, err)
	assert.Equal(t, superblock.FirstFreeIno+1, next)
}

func TestAllocateInoMonotonic(t *testing.T) {
	store := newStore(t)
	sb, err := superblock.Bootstrap(store, 1000)
	require.NoError(t, err)

	seen := make(map[uint64]bool)
	for i := 0; i < 100; i++ {
		ino, err := sb.AllocateIno()
		require.NoError(t, err)
		assert.False(t, seen[ino], "inode number %d reused", ino)
		seen[ino] = true
	}
}

func TestInodeMarshalRoundTrip(t *testing.T) {
	n := &superblock.Inode{
		Ino:           42,
		Kind:          superblock.KindSymlink,
		Mode:          0777,
		UID:           1000,
		GID:           1000,
		Size:          5,
		Nlink:         1,
		AtimeNs:       111,
		MtimeNs:       222,
		CtimeNs:       333,
		SymlinkTarget: "/etc/hosts",
	}
	decoded, err := superblock.UnmarshalInode(42, n.Marshal())
	require.NoError(t, err)
	assert.Equal(t, n, decoded)
}

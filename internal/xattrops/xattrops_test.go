package xattrops_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvbfs-project/kvbfs/internal/fserrors"
	"github.com/kvbfs-project/kvbfs/internal/kv"
	"github.com/kvbfs-project/kvbfs/internal/xattrops"
)

func newStore(t *testing.T) kv.Store {
	dir := t.TempDir()
	store, err := kv.OpenEmbedded(dir + "/kv.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSetGetRemove(t *testing.T) {
	store := newStore(t)

	require.NoError(t, xattrops.Set(store, 7, "user.tag", []byte("hello")))
	v, err := xattrops.Get(store, 7, "user.tag")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), v)

	require.NoError(t, xattrops.Remove(store, 7, "user.tag"))
	_, err = xattrops.Get(store, 7, "user.tag")
	var fsErr *fserrors.Error
	require.ErrorAs(t, err, &fsErr)
	assert.Equal(t, fserrors.NotFound, fsErr.Code)
}

func TestListAndDeleteAll(t *testing.T) {
	store := newStore(t)

	require.NoError(t, xattrops.Set(store, 9, "user.a", []byte("1")))
	require.NoError(t, xattrops.Set(store, 9, "user.b", []byte("2")))
	require.NoError(t, xattrops.Set(store, 10, "user.c", []byte("3")))

	names, err := xattrops.List(store, 9)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"user.a", "user.b"}, names)

	require.NoError(t, xattrops.DeleteAll(store, 9))
	names, err = xattrops.List(store, 9)
	require.NoError(t, err)
	assert.Empty(t, names)

	exists, err := xattrops.Exists(store, 10, "user.c")
	require.NoError(t, err)
	assert.True(t, exists)
}

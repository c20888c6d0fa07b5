package kv_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvbfs-project/kvbfs/internal/kv"
)

func newEmbedded(t *testing.T) *kv.Embedded {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kvbfs.db")
	store, err := kv.OpenEmbedded(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestEmbeddedGetPutDelete(t *testing.T) {
	store := newEmbedded(t)

	_, found, err := store.Get([]byte("i:1"))
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Put([]byte("i:1"), []byte("alpha")))
	v, found, err := store.Get([]byte("i:1"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "alpha", string(v))

	require.NoError(t, store.Delete([]byte("i:1")))
	_, found, err = store.Get([]byte("i:1"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestEmbeddedIteratorPrefixOrder(t *testing.T) {
	store := newEmbedded(t)

	keys := []string{"d:1:a", "d:1:b", "d:1:c", "d:2:a", "i:1"}
	for _, k := range keys {
		require.NoError(t, store.Put([]byte(k), []byte(k)))
	}

	it, err := store.NewIterator([]byte("d:1:"))
	require.NoError(t, err)
	defer it.Close()

	var got []string
	for it.Valid() {
		got = append(got, string(it.Key()))
		it.Next()
	}
	assert.Equal(t, []string{"d:1:a", "d:1:b", "d:1:c"}, got)
}

func TestNetworkedStoreRoundTrip(t *testing.T) {
	backend := newEmbedded(t)

	server, err := kv.NewNetworkedServer(backend, "127.0.0.1:0")
	require.NoError(t, err)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Serve(ctx)

	client, err := kv.DialNetworked(server.Addr().String(), 2*time.Second)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Put([]byte("sb"), []byte("superblock-bytes")))

	v, found, err := client.Get([]byte("sb"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "superblock-bytes", string(v))

	exists, err := client.Exist([]byte("sb"))
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, client.Put([]byte("d:1:x"), []byte("1")))
	require.NoError(t, client.Put([]byte("d:1:y"), []byte("2")))

	it, err := client.NewIterator([]byte("d:1:"))
	require.NoError(t, err)
	defer it.Close()

	var got []string
	for it.Valid() {
		got = append(got, string(it.Key()))
		it.Next()
	}
	assert.Equal(t, []string{"d:1:x", "d:1:y"}, got)

	require.NoError(t, client.Delete([]byte("sb")))
	_, found, err = client.Get([]byte("sb"))
	require.NoError(t, err)
	assert.False(t, found)
}

package keycodec_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvbfs-project/kvbfs/internal/fserrors"
	"github.com/kvbfs-project/kvbfs/internal/keycodec"
)

func TestDirentKeyOrdering(t *testing.T) {
	a, err := keycodec.DirentKey(1, "alpha")
	require.NoError(t, err)
	b, err := keycodec.DirentKey(1, "beta")
	require.NoError(t, err)
	assert.Less(t, string(a), string(b))
}

func TestDirentPrefixBoundsOnlyParent(t *testing.T) {
	prefix := keycodec.DirentPrefix(1)
	within, err := keycodec.DirentKey(1, "file")
	require.NoError(t, err)
	other, err := keycodec.DirentKey(12, "file")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(string(within), string(prefix)))
	assert.False(t, strings.HasPrefix(string(other), string(prefix)))
}

func TestOverlongNameIsNameTooLong(t *testing.T) {
	name := strings.Repeat("x", keycodec.MaxKeyLen)
	_, err := keycodec.DirentKey(1, name)
	require.Error(t, err)
	assert.Equal(t, fserrors.NameTooLong, fserrors.CodeOf(err))
}

func TestVersionKeyScoping(t *testing.T) {
	metaPrefix := keycodec.VersionMetaPrefix(7)
	meta, err := keycodec.VersionMetaKey(7, 3)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(meta), string(metaPrefix)))

	blockPrefix := keycodec.VersionBlockPrefix(7, 3)
	block, err := keycodec.VersionBlockKey(7, 3, 0)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(block), string(blockPrefix)))

	otherVersionBlock, err := keycodec.VersionBlockKey(7, 4, 0)
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(string(otherVersionBlock), string(blockPrefix)))
}

func TestEncodeDecodeUint64RoundTrip(t *testing.T) {
	const v = uint64(0xdeadbeefcafe)
	assert.Equal(t, v, keycodec.DecodeUint64(keycodec.EncodeUint64(v)))
}

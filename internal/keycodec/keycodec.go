// Package keycodec maps kvbfs's logical records (superblock, inodes,
// dirents, blocks, xattrs, version history) onto the flat ordered
// keyspace the kv package exposes. Every key is built so that
// lexicographic byte order on the wire is also the order callers want
// when they prefix-iterate — directory listings sorted by name, blocks
// sorted by index, versions sorted by version number. Every numeric
// component (inode number, block index, version number) is rendered as
// a fixed-width, zero-padded decimal string so that lexicographic and
// numeric order always agree; a plain "%d" would sort "10" before "9".
package keycodec

import (
	"encoding/binary"
	"fmt"

	"github.com/kvbfs-project/kvbfs/internal/fserrors"
)

// MaxKeyLen bounds any single encoded key. It exists mainly to catch
// pathological directory entry names before they are written, since an
// overlong dirent key would otherwise silently defeat prefix iteration
// bounds elsewhere in the codebase.
const MaxKeyLen = 512

// numWidth is wide enough for any uint64 value (max 20 decimal digits).
const numWidth = 20

func num(v uint64) string {
	return fmt.Sprintf("%0*d", numWidth, v)
}

func checkLen(key []byte) ([]byte, error) {
	if len(key) > MaxKeyLen {
		return nil, fserrors.New(fserrors.NameTooLong, "encoded key exceeds maximum length")
	}
	return key, nil
}

// SuperblockKey is the single fixed key holding the superblock record.
func SuperblockKey() []byte {
	return []byte("sb")
}

// InodeKey addresses an inode's metadata record.
func InodeKey(ino uint64) ([]byte, error) {
	return checkLen(fmt.Appendf(nil, "i:%s", num(ino)))
}

// DirentKey addresses one (parent, name) directory entry.
func DirentKey(parent uint64, name string) ([]byte, error) {
	return checkLen(append(DirentPrefix(parent), name...))
}

// DirentPrefix bounds the range of all entries within parent, for
// directory-read iteration. Entries sort by name, so parent's numeric
// component does not need padding to separate one parent's range from
// another's — the trailing ":" already guarantees that.
func DirentPrefix(parent uint64) []byte {
	return fmt.Appendf(nil, "d:%s:", num(parent))
}

// BlockKey addresses one fixed-size data block of an inode's content.
func BlockKey(ino uint64, block uint64) ([]byte, error) {
	return checkLen(append(BlockPrefix(ino), num(block)...))
}

// BlockPrefix bounds the range of all live blocks of ino, in ascending
// block-index order.
func BlockPrefix(ino uint64) []byte {
	return fmt.Appendf(nil, "b:%s:", num(ino))
}

// XattrKey addresses one named extended attribute of an inode.
func XattrKey(ino uint64, name string) ([]byte, error) {
	return checkLen(append(XattrPrefix(ino), name...))
}

// XattrPrefix bounds the range of all extended attributes of ino.
func XattrPrefix(ino uint64) []byte {
	return fmt.Appendf(nil, "x:%s:", num(ino))
}

// VersionCounterKey addresses the monotonically increasing version
// counter for ino's history.
func VersionCounterKey(ino uint64) []byte {
	return fmt.Appendf(nil, "vc:%s", num(ino))
}

// VersionMetaKey addresses the metadata snapshot of ino at version ver.
func VersionMetaKey(ino uint64, ver uint64) ([]byte, error) {
	return checkLen(append(VersionMetaPrefix(ino), num(ver)...))
}

// VersionMetaPrefix bounds the range of all retained version-metadata
// records of ino, in ascending version order — used both for listing
// ".versions" entries and for finding the oldest version to prune.
func VersionMetaPrefix(ino uint64) []byte {
	return fmt.Appendf(nil, "vm:%s:", num(ino))
}

// VersionBlockKey addresses one block of ino's content as it stood at
// version ver.
func VersionBlockKey(ino uint64, ver uint64, block uint64) ([]byte, error) {
	return checkLen(append(VersionBlockPrefix(ino, ver), num(block)...))
}

// VersionBlockPrefix bounds all blocks belonging to one retained
// version of ino, for cascade deletion when that version is pruned.
func VersionBlockPrefix(ino uint64, ver uint64) []byte {
	return fmt.Appendf(nil, "vb:%s:%s:", num(ino), num(ver))
}

// EncodeUint64 renders v as a fixed 8-byte big-endian value, used for
// fields (record contents, not keys) where a compact binary form is
// preferable to the zero-padded decimal text used in keys above.
func EncodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

// DecodeUint64 is the inverse of EncodeUint64.
func DecodeUint64(buf []byte) uint64 {
	return binary.BigEndian.Uint64(buf)
}

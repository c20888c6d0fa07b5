// Package blockio implements fixed-size block reads, writes, and
// truncation over the kv keyspace, with sparse-hole semantics: a block
// that was never written (or was truncated away) simply has no KV entry,
// and reads across it are zero-filled rather than erroring.
package blockio

import (
	"github.com/kvbfs-project/kvbfs/internal/fserrors"
	"github.com/kvbfs-project/kvbfs/internal/keycodec"
	"github.com/kvbfs-project/kvbfs/internal/kv"
)

// BlockSize is the fixed unit of file content storage. Every stored
// block value is exactly this many bytes, zero-padded past whatever was
// actually written — callers rely on Size (kept in the inode record) to
// know the file's true logical length, not the presence or length of
// block records.
const BlockSize = 4096

// ReadAt fills buf with ino's content starting at offset, zero-filling
// any portion that falls in a sparse hole or past the last written
// block. It never consults the inode's logical Size — callers must clamp
// the read range to Size themselves, the same way the dispatcher clamps
// a FUSE ReadFileOp to the file's reported attributes.
func ReadAt(store kv.Store, ino uint64, offset int64, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	if offset < 0 {
		return fserrors.New(fserrors.InvalidArgument, "negative read offset")
	}

	remaining := buf
	pos := offset
	for len(remaining) > 0 {
		block := uint64(pos) / BlockSize
		blockOff := int(uint64(pos) % BlockSize)
		n := BlockSize - blockOff
		if n > len(remaining) {
			n = len(remaining)
		}

		key, err := keycodec.BlockKey(ino, block)
		if err != nil {
			return err
		}
		data, found, err := store.Get(key)
		if err != nil {
			return fserrors.Wrap(fserrors.IOError, "read block", err)
		}
		if !found {
			clear(remaining[:n])
		} else {
			copyBlockRange(remaining[:n], data, blockOff)
		}

		remaining = remaining[n:]
		pos += int64(n)
	}
	return nil
}

// copyBlockRange copies n bytes of a (possibly short, zero-padded-in-
// spirit) stored block starting at blockOff into dst.
func copyBlockRange(dst, block []byte, blockOff int) {
	n := len(dst)
	for i := 0; i < n; i++ {
		srcIdx := blockOff + i
		if srcIdx < len(block) {
			dst[i] = block[srcIdx]
		} else {
			dst[i] = 0
		}
	}
}

// WriteAt stores data at offset, read-modify-writing any block that
// isn't fully overwritten so unwritten portions of a partially touched
// block are preserved (or zero-filled, for a first write into a hole).
func WriteAt(store kv.Store, ino uint64, offset int64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if offset < 0 {
		return fserrors.New(fserrors.InvalidArgument, "negative write offset")
	}

	remaining := data
	pos := offset
	for len(remaining) > 0 {
		block := uint64(pos) / BlockSize
		blockOff := int(uint64(pos) % BlockSize)
		n := BlockSize - blockOff
		if n > len(remaining) {
			n = len(remaining)
		}

		key, err := keycodec.BlockKey(ino, block)
		if err != nil {
			return err
		}

		var out []byte
		if blockOff == 0 && n == BlockSize {
			// Full-block overwrite: no need to read the old contents.
			out = append([]byte(nil), remaining[:n]...)
		} else {
			existing, found, err := store.Get(key)
			if err != nil {
				return fserrors.Wrap(fserrors.IOError, "read block for rmw", err)
			}
			out = make([]byte, BlockSize)
			if found {
				copy(out, existing)
			}
			copy(out[blockOff:blockOff+n], remaining[:n])
		}

		if err := store.Put(key, out); err != nil {
			return fserrors.Wrap(fserrors.IOError, "write block", err)
		}

		remaining = remaining[n:]
		pos += int64(n)
	}
	return nil
}

// Truncate adjusts ino's stored blocks for a logical size change from
// oldSize to newSize. Shrinking deletes blocks wholly beyond newSize and
// zero-tails the boundary block; growing requires no writes, since reads
// past the old size already fall through to sparse zero-fill.
func Truncate(store kv.Store, ino uint64, oldSize, newSize uint64) error {
	if newSize >= oldSize {
		return nil
	}

	lastBlock := newSize / BlockSize
	boundaryOff := int(newSize % BlockSize)

	if boundaryOff > 0 {
		key, err := keycodec.BlockKey(ino, lastBlock)
		if err != nil {
			return err
		}
		existing, found, err := store.Get(key)
		if err != nil {
			return fserrors.Wrap(fserrors.IOError, "read boundary block", err)
		}
		if found {
			out := make([]byte, BlockSize)
			keep := boundaryOff
			if len(existing) < keep {
				keep = len(existing)
			}
			copy(out, existing[:keep])
			if err := store.Put(key, out); err != nil {
				return fserrors.Wrap(fserrors.IOError, "rewrite boundary block", err)
			}
		}
		lastBlock++ // first block to delete outright
	}

	return deleteBlocksFrom(store, ino, lastBlock, oldSize)
}

func deleteBlocksFrom(store kv.Store, ino uint64, fromBlock, oldSize uint64) error {
	lastLiveBlock := oldSize / BlockSize
	for b := fromBlock; b <= lastLiveBlock; b++ {
		key, err := keycodec.BlockKey(ino, b)
		if err != nil {
			return err
		}
		if err := store.Delete(key); err != nil {
			return fserrors.Wrap(fserrors.IOError, "delete truncated block", err)
		}
	}
	return nil
}

// DeleteAll removes every stored block of ino, used when an inode is
// finally destroyed.
func DeleteAll(store kv.Store, ino uint64) error {
	it, err := store.NewIterator(keycodec.BlockPrefix(ino))
	if err != nil {
		return err
	}
	defer it.Close()

	var keys [][]byte
	for it.Valid() {
		keys = append(keys, append([]byte(nil), it.Key()...))
		it.Next()
	}
	for _, k := range keys {
		if err := store.Delete(k); err != nil {
			return fserrors.Wrap(fserrors.IOError, "delete block", err)
		}
	}
	return nil
}

func clear(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

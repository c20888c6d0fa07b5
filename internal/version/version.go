// Package version implements the immutable version history kept for
// every regular file: each time an open handle that was written through
// is released, a full copy-on-write snapshot of its
// metadata and blocks is taken under the "vm:"/"vb:" key prefixes,
// capped at RetentionCap versions with the oldest pruned first.
package version

import (
	"encoding/binary"
	"sort"
	"time"

	"github.com/kvbfs-project/kvbfs/internal/fserrors"
	"github.com/kvbfs-project/kvbfs/internal/keycodec"
	"github.com/kvbfs-project/kvbfs/internal/kv"
	"github.com/kvbfs-project/kvbfs/internal/metrics"
	"github.com/kvbfs-project/kvbfs/internal/superblock"
)

// RetentionCap is the maximum number of versions kept per inode; the
// oldest version is pruned once a snapshot would exceed it.
const RetentionCap = 64

// Meta is the metadata recorded alongside each retained version — enough
// to render a ".versions" entry's attributes without touching the
// version's block data.
type Meta struct {
	Version uint64
	Size    uint64
	MtimeNs int64
	Mode    uint32
	UID     uint32
	GID     uint32
}

func (m Meta) marshal() []byte {
	buf := make([]byte, 8+8+8+4+4+4)
	binary.BigEndian.PutUint64(buf[0:8], m.Version)
	binary.BigEndian.PutUint64(buf[8:16], m.Size)
	binary.BigEndian.PutUint64(buf[16:24], uint64(m.MtimeNs))
	binary.BigEndian.PutUint32(buf[24:28], m.Mode)
	binary.BigEndian.PutUint32(buf[28:32], m.UID)
	binary.BigEndian.PutUint32(buf[32:36], m.GID)
	return buf
}

func unmarshalMeta(buf []byte) (Meta, error) {
	if len(buf) != 36 {
		return Meta{}, fserrors.New(fserrors.IOError, "truncated version metadata record")
	}
	return Meta{
		Version: binary.BigEndian.Uint64(buf[0:8]),
		Size:    binary.BigEndian.Uint64(buf[8:16]),
		MtimeNs: int64(binary.BigEndian.Uint64(buf[16:24])),
		Mode:    binary.BigEndian.Uint32(buf[24:28]),
		UID:     binary.BigEndian.Uint32(buf[28:32]),
		GID:     binary.BigEndian.Uint32(buf[32:36]),
	}, nil
}

// nextVersion allocates and persists the next version number for ino,
// starting at 1 so the first retained snapshot is version 1 (the
// "1-indexed display name" the ".versions" tree presents as its
// synthetic file names).
func nextVersion(store kv.Store, ino uint64) (uint64, error) {
	key := keycodec.VersionCounterKey(ino)
	buf, found, err := store.Get(key)
	if err != nil {
		return 0, fserrors.Wrap(fserrors.IOError, "read version counter", err)
	}
	var n uint64
	if found {
		n = keycodec.DecodeUint64(buf)
	}
	n++
	if err := store.Put(key, keycodec.EncodeUint64(n)); err != nil {
		return 0, fserrors.Wrap(fserrors.IOError, "write version counter", err)
	}
	return n, nil
}

// Snapshot copies ino's current blocks and metadata into a new retained
// version, then prunes the oldest retained version if doing so pushed
// the count past RetentionCap. It is called on every release of an open
// handle that was written through, whether or not other handles on the
// same file remain open.
// m receives the snapshot's wall-clock duration and a pruned-version
// count; pass metrics.Noop() to skip both.
func Snapshot(store kv.Store, node *superblock.Inode, m metrics.Handle) (uint64, error) {
	start := time.Now()
	defer func() { m.VersionSnapshotDuration(time.Since(start).Seconds()) }()

	ver, err := nextVersion(store, node.Ino)
	if err != nil {
		return 0, err
	}

	if err := copyBlocks(store, node.Ino, node.Size, ver); err != nil {
		return 0, err
	}

	meta := Meta{
		Version: ver,
		Size:    node.Size,
		MtimeNs: node.MtimeNs,
		Mode:    node.Mode,
		UID:     node.UID,
		GID:     node.GID,
	}
	metaKey, err := keycodec.VersionMetaKey(node.Ino, ver)
	if err != nil {
		return 0, err
	}
	if err := store.Put(metaKey, meta.marshal()); err != nil {
		return 0, fserrors.Wrap(fserrors.IOError, "write version metadata", err)
	}

	if err := pruneOldest(store, node.Ino, m); err != nil {
		return 0, err
	}
	return ver, nil
}

func copyBlocks(store kv.Store, ino uint64, size uint64, ver uint64) error {
	numBlocks := (size + blockSize - 1) / blockSize
	for b := uint64(0); b < numBlocks; b++ {
		srcKey, err := keycodec.BlockKey(ino, b)
		if err != nil {
			return err
		}
		data, found, err := store.Get(srcKey)
		if err != nil {
			return fserrors.Wrap(fserrors.IOError, "read block for snapshot", err)
		}
		if !found {
			continue
		}
		dstKey, err := keycodec.VersionBlockKey(ino, ver, b)
		if err != nil {
			return err
		}
		if err := store.Put(dstKey, data); err != nil {
			return fserrors.Wrap(fserrors.IOError, "write version block", err)
		}
	}
	return nil
}

// blockSize mirrors blockio.BlockSize. It is duplicated rather than
// imported to keep this package from depending on blockio for a single
// constant; both are pinned to the same on-disk block size by design.
const blockSize = 4096

// List returns every retained version of ino in ascending version order.
func List(store kv.Store, ino uint64) ([]Meta, error) {
	it, err := store.NewIterator(keycodec.VersionMetaPrefix(ino))
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var metas []Meta
	for it.Valid() {
		m, err := unmarshalMeta(it.Value())
		if err != nil {
			return nil, err
		}
		metas = append(metas, m)
		it.Next()
	}
	// The key encoding already yields ascending order; Sort is a defensive
	// no-op guarding against a future backend that doesn't preserve it.
	sort.Slice(metas, func(i, j int) bool { return metas[i].Version < metas[j].Version })
	return metas, nil
}

// Get fetches one retained version's metadata.
func Get(store kv.Store, ino uint64, ver uint64) (Meta, error) {
	key, err := keycodec.VersionMetaKey(ino, ver)
	if err != nil {
		return Meta{}, err
	}
	buf, found, err := store.Get(key)
	if err != nil {
		return Meta{}, fserrors.Wrap(fserrors.IOError, "read version metadata", err)
	}
	if !found {
		return Meta{}, fserrors.New(fserrors.NotFound, "no such version")
	}
	return unmarshalMeta(buf)
}

// ReadAt reads from ino's content as it stood at version ver.
func ReadAt(store kv.Store, ino uint64, ver uint64, offset int64, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	if offset < 0 {
		return fserrors.New(fserrors.InvalidArgument, "negative read offset")
	}
	remaining := buf
	pos := offset
	for len(remaining) > 0 {
		block := uint64(pos) / blockSize
		blockOff := int(uint64(pos) % blockSize)
		n := blockSize - blockOff
		if n > len(remaining) {
			n = len(remaining)
		}
		key, err := keycodec.VersionBlockKey(ino, ver, block)
		if err != nil {
			return err
		}
		data, found, err := store.Get(key)
		if err != nil {
			return fserrors.Wrap(fserrors.IOError, "read version block", err)
		}
		if !found {
			for i := range remaining[:n] {
				remaining[i] = 0
			}
		} else {
			for i := 0; i < n; i++ {
				if blockOff+i < len(data) {
					remaining[i] = data[blockOff+i]
				} else {
					remaining[i] = 0
				}
			}
		}
		remaining = remaining[n:]
		pos += int64(n)
	}
	return nil
}

// pruneOldest deletes the single oldest retained version of ino, plus
// all of its blocks, if the retained count exceeds RetentionCap.
func pruneOldest(store kv.Store, ino uint64, m metrics.Handle) error {
	metas, err := List(store, ino)
	if err != nil {
		return err
	}
	if len(metas) <= RetentionCap {
		return nil
	}
	oldest := metas[0].Version
	if err := DeleteVersion(store, ino, oldest); err != nil {
		return err
	}
	m.VersionsPrunedInc()
	return nil
}

// DeleteVersion removes one retained version's metadata and blocks
// entirely, used both by pruning and by cascade-deleting a destroyed
// inode's whole history.
func DeleteVersion(store kv.Store, ino uint64, ver uint64) error {
	metaKey, err := keycodec.VersionMetaKey(ino, ver)
	if err != nil {
		return err
	}
	if err := store.Delete(metaKey); err != nil {
		return fserrors.Wrap(fserrors.IOError, "delete version metadata", err)
	}

	it, err := store.NewIterator(keycodec.VersionBlockPrefix(ino, ver))
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
			return fserrors.Wrap(fserrors.IOError, "delete version block", err)
		}
	}
	return nil
}

// DeleteAll removes every retained version of ino, used when the inode
// itself is finally destroyed.
func DeleteAll(store kv.Store, ino uint64) error {
	metas, err := List(store, ino)
	if err != nil {
		return err
	}
	for _, m := range metas {
		if err := DeleteVersion(store, ino, m.Version); err != nil {
			return err
		}
	}
	// Drop the counter last so a crash mid-cascade still sees a
	// monotonically increasing version number if the inode number is
	// ever reused (it won't be, ino allocation never recycles, but the
	// ordering costs nothing).
	return store.Delete(keycodec.VersionCounterKey(ino))
}

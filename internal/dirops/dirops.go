// Package dirops manages directory entry records: the (parent, name) ->
// (ino, kind) mappings stored under the "d:" key prefix. It does not
// touch inode metadata itself (link counts, mtimes) — that's the
// caller's responsibility, since a single directory mutation (mkdir,
// rename) touches both a dirent and one or more inode records and the
// two need to be sequenced together by whoever holds the relevant
// locks.
package dirops

import (
	"encoding/binary"

	"github.com/kvbfs-project/kvbfs/internal/fserrors"
	"github.com/kvbfs-project/kvbfs/internal/keycodec"
	"github.com/kvbfs-project/kvbfs/internal/kv"
	"github.com/kvbfs-project/kvbfs/internal/superblock"
)

// Dirent is one resolved directory entry.
type Dirent struct {
	Name string
	Ino  uint64
	Kind superblock.Kind
}

func encodeValue(ino uint64, kind superblock.Kind) []byte {
	buf := make([]byte, 9)
	binary.BigEndian.PutUint64(buf[0:8], ino)
	buf[8] = byte(kind)
	return buf
}

func decodeValue(buf []byte) (uint64, superblock.Kind, error) {
	if len(buf) != 9 {
		return 0, 0, fserrors.New(fserrors.IOError, "truncated dirent record")
	}
	return binary.BigEndian.Uint64(buf[0:8]), superblock.Kind(buf[8]), nil
}

// Lookup resolves name within parent, returning fserrors.NotFound if
// absent.
func Lookup(store kv.Store, parent uint64, name string) (Dirent, error) {
	key, err := keycodec.DirentKey(parent, name)
	if err != nil {
		return Dirent{}, err
	}
	buf, found, err := store.Get(key)
	if err != nil {
		return Dirent{}, fserrors.Wrap(fserrors.IOError, "read dirent", err)
	}
	if !found {
		return Dirent{}, fserrors.New(fserrors.NotFound, "no such directory entry")
	}
	ino, kind, err := decodeValue(buf)
	if err != nil {
		return Dirent{}, err
	}
	return Dirent{Name: name, Ino: ino, Kind: kind}, nil
}

// Add creates a new directory entry. It returns fserrors.Exists if name
// is already taken within parent.
func Add(store kv.Store, parent uint64, name string, ino uint64, kind superblock.Kind) error {
	key, err := keycodec.DirentKey(parent, name)
	if err != nil {
		return err
	}
	_, found, err := store.Get(key)
	if err != nil {
		return fserrors.Wrap(fserrors.IOError, "probe dirent", err)
	}
	if found {
		return fserrors.New(fserrors.Exists, "directory entry already exists")
	}
	if err := store.Put(key, encodeValue(ino, kind)); err != nil {
		return fserrors.Wrap(fserrors.IOError, "write dirent", err)
	}
	return nil
}

// Replace overwrites an existing entry's target, used by rename-over
// when the destination name already exists.
func Replace(store kv.Store, parent uint64, name string, ino uint64, kind superblock.Kind) error {
	key, err := keycodec.DirentKey(parent, name)
	if err != nil {
		return err
	}
	if err := store.Put(key, encodeValue(ino, kind)); err != nil {
		return fserrors.Wrap(fserrors.IOError, "write dirent", err)
	}
	return nil
}

// Remove deletes the entry for name within parent.
func Remove(store kv.Store, parent uint64, name string) error {
	key, err := keycodec.DirentKey(parent, name)
	if err != nil {
		return err
	}
	if err := store.Delete(key); err != nil {
		return fserrors.Wrap(fserrors.IOError, "delete dirent", err)
	}
	return nil
}

// IsEmpty reports whether ino (a directory) has zero entries.
func IsEmpty(store kv.Store, ino uint64) (bool, error) {
	it, err := store.NewIterator(keycodec.DirentPrefix(ino))
	if err != nil {
		return false, err
	}
	defer it.Close()
	return !it.Valid(), nil
}

// List returns every real entry within parent in ascending name order —
// the same order the underlying key encoding already sorts in, since
// name is the trailing component of the dirent key. No "." or ".."
// entries are included, and internal/vfs does not add them either. A
// directory's raw entry set is small enough in practice to materialize
// in one shot; internal/vfs does so once per open directory handle and
// adds the root's synthetic entries (".versions" among them) itself, so
// dirops never needs to know about vtree at all.
func List(store kv.Store, parent uint64) ([]Dirent, error) {
	it, err := store.NewIterator(keycodec.DirentPrefix(parent))
	if err != nil {
		return nil, err
	}
	defer it.Close()

	prefixLen := len(keycodec.DirentPrefix(parent))
	var entries []Dirent
	for it.Valid() {
		name := string(it.Key()[prefixLen:])
		ino, kind, err := decodeValue(it.Value())
		if err != nil {
			return nil, err
		}
		entries = append(entries, Dirent{Name: name, Ino: ino, Kind: kind})
		it.Next()
	}
	return entries, nil
}

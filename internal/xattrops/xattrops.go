// Package xattrops manages extended attribute records: the
// (ino, name) -> value mappings stored under the "x:" key prefix. Like
// dirops, it is a thin single-concern wrapper over the kv keyspace and
// leaves sequencing with inode metadata (ctime updates) to the caller.
package xattrops

import (
	"github.com/kvbfs-project/kvbfs/internal/fserrors"
	"github.com/kvbfs-project/kvbfs/internal/keycodec"
	"github.com/kvbfs-project/kvbfs/internal/kv"
)

// Get fetches the named extended attribute of ino.
func Get(store kv.Store, ino uint64, name string) ([]byte, error) {
	key, err := keycodec.XattrKey(ino, name)
	if err != nil {
		return nil, err
	}
	value, found, err := store.Get(key)
	if err != nil {
		return nil, fserrors.Wrap(fserrors.IOError, "read xattr", err)
	}
	if !found {
		return nil, fserrors.New(fserrors.NotFound, "no such extended attribute")
	}
	return value, nil
}

// Set stores value under name on ino, unconditionally overwriting any
// prior value. Create/replace exclusivity (setxattr(2) XATTR_CREATE /
// XATTR_REPLACE) is enforced by the caller, which already has to probe
// existence to decide the right fserrors.Code on conflict.
func Set(store kv.Store, ino uint64, name string, value []byte) error {
	key, err := keycodec.XattrKey(ino, name)
	if err != nil {
		return err
	}
	if err := store.Put(key, value); err != nil {
		return fserrors.Wrap(fserrors.IOError, "write xattr", err)
	}
	return nil
}

// Exists reports whether ino has an extended attribute named name.
func Exists(store kv.Store, ino uint64, name string) (bool, error) {
	key, err := keycodec.XattrKey(ino, name)
	if err != nil {
		return false, err
	}
	_, found, err := store.Get(key)
	if err != nil {
		return false, fserrors.Wrap(fserrors.IOError, "probe xattr", err)
	}
	return found, nil
}

// Remove deletes the named extended attribute of ino.
func Remove(store kv.Store, ino uint64, name string) error {
	key, err := keycodec.XattrKey(ino, name)
	if err != nil {
		return err
	}
	if err := store.Delete(key); err != nil {
		return fserrors.Wrap(fserrors.IOError, "delete xattr", err)
	}
	return nil
}

// List returns every extended attribute name set on ino.
func List(store kv.Store, ino uint64) ([]string, error) {
	it, err := store.NewIterator(keycodec.XattrPrefix(ino))
	if err != nil {
		return nil, err
	}
	defer it.Close()

	prefixLen := len(keycodec.XattrPrefix(ino))
	var names []string
	for it.Valid() {
		names = append(names, string(it.Key()[prefixLen:]))
		it.Next()
	}
	return names, nil
}

// DeleteAll removes every extended attribute of ino, used when the
// inode itself is finally destroyed.
func DeleteAll(store kv.Store, ino uint64) error {
	it, err := store.NewIterator(keycodec.XattrPrefix(ino))
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
			return fserrors.Wrap(fserrors.IOError, "delete xattr", err)
		}
	}
	return nil
}

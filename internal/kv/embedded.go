package kv

import (
	"bytes"
	"fmt"

	"go.etcd.io/bbolt"
)

// rootBucket is the single bbolt bucket the embedded engine keeps all
// kvbfs keys in. A single flat bucket mirrors the flat keyspace the key
// codec already imposes ordering on; there is no benefit to bolt's own
// nested-bucket hierarchy here.
var rootBucket = []byte("kvbfs")

// Embedded is the in-process Store backend, holding the whole keyspace in
// a single bbolt database file on local disk. It is the default engine
// for a standalone mount; the networked engine exists only to exercise
// the simulator protocol.
type Embedded struct {
	db *bbolt.DB
}

// OpenEmbedded opens (creating if absent) a bbolt database at path.
func OpenEmbedded(path string) (*Embedded, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("kv: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rootBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kv: init bucket: %w", err)
	}
	return &Embedded{db: db}, nil
}

func (e *Embedded) Get(key []byte) (value []byte, found bool, err error) {
	err = e.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(rootBucket).Get(key)
		if v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return value, value != nil, nil
}

func (e *Embedded) Put(key, value []byte) error {
	return e.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(rootBucket).Put(key, value)
	})
}

func (e *Embedded) Delete(key []byte) error {
	return e.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(rootBucket).Delete(key)
	})
}

func (e *Embedded) Close() error {
	return e.db.Close()
}

// NewIterator opens a read-only bbolt transaction that outlives the call
// and returns an Iterator wrapping its cursor. The transaction is
// released on Iterator.Close, never inside a db.View callback, since the
// iterator must survive across multiple method calls.
func (e *Embedded) NewIterator(prefix []byte) (Iterator, error) {
	tx, err := e.db.Begin(false)
	if err != nil {
		return nil, err
	}
	cursor := tx.Bucket(rootBucket).Cursor()
	it := &embeddedIterator{tx: tx, cursor: cursor, prefix: append([]byte(nil), prefix...)}
	it.key, it.value = cursor.Seek(it.prefix)
	it.checkValid()
	return it, nil
}

type embeddedIterator struct {
	tx     *bbolt.Tx
	cursor *bbolt.Cursor
	prefix []byte
	key    []byte
	value  []byte
	valid  bool
}

func (it *embeddedIterator) checkValid() {
	it.valid = it.key != nil && bytes.HasPrefix(it.key, it.prefix)
}

func (it *embeddedIterator) Valid() bool { return it.valid }

func (it *embeddedIterator) Next() {
	if !it.valid {
		return
	}
	it.key, it.value = it.cursor.Next()
	it.checkValid()
}

func (it *embeddedIterator) Key() []byte   { return it.key }
func (it *embeddedIterator) Value() []byte { return it.value }

// Close rolls back the read-only transaction backing the cursor. Rollback
// is correct (not Commit) since the iterator never mutates the bucket.
func (it *embeddedIterator) Close() error {
	return it.tx.Rollback()
}

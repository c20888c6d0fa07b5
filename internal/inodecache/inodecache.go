// Package inodecache keeps a set of in-memory handles for inodes
// currently referenced by an open lookup, mirroring the FUSE kernel's own
// lookup-count protocol: every LookUpInode-family reply increments a
// count, every ForgetInode decrements it, and the handle is only
// destroyed once the count reaches zero — which may happen well after
// the inode's link count hits zero (an unlinked-but-still-open file).
//
// Two independent locks are used and never nested the wrong way: mapMu
// guards only insertion/removal from the handle map, and is never held
// across KV I/O; each Handle's own mu guards mutation of its cached
// superblock.Inode and is acquired only after the handle has already
// been obtained from the map.
package inodecache

import (
	"sync"

	"github.com/kvbfs-project/kvbfs/internal/kv"
	"github.com/kvbfs-project/kvbfs/internal/superblock"
)

// Handle is a cached, refcounted reference to one inode's metadata.
type Handle struct {
	Ino uint64

	mu    sync.RWMutex
	node  *superblock.Inode
	dirty bool

	refCount uint64
	deleted  bool
}

// Node returns a snapshot of the cached metadata. Callers that intend to
// mutate must use Mutate instead.
func (h *Handle) Node() superblock.Inode {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return *h.node
}

// Mutate runs fn with exclusive access to the cached record and marks the
// handle dirty so a later Sync persists the change.
func (h *Handle) Mutate(fn func(n *superblock.Inode)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(h.node)
	h.dirty = true
}

// DestroyFunc is invoked exactly once, outside any lock, when a handle
// marked deleted reaches a zero refcount. It is responsible for cascading
// cleanup (blocks, xattrs, version history) before the inode record
// itself is removed.
type DestroyFunc func(ino uint64) error

// Cache is the process-wide table of live inode handles for one backing
// store.
type Cache struct {
	store   kv.Store
	destroy DestroyFunc

	mapMu   sync.Mutex
	handles map[uint64]*Handle
}

// New builds an empty Cache. destroy is called when a tombstoned handle's
// refcount drops to zero.
func New(store kv.Store, destroy DestroyFunc) *Cache {
	return &Cache{
		store:   store,
		destroy: destroy,
		handles: make(map[uint64]*Handle),
	}
}

// Acquire returns the handle for ino, loading it from the backing store
// on a cache miss, and increments its reference count by one.
func (c *Cache) Acquire(ino uint64) (*Handle, error) {
	c.mapMu.Lock()
	if h, ok := c.handles[ino]; ok {
		h.refCount++
		c.mapMu.Unlock()
		return h, nil
	}
	c.mapMu.Unlock()

	// Load happens outside mapMu: KV I/O never happens under the map lock.
	node, err := superblock.LoadInode(c.store, ino)
	if err != nil {
		return nil, err
	}

	c.mapMu.Lock()
	defer c.mapMu.Unlock()
	if h, ok := c.handles[ino]; ok {
		// Someone else raced us to load it first; use theirs.
		h.refCount++
		return h, nil
	}
	h := &Handle{Ino: ino, node: node, refCount: 1}
	c.handles[ino] = h
	return h, nil
}

// Insert registers a freshly created inode (already persisted by the
// caller via superblock.SaveInode) with an initial reference count of
// one, for the common create-then-immediately-open path.
func (c *Cache) Insert(node *superblock.Inode) *Handle {
	c.mapMu.Lock()
	defer c.mapMu.Unlock()
	h := &Handle{Ino: node.Ino, node: node, refCount: 1}
	c.handles[node.Ino] = h
	return h
}

// AddRef increments h's reference count by one.
func (c *Cache) AddRef(h *Handle) {
	c.mapMu.Lock()
	defer c.mapMu.Unlock()
	h.refCount++
}

// MarkDeleted tombstones ino's handle: once its refcount reaches zero the
// destroy callback runs instead of a final Sync. It is a no-op if ino is
// not currently cached (the caller is expected to have an Acquire'd
// handle for any inode it's unlinking).
func (c *Cache) MarkDeleted(ino uint64) {
	c.mapMu.Lock()
	h, ok := c.handles[ino]
	c.mapMu.Unlock()
	if !ok {
		return
	}
	h.mu.Lock()
	h.deleted = true
	h.mu.Unlock()
}

// Release decrements h's reference count by n. When it reaches zero, the
// handle is removed from the cache; if it was tombstoned, the destroy
// callback runs, otherwise any dirty metadata is flushed first.
func (c *Cache) Release(h *Handle, n uint64) error {
	c.mapMu.Lock()
	if n > h.refCount {
		panic("inodecache: release count exceeds outstanding references")
	}
	h.refCount -= n
	last := h.refCount == 0
	if last {
		delete(c.handles, h.Ino)
	}
	c.mapMu.Unlock()

	if !last {
		return nil
	}

	h.mu.RLock()
	deleted := h.deleted
	dirty := h.dirty
	h.mu.RUnlock()

	if deleted {
		if c.destroy != nil {
			return c.destroy(h.Ino)
		}
		return nil
	}
	if dirty {
		return c.syncHandle(h)
	}
	return nil
}

func (c *Cache) syncHandle(h *Handle) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.dirty {
		return nil
	}
	if err := superblock.SaveInode(c.store, h.node); err != nil {
		return err
	}
	h.dirty = false
	return nil
}

// Sync flushes ino's cached metadata to the backing store if it is
// currently held and dirty. It is a no-op if ino isn't cached.
func (c *Cache) Sync(ino uint64) error {
	c.mapMu.Lock()
	h, ok := c.handles[ino]
	c.mapMu.Unlock()
	if !ok {
		return nil
	}
	return c.syncHandle(h)
}

// SyncAll flushes every currently cached, dirty handle. Used by the
// ".agentfs" CMD_SYNC_ALL control operation and by clean shutdown.
func (c *Cache) SyncAll() error {
	c.mapMu.Lock()
	handles := make([]*Handle, 0, len(c.handles))
	for _, h := range c.handles {
		handles = append(handles, h)
	}
	c.mapMu.Unlock()

	for _, h := range handles {
		if err := c.syncHandle(h); err != nil {
			return err
		}
	}
	return nil
}

// Len reports the number of currently cached handles, for metrics.
func (c *Cache) Len() int {
	c.mapMu.Lock()
	defer c.mapMu.Unlock()
	return len(c.handles)
}

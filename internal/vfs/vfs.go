// Package vfs implements fsops.FileSystem over the kvbfs metadata and
// storage layers: superblock, inodecache, dirops, blockio, xattrops,
// version, vtree, and eventring. It is the direct generalization of the
// teacher's fs.fileSystem — same dependency/constant-data/mutable-state
// struct shape, same fs.mu-then-per-inode lock ordering, same
// handle-table idiom — applied to a from-scratch KV-backed store instead
// of a GCS bucket.
package vfs

import (
	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"

	"github.com/kvbfs-project/kvbfs/internal/eventring"
	"github.com/kvbfs-project/kvbfs/internal/fsops"
	"github.com/kvbfs-project/kvbfs/internal/inodecache"
	"github.com/kvbfs-project/kvbfs/internal/kv"
	"github.com/kvbfs-project/kvbfs/internal/metrics"
	"github.com/kvbfs-project/kvbfs/internal/superblock"
)

// Config carries everything needed to build a FileSystem beyond the
// backing store itself.
type Config struct {
	// Clock stamps atime/mtime/ctime and version/event timestamps.
	Clock timeutil.Clock

	// UID/GID own every inode; kvbfs has no per-user permission model
	// beyond POSIX mode bits, matching spec.md's single-tenant scope.
	UID uint32
	GID uint32

	// FileMode/DirMode are the permission bits stamped on newly created
	// files and directories (the mode argument from CreateFileOp/MkDirOp
	// is honored as given; these are only used where spec.md calls for a
	// fixed default, e.g. the synthetic control files).
	FileMode uint32
	DirMode  uint32

	// Metrics receives operational counters; nil defaults to a Handle
	// that discards every measurement.
	Metrics metrics.Handle
}

// FileSystem implements fsops.FileSystem over one kv.Store.
type FileSystem struct {
	fsops.NotImplementedFileSystem

	/////////////////////////
	// Dependencies
	/////////////////////////

	store   kv.Store
	sb      *superblock.Superblock
	cache   *inodecache.Cache
	clock   timeutil.Clock
	events  *eventring.Ring
	metrics metrics.Handle

	/////////////////////////
	// Constant data
	/////////////////////////

	uid, gid           uint32
	fileMode, dirMode  uint32

	/////////////////////////
	// Mutable state
	/////////////////////////

	// Guards the handle tables below and nextHandleID. Distinct from any
	// per-inode lock: never held while blocked on KV I/O or while holding
	// an inodecache.Handle's own lock, mirroring fs.go's fs.mu/in.Lock
	// ordering (acquire fs.mu only to look a handle up or hand one out,
	// release it before doing any real work).
	mu           syncutil.InvariantMutex
	nextHandleID fsops.HandleID                    // GUARDED_BY(mu)
	dirHandles   map[fsops.HandleID]*dirHandle     // GUARDED_BY(mu)
	fileHandles  map[fsops.HandleID]*fileHandle    // GUARDED_BY(mu)
}

func (fs *FileSystem) checkInvariants() {
	for id := range fs.dirHandles {
		if id >= fs.nextHandleID {
			panic("vfs: live directory handle id at or past nextHandleID")
		}
	}
	for id := range fs.fileHandles {
		if id >= fs.nextHandleID {
			panic("vfs: live file handle id at or past nextHandleID")
		}
	}
}

// New opens store's superblock (bootstrapping it if empty) and returns a
// ready-to-serve FileSystem.
func New(store kv.Store, cfg Config) (*FileSystem, error) {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Noop()
	}
	store = kv.Instrument(store, m)

	sb, err := superblock.Bootstrap(store, cfg.Clock.Now().UnixNano())
	if err != nil {
		return nil, err
	}

	fs := &FileSystem{
		store:       store,
		sb:          sb,
		clock:       cfg.Clock,
		events:      eventring.New(),
		metrics:     m,
		uid:         cfg.UID,
		gid:         cfg.GID,
		fileMode:    cfg.FileMode,
		dirMode:     cfg.DirMode,
		dirHandles:  make(map[fsops.HandleID]*dirHandle),
		fileHandles: make(map[fsops.HandleID]*fileHandle),
	}
	fs.cache = inodecache.New(store, fs.destroyInode)
	fs.mu = syncutil.NewInvariantMutex(fs.checkInvariants)
	// Handle ids start at 1 so the zero HandleID never names an open handle.
	fs.nextHandleID = 1
	return fs, nil
}

// Events returns the shared ring backing the synthetic ".events" file,
// for a caller (cmd/, tests) that wants to append operational log lines
// from outside the dispatcher path.
func (fs *FileSystem) Events() *eventring.Ring { return fs.events }

// Cache exposes the inode cache for the ".agentfs" CMD_SYNC_ALL control
// operation and for metrics collection.
func (fs *FileSystem) Cache() *inodecache.Cache { return fs.cache }

func (fs *FileSystem) allocHandleID() fsops.HandleID {
	id := fs.nextHandleID
	fs.nextHandleID++
	return id
}

// reportCacheSize refreshes the inode-cache-size gauge. Called after any
// operation that inserts into or evicts from the cache.
func (fs *FileSystem) reportCacheSize() {
	fs.metrics.InodeCacheSizeSet(fs.cache.Len())
}

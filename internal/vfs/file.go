package vfs

import (
	"github.com/kvbfs-project/kvbfs/internal/blockio"
	"github.com/kvbfs-project/kvbfs/internal/fserrors"
	"github.com/kvbfs-project/kvbfs/internal/fsops"
	"github.com/kvbfs-project/kvbfs/internal/inodecache"
	"github.com/kvbfs-project/kvbfs/internal/superblock"
	"github.com/kvbfs-project/kvbfs/internal/version"
	"github.com/kvbfs-project/kvbfs/internal/vtree"
)

// fileHandle is the state kept for one open file, of whatever kind.
// Only fileKindReal ever carries a cache handle and a dirty flag; the
// other three kinds are read-only views with no backing inodecache
// entry to keep alive.
type fileHandle struct {
	kind   fileKind
	ino    uint64 // real ino (fileKindReal/Version) or vtree vino (fileKindVersion)
	handle *inodecache.Handle
	dirty  bool

	events *eventsFileState
}

// OpenFile opens Inode for reading and/or writing, routing across the
// real, synthetic-version, and control-file namespaces.
func (fs *FileSystem) OpenFile(op *fsops.OpenFileOp) error {
	var h *fileHandle

	switch classify(op.Inode) {
	case classControl:
		switch op.Inode {
		case EventsIno:
			h = fs.openEventsHandle()
		case AgentFSIno:
			h = &fileHandle{kind: fileKindAgentFS, ino: op.Inode}
		default:
			return fserrors.New(fserrors.NotFound, "no such control inode")
		}

	case classVtree:
		attr, err := vtree.GetAttr(fs.store, op.Inode)
		if err != nil {
			return err
		}
		if attr.Kind != vtree.VersionFile {
			return fserrors.New(fserrors.IsADirectory, "not a regular file")
		}
		h = &fileHandle{kind: fileKindVersion, ino: op.Inode}

	default:
		ch, err := fs.cache.Acquire(op.Inode)
		if err != nil {
			return err
		}
		if ch.Node().Kind != superblock.KindFile {
			fs.cache.Release(ch, 1)
			return fserrors.New(fserrors.IsADirectory, "not a regular file")
		}
		h = &fileHandle{kind: fileKindReal, ino: op.Inode, handle: ch}
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	id := fs.allocHandleID()
	fs.fileHandles[id] = h
	op.Handle = id
	return nil
}

func (fs *FileSystem) getFileHandle(id fsops.HandleID) (*fileHandle, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h, ok := fs.fileHandles[id]
	if !ok {
		return nil, fserrors.New(fserrors.InvalidArgument, "no such open file handle")
	}
	return h, nil
}

// ReadFile reads Size bytes starting at Offset from Handle's file.
func (fs *FileSystem) ReadFile(op *fsops.ReadFileOp) error {
	h, err := fs.getFileHandle(op.Handle)
	if err != nil {
		return err
	}

	buf := make([]byte, op.Size)
	switch h.kind {
	case fileKindReal:
		node := h.handle.Node()
		n := clampRead(op.Offset, len(buf), node.Size)
		if err := blockio.ReadAt(fs.store, h.ino, op.Offset, buf[:n]); err != nil {
			return err
		}
		buf = buf[:n]

	case fileKindVersion:
		attr, err := vtree.GetAttr(fs.store, h.ino)
		if err != nil {
			return err
		}
		n := clampRead(op.Offset, len(buf), attr.Size)
		if err := vtree.ReadAt(fs.store, h.ino, op.Offset, buf[:n]); err != nil {
			return err
		}
		buf = buf[:n]

	case fileKindEvents:
		n, err := fs.readEvents(h, buf)
		if err != nil {
			return err
		}
		buf = buf[:n]

	case fileKindAgentFS:
		n, err := fs.readAgentFS(buf)
		if err != nil {
			return err
		}
		buf = buf[:n]
	}

	op.Data = buf
	return nil
}

// clampRead bounds a read of length n at offset to a file of the given
// logical size, the same clamping fsops's package doc assigns to
// whichever layer resolves a ReadFileOp.
func clampRead(offset int64, n int, size uint64) int {
	if offset < 0 || uint64(offset) >= size {
		return 0
	}
	remaining := size - uint64(offset)
	if remaining < uint64(n) {
		return int(remaining)
	}
	return n
}

// ReadSymlink reads the link target of Inode.
func (fs *FileSystem) ReadSymlink(op *fsops.ReadSymlinkOp) error {
	if classify(op.Inode) != classReal {
		return fserrors.New(fserrors.InvalidArgument, "not a symlink")
	}
	h, err := fs.cache.Acquire(op.Inode)
	if err != nil {
		return err
	}
	defer fs.cache.Release(h, 1)
	node := h.Node()
	if node.Kind != superblock.KindSymlink {
		return fserrors.New(fserrors.InvalidArgument, "not a symlink")
	}
	op.Target = node.SymlinkTarget
	return nil
}

// WriteFile writes Data at Offset into Handle's file.
func (fs *FileSystem) WriteFile(op *fsops.WriteFileOp) error {
	h, err := fs.getFileHandle(op.Handle)
	if err != nil {
		return err
	}
	if h.kind != fileKindReal {
		return fserrors.New(fserrors.PermissionDenied, "file is read-only")
	}

	if err := blockio.WriteAt(fs.store, h.ino, op.Offset, op.Data); err != nil {
		return err
	}

	end := uint64(op.Offset) + uint64(len(op.Data))
	h.handle.Mutate(func(n *superblock.Inode) {
		if end > n.Size {
			n.Size = end
		}
		fs.touchCtime(n, true)
	})
	h.dirty = true
	return nil
}

// SyncFile durably persists Handle's file content and metadata without
// closing it.
func (fs *FileSystem) SyncFile(op *fsops.SyncFileOp) error {
	h, err := fs.getFileHandle(op.Handle)
	if err != nil {
		return err
	}
	if h.kind != fileKindReal {
		return nil
	}
	return fs.cache.Sync(h.ino)
}

// FlushFile is the per-close(2) flush signal; the handle remains valid
// afterward. kvbfs has no write-back buffering beyond the store itself,
// so flushing is the same durability action as SyncFile.
func (fs *FileSystem) FlushFile(op *fsops.FlushFileOp) error {
	h, err := fs.getFileHandle(op.Handle)
	if err != nil {
		return err
	}
	if h.kind != fileKindReal {
		return nil
	}
	return fs.cache.Sync(h.ino)
}

// ReleaseFileHandle releases a handle opened by OpenFile. A handle whose
// written flag is set snapshots a new version before it's torn down,
// regardless of whether any other handle on the same inode is still
// open: the written flag belongs to this handle, not to the inode, so
// another handle's later release must not be able to make this write
// vanish.
func (fs *FileSystem) ReleaseFileHandle(op *fsops.ReleaseFileHandleOp) error {
	fs.mu.Lock()
	h, ok := fs.fileHandles[op.Handle]
	if ok {
		delete(fs.fileHandles, op.Handle)
	}
	fs.mu.Unlock()
	if !ok {
		return fserrors.New(fserrors.InvalidArgument, "no such open file handle")
	}

	if h.kind != fileKindReal {
		return nil
	}

	if h.dirty {
		node := h.handle.Node()
		if _, err := version.Snapshot(fs.store, &node, fs.metrics); err != nil {
			return err
		}
		fs.emitEvent(evtWriteRelease, h.ino, "")
	}
	err := fs.cache.Release(h.handle, 1)
	fs.reportCacheSize()
	return err
}

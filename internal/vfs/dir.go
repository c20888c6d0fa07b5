package vfs

import (
	"github.com/kvbfs-project/kvbfs/internal/dirops"
	"github.com/kvbfs-project/kvbfs/internal/fserrors"
	"github.com/kvbfs-project/kvbfs/internal/fsops"
	"github.com/kvbfs-project/kvbfs/internal/superblock"
	"github.com/kvbfs-project/kvbfs/internal/vtree"
)

// dirHandle is the state kept for one open directory. The whole listing
// is materialized once, at OpenDir time, rather than paginated against
// the store on every ReadDir call: unlike the GCS object listings the
// teacher's dirHandle buffers incrementally, a kvbfs directory's entries
// are a handful of small KV records, cheap to read in one shot, so
// there is no continuation token to manage.
//
// ReadDir does not synthesize "." or ".." entries: the flat
// parent-name-to-child dirent store never records a child's parent, so
// there is nothing to resolve ".." from here. Supplying them, if the
// transport in front of this package needs them, is that transport's
// job — the same deferral fsops's package doc makes for binding onto an
// actual kernel FUSE channel.
type dirHandle struct {
	ino     uint64
	entries []fsops.DirentOut
}

func (fs *FileSystem) listDir(ino uint64) ([]fsops.DirentOut, error) {
	switch classify(ino) {
	case classControl:
		return nil, fserrors.New(fserrors.NotADirectory, "control files are not directories")

	case classVtree:
		children, err := vtree.ListChildren(fs.store, ino)
		if err != nil {
			return nil, err
		}
		out := make([]fsops.DirentOut, 0, len(children))
		for _, c := range children {
			kind := superblock.KindDir
			if c.Kind == vtree.VersionFile {
				kind = superblock.KindFile
			}
			out = append(out, fsops.DirentOut{Ino: c.Vino, Name: c.Name, Kind: kind})
		}
		return out, nil

	default:
		dirents, err := dirops.List(fs.store, ino)
		if err != nil {
			return nil, err
		}
		out := make([]fsops.DirentOut, 0, len(dirents)+3)
		for _, d := range dirents {
			out = append(out, fsops.DirentOut{Ino: d.Ino, Name: d.Name, Kind: d.Kind})
		}
		if ino == superblock.RootIno {
			out = append(out,
				fsops.DirentOut{Ino: vtree.RootVino(), Name: vtree.Name, Kind: superblock.KindDir},
				fsops.DirentOut{Ino: EventsIno, Name: controlEventsName, Kind: superblock.KindFile},
				fsops.DirentOut{Ino: AgentFSIno, Name: controlAgentFSName, Kind: superblock.KindFile},
			)
		}
		return out, nil
	}
}

// OpenDir opens Inode for reading, snapshotting its listing.
func (fs *FileSystem) OpenDir(op *fsops.OpenDirOp) error {
	entries, err := fs.listDir(op.Inode)
	if err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	id := fs.allocHandleID()
	fs.dirHandles[id] = &dirHandle{ino: op.Inode, entries: entries}
	op.Handle = id
	return nil
}

// ReadDir serves entries[Offset:] from the handle's snapshot, appending
// them to op.Entries.
func (fs *FileSystem) ReadDir(op *fsops.ReadDirOp) error {
	fs.mu.Lock()
	dh, ok := fs.dirHandles[op.Handle]
	fs.mu.Unlock()
	if !ok {
		return fserrors.New(fserrors.InvalidArgument, "no such open directory handle")
	}

	if op.Offset > uint64(len(dh.entries)) {
		return fserrors.New(fserrors.InvalidArgument, "directory read offset past end of listing")
	}
	op.Entries = append(op.Entries, dh.entries[op.Offset:]...)
	return nil
}

// ReleaseDirHandle releases a handle opened by OpenDir.
func (fs *FileSystem) ReleaseDirHandle(op *fsops.ReleaseDirHandleOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	delete(fs.dirHandles, op.Handle)
	return nil
}

// MkDir creates a directory named Name within the real directory Parent.
func (fs *FileSystem) MkDir(op *fsops.MkDirOp) error {
	if classify(op.Parent) != classReal {
		return fserrors.New(fserrors.PermissionDenied, "cannot create entries under a synthetic or control directory")
	}
	if _, err := dirops.Lookup(fs.store, op.Parent, op.Name); err == nil {
		return fserrors.New(fserrors.Exists, "directory entry already exists")
	}

	ino, err := fs.sb.AllocateIno()
	if err != nil {
		return err
	}
	now := fs.clock.Now().UnixNano()
	node := &superblock.Inode{
		Ino: ino, Kind: superblock.KindDir, Mode: op.Mode,
		UID: fs.uid, GID: fs.gid, Nlink: 2,
		AtimeNs: now, MtimeNs: now, CtimeNs: now,
	}
	if err := superblock.SaveInode(fs.store, node); err != nil {
		return err
	}
	if err := dirops.Add(fs.store, op.Parent, op.Name, ino, superblock.KindDir); err != nil {
		return err
	}

	if err := fs.bumpParentOnInsert(op.Parent, true); err != nil {
		return err
	}

	h := fs.cache.Insert(node)
	defer fs.cache.Release(h, 1)
	fs.reportCacheSize()
	fs.emitEvent(evtMkdir, ino, op.Name)
	op.Entry = fsops.ChildEntry{Child: ino, Attributes: fs.attrsFromInode(*node)}
	return nil
}

// CreateFile creates a regular file named Name within the real directory
// Parent, and opens it in the same call: op.Handle comes back usable for
// WriteFile/ReleaseFileHandle exactly like an OpenFileOp's would,
// closing the race a separate create-then-open pair would otherwise
// reopen between the two calls.
func (fs *FileSystem) CreateFile(op *fsops.CreateFileOp) error {
	ino, node, err := fs.createLeaf(op.Parent, op.Name, op.Mode, superblock.KindFile, "")
	if err != nil {
		return err
	}
	ch := fs.cache.Insert(node)
	fs.reportCacheSize()
	fs.emitEvent(evtCreate, ino, op.Name)
	op.Entry = fsops.ChildEntry{Child: ino, Attributes: fs.attrsFromInode(*node)}

	fs.mu.Lock()
	id := fs.allocHandleID()
	fs.fileHandles[id] = &fileHandle{kind: fileKindReal, ino: ino, handle: ch}
	fs.mu.Unlock()
	op.Handle = id
	return nil
}

// CreateSymlink creates a symlink named Name within Parent pointing at
// Target.
func (fs *FileSystem) CreateSymlink(op *fsops.CreateSymlinkOp) error {
	ino, node, err := fs.createLeaf(op.Parent, op.Name, 0777, superblock.KindSymlink, op.Target)
	if err != nil {
		return err
	}
	h := fs.cache.Insert(node)
	defer fs.cache.Release(h, 1)
	fs.reportCacheSize()
	fs.emitEvent(evtCreate, ino, op.Name)
	op.Entry = fsops.ChildEntry{Child: ino, Attributes: fs.attrsFromInode(*node)}
	return nil
}

func (fs *FileSystem) createLeaf(parent uint64, name string, mode uint32, kind superblock.Kind, symlinkTarget string) (uint64, *superblock.Inode, error) {
	if classify(parent) != classReal {
		return 0, nil, fserrors.New(fserrors.PermissionDenied, "cannot create entries under a synthetic or control directory")
	}
	if _, err := dirops.Lookup(fs.store, parent, name); err == nil {
		return 0, nil, fserrors.New(fserrors.Exists, "directory entry already exists")
	}

	ino, err := fs.sb.AllocateIno()
	if err != nil {
		return 0, nil, err
	}
	now := fs.clock.Now().UnixNano()
	node := &superblock.Inode{
		Ino: ino, Kind: kind, Mode: mode,
		UID: fs.uid, GID: fs.gid, Nlink: 1,
		AtimeNs: now, MtimeNs: now, CtimeNs: now,
		SymlinkTarget: symlinkTarget,
	}
	if err := superblock.SaveInode(fs.store, node); err != nil {
		return 0, nil, err
	}
	if err := dirops.Add(fs.store, parent, name, ino, kind); err != nil {
		return 0, nil, err
	}
	if err := fs.bumpParentOnInsert(parent, false); err != nil {
		return 0, nil, err
	}
	return ino, node, nil
}

// bumpParentOnInsert touches parent's mtime/ctime, and — for a new
// subdirectory, whose ".." entry now points back at parent — also
// increments parent's link count.
func (fs *FileSystem) bumpParentOnInsert(parent uint64, isSubdir bool) error {
	h, err := fs.cache.Acquire(parent)
	if err != nil {
		return err
	}
	defer fs.cache.Release(h, 1)
	h.Mutate(func(n *superblock.Inode) {
		if isSubdir {
			n.Nlink++
		}
		fs.touchCtime(n, true)
	})
	return nil
}

// RmDir removes the empty directory named Name within Parent.
func (fs *FileSystem) RmDir(op *fsops.RmDirOp) error {
	if classify(op.Parent) != classReal {
		return fserrors.New(fserrors.PermissionDenied, "synthetic and control directories cannot be modified")
	}
	d, err := dirops.Lookup(fs.store, op.Parent, op.Name)
	if err != nil {
		return err
	}
	if d.Kind != superblock.KindDir {
		return fserrors.New(fserrors.NotADirectory, "not a directory")
	}
	empty, err := dirops.IsEmpty(fs.store, d.Ino)
	if err != nil {
		return err
	}
	if !empty {
		return fserrors.New(fserrors.NotEmpty, "directory is not empty")
	}

	if err := dirops.Remove(fs.store, op.Parent, op.Name); err != nil {
		return err
	}
	if err := fs.destroyDirectory(d.Ino); err != nil {
		return err
	}

	ph, err := fs.cache.Acquire(op.Parent)
	if err != nil {
		return err
	}
	defer fs.cache.Release(ph, 1)
	ph.Mutate(func(n *superblock.Inode) {
		n.Nlink--
		fs.touchCtime(n, true)
	})
	fs.reportCacheSize()
	fs.emitEvent(evtRmdir, d.Ino, op.Name)
	return nil
}

// Unlink removes the directory entry named Name within Parent, which
// must not be a directory.
func (fs *FileSystem) Unlink(op *fsops.UnlinkOp) error {
	if classify(op.Parent) != classReal {
		return fserrors.New(fserrors.PermissionDenied, "synthetic and control directories cannot be modified")
	}
	d, err := dirops.Lookup(fs.store, op.Parent, op.Name)
	if err != nil {
		return err
	}
	if d.Kind == superblock.KindDir {
		return fserrors.New(fserrors.IsADirectory, "use rmdir on a directory")
	}
	if err := dirops.Remove(fs.store, op.Parent, op.Name); err != nil {
		return err
	}
	if err := fs.unlinkTarget(d.Ino, 1); err != nil {
		return err
	}

	ph, err := fs.cache.Acquire(op.Parent)
	if err != nil {
		return err
	}
	defer fs.cache.Release(ph, 1)
	ph.Mutate(func(n *superblock.Inode) { fs.touchCtime(n, true) })
	fs.reportCacheSize()
	fs.emitEvent(evtUnlink, d.Ino, op.Name)
	return nil
}

// unlinkTarget decrements ino's link count by n, tombstoning its handle
// once the count reaches zero so the cache destroys its storage once
// every outstanding lookup reference is also released. Only meaningful
// for regular files and symlinks, which can be hard-linked; directories
// never are, so removing one always goes through destroyDirectory
// instead.
func (fs *FileSystem) unlinkTarget(ino uint64, n uint32) error {
	h, err := fs.cache.Acquire(ino)
	if err != nil {
		return err
	}
	var zero bool
	h.Mutate(func(node *superblock.Inode) {
		if node.Nlink > n {
			node.Nlink -= n
		} else {
			node.Nlink = 0
			zero = true
		}
		fs.touchCtime(node, false)
	})
	if zero {
		fs.cache.MarkDeleted(ino)
	}
	return fs.cache.Release(h, 1)
}

// destroyDirectory reclaims a directory unconditionally once it has been
// unlinked from its parent. A directory's own Nlink tracks "2 plus one
// per subdirectory", not the number of parent dirents pointing at it —
// directories are never hard-linked — so removal can never be gated on
// it reaching zero the way unlinkTarget gates a file's.
func (fs *FileSystem) destroyDirectory(ino uint64) error {
	h, err := fs.cache.Acquire(ino)
	if err != nil {
		return err
	}
	fs.cache.MarkDeleted(ino)
	return fs.cache.Release(h, 1)
}

// Link creates a new directory entry Name within Parent pointing at the
// already-existing real inode Target.
func (fs *FileSystem) Link(op *fsops.LinkOp) error {
	if classify(op.Parent) != classReal || classify(op.Target) != classReal {
		return fserrors.New(fserrors.PermissionDenied, "cannot link synthetic or control inodes")
	}
	if _, err := dirops.Lookup(fs.store, op.Parent, op.Name); err == nil {
		return fserrors.New(fserrors.Exists, "directory entry already exists")
	}

	h, err := fs.cache.Acquire(op.Target)
	if err != nil {
		return err
	}
	defer fs.cache.Release(h, 1)
	target := h.Node()
	if target.Kind == superblock.KindDir {
		return fserrors.New(fserrors.PermissionDenied, "cannot hard-link a directory")
	}

	if err := dirops.Add(fs.store, op.Parent, op.Name, op.Target, target.Kind); err != nil {
		return err
	}
	h.Mutate(func(n *superblock.Inode) {
		n.Nlink++
		fs.touchCtime(n, false)
	})
	fs.emitEvent(evtLink, op.Target, op.Name)
	op.Entry = fsops.ChildEntry{Child: op.Target, Attributes: fs.attrsFromInode(h.Node())}
	return nil
}

// Rename moves OldName within OldParent to NewName within NewParent,
// replacing an existing NewName if present (an existing directory target
// must be empty; POSIX rename semantics hold across directories since
// every dirent and inode record is addressed globally, not per-parent).
func (fs *FileSystem) Rename(op *fsops.RenameOp) error {
	if classify(op.OldParent) != classReal || classify(op.NewParent) != classReal {
		return fserrors.New(fserrors.PermissionDenied, "cannot rename into or out of a synthetic or control directory")
	}

	src, err := dirops.Lookup(fs.store, op.OldParent, op.OldName)
	if err != nil {
		return err
	}

	dst, dstErr := dirops.Lookup(fs.store, op.NewParent, op.NewName)
	if dstErr == nil {
		if dst.Kind == superblock.KindDir {
			if src.Kind != superblock.KindDir {
				return fserrors.New(fserrors.IsADirectory, "cannot rename a non-directory over a directory")
			}
			empty, err := dirops.IsEmpty(fs.store, dst.Ino)
			if err != nil {
				return err
			}
			if !empty {
				return fserrors.New(fserrors.NotEmpty, "rename target directory is not empty")
			}
		} else if src.Kind == superblock.KindDir {
			return fserrors.New(fserrors.NotADirectory, "cannot rename a directory over a non-directory")
		}
		if dst.Kind == superblock.KindDir {
			if err := fs.destroyDirectory(dst.Ino); err != nil {
				return err
			}
		} else if err := fs.unlinkTarget(dst.Ino, 1); err != nil {
			return err
		}
		if err := dirops.Replace(fs.store, op.NewParent, op.NewName, src.Ino, src.Kind); err != nil {
			return err
		}
	} else {
		if err := dirops.Add(fs.store, op.NewParent, op.NewName, src.Ino, src.Kind); err != nil {
			return err
		}
	}

	if err := dirops.Remove(fs.store, op.OldParent, op.OldName); err != nil {
		return err
	}

	if op.OldParent != op.NewParent && src.Kind == superblock.KindDir {
		if err := fs.bumpParentOnInsert(op.NewParent, true); err != nil {
			return err
		}
		oh, err := fs.cache.Acquire(op.OldParent)
		if err != nil {
			return err
		}
		defer fs.cache.Release(oh, 1)
		oh.Mutate(func(n *superblock.Inode) {
			n.Nlink--
			fs.touchCtime(n, true)
		})
	} else if op.OldParent != op.NewParent {
		if err := fs.bumpParentOnInsert(op.NewParent, false); err != nil {
			return err
		}
	}

	sh, err := fs.cache.Acquire(src.Ino)
	if err != nil {
		return err
	}
	defer fs.cache.Release(sh, 1)
	sh.Mutate(func(n *superblock.Inode) { fs.touchCtime(n, false) })

	if dstErr == nil {
		fs.reportCacheSize()
	}
	fs.emitEvent(evtRename, src.Ino, op.NewName)
	return nil
}

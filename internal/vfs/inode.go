package vfs

import (
	"github.com/kvbfs-project/kvbfs/internal/fserrors"
	"github.com/kvbfs-project/kvbfs/internal/fsops"
	"github.com/kvbfs-project/kvbfs/internal/superblock"
	"github.com/kvbfs-project/kvbfs/internal/vtree"
)

func (fs *FileSystem) attrsForIno(ino uint64) (fsops.Attributes, error) {
	switch classify(ino) {
	case classControl:
		return fs.controlAttrs(ino)
	case classVtree:
		a, err := vtree.GetAttr(fs.store, ino)
		if err != nil {
			return fsops.Attributes{}, err
		}
		return fs.attrsFromVtree(ino, a), nil
	default:
		h, err := fs.cache.Acquire(ino)
		if err != nil {
			return fsops.Attributes{}, err
		}
		defer fs.cache.Release(h, 1)
		return fs.attrsFromInode(h.Node()), nil
	}
}

func (fs *FileSystem) controlAttrs(ino uint64) (fsops.Attributes, error) {
	switch ino {
	case EventsIno:
		return fs.attrsForControlFile(ino, 0), nil
	case AgentFSIno:
		return fs.attrsForControlFile(ino, len(fs.buildAgentStatus())), nil
	default:
		return fsops.Attributes{}, fserrors.New(fserrors.NotFound, "no such control inode")
	}
}

// LookUpInode resolves Name within Parent, synthesizing the filesystem
// root's ".versions"/".events"/".agentfs" entries and routing into
// vtree for any lookup rooted within the synthetic tree itself.
func (fs *FileSystem) LookUpInode(op *fsops.LookUpInodeOp) error {
	switch classify(op.Parent) {
	case classControl:
		return fserrors.New(fserrors.NotADirectory, "control files have no children")

	case classVtree:
		entry, err := vtree.Lookup(fs.store, op.Parent, op.Name)
		if err != nil {
			return err
		}
		attrs, err := fs.attrsForIno(entry.Vino)
		if err != nil {
			return err
		}
		op.Entry = fsops.ChildEntry{Child: entry.Vino, Attributes: attrs}
		return nil

	default:
		if op.Parent == superblock.RootIno {
			if ino, ok := rootSyntheticIno(op.Name); ok {
				attrs, err := fs.attrsForIno(ino)
				if err != nil {
					return err
				}
				op.Entry = fsops.ChildEntry{Child: ino, Attributes: attrs}
				return nil
			}
		}

		d, err := lookupChild(fs, op.Parent, op.Name)
		if err != nil {
			return err
		}
		h, err := fs.cache.Acquire(d.Ino)
		if err != nil {
			return err
		}
		defer fs.cache.Release(h, 1)
		op.Entry = fsops.ChildEntry{Child: d.Ino, Attributes: fs.attrsFromInode(h.Node())}
		return nil
	}
}

// GetInodeAttributes fetches Inode's attributes across all three inode
// namespaces.
func (fs *FileSystem) GetInodeAttributes(op *fsops.GetInodeAttributesOp) error {
	attrs, err := fs.attrsForIno(op.Inode)
	if err != nil {
		return err
	}
	op.Attributes = attrs
	return nil
}

// SetInodeAttributes changes a subset of a real inode's attributes.
// Synthetic and control inodes are always read-only.
func (fs *FileSystem) SetInodeAttributes(op *fsops.SetInodeAttributesOp) error {
	if classify(op.Inode) != classReal {
		return fserrors.New(fserrors.PermissionDenied, "synthetic and control files cannot be modified")
	}

	h, err := fs.cache.Acquire(op.Inode)
	if err != nil {
		return err
	}
	defer fs.cache.Release(h, 1)

	var truncated bool
	var oldSize, newSize uint64
	h.Mutate(func(n *superblock.Inode) {
		if op.Size != nil {
			oldSize, newSize = n.Size, *op.Size
			truncated = true
			n.Size = newSize
		}
		if op.Mode != nil {
			n.Mode = *op.Mode
		}
		if op.Atime != nil {
			n.AtimeNs = op.Atime.UnixNano()
		}
		if op.Mtime != nil {
			n.MtimeNs = op.Mtime.UnixNano()
		}
		fs.touchCtime(n, false)
	})

	if truncated {
		if err := fs.truncateBlocks(op.Inode, oldSize, newSize); err != nil {
			return err
		}
	}

	fs.emitEvent(evtSetattr, op.Inode, "")
	op.Attributes = fs.attrsFromInode(h.Node())
	return nil
}

// ForgetInode decrements Inode's dispatcher-held reference count by N,
// destroying its handle (and, if unlinked, cascading its storage) once
// the count reaches zero. It is a no-op for synthetic and control
// inodes, which the cache never tracks.
func (fs *FileSystem) ForgetInode(op *fsops.ForgetInodeOp) error {
	if classify(op.Inode) != classReal {
		return nil
	}
	h, err := fs.cache.Acquire(op.Inode)
	if err != nil {
		return err
	}
	// Acquire's ref plus the N being forgotten are both released: the
	// caller's outstanding N references, plus the one just taken to reach
	// the handle at all.
	err = fs.cache.Release(h, op.N+1)
	fs.reportCacheSize()
	return err
}

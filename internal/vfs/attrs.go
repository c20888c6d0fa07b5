package vfs

import (
	"time"

	"github.com/kvbfs-project/kvbfs/internal/fsops"
	"github.com/kvbfs-project/kvbfs/internal/superblock"
	"github.com/kvbfs-project/kvbfs/internal/vtree"
)

func nsToTime(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// attrsFromInode renders a real inode's metadata as dispatcher-facing
// Attributes.
func (fs *FileSystem) attrsFromInode(n superblock.Inode) fsops.Attributes {
	return fsops.Attributes{
		Ino:   n.Ino,
		Kind:  n.Kind,
		Size:  n.Size,
		Nlink: n.Nlink,
		Mode:  n.Mode,
		UID:   n.UID,
		GID:   n.GID,
		Atime: nsToTime(n.AtimeNs),
		Mtime: nsToTime(n.MtimeNs),
		Ctime: nsToTime(n.CtimeNs),
	}
}

// attrsFromVtree renders a synthetic ".versions" node's attributes,
// always read-only and owned by the mount's configured uid/gid since
// vtree itself carries no ownership concept.
func (fs *FileSystem) attrsFromVtree(ino uint64, a vtree.Attr) fsops.Attributes {
	kind := superblock.KindDir
	nlink := uint32(2)
	if a.Kind == vtree.VersionFile {
		kind = superblock.KindFile
		nlink = 1
	}
	return fsops.Attributes{
		Ino:   ino,
		Kind:  kind,
		Size:  a.Size,
		Nlink: nlink,
		Mode:  a.Mode,
		UID:   fs.uid,
		GID:   fs.gid,
		Mtime: nsToTime(a.MtimeNs),
		Ctime: nsToTime(a.MtimeNs),
	}
}

// attrsForControlFile renders ".events" or ".agentfs"'s attributes: a
// fixed-mode, owned-by-mount, read-only regular file whose size reflects
// its current synthesized content length.
func (fs *FileSystem) attrsForControlFile(ino uint64, size int) fsops.Attributes {
	now := fs.clock.Now()
	return fsops.Attributes{
		Ino:   ino,
		Kind:  superblock.KindFile,
		Size:  uint64(size),
		Nlink: 1,
		Mode:  0444,
		UID:   fs.uid,
		GID:   fs.gid,
		Mtime: now,
		Ctime: now,
		Atime: now,
	}
}

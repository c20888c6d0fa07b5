package vfs

import (
	"github.com/kvbfs-project/kvbfs/internal/blockio"
	"github.com/kvbfs-project/kvbfs/internal/dirops"
	"github.com/kvbfs-project/kvbfs/internal/superblock"
	"github.com/kvbfs-project/kvbfs/internal/version"
	"github.com/kvbfs-project/kvbfs/internal/vtree"
	"github.com/kvbfs-project/kvbfs/internal/xattrops"
)

const (
	controlEventsName  = ".events"
	controlAgentFSName = ".agentfs"
)

// inoClass distinguishes the three inode namespaces the dispatcher may be
// asked about. Checking the two control sentinels by exact equality,
// before ever consulting vtree.IsVirtualIno, matters because both
// sentinels also happen to carry vtree's own reserved high bit; treating
// them as ordinary virtual inodes would send a lookup on ".events" into
// vtree's decoder instead of the control-file path.
type inoClass int

const (
	classReal inoClass = iota
	classVtree
	classControl
)

func classify(ino uint64) inoClass {
	switch ino {
	case EventsIno, AgentFSIno:
		return classControl
	}
	if vtree.IsVirtualIno(ino) {
		return classVtree
	}
	return classReal
}

// destroyInode cascades the deletion of every record that belongs to a
// real inode once its last open handle and last directory entry are
// both gone: block content, extended attributes, version history, and
// finally the inode record itself. It is the inodecache.DestroyFunc
// wired into fs.cache by New.
func (fs *FileSystem) destroyInode(ino uint64) error {
	if err := blockio.DeleteAll(fs.store, ino); err != nil {
		return err
	}
	if err := xattrops.DeleteAll(fs.store, ino); err != nil {
		return err
	}
	if err := version.DeleteAll(fs.store, ino); err != nil {
		return err
	}
	return superblock.DeleteInode(fs.store, ino)
}

// touchCtime stamps n's ctime (and, if mtimeToo, its mtime) with the
// current time. Callers hold the inodecache.Handle's mutation lock via
// Mutate; this just fills in the timestamp fields.
func (fs *FileSystem) touchCtime(n *superblock.Inode, mtimeToo bool) {
	now := fs.clock.Now().UnixNano()
	n.CtimeNs = now
	if mtimeToo {
		n.MtimeNs = now
	}
}

// rootSyntheticIno resolves one of the three reserved names that only
// ever appear as children of the real filesystem root, reporting ok=false
// if name isn't one of them.
func rootSyntheticIno(name string) (ino uint64, ok bool) {
	switch name {
	case vtree.Name:
		return vtree.RootVino(), true
	case controlEventsName:
		return EventsIno, true
	case controlAgentFSName:
		return AgentFSIno, true
	}
	return 0, false
}

// truncateBlocks adjusts ino's stored content for a size change from
// oldSize to newSize, via blockio's block-aligned truncation.
func (fs *FileSystem) truncateBlocks(ino uint64, oldSize, newSize uint64) error {
	return blockio.Truncate(fs.store, ino, oldSize, newSize)
}

// lookupChild resolves name within the real directory parent, returning
// fserrors.NotFound if absent. It does not special-case the filesystem
// root's synthetic entries — callers that can be asked to look up inside
// the root check rootSyntheticIno first.
func lookupChild(fs *FileSystem, parent uint64, name string) (dirops.Dirent, error) {
	return dirops.Lookup(fs.store, parent, name)
}

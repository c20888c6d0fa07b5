// Package fsops defines the operation contract kvbfs's filesystem
// implementation serves: one struct per dispatcher callback, a
// FileSystem interface with one method per Op, and a small Serve loop
// that type-switches an incoming Op onto the right method — the same
// three-part shape the teacher's own fuseutil package uses
// (FileSystem / NotImplementedFileSystem / server), widened with the
// additional operations (rename, hard links, extended attributes, ring
// polling, control ioctls) this filesystem needs beyond what a plain
// read-only mount requires.
//
// This package intentionally does not bind to any particular kernel
// FUSE transport. A Connection is anything that can hand back the next
// pending Op and accept its reply; production wiring of that interface
// onto an actual /dev/fuse file descriptor is a deployment concern left
// to cmd/, the same way the dispatcher's kernel-facing half is treated
// as an external contract rather than something this package
// re-implements.
package fsops

import (
	"context"
	"time"

	"github.com/kvbfs-project/kvbfs/internal/superblock"
)

// InodeID identifies a node — real or synthetic — to the dispatcher.
type InodeID = uint64

// HandleID identifies an open directory or file handle.
type HandleID uint64

// OpContext is embedded in every Op to carry the request's context and
// let every FileSystem method call op.Context() the way the teacher's
// fuseops.Op does.
type OpContext struct {
	ctx context.Context
}

// Context returns the op's context, never nil.
func (c OpContext) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// NewContext builds an OpContext wrapping ctx, for use by a Connection
// implementation constructing Ops to dispatch.
func NewContext(ctx context.Context) OpContext {
	return OpContext{ctx: ctx}
}

// Attributes mirrors the subset of POSIX stat(2) fields kvbfs tracks.
type Attributes struct {
	Ino     InodeID
	Kind    superblock.Kind
	Size    uint64
	Nlink   uint32
	Mode    uint32
	UID     uint32
	GID     uint32
	Atime   time.Time
	Mtime   time.Time
	Ctime   time.Time
}

// ChildEntry describes a resolved or newly created directory entry,
// returned by every operation that hands the dispatcher a new inode to
// remember (lookup, mkdir, create, symlink, link).
type ChildEntry struct {
	Child      InodeID
	Attributes Attributes
}

// LookUpInodeOp resolves Name within Parent.
type LookUpInodeOp struct {
	OpContext
	Parent InodeID
	Name   string
	Entry  ChildEntry
}

// GetInodeAttributesOp fetches Inode's attributes.
type GetInodeAttributesOp struct {
	OpContext
	Inode      InodeID
	Attributes Attributes
}

// SetInodeAttributesOp changes a subset of Inode's attributes; nil
// fields are left unchanged.
type SetInodeAttributesOp struct {
	OpContext
	Inode      InodeID
	Size       *uint64
	Mode       *uint32
	Atime      *time.Time
	Mtime      *time.Time
	Attributes Attributes
}

// ForgetInodeOp decrements Inode's dispatcher-held lookup count by N.
type ForgetInodeOp struct {
	OpContext
	Inode InodeID
	N     uint64
}

// MkDirOp creates a directory named Name within Parent.
type MkDirOp struct {
	OpContext
	Parent InodeID
	Name   string
	Mode   uint32
	Entry  ChildEntry
}

// CreateFileOp creates a regular file named Name within Parent and, in
// the same call, opens it: Handle is populated exactly as an OpenFileOp
// on the new child would populate it, so a caller never has to choose
// between racing a second lookup/open against a concurrent unlink and
// going without a handle at all.
type CreateFileOp struct {
	OpContext
	Parent InodeID
	Name   string
	Mode   uint32
	Entry  ChildEntry
	Handle HandleID
}

// CreateSymlinkOp creates a symlink named Name within Parent pointing at
// Target.
type CreateSymlinkOp struct {
	OpContext
	Parent InodeID
	Name   string
	Target string
	Entry  ChildEntry
}

// RmDirOp removes the empty directory named Name within Parent.
type RmDirOp struct {
	OpContext
	Parent InodeID
	Name   string
}

// UnlinkOp removes the directory entry named Name within Parent.
type UnlinkOp struct {
	OpContext
	Parent InodeID
	Name   string
}

// RenameOp moves OldName within OldParent to NewName within NewParent.
type RenameOp struct {
	OpContext
	OldParent InodeID
	OldName   string
	NewParent InodeID
	NewName   string
}

// LinkOp creates a new directory entry Name within Parent pointing at
// the already-existing inode Target — a hard link.
type LinkOp struct {
	OpContext
	Parent InodeID
	Name   string
	Target InodeID
	Entry  ChildEntry
}

// OpenDirOp opens Inode (a directory) for reading, returning a Handle.
type OpenDirOp struct {
	OpContext
	Inode  InodeID
	Handle HandleID
}

// DirentOut is one entry written into a ReadDirOp's result.
type DirentOut struct {
	Ino  InodeID
	Name string
	Kind superblock.Kind
}

// ReadDirOp lists Handle's directory starting after Offset entries,
// appending resolved entries to Entries. The dispatcher is responsible
// for truncating the result to whatever buffer size the caller
// requested; this package deals in whole entries, not serialized bytes.
type ReadDirOp struct {
	OpContext
	Handle  HandleID
	Offset  uint64
	Entries []DirentOut
}

// ReleaseDirHandleOp releases a handle opened by OpenDirOp.
type ReleaseDirHandleOp struct {
	OpContext
	Handle HandleID
}

// OpenFileOp opens Inode (a regular file) for reading and/or writing,
// returning a Handle.
type OpenFileOp struct {
	OpContext
	Inode  InodeID
	Handle HandleID
}

// ReadFileOp reads Size bytes starting at Offset from Handle's file into
// Data.
type ReadFileOp struct {
	OpContext
	Handle HandleID
	Offset int64
	Size   int
	Data   []byte
}

// ReadSymlinkOp reads the link target of Inode.
type ReadSymlinkOp struct {
	OpContext
	Inode  InodeID
	Target string
}

// WriteFileOp writes Data at Offset into Handle's file.
type WriteFileOp struct {
	OpContext
	Handle HandleID
	Offset int64
	Data   []byte
}

// SyncFileOp durably persists Handle's file content and metadata without
// closing it.
type SyncFileOp struct {
	OpContext
	Handle HandleID
}

// FlushFileOp is the last-close flush signal, distinct from
// ReleaseFileHandleOp: the handle is still valid afterward (POSIX
// close(2) semantics, issued once per file descriptor close rather than
// once per final unmap of the handle).
type FlushFileOp struct {
	OpContext
	Handle HandleID
}

// ReleaseFileHandleOp releases a handle opened by OpenFileOp. It is
// where version snapshotting happens: releasing a handle that was
// written through snapshots a new version, whether or not other handles
// on the same file are still open.
type ReleaseFileHandleOp struct {
	OpContext
	Handle HandleID
}

// XattrFlags mirrors the setxattr(2) create/replace exclusivity flags.
type XattrFlags uint32

const (
	XattrNone XattrFlags = 0
	// XattrCreate requires the attribute not already exist.
	XattrCreate XattrFlags = 1 << 0
	// XattrReplace requires the attribute already exist.
	XattrReplace XattrFlags = 1 << 1
)

// GetXattrOp reads the named extended attribute of Inode into Dst.
type GetXattrOp struct {
	OpContext
	Inode InodeID
	Name  string
	Dst   []byte
	Size  int // number of bytes written into Dst, or the required size if Dst was too small
}

// SetXattrOp sets the named extended attribute of Inode to Value.
type SetXattrOp struct {
	OpContext
	Inode InodeID
	Name  string
	Value []byte
	Flags XattrFlags
}

// ListXattrOp lists every extended attribute name set on Inode.
type ListXattrOp struct {
	OpContext
	Inode InodeID
	Names []string
}

// RemoveXattrOp removes the named extended attribute of Inode.
type RemoveXattrOp struct {
	OpContext
	Inode InodeID
	Name  string
}

// PollOp backs the ".events" file's poll(2)/select(2) support: it blocks
// (bounded by the op's context deadline) until Handle has data ready to
// read, then reports so in Ready.
type PollOp struct {
	OpContext
	Handle HandleID
	Ready  bool
}

// IoctlOp backs the ".events" and ".agentfs" control files. Cmd selects
// the control operation (see internal/vfs/control.go); In carries the request
// payload and Out is filled with the response payload.
type IoctlOp struct {
	OpContext
	Inode InodeID
	Cmd   uint32
	In    []byte
	Out   []byte
}

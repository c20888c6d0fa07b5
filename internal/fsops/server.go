package fsops

import (
	"fmt"

	"github.com/kvbfs-project/kvbfs/internal/logger"
)

// Connection is anything that can hand the dispatcher the next pending
// operation and accept its outcome. A real mount binds this onto a
// kernel FUSE channel; tests and in-process callers can implement it
// directly over a channel of Op values.
type Connection interface {
	// ReadOp blocks for the next operation to serve, returning it boxed
	// as `any` (one of the *XxxOp types in this package) so the caller can
	// type-switch. It returns an error (commonly the connection closing)
	// when there is nothing left to serve.
	ReadOp() (any, error)

	// Reply delivers the outcome of serving op back to the requester.
	// err is nil on success.
	Reply(op any, err error)
}

// Serve reads operations from conn and dispatches each to the matching
// fs method until ReadOp returns an error, which it returns to the
// caller (io.EOF for a clean connection close).
func Serve(conn Connection, fs FileSystem) error {
	for {
		op, err := conn.ReadOp()
		if err != nil {
			return err
		}

		opErr := dispatch(fs, op)
		conn.Reply(op, opErr)

		if opErr != nil {
			logger.Debugf("fsops: %T returned %v", op, opErr)
		}
	}
}

func dispatch(fs FileSystem, op any) error {
	switch o := op.(type) {
	case *LookUpInodeOp:
		return fs.LookUpInode(o)
	case *GetInodeAttributesOp:
		return fs.GetInodeAttributes(o)
	case *SetInodeAttributesOp:
		return fs.SetInodeAttributes(o)
	case *ForgetInodeOp:
		return fs.ForgetInode(o)

	case *MkDirOp:
		return fs.MkDir(o)
	case *CreateFileOp:
		return fs.CreateFile(o)
	case *CreateSymlinkOp:
		return fs.CreateSymlink(o)
	case *RmDirOp:
		return fs.RmDir(o)
	case *UnlinkOp:
		return fs.Unlink(o)
	case *RenameOp:
		return fs.Rename(o)
	case *LinkOp:
		return fs.Link(o)

	case *OpenDirOp:
		return fs.OpenDir(o)
	case *ReadDirOp:
		return fs.ReadDir(o)
	case *ReleaseDirHandleOp:
		return fs.ReleaseDirHandle(o)

	case *OpenFileOp:
		return fs.OpenFile(o)
	case *ReadFileOp:
		return fs.ReadFile(o)
	case *ReadSymlinkOp:
		return fs.ReadSymlink(o)
	case *WriteFileOp:
		return fs.WriteFile(o)
	case *SyncFileOp:
		return fs.SyncFile(o)
	case *FlushFileOp:
		return fs.FlushFile(o)
	case *ReleaseFileHandleOp:
		return fs.ReleaseFileHandle(o)

	case *GetXattrOp:
		return fs.GetXattr(o)
	case *SetXattrOp:
		return fs.SetXattr(o)
	case *ListXattrOp:
		return fs.ListXattr(o)
	case *RemoveXattrOp:
		return fs.RemoveXattr(o)

	case *PollOp:
		return fs.Poll(o)
	case *IoctlOp:
		return fs.Ioctl(o)

	default:
		return fmt.Errorf("fsops: unrecognized op type %T", op)
	}
}

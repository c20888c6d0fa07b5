package vfs

import (
	"github.com/kvbfs-project/kvbfs/internal/fserrors"
	"github.com/kvbfs-project/kvbfs/internal/fsops"
)

// Poll blocks until Handle — which must be an open ".events" handle —
// has a new event ready, or the op's context is canceled.
func (fs *FileSystem) Poll(op *fsops.PollOp) error {
	h, err := fs.getFileHandle(op.Handle)
	if err != nil {
		return err
	}
	if h.kind != fileKindEvents {
		return fserrors.New(fserrors.NotSupported, "poll is only supported on .events")
	}

	entries, dropped, err := h.events.reader.Poll(op.Context())
	if err != nil {
		return err
	}
	if dropped > 0 {
		fs.metrics.EventsDroppedInc(int(dropped))
	}
	op.Ready = len(entries) > 0
	return nil
}

// Ioctl dispatches a ".events" or ".agentfs" control operation. Unlike
// Poll, Ioctl is addressed by Inode rather than an open Handle: its
// commands (head-sequence check, status snapshot, sync-all) only need
// the shared ring/cache state, never one reader's private cursor.
func (fs *FileSystem) Ioctl(op *fsops.IoctlOp) error {
	switch op.Inode {
	case EventsIno:
		return fs.ioctlEvents(op)
	case AgentFSIno:
		return fs.ioctlAgentFS(op)
	default:
		return fserrors.New(fserrors.NotSupported, "ioctl is only supported on control files")
	}
}

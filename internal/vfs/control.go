package vfs

import (
	"encoding/binary"
	"encoding/json"
	"strconv"

	"github.com/kvbfs-project/kvbfs/internal/eventring"
	"github.com/kvbfs-project/kvbfs/internal/fserrors"
	"github.com/kvbfs-project/kvbfs/internal/fsops"
	"github.com/kvbfs-project/kvbfs/internal/superblock"
	"github.com/kvbfs-project/kvbfs/internal/version"
)

// EventsIno and AgentFSIno are the fixed inode numbers of the two
// synthetic control files, reserved at the very top of the address
// space. They are checked for by equality before any vtree.IsVirtualIno
// routing, since both happen to also carry vtree's own reserved high
// bit; the vfs dispatcher never hands either number to the vtree
// package.
const (
	EventsIno  uint64 = ^uint64(0)
	AgentFSIno uint64 = ^uint64(0) - 1
)

// Ioctl commands for ".events".
const (
	CmdEventsGetSeq uint32 = 1
)

// Ioctl commands for ".agentfs".
const (
	CmdAgentStat      uint32 = 1
	CmdAgentSyncAll   uint32 = 2
	CmdAgentRingStats uint32 = 3
)

// agentStatus is the JSON blob ".agentfs" reads return (also the
// CMD_STAT ioctl payload).
type agentStatus struct {
	RootIno        uint64 `json:"root_ino"`
	LiveInodes     int    `json:"live_inodes"`
	EventRingHead  uint64 `json:"event_ring_head_seq"`
	EventRingTail  uint64 `json:"event_ring_tail_seq"`
	EventRingBytes int    `json:"event_ring_bytes"`
	VersionRetCap  int    `json:"version_retention_cap"`
}

func (fs *FileSystem) buildAgentStatus() []byte {
	stats := fs.events.Stats()
	status := agentStatus{
		RootIno:        superblock.RootIno,
		LiveInodes:     fs.cache.Len(),
		EventRingHead:  stats.NextSeq,
		EventRingTail:  stats.OldestSeq,
		EventRingBytes: stats.ByteSize,
		VersionRetCap:  version.RetentionCap,
	}
	buf, _ := json.Marshal(status)
	return buf
}

// fileKind distinguishes what a file handle actually backs.
type fileKind int

const (
	fileKindReal fileKind = iota
	fileKindVersion
	fileKindEvents
	fileKindAgentFS
)

// eventsFileState is the per-handle state for an open ".events" file.
type eventsFileState struct {
	reader *eventring.Reader
}

func (fs *FileSystem) openEventsHandle() *fileHandle {
	return &fileHandle{kind: fileKindEvents, events: &eventsFileState{reader: fs.events.NewReader()}}
}

func (fs *FileSystem) readEvents(h *fileHandle, buf []byte) (int, error) {
	entries, dropped := h.events.reader.Drain()
	var line []byte
	for _, e := range entries {
		line = append(line, e.Line...)
		line = append(line, '\n')
	}
	if dropped > 0 {
		note := "# dropped " + strconv.FormatUint(dropped, 10) + " events\n"
		line = append([]byte(note), line...)
		fs.metrics.EventsDroppedInc(int(dropped))
	}
	n := copy(buf, line)
	return n, nil
}

func (fs *FileSystem) readAgentFS(buf []byte) (int, error) {
	n := copy(buf, fs.buildAgentStatus())
	return n, nil
}

func (fs *FileSystem) ioctlEvents(op *fsops.IoctlOp) error {
	switch op.Cmd {
	case CmdEventsGetSeq:
		stats := fs.events.Stats()
		out := make([]byte, 8)
		binary.BigEndian.PutUint64(out, stats.NextSeq)
		op.Out = out
		return nil
	default:
		return fserrors.New(fserrors.NotSupported, "unknown .events ioctl command")
	}
}

func (fs *FileSystem) ioctlAgentFS(op *fsops.IoctlOp) error {
	switch op.Cmd {
	case CmdAgentStat:
		op.Out = fs.buildAgentStatus()
		return nil
	case CmdAgentSyncAll:
		if err := fs.cache.SyncAll(); err != nil {
			return err
		}
		op.Out = nil
		return nil
	case CmdAgentRingStats:
		stats := fs.events.Stats()
		out := make([]byte, 8+8+4)
		binary.BigEndian.PutUint64(out[0:8], stats.NextSeq)
		binary.BigEndian.PutUint64(out[8:16], stats.OldestSeq)
		binary.BigEndian.PutUint32(out[16:20], uint32(stats.ByteSize))
		op.Out = out
		return nil
	default:
		return fserrors.New(fserrors.NotSupported, "unknown .agentfs ioctl command")
	}
}

package vfs

import "encoding/json"

// mutationEvent is the JSON-line shape written to the shared event ring
// for every mutation. ts is nanoseconds since the Unix epoch, taken from
// fs.clock so tests can pin it with a simulated clock.
type mutationEvent struct {
	Seq  uint64 `json:"seq"`
	Type string `json:"type"`
	Ino  uint64 `json:"ino"`
	Path string `json:"path"`
	Ts   int64  `json:"ts"`
}

// Mutation event type tags, one per kind of mutating operation.
const (
	evtCreate       = "create"
	evtWriteRelease = "write-on-release"
	evtUnlink       = "unlink"
	evtMkdir        = "mkdir"
	evtRmdir        = "rmdir"
	evtRename       = "rename"
	evtSetattr      = "setattr"
	evtXattrSet     = "xattr-set"
	evtXattrRemove  = "xattr-remove"
	evtLink         = "link"
)

// emitEvent appends one mutation event line to the shared ring. path is
// best-effort: dirops records flat (parent, name) entries with no
// reverse-parent index, so operations without a directly available name
// (setattr, write-on-release) pass "".
func (fs *FileSystem) emitEvent(typ string, ino uint64, path string) {
	fs.events.AppendSeq(func(seq uint64) []byte {
		buf, _ := json.Marshal(mutationEvent{
			Seq:  seq,
			Type: typ,
			Ino:  ino,
			Path: path,
			Ts:   fs.clock.Now().UnixNano(),
		})
		return buf
	})
	fs.metrics.EventsEmittedInc()
}

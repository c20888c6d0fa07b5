// Package eventring implements the lossy, line-aligned event log backing
// the synthetic ".events" file: a bounded in-memory ring of whole lines,
// each stamped with a monotonically increasing sequence number. When the
// ring's byte budget would be exceeded, whole lines are evicted from the
// tail (oldest first) to make room — a reader that falls behind sees a
// gap, never a line torn in half.
package eventring

import (
	"context"
	"sync"
)

// Size is the aggregate byte budget of retained lines. It bounds memory
// use, not throughput: producers are never blocked by a full ring, only
// readers are ever affected, by losing backlog they hadn't caught up on
// yet.
const Size = 256 * 1024

// Entry is one retained event line.
type Entry struct {
	Seq  uint64
	Line []byte
}

// Ring is the shared event log. One Ring is created per mount and shared
// by every writer (internal/vfs operations emitting audit lines) and
// every reader (".events" file handles).
type Ring struct {
	mu   sync.Mutex
	cond *sync.Cond

	entries  []Entry // ascending by Seq, oldest first
	byteSize int

	nextSeq   uint64 // sequence number to assign to the next appended line
	oldestSeq uint64 // sequence number of entries[0], valid only if len(entries) > 0
}

// New builds an empty Ring.
func New() *Ring {
	r := &Ring{}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Append adds line as a new event, evicting the oldest retained lines if
// necessary to stay within Size, and wakes any reader blocked in Poll.
func (r *Ring) Append(line []byte) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := append([]byte(nil), line...)
	seq := r.nextSeq
	r.nextSeq++

	r.entries = append(r.entries, Entry{Seq: seq, Line: cp})
	r.byteSize += len(cp)

	for r.byteSize > Size && len(r.entries) > 1 {
		evicted := r.entries[0]
		r.entries = r.entries[1:]
		r.byteSize -= len(evicted.Line)
	}
	r.oldestSeq = r.entries[0].Seq

	r.cond.Broadcast()
	return seq
}

// AppendSeq is Append's counterpart for a producer whose line needs to
// embed the very sequence number it's about to be assigned (e.g. a JSON
// event line with a `seq` field) — build runs under the ring's lock with
// the assigned seq, so the value it embeds always matches the Entry's.
func (r *Ring) AppendSeq(build func(seq uint64) []byte) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	seq := r.nextSeq
	r.nextSeq++

	cp := build(seq)
	r.entries = append(r.entries, Entry{Seq: seq, Line: cp})
	r.byteSize += len(cp)

	for r.byteSize > Size && len(r.entries) > 1 {
		evicted := r.entries[0]
		r.entries = r.entries[1:]
		r.byteSize -= len(evicted.Line)
	}
	r.oldestSeq = r.entries[0].Seq

	r.cond.Broadcast()
	return seq
}

// Reader tracks one consumer's position in the ring independently of any
// other reader.
type Reader struct {
	ring    *Ring
	nextSeq uint64
}

// NewReader attaches a reader starting from the oldest line currently
// retained, so a freshly opened ".events" handle can replay whatever
// backlog is still in the ring rather than only seeing events emitted
// after it opened.
func (r *Ring) NewReader() *Reader {
	r.mu.Lock()
	defer r.mu.Unlock()
	start := r.nextSeq
	if len(r.entries) > 0 {
		start = r.oldestSeq
	}
	return &Reader{ring: r, nextSeq: start}
}

// Stats reports the ring's current occupancy, for the ".agentfs"
// CMD_RING_STATS control operation.
type Stats struct {
	EntryCount int
	ByteSize   int
	NextSeq    uint64
	OldestSeq  uint64
}

// Stats snapshots the ring's current occupancy.
func (r *Ring) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		EntryCount: len(r.entries),
		ByteSize:   r.byteSize,
		NextSeq:    r.nextSeq,
		OldestSeq:  r.oldestSeq,
	}
}

// Drain returns every event available for this reader right now without
// blocking, fast-forwarding past any gap the same way Poll does. It
// backs a plain, non-blocking read(2) of ".events": callers that want to
// wait for new data use Poll (or the ioctl GETSEQ head-sequence check)
// instead of spin-reading.
func (rd *Reader) Drain() (entries []Entry, dropped uint64) {
	r := rd.ring

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) > 0 && rd.nextSeq < r.oldestSeq {
		dropped = r.oldestSeq - rd.nextSeq
		rd.nextSeq = r.oldestSeq
	}

	for _, e := range r.entries {
		if e.Seq >= rd.nextSeq {
			entries = append(entries, e)
		}
	}
	if len(entries) > 0 {
		rd.nextSeq = entries[len(entries)-1].Seq + 1
	}
	return entries, dropped
}

// Poll blocks until at least one new event is available for this reader
// or ctx is canceled, then returns every event from the reader's current
// position up to the ring's head. dropped reports how many earlier
// events were evicted out from under this reader before it could read
// them; the reader's position is fast-forwarded past the gap so the next
// Poll resumes cleanly from the new oldest retained entry.
func (rd *Reader) Poll(ctx context.Context) (entries []Entry, dropped uint64, err error) {
	r := rd.ring

	r.mu.Lock()
	for len(r.entries) == 0 || rd.nextSeq >= r.nextSeq {
		if err := waitOrCancel(ctx, r); err != nil {
			r.mu.Unlock()
			return nil, 0, err
		}
	}

	if len(r.entries) > 0 && rd.nextSeq < r.oldestSeq {
		dropped = r.oldestSeq - rd.nextSeq
		rd.nextSeq = r.oldestSeq
	}

	for _, e := range r.entries {
		if e.Seq >= rd.nextSeq {
			entries = append(entries, e)
		}
	}
	if len(entries) > 0 {
		rd.nextSeq = entries[len(entries)-1].Seq + 1
	}
	r.mu.Unlock()

	return entries, dropped, nil
}

// waitOrCancel waits on r.cond, but also returns promptly if ctx is
// canceled — sync.Cond has no native context support, so a watcher
// registered via context.AfterFunc broadcasts on cancellation to wake
// the parked Wait. Callers hold r.mu on entry and on every return.
func waitOrCancel(ctx context.Context, r *Ring) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	stop := context.AfterFunc(ctx, func() {
		r.mu.Lock()
		r.cond.Broadcast()
		r.mu.Unlock()
	})
	defer stop()

	r.cond.Wait()
	return ctx.Err()
}

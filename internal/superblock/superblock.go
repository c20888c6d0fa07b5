// Package superblock owns the single bootstrap record every kvbfs
// database carries — format version, root inode number, and the
// next-inode-number counter — and the inode metadata record format the
// rest of the metadata layer builds on.
package superblock

import (
	"encoding/binary"
	"fmt"

	"github.com/jacobsa/syncutil"

	"github.com/kvbfs-project/kvbfs/internal/fserrors"
	"github.com/kvbfs-project/kvbfs/internal/keycodec"
	"github.com/kvbfs-project/kvbfs/internal/kv"
)

const (
	magic         = 0x4b564246 // "KVBF"
	formatVersion = 1

	// RootIno is the fixed inode number of the filesystem root directory.
	RootIno uint64 = 1

	// FirstFreeIno is the first inode number handed out to a newly
	// created file or directory; RootIno is pre-allocated by Bootstrap.
	FirstFreeIno uint64 = 2
)

// record is the on-disk layout of the superblock key: magic(4) |
// version(4) | rootIno(8) | nextIno(8), all big-endian.
const recordLen = 4 + 4 + 8 + 8

// Superblock holds the format record and serializes inode-number
// allocation. One Superblock is shared by every goroutine touching a
// given kv.Store.
type Superblock struct {
	store kv.Store

	mu      syncutil.InvariantMutex
	nextIno uint64 // GUARDED_BY(mu)
}

// checkInvariants panics if the allocator counter has been corrupted.
// Wired into mu the same way fs.go wires fs.checkInvariants into fs.mu;
// only ever runs when syncutil.EnableInvariantChecking() has been called.
func (sb *Superblock) checkInvariants() {
	if sb.nextIno < FirstFreeIno {
		panic("superblock: nextIno fell below FirstFreeIno")
	}
}

// Bootstrap loads the superblock record from store, initializing a fresh
// one (and the root directory inode) if the database is empty. nowNs is
// the timestamp used to stamp a freshly created root inode; it is
// ignored when the database already exists.
func Bootstrap(store kv.Store, nowNs int64) (*Superblock, error) {
	buf, found, err := store.Get(keycodec.SuperblockKey())
	if err != nil {
		return nil, fserrors.Wrap(fserrors.IOError, "read superblock", err)
	}
	if found {
		rec, err := decodeRecord(buf)
		if err != nil {
			return nil, err
		}
		sb := &Superblock{store: store, nextIno: rec.nextIno}
		sb.mu = syncutil.NewInvariantMutex(sb.checkInvariants)
		return sb, nil
	}

	sb := &Superblock{store: store, nextIno: FirstFreeIno}
	sb.mu = syncutil.NewInvariantMutex(sb.checkInvariants)
	if err := SaveInode(store, NewRootInode(nowNs)); err != nil {
		return nil, err
	}
	if err := sb.persistLocked(); err != nil {
		return nil, err
	}
	return sb, nil
}

type record struct {
	rootIno uint64
	nextIno uint64
}

func decodeRecord(buf []byte) (record, error) {
	if len(buf) != recordLen {
		return record{}, fserrors.New(fserrors.IOError, "superblock record has wrong length")
	}
	if binary.BigEndian.Uint32(buf[0:4]) != magic {
		return record{}, fserrors.New(fserrors.IOError, "superblock has bad magic")
	}
	if binary.BigEndian.Uint32(buf[4:8]) != formatVersion {
		return record{}, fserrors.New(fserrors.IOError, "superblock has unsupported format version")
	}
	return record{
		rootIno: binary.BigEndian.Uint64(buf[8:16]),
		nextIno: binary.BigEndian.Uint64(buf[16:24]),
	}, nil
}

// persistLocked writes the current counters to store. Callers must hold
// sb.mu.
func (sb *Superblock) persistLocked() error {
	buf := make([]byte, recordLen)
	binary.BigEndian.PutUint32(buf[0:4], magic)
	binary.BigEndian.PutUint32(buf[4:8], formatVersion)
	binary.BigEndian.PutUint64(buf[8:16], RootIno)
	binary.BigEndian.PutUint64(buf[16:24], sb.nextIno)
	if err := sb.store.Put(keycodec.SuperblockKey(), buf); err != nil {
		return fserrors.Wrap(fserrors.IOError, "write superblock", err)
	}
	return nil
}

// AllocateIno hands out the next inode number and durably persists the
// advanced counter before returning, so a crash can never hand out the
// same number twice.
func (sb *Superblock) AllocateIno() (uint64, error) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	ino := sb.nextIno
	sb.nextIno++
	if err := sb.persistLocked(); err != nil {
		sb.nextIno--
		return 0, err
	}
	return ino, nil
}

// Kind identifies what sort of node an inode record describes.
type Kind uint8

const (
	KindFile Kind = iota + 1
	KindDir
	KindSymlink
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	case KindSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// Inode is the metadata record stored under keycodec.InodeKey. It does
// not carry file content; content lives in fixed-size blocks addressed
// separately (internal/blockio).
type Inode struct {
	Ino     uint64
	Kind    Kind
	Mode    uint32 // permission bits only, e.g. 0755
	UID     uint32
	GID     uint32
	Size    uint64 // logical byte length; block count is size/BlockSize rounded up
	Nlink   uint32
	AtimeNs int64
	MtimeNs int64
	CtimeNs int64

	// SymlinkTarget holds the link target text; meaningful only when
	// Kind == KindSymlink.
	SymlinkTarget string
}

// Marshal renders the inode as its fixed-plus-variable binary record.
func (n *Inode) Marshal() []byte {
	target := []byte(n.SymlinkTarget)
	buf := make([]byte, 0, 1+4+4+4+8+4+8+8+8+2+len(target))
	buf = append(buf, byte(n.Kind))
	buf = appendU32(buf, n.Mode)
	buf = appendU32(buf, n.UID)
	buf = appendU32(buf, n.GID)
	buf = appendU64(buf, n.Size)
	buf = appendU32(buf, n.Nlink)
	buf = appendI64(buf, n.AtimeNs)
	buf = appendI64(buf, n.MtimeNs)
	buf = appendI64(buf, n.CtimeNs)
	buf = appendU16(buf, uint16(len(target)))
	buf = append(buf, target...)
	return buf
}

// UnmarshalInode parses a record written by Inode.Marshal, filling in
// ino (not itself stored, since it's implicit in the key).
func UnmarshalInode(ino uint64, buf []byte) (*Inode, error) {
	const fixedLen = 1 + 4 + 4 + 4 + 8 + 4 + 8 + 8 + 8 + 2
	if len(buf) < fixedLen {
		return nil, fserrors.New(fserrors.IOError, "truncated inode record")
	}
	n := &Inode{Ino: ino}
	n.Kind = Kind(buf[0])
	buf = buf[1:]
	n.Mode, buf = readU32(buf)
	n.UID, buf = readU32(buf)
	n.GID, buf = readU32(buf)
	n.Size, buf = readU64(buf)
	n.Nlink, buf = readU32(buf)
	n.AtimeNs, buf = readI64(buf)
	n.MtimeNs, buf = readI64(buf)
	n.CtimeNs, buf = readI64(buf)
	targetLen, buf := readU16(buf)
	if len(buf) < int(targetLen) {
		return nil, fserrors.New(fserrors.IOError, "truncated inode symlink target")
	}
	if targetLen > 0 {
		n.SymlinkTarget = string(buf[:targetLen])
	}
	return n, nil
}

func appendU16(buf []byte, v uint16) []byte {
	tmp := make([]byte, 2)
	binary.BigEndian.PutUint16(tmp, v)
	return append(buf, tmp...)
}
func appendU32(buf []byte, v uint32) []byte {
	tmp := make([]byte, 4)
	binary.BigEndian.PutUint32(tmp, v)
	return append(buf, tmp...)
}
func appendU64(buf []byte, v uint64) []byte {
	tmp := make([]byte, 8)
	binary.BigEndian.PutUint64(tmp, v)
	return append(buf, tmp...)
}
func appendI64(buf []byte, v int64) []byte { return appendU64(buf, uint64(v)) }

func readU16(buf []byte) (uint16, []byte) { return binary.BigEndian.Uint16(buf[:2]), buf[2:] }
func readU32(buf []byte) (uint32, []byte) { return binary.BigEndian.Uint32(buf[:4]), buf[4:] }
func readU64(buf []byte) (uint64, []byte) { return binary.BigEndian.Uint64(buf[:8]), buf[8:] }
func readI64(buf []byte) (int64, []byte) {
	v, rest := readU64(buf)
	return int64(v), rest
}

// LoadInode fetches and decodes the metadata record for ino.
func LoadInode(store kv.Store, ino uint64) (*Inode, error) {
	key, err := keycodec.InodeKey(ino)
	if err != nil {
		return nil, err
	}
	buf, found, err := store.Get(key)
	if err != nil {
		return nil, fserrors.Wrap(fserrors.IOError, "read inode", err)
	}
	if !found {
		return nil, fserrors.New(fserrors.NotFound, fmt.Sprintf("inode %d", ino))
	}
	return UnmarshalInode(ino, buf)
}

// SaveInode persists n under its own inode key.
func SaveInode(store kv.Store, n *Inode) error {
	key, err := keycodec.InodeKey(n.Ino)
	if err != nil {
		return err
	}
	if err := store.Put(key, n.Marshal()); err != nil {
		return fserrors.Wrap(fserrors.IOError, "write inode", err)
	}
	return nil
}

// DeleteInode removes the metadata record for ino. Block, xattr, and
// version data are the caller's responsibility to clean up first.
func DeleteInode(store kv.Store, ino uint64) error {
	key, err := keycodec.InodeKey(ino)
	if err != nil {
		return err
	}
	if err := store.Delete(key); err != nil {
		return fserrors.Wrap(fserrors.IOError, "delete inode", err)
	}
	return nil
}

// NewRootInode builds the record for the filesystem root directory, used
// only by Bootstrap.
func NewRootInode(nowNs int64) *Inode {
	return &Inode{
		Ino:     RootIno,
		Kind:    KindDir,
		Mode:    0755,
		Nlink:   2,
		AtimeNs: nowNs,
		MtimeNs: nowNs,
		CtimeNs: nowNs,
	}
}

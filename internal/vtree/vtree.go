// Package vtree implements the synthetic ".versions" subtree: a
// read-only mirror of the real directory tree rooted at the filesystem
// root, where every real directory reappears as a mirrored directory and
// every real regular file reappears as a directory of its own, listing
// one read-only leaf file per retained version, named by its 1-indexed
// display number ("1", "2", ...).
//
// Virtual inode numbers are never allocated from the same counter real
// inodes come from; instead they are a pure, idempotent function of
// (the real inode they mirror, their own kind, and — for a version leaf
// — the version number). Looking the same path up twice, or across a
// remount, always yields the same number, with no extra bookkeeping
// record needed in the store.
package vtree

import (
	"strconv"

	"github.com/kvbfs-project/kvbfs/internal/dirops"
	"github.com/kvbfs-project/kvbfs/internal/fserrors"
	"github.com/kvbfs-project/kvbfs/internal/kv"
	"github.com/kvbfs-project/kvbfs/internal/superblock"
	"github.com/kvbfs-project/kvbfs/internal/version"
)

// Name is the reserved entry name under which the synthetic tree appears
// in the real filesystem root's listing.
const Name = ".versions"

// Kind distinguishes the two node shapes the synthetic tree contains.
type Kind uint8

const (
	// MirrorDir presents as a directory: either mirroring a real
	// directory's children, or — when it mirrors a real regular file —
	// listing that file's retained versions as children instead.
	MirrorDir Kind = iota
	// VersionFile is a single read-only leaf exposing one retained
	// version's content.
	VersionFile
)

const (
	reservedBit  = uint64(1) << 63
	kindBit      = uint64(1) << 62
	realInoBits  = 38
	realInoMask  = (uint64(1) << realInoBits) - 1
	verShift     = realInoBits
	verBits      = 24
	verMask      = (uint64(1) << verBits) - 1
)

// IsVirtualIno reports whether ino belongs to the synthetic tree rather
// than the real inode namespace.
func IsVirtualIno(ino uint64) bool {
	return ino&reservedBit != 0
}

func encode(kind Kind, realIno uint64, ver uint64) (uint64, error) {
	if realIno > realInoMask {
		return 0, fserrors.New(fserrors.InvalidArgument, "real inode number exceeds vtree encoding range")
	}
	if ver > verMask {
		return 0, fserrors.New(fserrors.InvalidArgument, "version number exceeds vtree encoding range")
	}
	v := reservedBit | (realIno & realInoMask) | (ver << verShift)
	if kind == VersionFile {
		v |= kindBit
	}
	return v, nil
}

func decode(vino uint64) (kind Kind, realIno uint64, ver uint64) {
	if vino&kindBit != 0 {
		kind = VersionFile
	} else {
		kind = MirrorDir
	}
	realIno = vino & realInoMask
	ver = (vino >> verShift) & verMask
	return
}

// RootVino is the virtual inode number of ".versions" itself, the
// mirror of the real filesystem root directory.
func RootVino() uint64 {
	v, _ := encode(MirrorDir, superblock.RootIno, 0)
	return v
}

// Entry is one resolved child of a mirrored directory.
type Entry struct {
	Name string
	Vino uint64
	Kind Kind
}

// Lookup resolves name within the synthetic directory parentVino.
func Lookup(store kv.Store, parentVino uint64, name string) (Entry, error) {
	kind, realIno, _ := decode(parentVino)
	if kind != MirrorDir {
		return Entry{}, fserrors.New(fserrors.NotADirectory, "not a synthetic directory")
	}

	target, err := superblock.LoadInode(store, realIno)
	if err != nil {
		return Entry{}, err
	}

	if target.Kind == superblock.KindDir {
		d, err := dirops.Lookup(store, realIno, name)
		if err != nil {
			return Entry{}, err
		}
		vino, err := encode(MirrorDir, d.Ino, 0)
		if err != nil {
			return Entry{}, err
		}
		return Entry{Name: name, Vino: vino, Kind: MirrorDir}, nil
	}

	// target is a regular file (or symlink): name must be a version number.
	ver, convErr := strconv.ParseUint(name, 10, 64)
	if convErr != nil {
		return Entry{}, fserrors.New(fserrors.NotFound, "not a version number")
	}
	if _, err := version.Get(store, realIno, ver); err != nil {
		return Entry{}, err
	}
	vino, err := encode(VersionFile, realIno, ver)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Name: name, Vino: vino, Kind: VersionFile}, nil
}

// ListChildren returns every child of the synthetic directory vino, in
// the same order dirops.List / version.List already produce.
func ListChildren(store kv.Store, vino uint64) ([]Entry, error) {
	kind, realIno, _ := decode(vino)
	if kind != MirrorDir {
		return nil, fserrors.New(fserrors.NotADirectory, "not a synthetic directory")
	}

	target, err := superblock.LoadInode(store, realIno)
	if err != nil {
		return nil, err
	}

	if target.Kind == superblock.KindDir {
		dirents, err := dirops.List(store, realIno)
		if err != nil {
			return nil, err
		}
		entries := make([]Entry, 0, len(dirents))
		for _, d := range dirents {
			v, err := encode(MirrorDir, d.Ino, 0)
			if err != nil {
				return nil, err
			}
			entries = append(entries, Entry{Name: d.Name, Vino: v, Kind: MirrorDir})
		}
		return entries, nil
	}

	metas, err := version.List(store, realIno)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(metas))
	for _, m := range metas {
		v, err := encode(VersionFile, realIno, m.Version)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Name: strconv.FormatUint(m.Version, 10), Vino: v, Kind: VersionFile})
	}
	return entries, nil
}

// Attr is the synthesized attribute set for a synthetic node, sized and
// timestamped from the real data it mirrors but always read-only.
type Attr struct {
	Kind    Kind
	Size    uint64
	MtimeNs int64
	Mode    uint32
}

// GetAttr synthesizes the attributes of vino.
func GetAttr(store kv.Store, vino uint64) (Attr, error) {
	kind, realIno, ver := decode(vino)
	switch kind {
	case MirrorDir:
		target, err := superblock.LoadInode(store, realIno)
		if err != nil {
			return Attr{}, err
		}
		return Attr{Kind: MirrorDir, Mode: 0555, MtimeNs: target.MtimeNs}, nil
	case VersionFile:
		m, err := version.Get(store, realIno, ver)
		if err != nil {
			return Attr{}, err
		}
		return Attr{Kind: VersionFile, Mode: 0444, Size: m.Size, MtimeNs: m.MtimeNs}, nil
	default:
		return Attr{}, fserrors.New(fserrors.InvalidArgument, "unknown vtree node kind")
	}
}

// ReadAt reads content from a VersionFile leaf. Calling it on a MirrorDir
// vino is a caller error (IsADirectory).
func ReadAt(store kv.Store, vino uint64, offset int64, buf []byte) error {
	kind, realIno, ver := decode(vino)
	if kind != VersionFile {
		return fserrors.New(fserrors.IsADirectory, "cannot read a synthetic directory")
	}
	return version.ReadAt(store, realIno, ver, offset, buf)
}

package vfs_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvbfs-project/kvbfs/clock"
	"github.com/kvbfs-project/kvbfs/internal/fserrors"
	"github.com/kvbfs-project/kvbfs/internal/fsops"
	"github.com/kvbfs-project/kvbfs/internal/kv"
	"github.com/kvbfs-project/kvbfs/internal/superblock"
	"github.com/kvbfs-project/kvbfs/internal/vfs"
)

func newFS(t *testing.T) *vfs.FileSystem {
	dir := t.TempDir()
	store, err := kv.OpenEmbedded(dir + "/kv.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	fs, err := vfs.New(store, vfs.Config{
		Clock:    clock.NewSimulatedClock(time.Unix(1700000000, 0)),
		UID:      1000,
		GID:      1000,
		FileMode: 0644,
		DirMode:  0755,
	})
	require.NoError(t, err)
	return fs
}

func ctx() context.Context { return context.Background() }

func mkdir(t *testing.T, fs *vfs.FileSystem, parent uint64, name string) uint64 {
	t.Helper()
	op := &fsops.MkDirOp{OpContext: fsops.NewContext(ctx()), Parent: parent, Name: name, Mode: 0755}
	require.NoError(t, fs.MkDir(op))
	return op.Entry.Child
}

func createFile(t *testing.T, fs *vfs.FileSystem, parent uint64, name string) uint64 {
	t.Helper()
	op := &fsops.CreateFileOp{OpContext: fsops.NewContext(ctx()), Parent: parent, Name: name, Mode: 0644}
	require.NoError(t, fs.CreateFile(op))
	return op.Entry.Child
}

func openFile(t *testing.T, fs *vfs.FileSystem, ino uint64) fsops.HandleID {
	t.Helper()
	op := &fsops.OpenFileOp{OpContext: fsops.NewContext(ctx()), Inode: ino}
	require.NoError(t, fs.OpenFile(op))
	return op.Handle
}

func writeAt(t *testing.T, fs *vfs.FileSystem, h fsops.HandleID, offset int64, data []byte) {
	t.Helper()
	op := &fsops.WriteFileOp{OpContext: fsops.NewContext(ctx()), Handle: h, Offset: offset, Data: data}
	require.NoError(t, fs.WriteFile(op))
}

func readAt(t *testing.T, fs *vfs.FileSystem, h fsops.HandleID, offset int64, size int) []byte {
	t.Helper()
	op := &fsops.ReadFileOp{OpContext: fsops.NewContext(ctx()), Handle: h, Offset: offset, Size: size}
	require.NoError(t, fs.ReadFile(op))
	return op.Data
}

func TestCreateWriteReadFile(t *testing.T) {
	fs := newFS(t)
	ino := createFile(t, fs, superblock.RootIno, "hello.txt")

	h := openFile(t, fs, ino)
	writeAt(t, fs, h, 0, []byte("hello, world"))
	data := readAt(t, fs, h, 0, 64)
	assert.Equal(t, "hello, world", string(data))

	require.NoError(t, fs.ReleaseFileHandle(&fsops.ReleaseFileHandleOp{OpContext: fsops.NewContext(ctx()), Handle: h}))
}

// versionCount returns how many retained versions name has, by listing
// its mirror under the real root's ".versions" subtree.
func versionCount(t *testing.T, fs *vfs.FileSystem, name string) int {
	t.Helper()
	versionsLookup := &fsops.LookUpInodeOp{OpContext: fsops.NewContext(ctx()), Parent: superblock.RootIno, Name: ".versions"}
	require.NoError(t, fs.LookUpInode(versionsLookup))

	fileLookup := &fsops.LookUpInodeOp{OpContext: fsops.NewContext(ctx()), Parent: versionsLookup.Entry.Child, Name: name}
	require.NoError(t, fs.LookUpInode(fileLookup))

	open := &fsops.OpenDirOp{OpContext: fsops.NewContext(ctx()), Inode: fileLookup.Entry.Child}
	require.NoError(t, fs.OpenDir(open))
	read := &fsops.ReadDirOp{OpContext: fsops.NewContext(ctx()), Handle: open.Handle}
	require.NoError(t, fs.ReadDir(read))
	return len(read.Entries)
}

// TestCreateFileReturnsUsableHandle exercises the atomic create-and-open
// contract directly: the handle CreateFile hands back must be writable
// and readable without any separate OpenFile call.
func TestCreateFileReturnsUsableHandle(t *testing.T) {
	fs := newFS(t)
	createOp := &fsops.CreateFileOp{OpContext: fsops.NewContext(ctx()), Parent: superblock.RootIno, Name: "hello.txt", Mode: 0644}
	require.NoError(t, fs.CreateFile(createOp))
	require.NotZero(t, createOp.Handle)

	writeAt(t, fs, createOp.Handle, 0, []byte("world"))
	data := readAt(t, fs, createOp.Handle, 0, 64)
	assert.Equal(t, "world", string(data))

	require.NoError(t, fs.ReleaseFileHandle(&fsops.ReleaseFileHandleOp{OpContext: fsops.NewContext(ctx()), Handle: createOp.Handle}))
	assert.Equal(t, 1, versionCount(t, fs, "hello.txt"))
}

// TestReleaseSnapshotsEvenWhenNotLastHandle covers two concurrently open
// handles on the same inode: releasing the one that wrote must snapshot
// a version regardless of whether the other handle is still open.
func TestReleaseSnapshotsEvenWhenNotLastHandle(t *testing.T) {
	fs := newFS(t)
	ino := createFile(t, fs, superblock.RootIno, "shared.txt")

	writer := openFile(t, fs, ino)
	reader := openFile(t, fs, ino)

	writeAt(t, fs, writer, 0, []byte("v1"))
	require.NoError(t, fs.ReleaseFileHandle(&fsops.ReleaseFileHandleOp{OpContext: fsops.NewContext(ctx()), Handle: writer}))

	assert.Equal(t, 1, versionCount(t, fs, "shared.txt"), "snapshot must happen on the writer's release even though the reader's handle is still open")

	require.NoError(t, fs.ReleaseFileHandle(&fsops.ReleaseFileHandleOp{OpContext: fsops.NewContext(ctx()), Handle: reader}))
}

func TestLookupAndGetAttr(t *testing.T) {
	fs := newFS(t)
	ino := createFile(t, fs, superblock.RootIno, "a.txt")

	lookup := &fsops.LookUpInodeOp{OpContext: fsops.NewContext(ctx()), Parent: superblock.RootIno, Name: "a.txt"}
	require.NoError(t, fs.LookUpInode(lookup))
	assert.Equal(t, ino, lookup.Entry.Child)

	attrs := &fsops.GetInodeAttributesOp{OpContext: fsops.NewContext(ctx()), Inode: ino}
	require.NoError(t, fs.GetInodeAttributes(attrs))
	assert.Equal(t, superblock.KindFile, attrs.Attributes.Kind)
}

func TestLookupMissingReturnsNotFound(t *testing.T) {
	fs := newFS(t)
	op := &fsops.LookUpInodeOp{OpContext: fsops.NewContext(ctx()), Parent: superblock.RootIno, Name: "nope"}
	err := fs.LookUpInode(op)
	var fsErr *fserrors.Error
	require.ErrorAs(t, err, &fsErr)
	assert.Equal(t, fserrors.NotFound, fsErr.Code)
}

func TestRootListsSyntheticEntries(t *testing.T) {
	fs := newFS(t)
	createFile(t, fs, superblock.RootIno, "real.txt")

	open := &fsops.OpenDirOp{OpContext: fsops.NewContext(ctx()), Inode: superblock.RootIno}
	require.NoError(t, fs.OpenDir(open))

	read := &fsops.ReadDirOp{OpContext: fsops.NewContext(ctx()), Handle: open.Handle}
	require.NoError(t, fs.ReadDir(read))

	names := make([]string, 0, len(read.Entries))
	for _, e := range read.Entries {
		names = append(names, e.Name)
	}
	assert.Contains(t, names, "real.txt")
	assert.Contains(t, names, ".versions")
	assert.Contains(t, names, ".events")
	assert.Contains(t, names, ".agentfs")
}

func TestMkDirRmDir(t *testing.T) {
	fs := newFS(t)
	sub := mkdir(t, fs, superblock.RootIno, "sub")

	lookup := &fsops.LookUpInodeOp{OpContext: fsops.NewContext(ctx()), Parent: superblock.RootIno, Name: "sub"}
	require.NoError(t, fs.LookUpInode(lookup))
	assert.Equal(t, sub, lookup.Entry.Child)

	require.NoError(t, fs.RmDir(&fsops.RmDirOp{OpContext: fsops.NewContext(ctx()), Parent: superblock.RootIno, Name: "sub"}))

	err := fs.LookUpInode(&fsops.LookUpInodeOp{OpContext: fsops.NewContext(ctx()), Parent: superblock.RootIno, Name: "sub"})
	var fsErr *fserrors.Error
	require.ErrorAs(t, err, &fsErr)
	assert.Equal(t, fserrors.NotFound, fsErr.Code)

	err = fs.GetInodeAttributes(&fsops.GetInodeAttributesOp{OpContext: fsops.NewContext(ctx()), Inode: sub})
	require.ErrorAs(t, err, &fsErr)
	assert.Equal(t, fserrors.NotFound, fsErr.Code, "removing an empty directory must reclaim its inode record, not just its dirent")
}

func TestRmDirRejectsNonEmpty(t *testing.T) {
	fs := newFS(t)
	sub := mkdir(t, fs, superblock.RootIno, "sub")
	createFile(t, fs, sub, "child.txt")

	err := fs.RmDir(&fsops.RmDirOp{OpContext: fsops.NewContext(ctx()), Parent: superblock.RootIno, Name: "sub"})
	var fsErr *fserrors.Error
	require.ErrorAs(t, err, &fsErr)
	assert.Equal(t, fserrors.NotEmpty, fsErr.Code)
}

func TestUnlink(t *testing.T) {
	fs := newFS(t)
	createFile(t, fs, superblock.RootIno, "f.txt")
	require.NoError(t, fs.Unlink(&fsops.UnlinkOp{OpContext: fsops.NewContext(ctx()), Parent: superblock.RootIno, Name: "f.txt"}))

	err := fs.LookUpInode(&fsops.LookUpInodeOp{OpContext: fsops.NewContext(ctx()), Parent: superblock.RootIno, Name: "f.txt"})
	var fsErr *fserrors.Error
	require.ErrorAs(t, err, &fsErr)
	assert.Equal(t, fserrors.NotFound, fsErr.Code)
}

func TestRenameAcrossDirectories(t *testing.T) {
	fs := newFS(t)
	sub := mkdir(t, fs, superblock.RootIno, "sub")
	createFile(t, fs, superblock.RootIno, "f.txt")

	require.NoError(t, fs.Rename(&fsops.RenameOp{
		OpContext: fsops.NewContext(ctx()),
		OldParent: superblock.RootIno, OldName: "f.txt",
		NewParent: sub, NewName: "moved.txt",
	}))

	err := fs.LookUpInode(&fsops.LookUpInodeOp{OpContext: fsops.NewContext(ctx()), Parent: superblock.RootIno, Name: "f.txt"})
	var fsErr *fserrors.Error
	require.ErrorAs(t, err, &fsErr)
	assert.Equal(t, fserrors.NotFound, fsErr.Code)

	require.NoError(t, fs.LookUpInode(&fsops.LookUpInodeOp{OpContext: fsops.NewContext(ctx()), Parent: sub, Name: "moved.txt"}))
}

func TestXattrRoundTrip(t *testing.T) {
	fs := newFS(t)
	ino := createFile(t, fs, superblock.RootIno, "f.txt")

	require.NoError(t, fs.SetXattr(&fsops.SetXattrOp{OpContext: fsops.NewContext(ctx()), Inode: ino, Name: "user.tag", Value: []byte("v1")}))

	get := &fsops.GetXattrOp{OpContext: fsops.NewContext(ctx()), Inode: ino, Name: "user.tag", Dst: make([]byte, 16)}
	require.NoError(t, fs.GetXattr(get))
	assert.Equal(t, "v1", string(get.Dst[:get.Size]))

	list := &fsops.ListXattrOp{OpContext: fsops.NewContext(ctx()), Inode: ino}
	require.NoError(t, fs.ListXattr(list))
	assert.Contains(t, list.Names, "user.tag")

	require.NoError(t, fs.RemoveXattr(&fsops.RemoveXattrOp{OpContext: fsops.NewContext(ctx()), Inode: ino, Name: "user.tag"}))
	err := fs.GetXattr(&fsops.GetXattrOp{OpContext: fsops.NewContext(ctx()), Inode: ino, Name: "user.tag"})
	var fsErr *fserrors.Error
	require.ErrorAs(t, err, &fsErr)
	assert.Equal(t, fserrors.NotFound, fsErr.Code)
}

func TestVersionSnapshotOnRelease(t *testing.T) {
	fs := newFS(t)
	ino := createFile(t, fs, superblock.RootIno, "v.txt")

	h := openFile(t, fs, ino)
	writeAt(t, fs, h, 0, []byte("version one"))
	require.NoError(t, fs.ReleaseFileHandle(&fsops.ReleaseFileHandleOp{OpContext: fsops.NewContext(ctx()), Handle: h}))

	lookup := &fsops.LookUpInodeOp{OpContext: fsops.NewContext(ctx()), Parent: superblock.RootIno, Name: ".versions"}
	require.NoError(t, fs.LookUpInode(lookup))
	versionsIno := lookup.Entry.Child

	open := &fsops.OpenDirOp{OpContext: fsops.NewContext(ctx()), Inode: versionsIno}
	require.NoError(t, fs.OpenDir(open))
	read := &fsops.ReadDirOp{OpContext: fsops.NewContext(ctx()), Handle: open.Handle}
	require.NoError(t, fs.ReadDir(read))

	var found bool
	for _, e := range read.Entries {
		if e.Name == "v.txt" {
			found = true
		}
	}
	assert.True(t, found, ".versions should mirror the real root's entries")
}

func TestAgentFSControlFile(t *testing.T) {
	fs := newFS(t)

	lookup := &fsops.LookUpInodeOp{OpContext: fsops.NewContext(ctx()), Parent: superblock.RootIno, Name: ".agentfs"}
	require.NoError(t, fs.LookUpInode(lookup))
	assert.Equal(t, vfs.AgentFSIno, lookup.Entry.Child)

	h := openFile(t, fs, vfs.AgentFSIno)
	data := readAt(t, fs, h, 0, 4096)
	assert.Contains(t, string(data), "root_ino")
}

func TestMutationsEmitEvents(t *testing.T) {
	fs := newFS(t)
	reader := fs.Events().NewReader()

	createFile(t, fs, superblock.RootIno, "audited.txt")

	entries, _, err := reader.Poll(ctx())
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Contains(t, string(entries[0].Line), `"type":"create"`)
	assert.Contains(t, string(entries[0].Line), `"path":"audited.txt"`)
}

func TestEventsControlFilePolls(t *testing.T) {
	fs := newFS(t)

	op := &fsops.OpenFileOp{OpContext: fsops.NewContext(ctx()), Inode: vfs.EventsIno}
	require.NoError(t, fs.OpenFile(op))

	fs.Events().Append([]byte("something happened"))

	pollCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	pollOp := &fsops.PollOp{OpContext: fsops.NewContext(pollCtx), Handle: op.Handle}
	require.NoError(t, fs.Poll(pollOp))
	assert.True(t, pollOp.Ready)

	data := readAt(t, fs, op.Handle, 0, 4096)
	assert.Contains(t, string(data), "something happened")
}

package fsops

import "github.com/kvbfs-project/kvbfs/internal/fserrors"

var notSupportedErr = fserrors.New(fserrors.NotSupported, "operation not implemented")

// FileSystem is the full set of operations the dispatcher may invoke.
// An implementation (internal/vfs.FileSystem) holds whatever locks it
// needs for the duration of each call and fills in the Op's output
// fields before returning; a non-nil error aborts the request with
// whatever POSIX errno fserrors.Errno maps its Code to.
type FileSystem interface {
	LookUpInode(op *LookUpInodeOp) error
	GetInodeAttributes(op *GetInodeAttributesOp) error
	SetInodeAttributes(op *SetInodeAttributesOp) error
	ForgetInode(op *ForgetInodeOp) error

	MkDir(op *MkDirOp) error
	CreateFile(op *CreateFileOp) error
	CreateSymlink(op *CreateSymlinkOp) error
	RmDir(op *RmDirOp) error
	Unlink(op *UnlinkOp) error
	Rename(op *RenameOp) error
	Link(op *LinkOp) error

	OpenDir(op *OpenDirOp) error
	ReadDir(op *ReadDirOp) error
	ReleaseDirHandle(op *ReleaseDirHandleOp) error

	OpenFile(op *OpenFileOp) error
	ReadFile(op *ReadFileOp) error
	ReadSymlink(op *ReadSymlinkOp) error
	WriteFile(op *WriteFileOp) error
	SyncFile(op *SyncFileOp) error
	FlushFile(op *FlushFileOp) error
	ReleaseFileHandle(op *ReleaseFileHandleOp) error

	GetXattr(op *GetXattrOp) error
	SetXattr(op *SetXattrOp) error
	ListXattr(op *ListXattrOp) error
	RemoveXattr(op *RemoveXattrOp) error

	Poll(op *PollOp) error
	Ioctl(op *IoctlOp) error
}

// NotImplementedFileSystem can be embedded in a FileSystem implementation
// to get default fserrors.NotSupported-returning stubs for every
// operation, matching the teacher's own NotImplementedFileSystem.
type NotImplementedFileSystem struct{}

var _ FileSystem = &NotImplementedFileSystem{}

func notSupported() error { return notSupportedErr }

func (fs *NotImplementedFileSystem) LookUpInode(op *LookUpInodeOp) error        { return notSupported() }
func (fs *NotImplementedFileSystem) GetInodeAttributes(op *GetInodeAttributesOp) error {
	return notSupported()
}
func (fs *NotImplementedFileSystem) SetInodeAttributes(op *SetInodeAttributesOp) error {
	return notSupported()
}
func (fs *NotImplementedFileSystem) ForgetInode(op *ForgetInodeOp) error { return notSupported() }

func (fs *NotImplementedFileSystem) MkDir(op *MkDirOp) error               { return notSupported() }
func (fs *NotImplementedFileSystem) CreateFile(op *CreateFileOp) error     { return notSupported() }
func (fs *NotImplementedFileSystem) CreateSymlink(op *CreateSymlinkOp) error {
	return notSupported()
}
func (fs *NotImplementedFileSystem) RmDir(op *RmDirOp) error   { return notSupported() }
func (fs *NotImplementedFileSystem) Unlink(op *UnlinkOp) error { return notSupported() }
func (fs *NotImplementedFileSystem) Rename(op *RenameOp) error { return notSupported() }
func (fs *NotImplementedFileSystem) Link(op *LinkOp) error     { return notSupported() }

func (fs *NotImplementedFileSystem) OpenDir(op *OpenDirOp) error { return notSupported() }
func (fs *NotImplementedFileSystem) ReadDir(op *ReadDirOp) error { return notSupported() }
func (fs *NotImplementedFileSystem) ReleaseDirHandle(op *ReleaseDirHandleOp) error {
	return notSupported()
}

func (fs *NotImplementedFileSystem) OpenFile(op *OpenFileOp) error         { return notSupported() }
func (fs *NotImplementedFileSystem) ReadFile(op *ReadFileOp) error         { return notSupported() }
func (fs *NotImplementedFileSystem) ReadSymlink(op *ReadSymlinkOp) error   { return notSupported() }
func (fs *NotImplementedFileSystem) WriteFile(op *WriteFileOp) error       { return notSupported() }
func (fs *NotImplementedFileSystem) SyncFile(op *SyncFileOp) error        { return notSupported() }
func (fs *NotImplementedFileSystem) FlushFile(op *FlushFileOp) error      { return notSupported() }
func (fs *NotImplementedFileSystem) ReleaseFileHandle(op *ReleaseFileHandleOp) error {
	return notSupported()
}

func (fs *NotImplementedFileSystem) GetXattr(op *GetXattrOp) error       { return notSupported() }
func (fs *NotImplementedFileSystem) SetXattr(op *SetXattrOp) error       { return notSupported() }
func (fs *NotImplementedFileSystem) ListXattr(op *ListXattrOp) error     { return notSupported() }
func (fs *NotImplementedFileSystem) RemoveXattr(op *RemoveXattrOp) error { return notSupported() }

func (fs *NotImplementedFileSystem) Poll(op *PollOp) error   { return notSupported() }
func (fs *NotImplementedFileSystem) Ioctl(op *IoctlOp) error { return notSupported() }

// Package fserrors defines the error categories surfaced across the kvbfs
// storage and metadata layer, and their mapping onto POSIX errno values at
// the dispatcher boundary.
package fserrors

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Code is one of the error categories from the design's error handling
// section. Every operation in internal/vfs returns either nil or an *Error
// whose Code is one of these.
type Code int

const (
	// NotFound covers a missing inode, dirent, block, or xattr.
	NotFound Code = iota
	Exists
	NotADirectory
	IsADirectory
	NotEmpty
	PermissionDenied
	NameTooLong
	IOError
	NoMemory
	InvalidArgument
	NotSupported
)

func (c Code) String() string {
	switch c {
	case NotFound:
		return "not-found"
	case Exists:
		return "exists"
	case NotADirectory:
		return "not-a-directory"
	case IsADirectory:
		return "is-a-directory"
	case NotEmpty:
		return "not-empty"
	case PermissionDenied:
		return "permission-denied"
	case NameTooLong:
		return "name-too-long"
	case IOError:
		return "io-error"
	case NoMemory:
		return "no-memory"
	case InvalidArgument:
		return "invalid-argument"
	case NotSupported:
		return "not-supported"
	default:
		return "unknown"
	}
}

// Error wraps a Code with an optional underlying cause, following the
// "%w"-wrapping idiom the teacher uses throughout its fs package.
type Error struct {
	Code  Code
	Msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.cause)
	}
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Msg)
	}
	return e.Code.String()
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs an *Error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Wrap constructs an *Error attributing cause to code.
func Wrap(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Msg: msg, cause: cause}
}

// CodeOf extracts the Code carried by err, defaulting to IOError for any
// error that isn't one of ours — an unrecoverable KV failure, by policy.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return IOError
}

// Errno maps a Code to the POSIX errno the dispatcher should report.
func Errno(code Code) unix.Errno {
	switch code {
	case NotFound:
		return unix.ENOENT
	case Exists:
		return unix.EEXIST
	case NotADirectory:
		return unix.ENOTDIR
	case IsADirectory:
		return unix.EISDIR
	case NotEmpty:
		return unix.ENOTEMPTY
	case PermissionDenied:
		return unix.EACCES
	case NameTooLong:
		return unix.ENAMETOOLONG
	case IOError:
		return unix.EIO
	case NoMemory:
		return unix.ENOMEM
	case InvalidArgument:
		return unix.EINVAL
	case NotSupported:
		return unix.ENOSYS
	default:
		return unix.EIO
	}
}

// ENODATA is the errno getxattr(2) conventionally reports for a missing
// extended attribute. Errno never returns it: a missing extended
// attribute is reported as NotFound, which Errno maps to ENOENT.
const ENODATA = unix.ENODATA

package kv

import "errors"

var (
	errShortListEntry  = errors.New("kv: truncated list entry in wire response")
	errBadMagic        = errors.New("kv: bad magic in wire header")
	errKeyTooLong      = errors.New("kv: key exceeds wire maximum length")
	errValueTooLong    = errors.New("kv: value exceeds wire maximum length")
	errMismatchedCmdID = errors.New("kv: response cmd id does not match request")
)

// Package fsconn implements an internal/fsops.Connection over a
// line-delimited JSON protocol on a net.Conn. internal/fsops's own package
// doc treats wiring its op contract onto an actual kernel transport as a
// deployment concern left to the binary that mounts the filesystem; this
// package is that wiring for kvbfs's cmd/ — a socket an agent or test
// harness dials to drive the dispatcher, in place of a real /dev/fuse
// channel. Framing follows the same one-line-per-record convention
// internal/eventring already uses for its ring entries.
package fsconn

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"reflect"
	"sync"

	"github.com/kvbfs-project/kvbfs/internal/fsops"
	"github.com/kvbfs-project/kvbfs/internal/logger"
)

type envelope struct {
	Seq   uint64          `json:"seq"`
	Type  string          `json:"type"`
	Op    json.RawMessage `json:"op,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Conn adapts one accepted net.Conn to fsops.Connection.
type Conn struct {
	ctx context.Context
	nc  net.Conn
	in  *bufio.Scanner
	out *bufio.Writer

	mu      sync.Mutex
	pending map[any]uint64 // op pointer -> request seq, consumed by Reply
}

// New wraps nc. Ops read from nc carry ctx as their OpContext.
func New(ctx context.Context, nc net.Conn) *Conn {
	scanner := bufio.NewScanner(nc)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &Conn{
		ctx:     ctx,
		nc:      nc,
		in:      scanner,
		out:     bufio.NewWriter(nc),
		pending: make(map[any]uint64),
	}
}

func (c *Conn) Close() error { return c.nc.Close() }

// ReadOp implements fsops.Connection.
func (c *Conn) ReadOp() (any, error) {
	if !c.in.Scan() {
		if err := c.in.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	var env envelope
	if err := json.Unmarshal(c.in.Bytes(), &env); err != nil {
		return nil, fmt.Errorf("fsconn: decoding request line: %w", err)
	}

	op, err := newOp(env.Type)
	if err != nil {
		return nil, err
	}
	if len(env.Op) > 0 {
		if err := json.Unmarshal(env.Op, op); err != nil {
			return nil, fmt.Errorf("fsconn: decoding %s payload: %w", env.Type, err)
		}
	}
	setOpContext(op, c.ctx)

	c.mu.Lock()
	c.pending[op] = env.Seq
	c.mu.Unlock()
	return op, nil
}

// Reply implements fsops.Connection.
func (c *Conn) Reply(op any, opErr error) {
	c.mu.Lock()
	seq, ok := c.pending[op]
	delete(c.pending, op)
	c.mu.Unlock()
	if !ok {
		logger.Warnf("fsconn: reply for untracked op %T", op)
	}

	body, err := json.Marshal(op)
	if err != nil {
		logger.Errorf("fsconn: encoding reply body for seq %d: %v", seq, err)
		return
	}

	env := envelope{Seq: seq, Type: typeName(op), Op: body}
	if opErr != nil {
		env.Error = opErr.Error()
	}

	line, err := json.Marshal(env)
	if err != nil {
		logger.Errorf("fsconn: encoding reply envelope for seq %d: %v", seq, err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.out.Write(append(line, '\n')); err != nil {
		logger.Errorf("fsconn: writing reply for seq %d: %v", seq, err)
		return
	}
	if err := c.out.Flush(); err != nil {
		logger.Errorf("fsconn: flushing reply for seq %d: %v", seq, err)
	}
}

// typeName derives the wire type tag from an Op's concrete type, e.g.
// "*fsops.CreateFileOp" -> "CreateFile".
func typeName(op any) string {
	name := reflect.TypeOf(op).Elem().Name()
	const suffix = "Op"
	if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
		name = name[:len(name)-len(suffix)]
	}
	return name
}

// setOpContext assigns ctx to op's embedded fsops.OpContext via its
// promoted field name. Every Op type embeds OpContext anonymously, so this
// works uniformly without a type switch.
func setOpContext(op any, ctx context.Context) {
	v := reflect.ValueOf(op).Elem().FieldByName("OpContext")
	v.Set(reflect.ValueOf(fsops.NewContext(ctx)))
}

// newOp allocates the zero-valued Op struct matching a wire type tag.
func newOp(typ string) (any, error) {
	switch typ {
	case "LookUpInode":
		return &fsops.LookUpInodeOp{}, nil
	case "GetInodeAttributes":
		return &fsops.GetInodeAttributesOp{}, nil
	case "SetInodeAttributes":
		return &fsops.SetInodeAttributesOp{}, nil
	case "ForgetInode":
		return &fsops.ForgetInodeOp{}, nil
	case "MkDir":
		return &fsops.MkDirOp{}, nil
	case "CreateFile":
		return &fsops.CreateFileOp{}, nil
	case "CreateSymlink":
		return &fsops.CreateSymlinkOp{}, nil
	case "RmDir":
		return &fsops.RmDirOp{}, nil
	case "Unlink":
		return &fsops.UnlinkOp{}, nil
	case "Rename":
		return &fsops.RenameOp{}, nil
	case "Link":
		return &fsops.LinkOp{}, nil
	case "OpenDir":
		return &fsops.OpenDirOp{}, nil
	case "ReadDir":
		return &fsops.ReadDirOp{}, nil
	case "ReleaseDirHandle":
		return &fsops.ReleaseDirHandleOp{}, nil
	case "OpenFile":
		return &fsops.OpenFileOp{}, nil
	case "ReadFile":
		return &fsops.ReadFileOp{}, nil
	case "ReadSymlink":
		return &fsops.ReadSymlinkOp{}, nil
	case "WriteFile":
		return &fsops.WriteFileOp{}, nil
	case "SyncFile":
		return &fsops.SyncFileOp{}, nil
	case "FlushFile":
		return &fsops.FlushFileOp{}, nil
	case "ReleaseFileHandle":
		return &fsops.ReleaseFileHandleOp{}, nil
	case "GetXattr":
		return &fsops.GetXattrOp{}, nil
	case "SetXattr":
		return &fsops.SetXattrOp{}, nil
	case "ListXattr":
		return &fsops.ListXattrOp{}, nil
	case "RemoveXattr":
		return &fsops.RemoveXattrOp{}, nil
	case "Poll":
		return &fsops.PollOp{}, nil
	case "Ioctl":
		return &fsops.IoctlOp{}, nil
	default:
		return nil, fmt.Errorf("fsconn: unrecognized op type %q", typ)
	}
}

// ListenAndServe accepts connections on l until l.Accept fails (including
// from l being closed when ctx is done). When concurrent is true each
// connection is served on its own goroutine; when false, connections are
// served one at a time in Accept order, matching the dispatcher's
// single-threaded mode.
func ListenAndServe(ctx context.Context, l net.Listener, fs fsops.FileSystem, concurrent bool) error {
	go func() {
		<-ctx.Done()
		l.Close()
	}()

	for {
		nc, err := l.Accept()
		if err != nil {
			return err
		}

		conn := New(ctx, nc)
		serve := func() {
			defer conn.Close()
			if err := fsops.Serve(conn, fs); err != nil && err != io.EOF {
				logger.Warnf("fsconn: connection ended: %v", err)
			}
		}

		if concurrent {
			go serve()
		} else {
			serve()
		}
	}
}

package kv

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kvbfs-project/kvbfs/internal/logger"
)

// NetworkedClient is a Store implementation speaking the fixed-header
// wire protocol to a NetworkedServer (or an external simulator built to
// the same framing). One TCP connection is held open for the client's
// lifetime; requests are serialized by connMu since the protocol has no
// multiplexing of its own — a request's response must be fully read
// before the next request is written.
type NetworkedClient struct {
	conn     net.Conn
	connMu   sync.Mutex
	cmdID    atomic.Uint32
	sessID   uuid.UUID
	timeout  time.Duration
}

// DialNetworked connects to a networked KV simulator at addr (host:port,
// typically port DefaultPort).
func DialNetworked(addr string, timeout time.Duration) (*NetworkedClient, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("kv: dial %s: %w", addr, err)
	}
	c := &NetworkedClient{conn: conn, sessID: uuid.New(), timeout: timeout}
	logger.Infof("kv: networked client %s connected to %s", c.sessID, addr)
	return c, nil
}

func (c *NetworkedClient) Close() error {
	return c.conn.Close()
}

func (c *NetworkedClient) nextCmdID() uint32 {
	return c.cmdID.Add(1)
}

// roundTrip sends one request and returns the parsed response header plus
// its value body. It holds connMu for the whole exchange, so concurrent
// callers never interleave frames on the connection.
func (c *NetworkedClient) roundTrip(op opcode, key, value []byte) (responseHeader, []byte, error) {
	if len(key) > MaxKeyLen {
		return responseHeader{}, nil, errKeyTooLong
	}
	if len(value) > MaxValueLen {
		return responseHeader{}, nil, errValueTooLong
	}

	cmdID := c.nextCmdID()
	req := requestHeader{
		Magic:    wireMagic,
		Opcode:   op,
		KeyLen:   uint16(len(key)),
		ValueLen: uint32(len(value)),
		CmdID:    cmdID,
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.timeout > 0 {
		c.conn.SetDeadline(time.Now().Add(c.timeout))
	}

	var out bytes.Buffer
	out.Write(req.marshal())
	out.Write(key)
	out.Write(value)
	if _, err := c.conn.Write(out.Bytes()); err != nil {
		return responseHeader{}, nil, fmt.Errorf("kv: write request: %w", err)
	}

	respHead := make([]byte, responseHeaderLen)
	if _, err := io.ReadFull(c.conn, respHead); err != nil {
		return responseHeader{}, nil, fmt.Errorf("kv: read response header: %w", err)
	}
	resp := unmarshalResponseHeader(respHead)
	if resp.Magic != wireMagic {
		return responseHeader{}, nil, errBadMagic
	}
	if resp.CmdID != cmdID {
		return responseHeader{}, nil, errMismatchedCmdID
	}

	body := make([]byte, resp.ValueLen)
	if resp.ValueLen > 0 {
		if _, err := io.ReadFull(c.conn, body); err != nil {
			return responseHeader{}, nil, fmt.Errorf("kv: read response body: %w", err)
		}
	}
	return resp, body, nil
}

func (c *NetworkedClient) Get(key []byte) ([]byte, bool, error) {
	resp, body, err := c.roundTrip(opRetrieve, key, nil)
	if err != nil {
		return nil, false, err
	}
	switch resp.Status {
	case statusSuccess:
		return body, true, nil
	case statusNotFound:
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("kv: retrieve status 0x%x", resp.Status)
	}
}

func (c *NetworkedClient) Put(key, value []byte) error {
	resp, _, err := c.roundTrip(opStore, key, value)
	if err != nil {
		return err
	}
	if resp.Status != statusSuccess {
		return fmt.Errorf("kv: store status 0x%x", resp.Status)
	}
	return nil
}

func (c *NetworkedClient) Delete(key []byte) error {
	resp, _, err := c.roundTrip(opDelete, key, nil)
	if err != nil {
		return err
	}
	if resp.Status != statusSuccess && resp.Status != statusNotFound {
		return fmt.Errorf("kv: delete status 0x%x", resp.Status)
	}
	return nil
}

// Exist issues an EXIST probe without transferring the value, for
// callers that only need a presence check.
func (c *NetworkedClient) Exist(key []byte) (bool, error) {
	resp, _, err := c.roundTrip(opExist, key, nil)
	if err != nil {
		return false, err
	}
	return resp.Status == statusSuccess, nil
}

// NewIterator issues a single LIST round trip for the given prefix and
// wraps the full tuple set in an in-memory iterator. Unlike the embedded
// backend's cursor, this is not incremental: the simulator protocol has
// no notion of a live server-side cursor, so the whole matching range is
// fetched and buffered up front.
func (c *NetworkedClient) NewIterator(prefix []byte) (Iterator, error) {
	resp, body, err := c.roundTrip(opList, prefix, nil)
	if err != nil {
		return nil, err
	}
	if resp.Status != statusSuccess {
		return nil, fmt.Errorf("kv: list status 0x%x", resp.Status)
	}
	entries, err := decodeListEntries(body)
	if err != nil {
		return nil, err
	}
	return &sliceIterator{entries: entries, pos: 0}, nil
}

type sliceIterator struct {
	entries []listEntry
	pos     int
}

func (it *sliceIterator) Valid() bool { return it.pos < len(it.entries) }
func (it *sliceIterator) Next() {
	if it.Valid() {
		it.pos++
	}
}
func (it *sliceIterator) Key() []byte   { return it.entries[it.pos].Key }
func (it *sliceIterator) Value() []byte { return it.entries[it.pos].Value }
func (it *sliceIterator) Close() error  { return nil }

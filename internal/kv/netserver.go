package kv

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/kvbfs-project/kvbfs/internal/logger"
)

// NetworkedServer is the simulator side of the wire protocol: it accepts
// TCP connections and serves requests directly against a backing Store
// (normally an Embedded instance, though any Store works — including
// another NetworkedClient, for a chained simulator). It exists so the
// networked engine can be exercised in-process without a separate
// external process, the same way the teacher's own fake transports let
// its tests run without a real GCS backend.
type NetworkedServer struct {
	backend  Store
	listener net.Listener

	wg sync.WaitGroup
}

// NewNetworkedServer starts listening on addr ("" host means all
// interfaces; port 0 picks an ephemeral port, inspectable via Addr()).
func NewNetworkedServer(backend Store, addr string) (*NetworkedServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &NetworkedServer{backend: backend, listener: ln}, nil
}

// Addr returns the address the server is actually listening on.
func (s *NetworkedServer) Addr() net.Addr { return s.listener.Addr() }

// Serve accepts connections until ctx is canceled or Close is called.
func (s *NetworkedServer) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				s.wg.Wait()
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Close stops accepting new connections.
func (s *NetworkedServer) Close() error {
	return s.listener.Close()
}

func (s *NetworkedServer) handleConn(conn net.Conn) {
	defer conn.Close()
	for {
		reqHeadBuf := make([]byte, requestHeaderLen)
		if _, err := io.ReadFull(conn, reqHeadBuf); err != nil {
			if err != io.EOF {
				logger.Debugf("kv: networked server: read request header: %v", err)
			}
			return
		}
		req := unmarshalRequestHeader(reqHeadBuf)
		if req.Magic != wireMagic {
			logger.Warnf("kv: networked server: bad magic from %s, closing", conn.RemoteAddr())
			return
		}

		key := make([]byte, req.KeyLen)
		if req.KeyLen > 0 {
			if _, err := io.ReadFull(conn, key); err != nil {
				return
			}
		}
		value := make([]byte, req.ValueLen)
		if req.ValueLen > 0 {
			if _, err := io.ReadFull(conn, value); err != nil {
				return
			}
		}

		respStatus, respBody := s.dispatch(req.Opcode, key, value)
		resp := responseHeader{
			Magic:    wireMagic,
			Status:   respStatus,
			ValueLen: uint32(len(respBody)),
			CmdID:    req.CmdID,
		}
		if _, err := conn.Write(resp.marshal()); err != nil {
			return
		}
		if len(respBody) > 0 {
			if _, err := conn.Write(respBody); err != nil {
				return
			}
		}
	}
}

func (s *NetworkedServer) dispatch(op opcode, key, value []byte) (status, []byte) {
	switch op {
	case opStore:
		if len(key) > MaxKeyLen {
			return statusInvalidKey, nil
		}
		if len(value) > MaxValueLen {
			return statusInvalidVal, nil
		}
		if err := s.backend.Put(key, value); err != nil {
			logger.Errorf("kv: networked server: store: %v", err)
			return statusInternalErr, nil
		}
		return statusSuccess, nil

	case opRetrieve:
		v, found, err := s.backend.Get(key)
		if err != nil {
			logger.Errorf("kv: networked server: retrieve: %v", err)
			return statusInternalErr, nil
		}
		if !found {
			return statusNotFound, nil
		}
		return statusSuccess, v

	case opDelete:
		if err := s.backend.Delete(key); err != nil {
			logger.Errorf("kv: networked server: delete: %v", err)
			return statusInternalErr, nil
		}
		return statusSuccess, nil

	case opExist:
		_, found, err := s.backend.Get(key)
		if err != nil {
			return statusInternalErr, nil
		}
		if !found {
			return statusNotFound, nil
		}
		return statusSuccess, nil

	case opList:
		it, err := s.backend.NewIterator(key)
		if err != nil {
			logger.Errorf("kv: networked server: list: %v", err)
			return statusInternalErr, nil
		}
		defer it.Close()
		var entries []listEntry
		for it.Valid() {
			entries = append(entries, listEntry{
				Key:   append([]byte(nil), it.Key()...),
				Value: append([]byte(nil), it.Value()...),
			})
			it.Next()
		}
		return statusSuccess, encodeListEntries(entries)

	default:
		return statusInvalidKey, nil
	}
}

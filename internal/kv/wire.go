package kv

import "encoding/binary"

// Wire protocol constants for the networked KV simulator, matching the
// fixed framing the storage substrate speaks on the wire: a 24-byte
// request header, a 16-byte response header, both little-endian.
const (
	wireMagic = 0x4e564b56 // "NVKV" as a little-endian uint32

	requestHeaderLen  = 24
	responseHeaderLen = 16

	// MaxKeyLen bounds a single wire key, independent of keycodec.MaxKeyLen
	// (which bounds the encoded kvbfs key before it ever reaches the wire).
	MaxKeyLen = 272
	// MaxValueLen bounds a single wire value.
	MaxValueLen = 2 << 20

	// DefaultPort is the TCP port the networked simulator listens on.
	DefaultPort = 9527
)

type opcode uint8

const (
	opStore    opcode = 0x01
	opRetrieve opcode = 0x02
	opList     opcode = 0x06
	opDelete   opcode = 0x10
	opExist    opcode = 0x14
)

type status uint16

const (
	statusSuccess     status = 0x0000
	statusNotFound    status = 0x0001
	statusExists      status = 0x0002
	statusInvalidKey  status = 0x0003
	statusInvalidVal  status = 0x0004
	statusInternalErr status = 0x00ff
)

// requestHeader is the fixed 24-byte header preceding every request's key
// and value payload.
type requestHeader struct {
	Magic     uint32
	Version   uint8
	Opcode    opcode
	Flags     uint8
	Reserved  uint8
	KeyLen    uint16
	Reserved2 uint16
	ValueLen  uint32
	CmdID     uint32
	Reserved3 uint32
}

func (h *requestHeader) marshal() []byte {
	buf := make([]byte, requestHeaderLen)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = 1 // protocol version
	buf[5] = byte(h.Opcode)
	buf[6] = h.Flags
	buf[7] = h.Reserved
	binary.LittleEndian.PutUint16(buf[8:10], h.KeyLen)
	binary.LittleEndian.PutUint16(buf[10:12], h.Reserved2)
	binary.LittleEndian.PutUint32(buf[12:16], h.ValueLen)
	binary.LittleEndian.PutUint32(buf[16:20], h.CmdID)
	binary.LittleEndian.PutUint32(buf[20:24], h.Reserved3)
	return buf
}

func unmarshalRequestHeader(buf []byte) requestHeader {
	var h requestHeader
	h.Magic = binary.LittleEndian.Uint32(buf[0:4])
	h.Version = buf[4]
	h.Opcode = opcode(buf[5])
	h.Flags = buf[6]
	h.Reserved = buf[7]
	h.KeyLen = binary.LittleEndian.Uint16(buf[8:10])
	h.Reserved2 = binary.LittleEndian.Uint16(buf[10:12])
	h.ValueLen = binary.LittleEndian.Uint32(buf[12:16])
	h.CmdID = binary.LittleEndian.Uint32(buf[16:20])
	h.Reserved3 = binary.LittleEndian.Uint32(buf[20:24])
	return h
}

// responseHeader is the fixed 16-byte header preceding every response's
// value payload (the LIST response payload is a tuple stream, see
// encodeListEntries).
type responseHeader struct {
	Magic    uint32
	Status   status
	Reserved uint16
	ValueLen uint32
	CmdID    uint32
}

func (h *responseHeader) marshal() []byte {
	buf := make([]byte, responseHeaderLen)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(h.Status))
	binary.LittleEndian.PutUint16(buf[6:8], h.Reserved)
	binary.LittleEndian.PutUint32(buf[8:12], h.ValueLen)
	binary.LittleEndian.PutUint32(buf[12:16], h.CmdID)
	return buf
}

func unmarshalResponseHeader(buf []byte) responseHeader {
	var h responseHeader
	h.Magic = binary.LittleEndian.Uint32(buf[0:4])
	h.Status = status(binary.LittleEndian.Uint16(buf[4:6]))
	h.Reserved = binary.LittleEndian.Uint16(buf[6:8])
	h.ValueLen = binary.LittleEndian.Uint32(buf[8:12])
	h.CmdID = binary.LittleEndian.Uint32(buf[12:16])
	return h
}

// listEntry is one (key, value) tuple within a LIST response body: a
// uint16 key length, the key, a uint32 value length, the value.
type listEntry struct {
	Key   []byte
	Value []byte
}

func encodeListEntries(entries []listEntry) []byte {
	var buf []byte
	for _, e := range entries {
		head := make([]byte, 2)
		binary.LittleEndian.PutUint16(head, uint16(len(e.Key)))
		buf = append(buf, head...)
		buf = append(buf, e.Key...)
		vlen := make([]byte, 4)
		binary.LittleEndian.PutUint32(vlen, uint32(len(e.Value)))
		buf = append(buf, vlen...)
		buf = append(buf, e.Value...)
	}
	return buf
}

func decodeListEntries(buf []byte) ([]listEntry, error) {
	var entries []listEntry
	for len(buf) > 0 {
		if len(buf) < 2 {
			return nil, errShortListEntry
		}
		klen := int(binary.LittleEndian.Uint16(buf[0:2]))
		buf = buf[2:]
		if len(buf) < klen+4 {
			return nil, errShortListEntry
		}
		key := buf[:klen]
		buf = buf[klen:]
		vlen := int(binary.LittleEndian.Uint32(buf[0:4]))
		buf = buf[4:]
		if len(buf) < vlen {
			return nil, errShortListEntry
		}
		value := buf[:vlen]
		buf = buf[vlen:]
		entries = append(entries, listEntry{
			Key:   append([]byte(nil), key...),
			Value: append([]byte(nil), value...),
		})
	}
	return entries, nil
}

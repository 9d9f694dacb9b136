// Package execctx implements the exec-context framing for the
// embedded script protocol: an opaque header, an event name and a
// payload laid out contiguously (spec.md component C10).
package execctx

import (
	"encoding/binary"
	"fmt"

	"elliptics-go/pkg/dcerr"
	"elliptics-go/pkg/dckey"
)

// Header flag bits; positions are stable wire values, per spec.md 6.
const (
	FlagSrcBlock uint32 = 0x1
	FlagFinish   uint32 = 0x2
	FlagReply    uint32 = 0x4
)

// headerSize is the fixed on-wire size of Header: two uint32 lengths,
// a raw source id, and a uint32 flag word.
const headerSize = 4 + 4 + dckey.IDSize + 4

// Header is the fixed-size struct at offset 0 of a Context's buffer.
type Header struct {
	EventSize uint32
	DataSize  uint32
	SourceID  dckey.RawID
	Flags     uint32
}

func (h Header) IsSrcBlock() bool { return h.Flags&FlagSrcBlock != 0 }
func (h Header) IsFinish() bool   { return h.Flags&FlagFinish != 0 }
func (h Header) IsReply() bool    { return h.Flags&FlagReply != 0 }

func (h Header) marshal() []byte {
	buf := make([]byte, headerSize)
	binary.BigEndian.PutUint32(buf[0:4], h.EventSize)
	binary.BigEndian.PutUint32(buf[4:8], h.DataSize)
	copy(buf[8:8+dckey.IDSize], h.SourceID[:])
	binary.BigEndian.PutUint32(buf[8+dckey.IDSize:headerSize], h.Flags)
	return buf
}

func unmarshalHeader(buf []byte) Header {
	var h Header
	h.EventSize = binary.BigEndian.Uint32(buf[0:4])
	h.DataSize = binary.BigEndian.Uint32(buf[4:8])
	copy(h.SourceID[:], buf[8:8+dckey.IDSize])
	h.Flags = binary.BigEndian.Uint32(buf[8+dckey.IDSize : headerSize])
	return h
}

// Context is the immutable header+event+payload triple exchanged with
// the server-side script invocation protocol. It is shared by value
// (its exported accessors return copies or read-only views) and never
// mutated after construction.
type Context struct {
	header Header
	event  string
	data   []byte
}

// New serializes a fresh Context. The header's EventSize/DataSize are
// computed from event and data, so the total_size invariant of
// spec.md 3 ("total_size == header_size + event_len + data_len") holds
// by construction.
func New(flags uint32, sourceID dckey.RawID, event string, data []byte) *Context {
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	return &Context{
		header: Header{
			EventSize: uint32(len(event)),
			DataSize:  uint32(len(dataCopy)),
			SourceID:  sourceID,
			Flags:     flags,
		},
		event: event,
		data:  dataCopy,
	}
}

// Copy produces a new Context inheriting other's header flags and
// source id but with a new event and payload, per spec.md 4.7.
func Copy(other *Context, event string, data []byte) *Context {
	return New(other.header.Flags, other.header.SourceID, event, data)
}

// Header returns the context's header.
func (c *Context) Header() Header { return c.header }

// Event returns the event name.
func (c *Context) Event() string { return c.event }

// Data returns the payload bytes. Callers must not mutate the
// returned slice.
func (c *Context) Data() []byte { return c.data }

// IsFinal reports whether this context is a terminating server reply.
func (c *Context) IsFinal() bool { return c.header.IsFinish() }

// Serialize lays out the context as header || event || data, matching
// the wire contract of spec.md 4.7 and 6.
func (c *Context) Serialize() []byte {
	out := make([]byte, 0, headerSize+len(c.event)+len(c.data))
	out = append(out, c.header.marshal()...)
	out = append(out, []byte(c.event)...)
	out = append(out, c.data...)
	return out
}

// Parse decodes a Context from raw bytes, requiring the buffer's total
// length to exactly match header_size + event_size + data_size as
// declared in the header. Any mismatch is an invalid-argument error,
// per spec.md invariant 4.
func Parse(buf []byte) (*Context, error) {
	if len(buf) < headerSize {
		return nil, dcerr.New(dcerr.KindInvalidArgument, dcerr.EINVAL, dckey.RawID{}, "execctx.parse",
			fmt.Sprintf("buffer too short for header: %d < %d", len(buf), headerSize))
	}
	h := unmarshalHeader(buf[:headerSize])
	want := headerSize + int(h.EventSize) + int(h.DataSize)
	if len(buf) != want {
		return nil, dcerr.New(dcerr.KindInvalidArgument, dcerr.EINVAL, h.SourceID, "execctx.parse",
			fmt.Sprintf("total_size=%d != header+event+data=%d", len(buf), want))
	}
	event := string(buf[headerSize : headerSize+int(h.EventSize)])
	data := make([]byte, h.DataSize)
	copy(data, buf[headerSize+int(h.EventSize):])
	return &Context{header: h, event: event, data: data}, nil
}

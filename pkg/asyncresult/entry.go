// Package asyncresult implements the async result stream (spec.md
// component C4): per-type channels of reply entries plus a terminal
// status, filtered and checked under the predicates captured from the
// launching session.
package asyncresult

import (
	"elliptics-go/pkg/dckey"
	"elliptics-go/pkg/execctx"
	"elliptics-go/pkg/tctl"
)

// Entry is the common surface every reply-entry kind exposes: status,
// the replying node's command header, and its address. It is the
// tagged-variant replacement for the source's polymorphic reply type;
// each concrete kind below adds operation-specific accessors.
type Entry interface {
	Status() int32
	Header() tctl.CmdHeader
	Addr() string
	PayloadLen() int
}

// Base is embedded by every concrete entry kind and implements Entry.
type Base struct {
	StatusCode  int32
	Head        tctl.CmdHeader
	Address     string
	PayloadSize int
}

func (b Base) Status() int32          { return b.StatusCode }
func (b Base) Header() tctl.CmdHeader { return b.Head }
func (b Base) Addr() string           { return b.Address }
func (b Base) PayloadLen() int        { return b.PayloadSize }

// FileInfo is the fixed-layout record a lookup reply carries: mtime,
// size, checksum and remote path.
type FileInfo struct {
	Mtime    dckey.Time
	Size     uint64
	Checksum dckey.RawID
	Path     string
}

// FileInfoStructSize is the on-wire size of the fixed portion of a
// FileInfo (mtime + size + checksum); a lookup reply payload of at
// least this size decodes as valid, and one of exactly this size
// (no path bytes) is accepted too.
const FileInfoStructSize = 8 + 8 + dckey.IDSize + 8

// ReadEntry carries the bytes read from a node.
type ReadEntry struct {
	Base
	File []byte
}

// WriteEntry acknowledges a write; it carries no payload.
type WriteEntry struct {
	Base
}

// LookupEntry carries a file-info record.
type LookupEntry struct {
	Base
	Info FileInfo
}

// RemoveEntry acknowledges a remove; it carries no payload.
type RemoveEntry struct {
	Base
}

// StatEntry carries a broadcast statistics reply.
type StatEntry struct {
	Base
	Counters map[string]int64
}

// ExecEntry carries a parsed exec context reply.
type ExecEntry struct {
	Base
	Context *execctx.Context
}

// IteratorEntry carries one chunk of a long-running iteration.
type IteratorEntry struct {
	Base
	IteratorID uint64
	Key        dckey.RawID
	Chunk      []byte
}

// RangeEntry carries one key produced by a range read/delete sweep.
type RangeEntry struct {
	Base
	Key   dckey.RawID
	Value []byte
}

// GenericEntry carries only the common surface, for operations (routes,
// stat-count, cmd) that do not need a specialized payload accessor.
type GenericEntry struct {
	Base
}

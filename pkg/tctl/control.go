// Package tctl implements the packed wire-operation descriptor
// (spec.md component C3): the command, target id, control flags,
// I/O attributes and optional payload that a session hands to the
// transport for dispatch.
package tctl

import (
	"github.com/google/uuid"

	"elliptics-go/pkg/dbuffer"
	"elliptics-go/pkg/dckey"
)

// CommandCode identifies the wire operation a Control carries.
type CommandCode int32

const (
	CmdRead CommandCode = iota + 1
	CmdWrite
	CmdWritePrepare
	CmdWritePlain
	CmdWriteCommit
	CmdWriteCache
	CmdWriteCAS
	CmdLookup
	CmdRemove
	CmdExec
	CmdBulkRead
	CmdBulkWrite
	CmdIteratorStart
	CmdIteratorContinue
	CmdStat
	CmdStatCount
	CmdRangeRead
	CmdRangeDelete
	CmdRoutes
	CmdCmd
)

func (c CommandCode) String() string {
	switch c {
	case CmdRead:
		return "read"
	case CmdWrite:
		return "write"
	case CmdWritePrepare:
		return "write-prepare"
	case CmdWritePlain:
		return "write-plain"
	case CmdWriteCommit:
		return "write-commit"
	case CmdWriteCache:
		return "write-cache"
	case CmdWriteCAS:
		return "write-cas"
	case CmdLookup:
		return "lookup"
	case CmdRemove:
		return "remove"
	case CmdExec:
		return "exec"
	case CmdBulkRead:
		return "bulk-read"
	case CmdBulkWrite:
		return "bulk-write"
	case CmdIteratorStart:
		return "iterator-start"
	case CmdIteratorContinue:
		return "iterator-continue"
	case CmdStat:
		return "stat"
	case CmdStatCount:
		return "stat-count"
	case CmdRangeRead:
		return "range-read"
	case CmdRangeDelete:
		return "range-delete"
	case CmdRoutes:
		return "routes"
	case CmdCmd:
		return "cmd"
	default:
		return "unknown"
	}
}

// Control-flag and I/O-flag bits, carried opaquely by the transport.
const (
	CflagNoLock uint64 = 1 << iota
	CflagCache
	CflagNoExec
)

const (
	IOFlagAppend uint32 = 1 << iota
	IOFlagCompress
	IOFlagCache
	IOFlagPrepare
	IOFlagCommit
	IOFlagPlain
)

// IOAttr carries the I/O-specific parameters of a transaction:
// byte-range offset/size and range-iteration start/num/flags plus the
// sub-id/parent-id/type used by cache and column addressing.
type IOAttr struct {
	Offset   uint64
	Size     uint64
	Start    uint64
	Num      uint64
	Flags    uint32
	SubID    uint64
	ParentID uint64
	Type     int32
}

// NoFD is the file-descriptor sentinel meaning "no zero-copy send is
// available for this control".
const NoFD = -1

// Control is the wire-ready descriptor built by a session for a
// single transaction attempt.
type Control struct {
	ID      dckey.GroupID
	Command CommandCode
	CFlags  uint64
	IO      IOAttr
	TransID uuid.UUID
	Payload *dbuffer.Buffer
	FD      int
}

// New builds a Control with a freshly assigned transaction id and no
// zero-copy descriptor.
func New(id dckey.GroupID, cmd CommandCode, cflags uint64, io IOAttr, payload *dbuffer.Buffer) Control {
	return Control{
		ID:      id,
		Command: cmd,
		CFlags:  cflags,
		IO:      io,
		TransID: uuid.New(),
		Payload: payload,
		FD:      NoFD,
	}
}

// CmdHeader is the reply-frame command header: status, size, flags,
// the command that produced it, its transaction id and the id of the
// node it originated from. It is what checkers examine at terminal
// time regardless of what the filter let through to the user.
type CmdHeader struct {
	Status   int32
	Command  CommandCode
	Size     uint64
	Flags    uint32
	TransID  uuid.UUID
	SourceID dckey.RawID
}

// Reply-frame flag bits.
const (
	FlagNeedAck uint32 = 1 << iota
	FlagMore
)

// Package transport declares the wire-primitive contract the request
// engine consumes (spec.md 6 "External interfaces"). The connection
// pool, framing and ack collection live outside this module; the core
// only depends on this interface.
package transport

import (
	"context"

	"elliptics-go/pkg/dckey"
	"elliptics-go/pkg/tctl"
)

// ReplyFrame is one reply delivered for a dispatched transaction: its
// command header, an optional payload, and whether more frames follow
// (mirrors the FlagMore bit but expressed as a bool for callback
// convenience).
type ReplyFrame struct {
	Header  tctl.CmdHeader
	Payload []byte
	More    bool
}

// OnReply is invoked, possibly from a transport-owned goroutine, once
// per reply frame received for a dispatched transaction.
type OnReply func(ReplyFrame)

// RouteEntry pairs a raw id with the address currently responsible
// for it, as returned by GetRoutes.
type RouteEntry struct {
	ID   dckey.RawID
	Addr string
}

// Transport is the full wire-primitive contract of spec.md 6.
type Transport interface {
	// Dispatch sends tc to the cluster and invokes onReply for every
	// reply frame received. It returns once the transaction's
	// terminal status is known: nil on a clean terminal ack, or a
	// non-nil error carrying the terminal failure (e.g. timeout, no
	// route, connection refused).
	Dispatch(ctx context.Context, tc tctl.Control, addr string, onReply OnReply) error

	// Route resolves the address currently responsible for id within
	// group.
	Route(ctx context.Context, group int32, id dckey.RawID) (string, error)

	// MixStates returns an ordered (randomized/weighted) permutation
	// of known group ids, optionally biased by a key hint.
	MixStates(ctx context.Context, keyHint *dckey.RawID) ([]int32, error)

	// SearchRange returns the end of the sub-range starting at cursor
	// that a single node covers, used by the range read/delete sweep.
	SearchRange(ctx context.Context, group int32, cursor dckey.RawID) (dckey.RawID, error)

	// LookupAddr resolves the string address responsible for id
	// without dispatching a transaction.
	LookupAddr(ctx context.Context, id dckey.GroupID) (string, error)

	// GetRoutes returns the full known routing table.
	GetRoutes(ctx context.Context) ([]RouteEntry, error)

	// UpdateStatus pushes a status change for addr and returns the
	// resulting int status code.
	UpdateStatus(ctx context.Context, addr string, status int) (int, error)

	// AddState registers a new node address with the transport.
	AddState(ctx context.Context, addr string) error

	// StateNum reports the number of connected states.
	StateNum() int

	// NativeSession exposes the transport's own handle for advanced
	// callers; the core never inspects its concrete type.
	NativeSession() any
}

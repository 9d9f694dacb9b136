// Package dcerr provides the tagged error result used throughout the
// request engine, per spec.md 7 "Error handling design". It replaces
// the C-style error-code-plus-sentinel convention of the original
// source with a struct carrying a machine-readable code and a
// human-readable message, while retaining the integer wire sentinels
// for compatibility with the transport.
package dcerr

import (
	"errors"
	"fmt"

	"elliptics-go/pkg/dckey"
)

// Kind classifies an error independently of the wire status code that
// produced it.
type Kind int

const (
	KindInvalidArgument Kind = iota
	KindNotFound
	KindChecksumMismatch
	KindTimeout
	KindTransport
	KindExhaustedGroups
	KindPredicateFailed
	KindOutOfMemory
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid-argument"
	case KindNotFound:
		return "not-found"
	case KindChecksumMismatch:
		return "checksum-mismatch"
	case KindTimeout:
		return "timeout"
	case KindTransport:
		return "transport"
	case KindExhaustedGroups:
		return "exhausted-groups"
	case KindPredicateFailed:
		return "predicate-failed"
	case KindOutOfMemory:
		return "out-of-memory"
	default:
		return "unknown"
	}
}

// Wire status sentinels, matching real POSIX errno values as the
// original protocol does.
const (
	EINVAL int32 = -22
	ENOENT int32 = -2
	EAGAIN int32 = -11
	EACCES int32 = -13
)

// KindFromStatus maps a wire status sentinel to an error Kind. Status
// codes outside the known sentinel set map to KindTransport.
func KindFromStatus(status int32) Kind {
	switch status {
	case EINVAL:
		return KindInvalidArgument
	case ENOENT:
		return KindNotFound
	case EAGAIN, EACCES:
		return KindTransport
	default:
		return KindTransport
	}
}

// Error is the tagged result carried out of the engine: a code, the
// target object's id, the failing operation, a human message and an
// optional wrapped cause.
type Error struct {
	Kind     Kind
	Status   int32
	TargetID dckey.RawID
	Op       string
	Message  string
	Err      error
}

// New builds an Error whose message is formatted with the target id's
// first six bytes in hex, per spec.md 7 "User-visible behavior".
func New(kind Kind, status int32, targetID dckey.RawID, op, message string) *Error {
	return &Error{Kind: kind, Status: status, TargetID: targetID, Op: op, Message: message}
}

// Wrap builds an Error around an underlying cause.
func Wrap(kind Kind, err error, targetID dckey.RawID, op, message string) *Error {
	return &Error{Kind: kind, TargetID: targetID, Op: op, Message: message, Err: err}
}

// FromStatus builds an Error from a wire status code observed on a
// reply for the given target and operation.
func FromStatus(status int32, targetID dckey.RawID, op string) *Error {
	return New(KindFromStatus(status), status, targetID, op, statusMessage(status))
}

func statusMessage(status int32) string {
	switch status {
	case EINVAL:
		return "invalid argument or checksum mismatch"
	case ENOENT:
		return "object not found"
	case EAGAIN:
		return "transport would block, retry"
	case EACCES:
		return "operation forbidden"
	default:
		return "transport error"
	}
}

func (e *Error) Error() string {
	id := e.TargetID
	prefix := fmt.Sprintf("elliptics: %s: id=%x", e.Op, id[:6])
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s (status=%d, kind=%s)", prefix, e.Message, e.Status, e.Kind)
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports Kind-based equivalence so callers can test
// errors.Is(err, dcerr.NotFound) without depending on a specific
// target id or message.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// Sentinel errors usable with errors.Is for coarse-grained kind
// checks (their TargetID/Op/Message are zero-valued placeholders).
var (
	NotFound         = &Error{Kind: KindNotFound}
	InvalidArgument  = &Error{Kind: KindInvalidArgument}
	ChecksumMismatch = &Error{Kind: KindChecksumMismatch}
	Timeout          = &Error{Kind: KindTimeout}
	Transport        = &Error{Kind: KindTransport}
	ExhaustedGroups  = &Error{Kind: KindExhaustedGroups}
	PredicateFailed  = &Error{Kind: KindPredicateFailed}
	OutOfMemory      = &Error{Kind: KindOutOfMemory}
)

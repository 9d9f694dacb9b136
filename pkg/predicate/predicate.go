// Package predicate implements the pluggable filter and checker
// predicates (spec.md component C5) and the session exception-policy
// bitmask that governs when a stream's terminal error is raised
// synchronously.
package predicate

import "elliptics-go/pkg/tctl"

// Filter decides, per reply entry, whether it is surfaced to the user.
type Filter func(status int32, payloadLen int) bool

// Positive admits replies that succeeded and carried data.
func Positive(status int32, payloadLen int) bool {
	return status == 0 && payloadLen > 0
}

// Negative admits only replies that failed.
func Negative(status int32, payloadLen int) bool {
	return status != 0
}

// All admits any reply that carried data, regardless of status.
func All(status int32, payloadLen int) bool {
	return payloadLen > 0
}

// AllWithAck admits every reply unconditionally, including bare acks.
func AllWithAck(status int32, payloadLen int) bool {
	return true
}

// Checker consults every reply's command header at terminal time,
// regardless of what the filter let through, and decides whether the
// aggregate operation succeeded.
type Checker func(headers []tctl.CmdHeader, total int) bool

// NoCheck always accepts.
func NoCheck(headers []tctl.CmdHeader, total int) bool {
	return true
}

// AtLeastOne accepts if any header reports success.
func AtLeastOne(headers []tctl.CmdHeader, total int) bool {
	for _, h := range headers {
		if h.Status == 0 {
			return true
		}
	}
	return false
}

// AllOK accepts only if every expected reply arrived and all succeeded.
func AllOK(headers []tctl.CmdHeader, total int) bool {
	if len(headers) != total {
		return false
	}
	for _, h := range headers {
		if h.Status != 0 {
			return false
		}
	}
	return true
}

// Quorum accepts if strictly more than half of the expected replies
// succeeded.
func Quorum(headers []tctl.CmdHeader, total int) bool {
	ok := 0
	for _, h := range headers {
		if h.Status == 0 {
			ok++
		}
	}
	return ok*2 > total
}

// ExceptionPolicy is a bitmask over when validation and terminal
// errors should be raised synchronously rather than only surfaced
// through the stream.
type ExceptionPolicy uint32

const (
	ThrowAtStart ExceptionPolicy = 1 << iota
	ThrowAtWait
	NoExceptions
)

// ShouldThrowAtStart reports whether synchronous argument-validation
// failures should raise. NoExceptions dominates ThrowAtStart, per
// spec.md 9's resolution of the corresponding Open Question.
func (p ExceptionPolicy) ShouldThrowAtStart() bool {
	if p&NoExceptions != 0 {
		return false
	}
	return p&ThrowAtStart != 0
}

// ShouldThrowAtWait reports whether a synchronous Wait/Get should
// raise the terminal error rather than only return it.
func (p ExceptionPolicy) ShouldThrowAtWait() bool {
	if p&NoExceptions != 0 {
		return false
	}
	return p&ThrowAtWait != 0
}

// Defaults, per spec.md 4.3.
const (
	DefaultFilter  = "positive"
	DefaultChecker = "at_least_one"
)

// DefaultFilterFunc and DefaultCheckerFunc are the concrete defaults a
// freshly constructed session carries.
var (
	DefaultFilterFunc  Filter  = Positive
	DefaultCheckerFunc Checker = AtLeastOne
)

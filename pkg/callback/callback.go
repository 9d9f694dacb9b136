// Package callback implements the per-operation state machines
// (spec.md component C7): read, write, lookup, remove, stat/cmd,
// iterator and exec/push/reply. Each factory builds one or more
// transaction controls, dispatches them through the session's
// transport, and feeds an async result stream.
package callback

import (
	"context"

	"elliptics-go/pkg/asyncresult"
	"elliptics-go/pkg/dcerr"
	"elliptics-go/pkg/dckey"
	"elliptics-go/pkg/session"
	"elliptics-go/pkg/tctl"
)

// newBase builds the common Entry surface every concrete entry kind
// embeds.
func newBase(addr string, hdr tctl.CmdHeader, payloadLen int) asyncresult.Base {
	return asyncresult.Base{
		StatusCode:  hdr.Status,
		Head:        hdr,
		Address:     addr,
		PayloadSize: payloadLen,
	}
}

// validationFailure builds a pre-completed terminal-error stream for a
// synchronous argument-validation failure, raising immediately when
// the session's exception policy demands it, per spec.md 4.8.
func validationFailure[E asyncresult.Entry](s *session.Session, err *dcerr.Error) *asyncresult.Result[E] {
	if s.ExceptionPolicy().ShouldThrowAtStart() {
		panic(err)
	}
	return asyncresult.Completed[E](err)
}

// withTimeout derives a context bounded by the session's configured
// timeout, when one is set.
func withTimeout(ctx context.Context, s *session.Session) (context.Context, context.CancelFunc) {
	if d := s.Timeout(); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

// unreachableHeader synthesizes a transport-failure header for a
// group whose address could not be resolved, so it still contributes
// to the checker's view of the fan-out.
func unreachableHeader(cmd tctl.CommandCode, id dckey.RawID) tctl.CmdHeader {
	return tctl.CmdHeader{Status: dcerr.EAGAIN, Command: cmd, SourceID: id}
}

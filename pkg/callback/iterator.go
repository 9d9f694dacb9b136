package callback

import (
	"context"

	"elliptics-go/pkg/asyncresult"
	"elliptics-go/pkg/dcerr"
	"elliptics-go/pkg/dckey"
	"elliptics-go/pkg/session"
	"elliptics-go/pkg/tctl"
	"elliptics-go/pkg/transport"
)

// Iterator starts a long-running iteration over group, streaming
// chunks until an ack-with-no-more reply is received, per spec.md
// 4.4 "Iterator".
func Iterator(ctx context.Context, s *session.Session, group int32, iteratorID uint64) *asyncresult.Result[asyncresult.IteratorEntry] {
	gid := dckey.GroupID{Group: group}
	result := asyncresult.New[asyncresult.IteratorEntry](s.Filter(), s.Checker(), s.ExceptionPolicy(), 1, gid.ID, "iterator")

	go func() {
		dctx, cancel := withTimeout(ctx, s)
		defer cancel()

		addr, err := s.Transport().LookupAddr(dctx, gid)
		if err != nil {
			result.Push(asyncresult.IteratorEntry{Base: newBase("", unreachableHeader(tctl.CmdIteratorStart, gid.ID), 0)})
			result.Complete()
			return
		}

		io := s.BuildIOAttr(0, 0, 0, iteratorID, 0, 0, 0)
		ctl := tctl.New(gid, tctl.CmdIteratorStart, s.Cflags(), io, nil)

		derr := s.Transport().Dispatch(dctx, ctl, addr, func(f transport.ReplyFrame) {
			entry := asyncresult.IteratorEntry{
				Base:       newBase(addr, f.Header, len(f.Payload)),
				IteratorID: iteratorID,
				Key:        f.Header.SourceID,
				Chunk:      append([]byte(nil), f.Payload...),
			}
			result.Push(entry)
		})
		if derr != nil {
			result.CompleteWithError(dcerr.Wrap(dcerr.KindTransport, derr, gid.ID, "iterator", "iteration terminated by transport"))
			return
		}
		result.Complete()
	}()

	return result
}

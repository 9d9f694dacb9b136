package callback

import (
	"context"

	"elliptics-go/pkg/asyncresult"
	"elliptics-go/pkg/dbuffer"
	"elliptics-go/pkg/dcerr"
	"elliptics-go/pkg/dckey"
	"elliptics-go/pkg/execctx"
	"elliptics-go/pkg/session"
	"elliptics-go/pkg/tctl"
	"elliptics-go/pkg/transport"
)

// dispatchExec dispatches ectx to group and decodes every reply frame
// as an exec context, feeding an async result stream.
func dispatchExec(ctx context.Context, s *session.Session, group int32, id dckey.RawID, op string, ectx *execctx.Context) *asyncresult.Result[asyncresult.ExecEntry] {
	gid := dckey.GroupID{ID: id, Group: group}
	result := asyncresult.New[asyncresult.ExecEntry](s.Filter(), s.Checker(), s.ExceptionPolicy(), 1, id, op)

	go func() {
		dctx, cancel := withTimeout(ctx, s)
		defer cancel()

		addr, err := s.Transport().LookupAddr(dctx, gid)
		if err != nil {
			result.CompleteWithError(dcerr.Wrap(dcerr.KindTransport, err, id, op, "no route for exec target"))
			return
		}

		payload := dbuffer.Borrow(ectx.Serialize())
		ctl := tctl.New(gid, tctl.CmdExec, s.Cflags(), tctl.IOAttr{}, payload)

		derr := s.Transport().Dispatch(dctx, ctl, addr, func(f transport.ReplyFrame) {
			base := newBase(addr, f.Header, len(f.Payload))
			parsed, perr := execctx.Parse(f.Payload)
			if perr != nil {
				base.StatusCode = dcerr.EINVAL
				base.Head.Status = dcerr.EINVAL
				result.Push(asyncresult.ExecEntry{Base: base})
				return
			}
			result.Push(asyncresult.ExecEntry{Base: base, Context: parsed})
		})
		if derr != nil {
			result.CompleteWithError(dcerr.Wrap(dcerr.KindTransport, derr, id, op, "exec dispatch failed"))
			return
		}
		result.Complete()
	}()

	return result
}

// Exec dispatches ctx with SRC_BLOCK set, so the server blocks
// awaiting a user reply, per spec.md 4.4 "exec/push/reply".
func Exec(ctx context.Context, s *session.Session, group int32, id dckey.RawID, event string, data []byte) *asyncresult.Result[asyncresult.ExecEntry] {
	ectx := execctx.New(execctx.FlagSrcBlock, id, event, data)
	return dispatchExec(ctx, s, group, id, "exec", ectx)
}

// Push dispatches ctx with SRC_BLOCK cleared: fire-and-forget, the
// server does not block for a reply.
func Push(ctx context.Context, s *session.Session, group int32, id dckey.RawID, event string, data []byte) *asyncresult.Result[asyncresult.ExecEntry] {
	ectx := execctx.New(0, id, event, data)
	return dispatchExec(ctx, s, group, id, "push", ectx)
}

// Reply answers an in-flight exec, routing back to the source id
// embedded in original's header. When final is true it also sets
// FINISH, declaring this the last reply for the exchange.
func Reply(ctx context.Context, s *session.Session, original *execctx.Context, data []byte, final bool) *asyncresult.Result[asyncresult.ExecEntry] {
	flags := execctx.FlagReply
	if final {
		flags |= execctx.FlagFinish
	}
	sourceID := original.Header().SourceID
	ectx := execctx.New(flags, sourceID, original.Event(), data)
	return dispatchExec(ctx, s, 0, sourceID, "reply", ectx)
}

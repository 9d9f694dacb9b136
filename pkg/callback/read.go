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

// Read issues a read against the session's ordered group list,
// per spec.md 4.4: attempts the first group, and on terminal failure
// (no positive reply) rotates to the next, rewriting the id's group
// tag each attempt. It finalizes on the first positive reply or after
// every group has been tried.
func Read(ctx context.Context, s *session.Session, key *dckey.Key, offset, size uint64) *asyncresult.Result[asyncresult.ReadEntry] {
	return ReadGroups(ctx, s, key, s.Groups(), offset, size)
}

// ReadGroups is Read against an explicit ordered group preference
// list, used directly by read_latest once prepare_latest has computed
// the preference order.
func ReadGroups(ctx context.Context, s *session.Session, key *dckey.Key, groups []int32, offset, size uint64) *asyncresult.Result[asyncresult.ReadEntry] {
	if len(groups) == 0 {
		return validationFailure[asyncresult.ReadEntry](s, dcerr.New(dcerr.KindInvalidArgument, 0, dckey.RawID{}, "read", "no target groups configured"))
	}

	first := s.Resolve(key, groups[0])
	result := asyncresult.New[asyncresult.ReadEntry](s.Filter(), s.Checker(), s.ExceptionPolicy(), 1, first.ID, "read")

	go func() {
		anySuccess := false
		var lastErr error
		for _, g := range groups {
			gid := s.Resolve(key, g)
			dctx, cancel := withTimeout(ctx, s)

			addr, err := s.Transport().LookupAddr(dctx, gid)
			if err != nil {
				result.Push(asyncresult.ReadEntry{Base: newBase("", unreachableHeader(tctl.CmdRead, gid.ID), 0)})
				lastErr = dcerr.Wrap(dcerr.KindTransport, err, gid.ID, "read", "address lookup failed")
				cancel()
				continue
			}

			io := s.BuildIOAttr(offset, size, 0, 0, 0, 0, gid.Type)
			ctl := tctl.New(gid, tctl.CmdRead, s.Cflags(), io, nil)

			positive := false
			_ = s.Transport().Dispatch(dctx, ctl, addr, func(f transport.ReplyFrame) {
				entry := asyncresult.ReadEntry{
					Base: newBase(addr, f.Header, len(f.Payload)),
					File: append([]byte(nil), f.Payload...),
				}
				result.Push(entry)
				if f.Header.Status == 0 && len(f.Payload) > 0 {
					positive = true
				} else {
					lastErr = dcerr.FromStatus(f.Header.Status, f.Header.SourceID, "read")
				}
			})
			cancel()

			if positive {
				anySuccess = true
				break
			}
		}
		if anySuccess {
			result.Complete()
			return
		}
		// Every group in the preference list was tried and none produced
		// a positive reply: this is the exhausted-groups case, distinct
		// from a single group's own failure kind.
		result.CompleteWithError(dcerr.Wrap(dcerr.KindExhaustedGroups, lastErr, first.ID, "read", "every group exhausted without a positive reply"))
	}()

	return result
}

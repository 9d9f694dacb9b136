package callback

import (
	"context"
	"encoding/json"
	"sync"

	"elliptics-go/pkg/asyncresult"
	"elliptics-go/pkg/dcerr"
	"elliptics-go/pkg/dckey"
	"elliptics-go/pkg/session"
	"elliptics-go/pkg/tctl"
	"elliptics-go/pkg/transport"
)

// broadcast emits one transaction per known state and multiplexes
// every reply into a single stream, unfiltered at the transport layer
// and filtered at the callback, per spec.md 4.4 "Stat / stat-count /
// cmd".
func broadcast[E asyncresult.Entry](ctx context.Context, s *session.Session, op string, cmd tctl.CommandCode, decode func(addr string, f transport.ReplyFrame) E) *asyncresult.Result[E] {
	routes, err := s.Transport().GetRoutes(ctx)
	if err != nil {
		return validationFailure[E](s, dcerr.Wrap(dcerr.KindTransport, err, dckey.RawID{}, op, "failed to enumerate routes"))
	}

	addrs := make(map[string]struct{}, len(routes))
	for _, r := range routes {
		addrs[r.Addr] = struct{}{}
	}

	result := asyncresult.New[E](s.Filter(), s.Checker(), s.ExceptionPolicy(), len(addrs), dckey.RawID{}, op)

	var wg sync.WaitGroup
	for addr := range addrs {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			dctx, cancel := withTimeout(ctx, s)
			defer cancel()

			ctl := tctl.New(dckey.GroupID{}, cmd, s.Cflags(), tctl.IOAttr{}, nil)
			_ = s.Transport().Dispatch(dctx, ctl, addr, func(f transport.ReplyFrame) {
				result.Push(decode(addr, f))
			})
		}(addr)
	}
	go func() {
		wg.Wait()
		result.Complete()
	}()
	return result
}

// Stat broadcasts a statistics request to every known state.
func Stat(ctx context.Context, s *session.Session) *asyncresult.Result[asyncresult.StatEntry] {
	decode := func(addr string, f transport.ReplyFrame) asyncresult.StatEntry {
		base := newBase(addr, f.Header, len(f.Payload))
		counters := map[string]int64{}
		if len(f.Payload) > 0 {
			_ = json.Unmarshal(f.Payload, &counters)
		}
		return asyncresult.StatEntry{Base: base, Counters: counters}
	}
	return broadcast(ctx, s, "stat", tctl.CmdStat, decode)
}

// StatCount broadcasts a lightweight per-node counter request.
func StatCount(ctx context.Context, s *session.Session) *asyncresult.Result[asyncresult.GenericEntry] {
	decode := func(addr string, f transport.ReplyFrame) asyncresult.GenericEntry {
		return asyncresult.GenericEntry{Base: newBase(addr, f.Header, len(f.Payload))}
	}
	return broadcast(ctx, s, "stat-count", tctl.CmdStatCount, decode)
}

// Cmd broadcasts an opaque shell/admin command to every known state.
func Cmd(ctx context.Context, s *session.Session) *asyncresult.Result[asyncresult.GenericEntry] {
	decode := func(addr string, f transport.ReplyFrame) asyncresult.GenericEntry {
		return asyncresult.GenericEntry{Base: newBase(addr, f.Header, len(f.Payload))}
	}
	return broadcast(ctx, s, "cmd", tctl.CmdCmd, decode)
}

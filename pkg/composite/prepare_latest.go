package composite

import (
	"context"
	"sort"
	"sync"

	"elliptics-go/pkg/asyncresult"
	"elliptics-go/pkg/callback"
	"elliptics-go/pkg/dcerr"
	"elliptics-go/pkg/dckey"
	"elliptics-go/pkg/predicate"
	"elliptics-go/pkg/session"
	"elliptics-go/pkg/tctl"
	"elliptics-go/pkg/transport"
)

// candidate is a lookup reply tagged with the group it came from, so
// the preferred-group tiebreak in step (iii) can find it after
// sorting.
type candidate struct {
	entry asyncresult.LookupEntry
	group int32
	rank  int
}

// rank buckets a lookup reply the way spec.md 4.5 orders them:
// positive replies carrying file-info sort first, bare acks next,
// failures last.
func rankOf(e asyncresult.LookupEntry) int {
	switch {
	case e.Status() == 0 && e.PayloadLen() > 0:
		return 0
	case e.Status() == 0:
		return 1
	default:
		return 2
	}
}

// PrepareLatest fans a lookup out across groups with the filter and
// checker suppressed (any-result, no-check, no exceptions), then
// orders the replies by (i) type, (ii) mtime descending, (iii) the
// caller's preferred group at position 0 on a tie, per spec.md 4.5.
func PrepareLatest(ctx context.Context, s *session.Session, key *dckey.Key, groups []int32, preferredGroup int32) *asyncresult.Result[asyncresult.LookupEntry] {
	if len(groups) == 0 {
		return failFast[asyncresult.LookupEntry](s, dcerr.New(dcerr.KindInvalidArgument, 0, dckey.RawID{}, "prepare_latest", "no candidate groups"))
	}

	outFilter, outChecker, outPolicy := s.Filter(), s.Checker(), s.ExceptionPolicy()
	id := s.Resolve(key, groups[0]).ID

	candidates := computeOrder(ctx, s, key, groups, preferredGroup)

	out := asyncresult.New[asyncresult.LookupEntry](outFilter, outChecker, outPolicy, len(candidates), id, "prepare_latest")
	go func() {
		for _, c := range candidates {
			out.Push(c.entry)
		}
		out.Complete()
	}()
	return out
}

// computeOrder gathers a lookup reply per group and sorts them by
// spec.md 4.5's 3-level key, returning the group-tagged candidates in
// their final preference order.
func computeOrder(ctx context.Context, s *session.Session, key *dckey.Key, groups []int32, preferredGroup int32) []candidate {
	candidates := gatherCandidates(ctx, s, key, groups)
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].rank != candidates[j].rank {
			return candidates[i].rank < candidates[j].rank
		}
		return candidates[j].entry.Info.Mtime.Before(candidates[i].entry.Info.Mtime)
	})
	applyPreferredTiebreak(candidates, preferredGroup)
	return candidates
}

// applyPreferredTiebreak moves the preferred group's candidate to
// position 0 when it ties the current best candidate on rank and
// mtime, per spec.md 4.5 step (iii).
func applyPreferredTiebreak(candidates []candidate, preferredGroup int32) {
	if len(candidates) < 2 {
		return
	}
	best := candidates[0]
	for i, c := range candidates[1:] {
		if c.group != preferredGroup {
			continue
		}
		if c.rank == best.rank && c.entry.Info.Mtime.Equal(best.entry.Info.Mtime) {
			idx := i + 1
			candidates[0], candidates[idx] = candidates[idx], candidates[0]
		}
		return
	}
}

// gatherCandidates fans a lookup out to every group, suppressing the
// session's normal filter/checker/exception policy for the duration
// (spec.md 4.2 session_scope discipline), and blocks until every
// reply is in.
func gatherCandidates(ctx context.Context, s *session.Session, key *dckey.Key, groups []int32) []candidate {
	// prepare_latest always evaluates every reply itself (any-result,
	// no-check, no exceptions) regardless of the caller's session
	// settings, per spec.md 4.5; session_scope brackets the override so
	// the caller's own filter/checker are restored once every reply of
	// the fan-out is in.
	sc := session.EnterScope(s)
	s.SetFilter(predicate.AllWithAck)
	s.SetChecker(predicate.NoCheck)
	s.SetExceptionPolicy(predicate.NoExceptions)
	scopedTimeout := s.Timeout()

	ids := make([]dckey.GroupID, len(groups))
	for i, g := range groups {
		ids[i] = s.Resolve(key, g)
	}

	results := make([]candidate, len(ids))
	var wg sync.WaitGroup
	for i, gid := range ids {
		wg.Add(1)
		go func(i int, gid dckey.GroupID) {
			defer wg.Done()
			dctx := ctx
			var cancel context.CancelFunc
			if scopedTimeout > 0 {
				dctx, cancel = context.WithTimeout(ctx, scopedTimeout)
				defer cancel()
			}

			addr, err := s.Transport().LookupAddr(dctx, gid)
			if err != nil {
				entry := callback.DecodeLookupReply("", transport.ReplyFrame{
					Header: tctl.CmdHeader{Status: dcerr.EAGAIN, Command: tctl.CmdLookup, SourceID: gid.ID},
				})
				results[i] = candidate{entry: entry, group: gid.Group, rank: rankOf(entry)}
				return
			}

			ctl := tctl.New(gid, tctl.CmdLookup, s.Cflags(), tctl.IOAttr{}, nil)
			var entry asyncresult.LookupEntry
			_ = s.Transport().Dispatch(dctx, ctl, addr, func(f transport.ReplyFrame) {
				entry = callback.DecodeLookupReply(addr, f)
			})
			results[i] = candidate{entry: entry, group: gid.Group, rank: rankOf(entry)}
		}(i, gid)
	}
	wg.Wait()
	sc.Exit()
	return results
}

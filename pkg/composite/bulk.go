package composite

import (
	"context"
	"sync"

	"github.com/zhangyunhao116/skipmap"

	"elliptics-go/pkg/aggregate"
	"elliptics-go/pkg/asyncresult"
	"elliptics-go/pkg/dbuffer"
	"elliptics-go/pkg/dcerr"
	"elliptics-go/pkg/dckey"
	"elliptics-go/pkg/predicate"
	"elliptics-go/pkg/session"
	"elliptics-go/pkg/tctl"
	"elliptics-go/pkg/transport"
)

// BulkRead builds one sorted, deduplicated set of io-attrs (sort key:
// raw id, ascending) from ids and dispatches one bulk transaction per
// target state, multiplexing every reply into a single stream, per
// spec.md 4.5 "Bulk read". The dedup set is a concurrency-safe sorted
// map, since bulk ids can arrive from concurrent producers.
func BulkRead(ctx context.Context, s *session.Session, ids []dckey.GroupID) *asyncresult.Result[asyncresult.ReadEntry] {
	if len(ids) == 0 {
		return failFast[asyncresult.ReadEntry](s, dcerr.New(dcerr.KindInvalidArgument, 0, dckey.RawID{}, "bulk_read", "empty id list"))
	}

	dedup := skipmap.NewFunc[dckey.RawID, dckey.GroupID](dckey.Less)
	for _, id := range ids {
		dedup.Store(id.ID, id)
	}

	byGroup := make(map[int32][]dckey.GroupID)
	dedup.Range(func(_ dckey.RawID, gid dckey.GroupID) bool {
		byGroup[gid.Group] = append(byGroup[gid.Group], gid)
		return true
	})

	result := asyncresult.New[asyncresult.ReadEntry](s.Filter(), s.Checker(), s.ExceptionPolicy(), len(byGroup), ids[0].ID, "bulk_read")

	var wg sync.WaitGroup
	for group, groupIDs := range byGroup {
		wg.Add(1)
		go func(group int32, groupIDs []dckey.GroupID) {
			defer wg.Done()
			dispatchBulkRead(ctx, s, group, groupIDs, result)
		}(group, groupIDs)
	}
	go func() {
		wg.Wait()
		result.Complete()
	}()
	return result
}

func dispatchBulkRead(ctx context.Context, s *session.Session, group int32, ids []dckey.GroupID, result *asyncresult.Result[asyncresult.ReadEntry]) {
	gid := dckey.GroupID{Group: group}
	addr, err := s.Transport().LookupAddr(ctx, gid)
	if err != nil {
		for _, id := range ids {
			result.Push(asyncresult.ReadEntry{Base: asyncresult.Base{
				StatusCode: dcerr.EAGAIN,
				Head:       tctl.CmdHeader{Status: dcerr.EAGAIN, Command: tctl.CmdBulkRead, SourceID: id.ID},
			}})
		}
		return
	}

	payload := make([]byte, 0, dckey.IDSize*len(ids))
	for _, id := range ids {
		payload = append(payload, id.ID[:]...)
	}
	ctl := tctl.New(gid, tctl.CmdBulkRead, s.Cflags(), tctl.IOAttr{Num: uint64(len(ids))}, dbuffer.FromBytes(payload))

	_ = s.Transport().Dispatch(ctx, ctl, addr, func(f transport.ReplyFrame) {
		for _, rec := range decodeRangeBatch(f.Payload) {
			result.Push(asyncresult.ReadEntry{
				Base: asyncresult.Base{
					StatusCode:  f.Header.Status,
					Head:        tctl.CmdHeader{Status: f.Header.Status, Command: tctl.CmdBulkRead, SourceID: rec.Key},
					Address:     addr,
					PayloadSize: len(rec.Value),
				},
				File: rec.Value,
			})
		}
	})
}

// BulkWrite fans an independent write out per (id, payload) pair using
// all_with_ack/no_check inside a scoped session, then aggregates the N
// per-id streams, per spec.md 4.5 "Bulk write". ids and payloads are
// parallel slices, mirroring bulk_write's original many-ids batching
// (the batching axis is the id/io-attr, not the group, unlike the
// group fan-out every other write mode uses).
func BulkWrite(ctx context.Context, s *session.Session, ids []dckey.GroupID, payloads [][]byte) *asyncresult.Result[asyncresult.WriteEntry] {
	if len(ids) == 0 {
		return failFast[asyncresult.WriteEntry](s, dcerr.New(dcerr.KindInvalidArgument, 0, dckey.RawID{}, "bulk_write", "empty id list"))
	}
	if len(ids) != len(payloads) {
		return failFast[asyncresult.WriteEntry](s, dcerr.New(dcerr.KindInvalidArgument, 0, ids[0].ID, "bulk_write", "mismatched id/payload lengths"))
	}

	sc := session.EnterScope(s)
	s.SetFilter(predicate.AllWithAck)
	s.SetChecker(predicate.NoCheck)
	streams := make([]*asyncresult.Result[asyncresult.WriteEntry], len(ids))
	for i, id := range ids {
		fork := s.Fork()
		streams[i] = writeOne(ctx, fork, id, payloads[i])
	}
	sc.Exit()

	return aggregate.Aggregate(streams)
}

// writeOne dispatches a single write directly against an
// already-resolved id, bypassing key transform since bulk_write's
// caller supplies raw ids up front the same way bulk_read does.
func writeOne(ctx context.Context, fork *session.Session, gid dckey.GroupID, payload []byte) *asyncresult.Result[asyncresult.WriteEntry] {
	result := asyncresult.New[asyncresult.WriteEntry](fork.Filter(), fork.Checker(), fork.ExceptionPolicy(), 1, gid.ID, "bulk_write")
	go func() {
		dctx := ctx
		var cancel context.CancelFunc
		if t := fork.Timeout(); t > 0 {
			dctx, cancel = context.WithTimeout(ctx, t)
			defer cancel()
		}
		defer func() {
			if cancel != nil {
				cancel()
			}
		}()

		addr, err := fork.Transport().LookupAddr(dctx, gid)
		if err != nil {
			result.Push(asyncresult.WriteEntry{Base: asyncresult.Base{
				StatusCode: dcerr.EAGAIN,
				Head:       tctl.CmdHeader{Status: dcerr.EAGAIN, Command: tctl.CmdWrite, SourceID: gid.ID},
			}})
			result.Complete()
			return
		}

		io := fork.BuildIOAttr(0, uint64(len(payload)), 0, 0, 0, 0, gid.Type)
		ctl := tctl.New(gid, tctl.CmdWrite, fork.Cflags(), io, dbuffer.FromBytes(payload))
		_ = fork.Transport().Dispatch(dctx, ctl, addr, func(f transport.ReplyFrame) {
			result.Push(asyncresult.WriteEntry{Base: asyncresult.Base{
				StatusCode:  f.Header.Status,
				Head:        f.Header,
				Address:     addr,
				PayloadSize: len(f.Payload),
			}})
		})
		result.Complete()
	}()
	return result
}

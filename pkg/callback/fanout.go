package callback

import (
	"context"
	"sync"

	"elliptics-go/pkg/asyncresult"
	"elliptics-go/pkg/dbuffer"
	"elliptics-go/pkg/dcerr"
	"elliptics-go/pkg/dckey"
	"elliptics-go/pkg/session"
	"elliptics-go/pkg/tctl"
	"elliptics-go/pkg/transport"
)

// fanOut dispatches one transaction per id concurrently and merges
// every reply into a single stream, per spec.md 4.4's shared
// write/lookup/remove fan-out shape: no fail-over, every group tried
// independently, the checker decides overall success.
func fanOut[E asyncresult.Entry](ctx context.Context, s *session.Session, ids []dckey.GroupID, op string, cmd tctl.CommandCode, ioFor func(dckey.GroupID) tctl.IOAttr, payload *dbuffer.Buffer, decode func(addr string, gid dckey.GroupID, f transport.ReplyFrame) E) *asyncresult.Result[E] {
	var targetID dckey.RawID
	if len(ids) > 0 {
		targetID = ids[0].ID
	}
	result := asyncresult.New[E](s.Filter(), s.Checker(), s.ExceptionPolicy(), len(ids), targetID, op)

	var wg sync.WaitGroup
	for _, gid := range ids {
		wg.Add(1)
		go func(gid dckey.GroupID) {
			defer wg.Done()
			dctx, cancel := withTimeout(ctx, s)
			defer cancel()

			addr, err := s.Transport().LookupAddr(dctx, gid)
			if err != nil {
				result.Push(decode("", gid, transport.ReplyFrame{Header: unreachableHeader(cmd, gid.ID)}))
				return
			}
			ctl := tctl.New(gid, cmd, s.Cflags(), ioFor(gid), payload)
			_ = s.Transport().Dispatch(dctx, ctl, addr, func(f transport.ReplyFrame) {
				result.Push(decode(addr, gid, f))
			})
		}(gid)
	}
	go func() {
		wg.Wait()
		result.Complete()
	}()
	return result
}

// resolveGroupIDs materializes key's group-scoped id under every
// requested group.
func resolveGroupIDs(s *session.Session, key *dckey.Key, groups []int32) []dckey.GroupID {
	ids := make([]dckey.GroupID, len(groups))
	for i, g := range groups {
		ids[i] = s.Resolve(key, g)
	}
	return ids
}

// Write fans a payload out to every group in the session's group
// list. No fail-over: every group is attempted independently.
func Write(ctx context.Context, s *session.Session, key *dckey.Key, offset uint64, payload []byte) *asyncresult.Result[asyncresult.WriteEntry] {
	groups := s.Groups()
	if len(groups) == 0 {
		return validationFailure[asyncresult.WriteEntry](s, dcerr.New(dcerr.KindInvalidArgument, 0, dckey.RawID{}, "write", "no target groups configured"))
	}
	ids := resolveGroupIDs(s, key, groups)
	buf := dbuffer.FromBytes(payload)
	ioFor := func(gid dckey.GroupID) tctl.IOAttr {
		return s.BuildIOAttr(offset, uint64(len(payload)), 0, 0, 0, 0, gid.Type)
	}
	decode := func(addr string, gid dckey.GroupID, f transport.ReplyFrame) asyncresult.WriteEntry {
		return asyncresult.WriteEntry{Base: newBase(addr, f.Header, len(f.Payload))}
	}
	return fanOut(ctx, s, ids, "write", tctl.CmdWrite, ioFor, buf, decode)
}

// Lookup fans a lookup out to every group in the session's group
// list; each reply carries a file-info record. It backs
// prepare_latest and read_latest.
func Lookup(ctx context.Context, s *session.Session, key *dckey.Key) *asyncresult.Result[asyncresult.LookupEntry] {
	groups := s.Groups()
	if len(groups) == 0 {
		return validationFailure[asyncresult.LookupEntry](s, dcerr.New(dcerr.KindInvalidArgument, 0, dckey.RawID{}, "lookup", "no target groups configured"))
	}
	return LookupGroups(ctx, s, key, groups)
}

// LookupGroups is Lookup restricted to an explicit group list,
// exposed separately because prepare_latest fans a lookup out over a
// caller-supplied group set rather than the session's default.
func LookupGroups(ctx context.Context, s *session.Session, key *dckey.Key, groups []int32) *asyncresult.Result[asyncresult.LookupEntry] {
	ids := resolveGroupIDs(s, key, groups)
	ioFor := func(gid dckey.GroupID) tctl.IOAttr {
		return s.BuildIOAttr(0, 0, 0, 0, 0, 0, gid.Type)
	}
	decode := func(addr string, gid dckey.GroupID, f transport.ReplyFrame) asyncresult.LookupEntry {
		return DecodeLookupReply(addr, f)
	}
	return fanOut(ctx, s, ids, "lookup", tctl.CmdLookup, ioFor, nil, decode)
}

// DecodeLookupReply turns one raw lookup reply frame into a
// LookupEntry, parsing its file-info payload when the reply is
// positive. Exported so composite operations (prepare_latest) that
// need to correlate the reply with the group it came from can reuse
// the same decoding without re-fanning through Lookup.
func DecodeLookupReply(addr string, f transport.ReplyFrame) asyncresult.LookupEntry {
	base := newBase(addr, f.Header, len(f.Payload))
	if f.Header.Status != 0 || len(f.Payload) == 0 {
		return asyncresult.LookupEntry{Base: base}
	}
	info, err := asyncresult.DecodeFileInfo(f.Payload)
	if err != nil {
		base.StatusCode = dcerr.EINVAL
		base.Head.Status = dcerr.EINVAL
		return asyncresult.LookupEntry{Base: base}
	}
	return asyncresult.LookupEntry{Base: base, Info: info}
}

// WriteCAS fans a compare-and-swap write out to every group in the
// session's group list. The payload carries the expected current
// checksum as a fixed-width prefix ahead of the new value; a backend
// rejects the write with -EINVAL when its own current checksum
// disagrees, which composite.WriteCAS treats as a retry signal, per
// spec.md 4.5 "write_cas".
func WriteCAS(ctx context.Context, s *session.Session, key *dckey.Key, offset uint64, expectedChecksum dckey.RawID, next []byte) *asyncresult.Result[asyncresult.WriteEntry] {
	groups := s.Groups()
	if len(groups) == 0 {
		return validationFailure[asyncresult.WriteEntry](s, dcerr.New(dcerr.KindInvalidArgument, 0, dckey.RawID{}, "write_cas", "no target groups configured"))
	}
	ids := resolveGroupIDs(s, key, groups)
	casPayload := make([]byte, dckey.IDSize+len(next))
	copy(casPayload[:dckey.IDSize], expectedChecksum[:])
	copy(casPayload[dckey.IDSize:], next)
	buf := dbuffer.FromBytes(casPayload)
	ioFor := func(gid dckey.GroupID) tctl.IOAttr {
		return s.BuildIOAttr(offset, uint64(len(next)), 0, 0, 0, 0, gid.Type)
	}
	decode := func(addr string, gid dckey.GroupID, f transport.ReplyFrame) asyncresult.WriteEntry {
		return asyncresult.WriteEntry{Base: newBase(addr, f.Header, len(f.Payload))}
	}
	return fanOut(ctx, s, ids, "write_cas", tctl.CmdWriteCAS, ioFor, buf, decode)
}

// stagedWrite is the shared fan-out for the prepare/plain/commit/cache
// write modes, differing from Write only in the command code dispatched
// and the io-flag stamped onto each transaction's IOAttr, per spec.md 9
// "write (simple, CAS, prepare/plain/commit, cached)".
func stagedWrite(ctx context.Context, s *session.Session, key *dckey.Key, cmd tctl.CommandCode, ioFlag uint32, offset uint64, payload []byte, op string) *asyncresult.Result[asyncresult.WriteEntry] {
	groups := s.Groups()
	if len(groups) == 0 {
		return validationFailure[asyncresult.WriteEntry](s, dcerr.New(dcerr.KindInvalidArgument, 0, dckey.RawID{}, op, "no target groups configured"))
	}
	ids := resolveGroupIDs(s, key, groups)
	buf := dbuffer.FromBytes(payload)
	ioFor := func(gid dckey.GroupID) tctl.IOAttr {
		io := s.BuildIOAttr(offset, uint64(len(payload)), 0, 0, 0, 0, gid.Type)
		io.Flags |= ioFlag
		return io
	}
	decode := func(addr string, gid dckey.GroupID, f transport.ReplyFrame) asyncresult.WriteEntry {
		return asyncresult.WriteEntry{Base: newBase(addr, f.Header, len(f.Payload))}
	}
	return fanOut(ctx, s, ids, op, cmd, ioFor, buf, decode)
}

// WritePrepare begins a staged write: it reserves the byte range for
// the object being built but does not make it visible to readers.
// WriteCommit finalizes what WritePrepare/WritePlain accumulated.
func WritePrepare(ctx context.Context, s *session.Session, key *dckey.Key, offset uint64, payload []byte) *asyncresult.Result[asyncresult.WriteEntry] {
	return stagedWrite(ctx, s, key, tctl.CmdWritePrepare, tctl.IOFlagPrepare, offset, payload, "write_prepare")
}

// WritePlain writes one intermediate chunk of a staged write, still
// invisible to readers until WriteCommit finalizes the object.
func WritePlain(ctx context.Context, s *session.Session, key *dckey.Key, offset uint64, payload []byte) *asyncresult.Result[asyncresult.WriteEntry] {
	return stagedWrite(ctx, s, key, tctl.CmdWritePlain, tctl.IOFlagPlain, offset, payload, "write_plain")
}

// WriteCommit writes the final chunk of a staged prepare/plain write,
// atomically publishing the merged object to readers.
func WriteCommit(ctx context.Context, s *session.Session, key *dckey.Key, offset uint64, payload []byte) *asyncresult.Result[asyncresult.WriteEntry] {
	return stagedWrite(ctx, s, key, tctl.CmdWriteCommit, tctl.IOFlagCommit, offset, payload, "write_commit")
}

// WriteCache writes to the cache tier under its own command code, so a
// backend can route it to cache storage instead of the durable store.
func WriteCache(ctx context.Context, s *session.Session, key *dckey.Key, offset uint64, payload []byte) *asyncresult.Result[asyncresult.WriteEntry] {
	return stagedWrite(ctx, s, key, tctl.CmdWriteCache, tctl.IOFlagCache, offset, payload, "write_cache")
}

// Remove fans a remove out to every group in the session's group
// list.
func Remove(ctx context.Context, s *session.Session, key *dckey.Key) *asyncresult.Result[asyncresult.RemoveEntry] {
	groups := s.Groups()
	if len(groups) == 0 {
		return validationFailure[asyncresult.RemoveEntry](s, dcerr.New(dcerr.KindInvalidArgument, 0, dckey.RawID{}, "remove", "no target groups configured"))
	}
	ids := resolveGroupIDs(s, key, groups)
	ioFor := func(gid dckey.GroupID) tctl.IOAttr {
		return s.BuildIOAttr(0, 0, 0, 0, 0, 0, gid.Type)
	}
	decode := func(addr string, gid dckey.GroupID, f transport.ReplyFrame) asyncresult.RemoveEntry {
		return asyncresult.RemoveEntry{Base: newBase(addr, f.Header, len(f.Payload))}
	}
	return fanOut(ctx, s, ids, "remove", tctl.CmdRemove, ioFor, nil, decode)
}

package composite

import (
	"context"
	"encoding/binary"

	"elliptics-go/pkg/asyncresult"
	"elliptics-go/pkg/dbuffer"
	"elliptics-go/pkg/dcerr"
	"elliptics-go/pkg/dckey"
	"elliptics-go/pkg/session"
	"elliptics-go/pkg/tctl"
	"elliptics-go/pkg/transport"
)

// rangeRecord is one key/value pair produced by a sub-range reply.
type rangeRecord struct {
	Key   dckey.RawID
	Value []byte
}

// decodeRangeBatch parses a range reply payload laid out as a
// sequence of (key, 4-byte big-endian value length, value) records.
func decodeRangeBatch(payload []byte) []rangeRecord {
	var out []rangeRecord
	i := 0
	for i+dckey.IDSize+4 <= len(payload) {
		var key dckey.RawID
		copy(key[:], payload[i:i+dckey.IDSize])
		i += dckey.IDSize
		vlen := int(binary.BigEndian.Uint32(payload[i : i+4]))
		i += 4
		if i+vlen > len(payload) {
			break
		}
		val := append([]byte(nil), payload[i:i+vlen]...)
		i += vlen
		out = append(out, rangeRecord{Key: key, Value: val})
	}
	return out
}

// sweepRange walks the keyspace between start and end, asking the
// router for each covered sub-range and dispatching one transaction
// per segment, per spec.md 4.5 steps 1-2 and 5. onBatch receives the
// records produced by each segment; returning stop=true ends the
// sweep early.
func sweepRange(ctx context.Context, s *session.Session, group int32, cmd tctl.CommandCode, start, end dckey.RawID, onBatch func(records []rangeRecord) (stop bool, err error)) error {
	cursor := start
	for {
		next, err := s.Transport().SearchRange(ctx, group, cursor)
		if err != nil {
			return err
		}

		final := false
		if dckey.Cmp(cursor, next) > 0 || dckey.Equal(cursor, next) || dckey.Cmp(next, end) >= 0 {
			next = end
			final = true
		}

		gid := dckey.GroupID{Group: group}
		addr, err := s.Transport().LookupAddr(ctx, gid)
		if err != nil {
			return err
		}

		segment := make([]byte, 2*dckey.IDSize)
		copy(segment[:dckey.IDSize], cursor[:])
		copy(segment[dckey.IDSize:], next[:])
		ctl := tctl.New(gid, cmd, s.Cflags(), tctl.IOAttr{}, dbuffer.FromBytes(segment))

		var records []rangeRecord
		if err := s.Transport().Dispatch(ctx, ctl, addr, func(f transport.ReplyFrame) {
			records = decodeRangeBatch(f.Payload)
		}); err != nil {
			return err
		}

		stop, err := onBatch(records)
		if err != nil {
			return err
		}
		if stop || final {
			return nil
		}
		cursor = next
	}
}

func rangeEntry(cmd tctl.CommandCode, addr string, rec rangeRecord) asyncresult.RangeEntry {
	return asyncresult.RangeEntry{
		Base: asyncresult.Base{
			StatusCode:  0,
			Head:        tctl.CmdHeader{Status: 0, Command: cmd, SourceID: rec.Key},
			Address:     addr,
			PayloadSize: len(rec.Value),
		},
		Key:   rec.Key,
		Value: rec.Value,
	}
}

// RangeRead sweeps [start, end) on group, applying the residual
// io.start/io.num pagination bookkeeping of spec.md 4.5 step 4: each
// sub-range's produced count is subtracted from io.start first, and
// only once io.start is exhausted are records actually emitted,
// capped by the remaining io.num.
func RangeRead(ctx context.Context, s *session.Session, group int32, start, end dckey.RawID, ioStart, ioNum uint64) *asyncresult.Result[asyncresult.RangeEntry] {
	result := asyncresult.New[asyncresult.RangeEntry](s.Filter(), s.Checker(), s.ExceptionPolicy(), 1, start, "range_read")

	go func() {
		residualStart, residualNum := ioStart, ioNum
		err := sweepRange(ctx, s, group, tctl.CmdRangeRead, start, end, func(records []rangeRecord) (bool, error) {
			produced := uint64(len(records))
			if residualStart < produced {
				avail := produced - residualStart
				emitCount := avail
				if emitCount > residualNum {
					emitCount = residualNum
				}
				for _, rec := range records[residualStart : residualStart+emitCount] {
					result.Push(rangeEntry(tctl.CmdRangeRead, "", rec))
				}
				residualStart = 0
				residualNum -= emitCount
			} else {
				residualStart -= produced
			}
			return residualNum == 0, nil
		})
		if err != nil {
			result.CompleteWithError(dcerr.Wrap(dcerr.KindTransport, err, start, "range_read", "range sweep failed"))
			return
		}
		result.Complete()
	}()

	return result
}

// RangeDelete sweeps [start, end) on group issuing deletes, emitting
// every produced record unfiltered by residual bookkeeping, and
// reports -ENOENT if the sweep produced nothing, per spec.md 4.5
// "Delete-range differs only in...".
func RangeDelete(ctx context.Context, s *session.Session, group int32, start, end dckey.RawID) *asyncresult.Result[asyncresult.RangeEntry] {
	result := asyncresult.New[asyncresult.RangeEntry](s.Filter(), s.Checker(), s.ExceptionPolicy(), 1, start, "range_delete")

	go func() {
		total := 0
		err := sweepRange(ctx, s, group, tctl.CmdRangeDelete, start, end, func(records []rangeRecord) (bool, error) {
			for _, rec := range records {
				result.Push(rangeEntry(tctl.CmdRangeDelete, "", rec))
			}
			total += len(records)
			return false, nil
		})
		if err != nil {
			result.CompleteWithError(dcerr.Wrap(dcerr.KindTransport, err, start, "range_delete", "range sweep failed"))
			return
		}
		if total == 0 {
			result.CompleteWithError(dcerr.New(dcerr.KindNotFound, dcerr.ENOENT, start, "range_delete", "no keys in range"))
			return
		}
		result.Complete()
	}()

	return result
}

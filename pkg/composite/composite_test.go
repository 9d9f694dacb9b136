package composite

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"testing"

	"elliptics-go/pkg/asyncresult"
	"elliptics-go/pkg/dcerr"
	"elliptics-go/pkg/dckey"
	"elliptics-go/pkg/session"
	"elliptics-go/pkg/tctl"
	"elliptics-go/pkg/transport"
)

type fakeTransform struct{}

func (fakeTransform) Transform(name string) dckey.RawID {
	var id dckey.RawID
	copy(id[:], name)
	return id
}

// scriptedTransport lets each test define canned lookup/write replies
// per group and a range-sweep script, without a network.
type scriptedTransport struct {
	mu sync.Mutex

	lookupReplies map[int32]asyncresult.FileInfo // group -> file-info (absent = zero-valued file-info, status 0)
	lookupMiss    map[int32]bool                 // group -> answer lookups with -ENOENT

	writeStatus map[int32]int32 // group -> status to report on write/write_cas

	rangeSegments []rangeSegment // ordered scripted segments for SearchRange/Dispatch
	rangeIdx      int
}

type rangeSegment struct {
	next    dckey.RawID
	records []rangeRecord
}

func (f *scriptedTransport) Dispatch(ctx context.Context, tc tctl.Control, addr string, onReply transport.OnReply) error {
	switch tc.Command {
	case tctl.CmdLookup:
		f.mu.Lock()
		info, miss := f.lookupReplies[tc.ID.Group], f.lookupMiss[tc.ID.Group]
		f.mu.Unlock()
		if miss {
			onReply(transport.ReplyFrame{Header: tctl.CmdHeader{Status: -2, Command: tc.Command, SourceID: tc.ID.ID}})
			return nil
		}
		onReply(transport.ReplyFrame{
			Header:  tctl.CmdHeader{Status: 0, Command: tc.Command, SourceID: tc.ID.ID},
			Payload: asyncresult.EncodeFileInfo(info),
		})
		return nil
	case tctl.CmdWrite, tctl.CmdWriteCommit, tctl.CmdWriteCAS:
		f.mu.Lock()
		status := f.writeStatus[tc.ID.Group]
		f.mu.Unlock()
		onReply(transport.ReplyFrame{Header: tctl.CmdHeader{Status: status, Command: tc.Command, SourceID: tc.ID.ID}})
		return nil
	case tctl.CmdRangeRead, tctl.CmdRangeDelete:
		f.mu.Lock()
		seg := f.rangeSegments[f.rangeIdx]
		f.rangeIdx++
		f.mu.Unlock()
		payload := encodeRecordsForTest(seg.records)
		onReply(transport.ReplyFrame{Header: tctl.CmdHeader{Status: 0, Command: tc.Command}, Payload: payload})
		return nil
	}
	onReply(transport.ReplyFrame{Header: tctl.CmdHeader{Status: 0, Command: tc.Command}})
	return nil
}

func encodeRecordsForTest(records []rangeRecord) []byte {
	var out []byte
	for _, r := range records {
		out = append(out, r.Key[:]...)
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(r.Value)))
		out = append(out, lenBuf[:]...)
		out = append(out, r.Value...)
	}
	return out
}

func (f *scriptedTransport) Route(ctx context.Context, group int32, id dckey.RawID) (string, error) {
	return fmt.Sprintf("node-%d", group), nil
}

func (f *scriptedTransport) MixStates(ctx context.Context, keyHint *dckey.RawID) ([]int32, error) {
	return []int32{1, 2}, nil
}

func (f *scriptedTransport) SearchRange(ctx context.Context, group int32, cursor dckey.RawID) (dckey.RawID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rangeIdx >= len(f.rangeSegments) {
		return cursor, nil
	}
	return f.rangeSegments[f.rangeIdx].next, nil
}

func (f *scriptedTransport) LookupAddr(ctx context.Context, id dckey.GroupID) (string, error) {
	return fmt.Sprintf("node-%d", id.Group), nil
}

func (f *scriptedTransport) GetRoutes(ctx context.Context) ([]transport.RouteEntry, error) {
	return nil, nil
}

func (f *scriptedTransport) UpdateStatus(ctx context.Context, addr string, status int) (int, error) {
	return status, nil
}

func (f *scriptedTransport) AddState(ctx context.Context, addr string) error { return nil }
func (f *scriptedTransport) StateNum() int                                  { return 2 }
func (f *scriptedTransport) NativeSession() any                             { return f }

func newTestSession(tr transport.Transport, groups []int32) *session.Session {
	s := session.New(tr, fakeTransform{})
	s.SetGroups(groups)
	return s
}

func TestPrepareLatestOrdersByMtimeWithPreferredTiebreak(t *testing.T) {
	tr := &scriptedTransport{
		lookupReplies: map[int32]asyncresult.FileInfo{
			1: {Mtime: dckey.Time{Tsec: 100, Tnsec: 0}, Size: 3},
			2: {Mtime: dckey.Time{Tsec: 100, Tnsec: 500}, Size: 3},
		},
	}
	s := newTestSession(tr, []int32{1, 2})
	key := dckey.ByName("obj", 0, 0)

	result := PrepareLatest(context.Background(), s, key, []int32{1, 2}, 1)
	entries, err := result.Get()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	// group 2's mtime is strictly later (tsec ties, tnsec differs), so
	// it wins position 0 even though group 1 is preferred: S3.
	if entries[0].Info.Mtime.Tnsec != 500 {
		t.Fatalf("expected group 2 (later mtime) first, got mtime %+v", entries[0].Info.Mtime)
	}
}

func TestPrepareLatestPromotesPreferredOnExactTie(t *testing.T) {
	tr := &scriptedTransport{
		lookupReplies: map[int32]asyncresult.FileInfo{
			1: {Mtime: dckey.Time{Tsec: 100, Tnsec: 500}, Size: 3},
			2: {Mtime: dckey.Time{Tsec: 100, Tnsec: 500}, Size: 3},
		},
	}
	s := newTestSession(tr, []int32{1, 2})
	key := dckey.ByName("obj", 0, 0)

	result := PrepareLatest(context.Background(), s, key, []int32{1, 2}, 2)
	entries, err := result.Get()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entries[0].Addr() != "node-2" {
		t.Fatalf("expected preferred group 2 promoted to position 0 on exact tie, got addr %q", entries[0].Addr())
	}
}

func TestWriteCASRetriesOnMismatchThenSucceeds(t *testing.T) {
	tr := &scriptedTransport{
		lookupReplies: map[int32]asyncresult.FileInfo{1: {Size: 1}},
		writeStatus:   map[int32]int32{1: -22},
	}
	s := newTestSession(tr, []int32{1})
	key := dckey.ByName("obj", 0, 0)

	attempts := 0
	converter := func(current []byte) []byte {
		attempts++
		if attempts == 1 {
			return []byte("B")
		}
		tr.mu.Lock()
		tr.writeStatus[1] = 0
		tr.mu.Unlock()
		return []byte("D")
	}

	result := WriteCAS(context.Background(), s, key, converter, 0, 3)
	_, err := result.Get()
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts < 2 {
		t.Fatalf("expected at least 2 converter invocations, got %d", attempts)
	}
}

func TestWriteCASTagsExhaustedRetriesAsChecksumMismatch(t *testing.T) {
	tr := &scriptedTransport{
		lookupReplies: map[int32]asyncresult.FileInfo{1: {Size: 1}},
		writeStatus:   map[int32]int32{1: -22},
	}
	s := newTestSession(tr, []int32{1})
	key := dckey.ByName("obj", 0, 0)

	converter := func(current []byte) []byte { return []byte("B") }

	result := WriteCAS(context.Background(), s, key, converter, 0, 2)
	_, err := result.Get()
	if !errors.Is(err, dcerr.ChecksumMismatch) {
		t.Fatalf("expected a checksum-mismatch error after exhausting retries, got %v", err)
	}
}

func TestRangeReadAppliesResidualBookkeeping(t *testing.T) {
	mkRecords := func(n int) []rangeRecord {
		recs := make([]rangeRecord, n)
		for i := range recs {
			var k dckey.RawID
			k[0] = byte(i + 1)
			recs[i] = rangeRecord{Key: k, Value: []byte("v")}
		}
		return recs
	}
	var end dckey.RawID
	for i := range end {
		end[i] = 0xff
	}

	tr := &scriptedTransport{
		rangeSegments: []rangeSegment{
			{next: dckey.RawID{1}, records: mkRecords(3)},
			{next: dckey.RawID{2}, records: mkRecords(4)},
			{next: end, records: mkRecords(50)},
		},
	}
	s := newTestSession(tr, []int32{1})

	result := RangeRead(context.Background(), s, 1, dckey.RawID{}, end, 5, 20)
	entries, err := result.Get()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 20 {
		t.Fatalf("expected 20 emitted entries per S5, got %d", len(entries))
	}
}

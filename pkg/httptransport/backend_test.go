package httptransport

import (
	"crypto/sha512"
	"testing"

	"elliptics-go/pkg/dcerr"
	"elliptics-go/pkg/dckey"
	"elliptics-go/pkg/tctl"
)

func TestWriteLookupReadRoundTrip(t *testing.T) {
	b := NewBackend()
	id := dckey.RawID{1, 2, 3}

	writeResp := b.Handle(wireRequest{Command: tctl.CmdWrite, RawID: id, Group: 1, Payload: []byte("hello")})
	if writeResp.Frames[0].Status != 0 {
		t.Fatalf("write failed: status %d", writeResp.Frames[0].Status)
	}

	lookupResp := b.Handle(wireRequest{Command: tctl.CmdLookup, RawID: id, Group: 1})
	if lookupResp.Frames[0].Status != 0 || len(lookupResp.Frames[0].Payload) == 0 {
		t.Fatalf("lookup failed: %+v", lookupResp.Frames[0])
	}

	readResp := b.Handle(wireRequest{Command: tctl.CmdRead, RawID: id, Group: 1})
	if readResp.Frames[0].Status != 0 || string(readResp.Frames[0].Payload) != "hello" {
		t.Fatalf("read mismatch: %+v", readResp.Frames[0])
	}
}

func TestLookupMissingReportsENOENT(t *testing.T) {
	b := NewBackend()
	resp := b.Handle(wireRequest{Command: tctl.CmdLookup, RawID: dckey.RawID{9}, Group: 1})
	if resp.Frames[0].Status != dcerr.ENOENT {
		t.Fatalf("expected ENOENT, got %d", resp.Frames[0].Status)
	}
}

func TestWriteCASRejectsChecksumMismatch(t *testing.T) {
	b := NewBackend()
	id := dckey.RawID{5}
	b.Handle(wireRequest{Command: tctl.CmdWrite, RawID: id, Group: 1, Payload: []byte("A")})

	wrongChecksum := sha512.Sum512([]byte("not-current"))
	payload := append(append([]byte(nil), wrongChecksum[:]...), []byte("B")...)
	resp := b.Handle(wireRequest{Command: tctl.CmdWriteCAS, RawID: id, Group: 1, Payload: payload})
	if resp.Frames[0].Status != dcerr.EINVAL {
		t.Fatalf("expected EINVAL on checksum mismatch, got %d", resp.Frames[0].Status)
	}
}

func TestWriteCASAcceptsMatchingChecksum(t *testing.T) {
	b := NewBackend()
	id := dckey.RawID{5}
	b.Handle(wireRequest{Command: tctl.CmdWrite, RawID: id, Group: 1, Payload: []byte("A")})

	checksum := sha512.Sum512([]byte("A"))
	payload := append(append([]byte(nil), checksum[:]...), []byte("B")...)
	resp := b.Handle(wireRequest{Command: tctl.CmdWriteCAS, RawID: id, Group: 1, Payload: payload})
	if resp.Frames[0].Status != 0 {
		t.Fatalf("expected success, got %d", resp.Frames[0].Status)
	}

	read := b.Handle(wireRequest{Command: tctl.CmdRead, RawID: id, Group: 1})
	if string(read.Frames[0].Payload) != "B" {
		t.Fatalf("expected updated value B, got %q", read.Frames[0].Payload)
	}
}

func TestStagedWriteInvisibleUntilCommit(t *testing.T) {
	b := NewBackend()
	id := dckey.RawID{6}

	b.Handle(wireRequest{Command: tctl.CmdWritePrepare, RawID: id, Group: 1, Payload: []byte("hel")})
	lookup := b.Handle(wireRequest{Command: tctl.CmdLookup, RawID: id, Group: 1})
	if lookup.Frames[0].Status != dcerr.ENOENT {
		t.Fatalf("expected staged prepare to stay invisible, got status %d", lookup.Frames[0].Status)
	}

	b.Handle(wireRequest{Command: tctl.CmdWritePlain, RawID: id, Group: 1, Payload: []byte("lo"), IO: tctl.IOAttr{Offset: 3}})
	lookup = b.Handle(wireRequest{Command: tctl.CmdLookup, RawID: id, Group: 1})
	if lookup.Frames[0].Status != dcerr.ENOENT {
		t.Fatalf("expected staged plain chunk to stay invisible, got status %d", lookup.Frames[0].Status)
	}

	commit := b.Handle(wireRequest{Command: tctl.CmdWriteCommit, RawID: id, Group: 1, Payload: []byte("!"), IO: tctl.IOAttr{Offset: 5}})
	if commit.Frames[0].Status != 0 {
		t.Fatalf("commit failed: status %d", commit.Frames[0].Status)
	}

	read := b.Handle(wireRequest{Command: tctl.CmdRead, RawID: id, Group: 1})
	if string(read.Frames[0].Payload) != "hello!" {
		t.Fatalf("expected merged staged value %q, got %q", "hello!", read.Frames[0].Payload)
	}
}

func TestWriteCachePreferredOverDurableStoreOnRead(t *testing.T) {
	b := NewBackend()
	id := dckey.RawID{7}

	b.Handle(wireRequest{Command: tctl.CmdWrite, RawID: id, Group: 1, Payload: []byte("durable")})
	b.Handle(wireRequest{Command: tctl.CmdWriteCache, RawID: id, Group: 1, Payload: []byte("cached")})

	read := b.Handle(wireRequest{Command: tctl.CmdRead, RawID: id, Group: 1})
	if string(read.Frames[0].Payload) != "cached" {
		t.Fatalf("expected cache tier to win on read, got %q", read.Frames[0].Payload)
	}
}

func TestRangeReadReturnsRecordsWithinBounds(t *testing.T) {
	b := NewBackend()
	for i := byte(1); i <= 5; i++ {
		id := dckey.RawID{i}
		b.Handle(wireRequest{Command: tctl.CmdWrite, RawID: id, Group: 1, Payload: []byte{i}})
	}
	var end dckey.RawID
	for i := range end {
		end[i] = 0xff
	}
	start := dckey.RawID{2}
	payload := append(append([]byte(nil), start[:]...), end[:]...)
	resp := b.Handle(wireRequest{Command: tctl.CmdRangeRead, Group: 1, Payload: payload})
	records := decodeRangeBatch(resp.Frames[0].Payload)
	if len(records) != 4 {
		t.Fatalf("expected 4 records (ids 2-5), got %d", len(records))
	}
}

func TestRangeDeleteRemovesRecords(t *testing.T) {
	b := NewBackend()
	id := dckey.RawID{7}
	b.Handle(wireRequest{Command: tctl.CmdWrite, RawID: id, Group: 1, Payload: []byte("x")})

	var end dckey.RawID
	for i := range end {
		end[i] = 0xff
	}
	var start dckey.RawID
	payload := append(append([]byte(nil), start[:]...), end[:]...)
	resp := b.Handle(wireRequest{Command: tctl.CmdRangeDelete, Group: 1, Payload: payload})
	if len(decodeRangeBatch(resp.Frames[0].Payload)) != 1 {
		t.Fatalf("expected 1 deleted record")
	}

	lookup := b.Handle(wireRequest{Command: tctl.CmdLookup, RawID: id, Group: 1})
	if lookup.Frames[0].Status != dcerr.ENOENT {
		t.Fatalf("expected key removed after range delete")
	}
}

// decodeRangeBatch mirrors pkg/composite's decoder for test assertions
// against the wire format the backend and sweepRange agree on.
func decodeRangeBatch(payload []byte) [][]byte {
	var out [][]byte
	i := 0
	for i+dckey.IDSize+4 <= len(payload) {
		i += dckey.IDSize
		vlen := int(payload[i])<<24 | int(payload[i+1])<<16 | int(payload[i+2])<<8 | int(payload[i+3])
		i += 4
		if i+vlen > len(payload) {
			break
		}
		out = append(out, payload[i:i+vlen])
		i += vlen
	}
	return out
}

package callback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"elliptics-go/pkg/dcerr"
	"elliptics-go/pkg/dckey"
	"elliptics-go/pkg/session"
	"elliptics-go/pkg/tctl"
	"elliptics-go/pkg/transport"
)

// fakeTransform is a deterministic stand-in for dckey.DefaultTransform
// so tests don't depend on sha512 output.
type fakeTransform struct{}

func (fakeTransform) Transform(name string) dckey.RawID {
	var id dckey.RawID
	copy(id[:], name)
	return id
}

// fakeTransport is a minimal in-memory transport.Transport used to
// drive callback state machines without a network.
type fakeTransport struct {
	mu sync.Mutex
	// failGroups marks groups whose dispatch always returns a
	// non-zero status, simulating read fail-over.
	failGroups map[int32]bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{failGroups: map[int32]bool{}}
}

func (f *fakeTransport) Dispatch(ctx context.Context, tc tctl.Control, addr string, onReply transport.OnReply) error {
	status := int32(0)
	payload := []byte("hello")
	f.mu.Lock()
	if f.failGroups[tc.ID.Group] {
		status = -2
		payload = nil
	}
	f.mu.Unlock()
	onReply(transport.ReplyFrame{
		Header: tctl.CmdHeader{Status: status, Command: tc.Command, TransID: tc.TransID, SourceID: tc.ID.ID},
		Payload: payload,
	})
	return nil
}

func (f *fakeTransport) Route(ctx context.Context, group int32, id dckey.RawID) (string, error) {
	return fmt.Sprintf("node-%d", group), nil
}

func (f *fakeTransport) MixStates(ctx context.Context, keyHint *dckey.RawID) ([]int32, error) {
	return []int32{1, 2, 3}, nil
}

func (f *fakeTransport) SearchRange(ctx context.Context, group int32, cursor dckey.RawID) (dckey.RawID, error) {
	return cursor, nil
}

func (f *fakeTransport) LookupAddr(ctx context.Context, id dckey.GroupID) (string, error) {
	return fmt.Sprintf("node-%d", id.Group), nil
}

func (f *fakeTransport) GetRoutes(ctx context.Context) ([]transport.RouteEntry, error) {
	return []transport.RouteEntry{{Addr: "node-1"}, {Addr: "node-2"}}, nil
}

func (f *fakeTransport) UpdateStatus(ctx context.Context, addr string, status int) (int, error) {
	return status, nil
}

func (f *fakeTransport) AddState(ctx context.Context, addr string) error { return nil }

func (f *fakeTransport) StateNum() int { return 3 }

func (f *fakeTransport) NativeSession() any { return f }

func newTestSession(tr transport.Transport) *session.Session {
	s := session.New(tr, fakeTransform{})
	s.SetGroups([]int32{1, 2, 3})
	return s
}

func TestWriteFansOutToEveryGroup(t *testing.T) {
	tr := newFakeTransport()
	s := newTestSession(tr)
	key := dckey.ByName("obj", 0, 0)

	result := Write(context.Background(), s, key, 0, []byte("payload"))
	entries, err := result.Get()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
}

func TestReadFailsOverToNextGroup(t *testing.T) {
	tr := newFakeTransport()
	tr.failGroups[1] = true
	s := newTestSession(tr)
	key := dckey.ByName("obj", 0, 0)

	result := Read(context.Background(), s, key, 0, 0)
	entries, err := result.Get()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one accepted entry after fail-over, got %d", len(entries))
	}
	if entries[0].Header().SourceID != key.Transform(fakeTransform{}, "").ID {
		t.Fatalf("unexpected source id on accepted entry")
	}
}

func TestReadExhaustsAllGroupsOnTotalFailure(t *testing.T) {
	tr := newFakeTransport()
	tr.failGroups[1] = true
	tr.failGroups[2] = true
	tr.failGroups[3] = true
	s := newTestSession(tr)
	key := dckey.ByName("obj", 0, 0)

	result := Read(context.Background(), s, key, 0, 0)
	_, err := result.Get()
	if err == nil {
		t.Fatal("expected an error when every group fails")
	}
	if !errors.Is(err, dcerr.ExhaustedGroups) {
		t.Fatalf("expected an exhausted-groups error, got %v", err)
	}
}

func TestLookupMarksNonFileInfoPayloadInvalid(t *testing.T) {
	tr := newFakeTransport()
	s := newTestSession(tr)
	key := dckey.ByName("obj", 0, 0)

	result := Lookup(context.Background(), s, key)
	entries, err := result.Get()
	// The fake transport's canned "hello" payload is not a valid
	// file-info record, so lookup entries decode with an invalid
	// status: the default positive filter drops them and the default
	// at-least-one checker rejects the stream.
	if !errors.Is(err, dcerr.InvalidArgument) {
		t.Fatalf("expected an invalid-argument error, got %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected fake non-fileinfo payloads to be filtered, got %d", len(entries))
	}
}

func TestWriteValidationFailsSynchronouslyWhenNoGroups(t *testing.T) {
	tr := newFakeTransport()
	s := session.New(tr, fakeTransform{})
	key := dckey.ByName("obj", 0, 0)

	result := Write(context.Background(), s, key, 0, []byte("x"))
	_, err := result.Get()
	if err == nil {
		t.Fatal("expected validation error for empty group list")
	}
}

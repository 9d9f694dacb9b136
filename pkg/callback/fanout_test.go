package callback

import (
	"context"
	"testing"

	"elliptics-go/pkg/dckey"
	"elliptics-go/pkg/session"
)

func TestRemoveFansOutToEveryGroup(t *testing.T) {
	tr := newFakeTransport()
	s := newTestSession(tr)
	key := dckey.ByName("obj", 0, 0)

	result := Remove(context.Background(), s, key)
	entries, err := result.Get()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
}

func TestRemoveValidationFailsSynchronouslyWhenNoGroups(t *testing.T) {
	tr := newFakeTransport()
	s := session.New(tr, fakeTransform{})
	key := dckey.ByName("obj", 0, 0)

	result := Remove(context.Background(), s, key)
	_, err := result.Get()
	if err == nil {
		t.Fatal("expected validation error for empty group list")
	}
}

func TestWriteCASFansOutWithChecksumPrefixedPayload(t *testing.T) {
	tr := newFakeTransport()
	s := newTestSession(tr)
	key := dckey.ByName("obj", 0, 0)

	result := WriteCAS(context.Background(), s, key, 0, dckey.RawID{}, []byte("new-value"))
	entries, err := result.Get()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
}

package callback

import (
	"context"
	"errors"
	"testing"

	"elliptics-go/pkg/dckey"
)

// unroutableTransport wraps fakeTransport but fails address resolution,
// simulating a group with no known state.
type unroutableTransport struct {
	*fakeTransport
}

func (u *unroutableTransport) LookupAddr(ctx context.Context, id dckey.GroupID) (string, error) {
	return "", errors.New("no route")
}

func TestIteratorStreamsChunksUntilComplete(t *testing.T) {
	tr := newFakeTransport()
	s := newTestSession(tr)

	result := Iterator(context.Background(), s, 1, 42)
	entries, err := result.Get()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 chunk from the fake transport's single reply, got %d", len(entries))
	}
	if entries[0].IteratorID != 42 {
		t.Fatalf("unexpected iterator id: %d", entries[0].IteratorID)
	}
}

func TestIteratorCompletesWithSyntheticEntryWhenUnroutable(t *testing.T) {
	tr := &unroutableTransport{fakeTransport: newFakeTransport()}
	s := newTestSession(tr)

	result := Iterator(context.Background(), s, 1, 7)
	_, err := result.Get()
	if err == nil {
		t.Fatal("expected an error when the group has no known route")
	}
}

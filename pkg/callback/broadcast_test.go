package callback

import (
	"context"
	"testing"

	"elliptics-go/pkg/tctl"
)

func TestStatBroadcastsToEveryKnownAddress(t *testing.T) {
	tr := newFakeTransport()
	s := newTestSession(tr)

	result := Stat(context.Background(), s)
	entries, err := result.Get()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected one entry per address from GetRoutes, got %d", len(entries))
	}
}

func TestStatCountBroadcastsToEveryKnownAddress(t *testing.T) {
	tr := newFakeTransport()
	s := newTestSession(tr)

	result := StatCount(context.Background(), s)
	entries, err := result.Get()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Header().Command != tctl.CmdStatCount {
			t.Fatalf("expected stat-count to dispatch tctl.CmdStatCount, got %v", e.Header().Command)
		}
	}
}

func TestCmdBroadcastsToEveryKnownAddress(t *testing.T) {
	tr := newFakeTransport()
	s := newTestSession(tr)

	result := Cmd(context.Background(), s)
	entries, err := result.Get()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Header().Command != tctl.CmdCmd {
			t.Fatalf("expected cmd to dispatch tctl.CmdCmd, got %v", e.Header().Command)
		}
	}
}

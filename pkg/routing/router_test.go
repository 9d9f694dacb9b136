package routing

import (
	"testing"

	"elliptics-go/pkg/dckey"
)

func TestRouteFailsForUnknownGroup(t *testing.T) {
	r := NewRouter(10)
	if _, err := r.Route(1, dckey.RawID{1}); err == nil {
		t.Fatal("expected an error for a group with no known states")
	}
}

func TestRouteResolvesWithinKnownGroup(t *testing.T) {
	r := NewRouter(10)
	r.SetGroupStates(1, []string{"a", "b", "c"})
	addr, err := r.Route(1, dckey.RawID{5, 6, 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr != "a" && addr != "b" && addr != "c" {
		t.Fatalf("unexpected address: %q", addr)
	}
}

func TestMixStatesWithKeyHintIsDeterministic(t *testing.T) {
	r := NewRouter(5)
	r.SetGroupStates(1, []string{"x"})
	r.SetGroupStates(2, []string{"y"})
	r.SetGroupStates(3, []string{"z"})

	key := dckey.RawID{42}
	first := r.MixStates(&key)
	second := r.MixStates(&key)
	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("expected all 3 groups returned, got %v and %v", first, second)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("expected a stable permutation for the same key hint, got %v vs %v", first, second)
		}
	}
}

func TestMixStatesWithoutKeyHintReturnsAllGroups(t *testing.T) {
	r := NewRouter(5)
	r.SetGroupStates(1, []string{"x"})
	r.SetGroupStates(2, []string{"y"})
	groups := r.MixStates(nil)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %v", groups)
	}
}

func TestSearchRangeReturnsNextBoundaryOrCursorUnchanged(t *testing.T) {
	r := NewRouter(1)
	b1 := dckey.RawID{10}
	b2 := dckey.RawID{20}
	r.SetGroupBoundaries(1, []dckey.RawID{b2, b1})

	cursor := dckey.RawID{5}
	got := r.SearchRange(1, cursor)
	if got != b1 {
		t.Fatalf("expected the first boundary past cursor, got %v", got)
	}

	pastEverything := dckey.RawID{99}
	got2 := r.SearchRange(1, pastEverything)
	if got2 != pastEverything {
		t.Fatal("expected SearchRange to return the cursor unchanged when past every boundary")
	}
}

func TestGetRoutesReflectsSetGroupStates(t *testing.T) {
	r := NewRouter(3)
	r.SetGroupStates(1, []string{"a", "b"})
	r.SetGroupStates(2, []string{"c"})
	routes := r.GetRoutes()
	if len(routes[1]) != 2 || len(routes[2]) != 1 {
		t.Fatalf("unexpected routes: %v", routes)
	}
}

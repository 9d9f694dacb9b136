package dckey

import "testing"

type countingTransform struct {
	calls int
}

func (c *countingTransform) Transform(name string) RawID {
	c.calls++
	var id RawID
	copy(id[:], name)
	return id
}

func TestByNameResolvesLazilyAndCaches(t *testing.T) {
	tr := &countingTransform{}
	k := ByName("obj", 3, 5)

	if k.IsByName() != true {
		t.Fatal("expected a by-name key")
	}
	if name, ok := k.Name(); !ok || name != "obj" {
		t.Fatalf("unexpected name: %q, %v", name, ok)
	}

	id1 := k.Transform(tr, "")
	if tr.calls != 1 {
		t.Fatalf("expected 1 transform call, got %d", tr.calls)
	}
	if id1.Group != 3 || id1.Type != 5 {
		t.Fatalf("unexpected group/type: %+v", id1)
	}

	id2 := k.Transform(tr, "")
	if tr.calls != 1 {
		t.Fatalf("expected cached result to avoid a second transform call, got %d calls", tr.calls)
	}
	if id1.ID != id2.ID {
		t.Fatal("expected cached id to be stable across calls")
	}
}

func TestByIDNeverTransforms(t *testing.T) {
	tr := &countingTransform{}
	resolved := GroupID{ID: RawID{7}, Group: 1, Type: 0}
	k := ByID(resolved)

	if k.IsByName() {
		t.Fatal("expected a by-id key to report IsByName()==false")
	}
	got := k.Transform(tr, "namespace")
	if tr.calls != 0 {
		t.Fatalf("expected Transform to be a no-op for a by-id key, got %d calls", tr.calls)
	}
	if got != resolved {
		t.Fatalf("expected the stored id back unchanged, got %+v", got)
	}
}

func TestNamespacedPrefixesNameWhenSet(t *testing.T) {
	tr := &countingTransform{}
	plain := Namespaced(tr, "", "obj")
	namespaced := Namespaced(tr, "ns", "obj")
	if plain == namespaced {
		t.Fatal("expected namespace to change the resolved id")
	}
}

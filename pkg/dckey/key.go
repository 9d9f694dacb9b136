package dckey

import "sync"

// Key is a sum type over a textual name (to be hashed lazily) and a
// pre-computed group-scoped id. The resolved id is cached after first
// use under a session, per spec.md 3 "Key".
type Key struct {
	mu       sync.Mutex
	byName   bool
	name     string
	resolved GroupID
	cached   bool
}

// ByName constructs a key that resolves lazily via a session's
// transform on first use.
func ByName(name string, group, typ int32) *Key {
	return &Key{
		byName:   true,
		name:     name,
		resolved: GroupID{Group: group, Type: typ},
	}
}

// ByID constructs a key that already carries a resolved id; Transform
// on such a key is a no-op, per spec.md 4.1.
func ByID(id GroupID) *Key {
	return &Key{resolved: id, cached: true}
}

// IsByName reports whether this key was constructed from a name.
func (k *Key) IsByName() bool {
	return k.byName
}

// Name returns the textual name and whether the key carries one.
func (k *Key) Name() (string, bool) {
	return k.name, k.byName
}

// Transform resolves the key's group-scoped id, hashing the name with
// t under namespace on first use and caching the result. Idempotent:
// a by-id key always returns its stored id.
func (k *Key) Transform(t Transform, namespace string) GroupID {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.cached {
		return k.resolved
	}
	k.resolved.ID = Namespaced(t, namespace, k.name)
	k.cached = true
	return k.resolved
}

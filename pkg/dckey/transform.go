package dckey

import "crypto/sha512"

// Transform hashes a textual name into a raw id. Sessions carry a
// Transform implementation; tests may substitute a deterministic fake.
type Transform interface {
	Transform(name string) RawID
}

// DefaultTransform hashes with SHA-512, whose digest size equals
// IDSize, avoiding any truncation or padding step.
type DefaultTransform struct{}

// Transform implements Transform.
func (DefaultTransform) Transform(name string) RawID {
	return RawID(sha512.Sum512([]byte(name)))
}

// Namespaced composes a namespace prefix into the hashed name, per
// spec.md 4.1: "A composite string (namespace + name) is hashed when
// a namespace is set; otherwise just the name."
func Namespaced(t Transform, namespace, name string) RawID {
	if namespace == "" {
		return t.Transform(name)
	}
	return t.Transform(namespace + name)
}

// Package dbuffer implements a slicable byte-region view used to carry
// payloads through the request engine without needless copies.
package dbuffer

// Buffer is a view over a contiguous byte region. An owning buffer was
// allocated by the core and may be freely retained; a borrowing buffer
// aliases caller-supplied memory and the caller is responsible for
// keeping it alive for the buffer's lifetime. Skip and Slice return
// new views over the same backing array.
type Buffer struct {
	data  []byte
	owned bool
}

// NewOwned allocates a zeroed owning buffer of the given size.
func NewOwned(size int) *Buffer {
	return &Buffer{data: make([]byte, size), owned: true}
}

// FromBytes copies b into a new owning buffer.
func FromBytes(b []byte) *Buffer {
	cp := make([]byte, len(b))
	copy(cp, b)
	return &Buffer{data: cp, owned: true}
}

// Borrow wraps caller-owned memory without copying it. The caller
// guarantees b outlives every view derived from the returned buffer.
func Borrow(b []byte) *Buffer {
	return &Buffer{data: b, owned: false}
}

// Len returns the number of bytes currently visible through this view.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// Bytes exposes the view's bytes directly; callers must not retain a
// mutable reference beyond the buffer's own lifetime rules.
func (b *Buffer) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.data
}

// Owned reports whether this view was allocated by the core (as
// opposed to aliasing caller memory).
func (b *Buffer) Owned() bool {
	return b != nil && b.owned
}

// Skip returns a new view starting n bytes into this one, sharing the
// same backing allocation and ownership.
func (b *Buffer) Skip(n int) *Buffer {
	if b == nil {
		return nil
	}
	if n > len(b.data) {
		n = len(b.data)
	}
	return &Buffer{data: b.data[n:], owned: b.owned}
}

// Slice returns a new view of size bytes starting at offset, sharing
// the same backing allocation and ownership.
func (b *Buffer) Slice(offset, size int) *Buffer {
	if b == nil {
		return nil
	}
	if offset > len(b.data) {
		offset = len(b.data)
	}
	end := offset + size
	if end > len(b.data) {
		end = len(b.data)
	}
	return &Buffer{data: b.data[offset:end], owned: b.owned}
}

// Clone returns a new owning buffer holding a copy of this view's
// bytes, regardless of the source's ownership.
func (b *Buffer) Clone() *Buffer {
	return FromBytes(b.Bytes())
}

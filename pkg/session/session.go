// Package session implements the session policy bag (spec.md
// component C6): the mutable, shared configuration every operation
// factory reads when it builds its transaction controls and result
// streams.
package session

import (
	"sync"
	"time"

	"elliptics-go/pkg/dckey"
	"elliptics-go/pkg/predicate"
	"elliptics-go/pkg/tctl"
	"elliptics-go/pkg/transport"
)

// policy is the shared, mutable state behind every copy of a Session.
// Sessions are cheap to copy because copies share a pointer to this
// struct: mutating one copy's groups or flags is visible through
// every other copy, per spec.md 4.2.
type policy struct {
	mu sync.Mutex

	groups    []int32
	cflags    uint64
	ioflags   uint32
	namespace string
	timeout   time.Duration
	filter    predicate.Filter
	checker   predicate.Checker
	excPolicy predicate.ExceptionPolicy
}

// policyData holds a copy of policy's mutable fields without its
// mutex, so snapshot/restore never copy a lock value.
type policyData struct {
	groups    []int32
	cflags    uint64
	ioflags   uint32
	namespace string
	timeout   time.Duration
	filter    predicate.Filter
	checker   predicate.Checker
	excPolicy predicate.ExceptionPolicy
}

func (p *policy) snapshot() policyData {
	p.mu.Lock()
	defer p.mu.Unlock()
	return policyData{
		groups:    append([]int32(nil), p.groups...),
		cflags:    p.cflags,
		ioflags:   p.ioflags,
		namespace: p.namespace,
		timeout:   p.timeout,
		filter:    p.filter,
		checker:   p.checker,
		excPolicy: p.excPolicy,
	}
}

func (p *policy) restore(snap policyData) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.groups = snap.groups
	p.cflags = snap.cflags
	p.ioflags = snap.ioflags
	p.namespace = snap.namespace
	p.timeout = snap.timeout
	p.filter = snap.filter
	p.checker = snap.checker
	p.excPolicy = snap.excPolicy
}

// Session is the client's policy handle: it carries the shared
// mutable configuration plus the id transform and transport a
// concrete deployment wires in. Copying a Session value (as Clone
// does) is cheap; the *policy it holds is what makes copies share
// state.
type Session struct {
	p         *policy
	transform dckey.Transform
	tr        transport.Transport
}

// New creates a fresh session over tr, with the defaults from
// spec.md 4.3: filter=positive, checker=at_least_one, no groups, zero
// flags, no namespace, a generous default timeout and an empty
// exception policy (errors surface only through the stream).
func New(tr transport.Transport, transform dckey.Transform) *Session {
	return &Session{
		p: &policy{
			filter:  predicate.DefaultFilterFunc,
			checker: predicate.DefaultCheckerFunc,
			timeout: 30 * time.Second,
		},
		transform: transform,
		tr:        tr,
	}
}

// Clone returns a session sharing this one's policy bag, transform
// and transport. It exists purely for readability at call sites that
// want to make the shared-state intent explicit; Session's zero-cost
// copy-by-value already has this behavior.
func (s *Session) Clone() *Session {
	cp := *s
	return &cp
}

// Fork returns a session carrying an independent copy of this one's
// policy: mutations through the fork are never observed by s or by
// any other clone. Bulk fan-out uses this to give each concurrent
// sub-operation its own group/filter/checker override without a data
// race on the shared policy bag.
func (s *Session) Fork() *Session {
	snap := s.p.snapshot()
	return &Session{
		p:         &policy{groups: snap.groups, cflags: snap.cflags, ioflags: snap.ioflags, namespace: snap.namespace, timeout: snap.timeout, filter: snap.filter, checker: snap.checker, excPolicy: snap.excPolicy},
		transform: s.transform,
		tr:        s.tr,
	}
}

// SetGroups replaces the ordered target group list.
func (s *Session) SetGroups(groups []int32) {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	s.p.groups = append([]int32(nil), groups...)
}

// Groups returns the current ordered target group list.
func (s *Session) Groups() []int32 {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	return append([]int32(nil), s.p.groups...)
}

// SetCflags replaces the control-flag bitmask.
func (s *Session) SetCflags(cflags uint64) {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	s.p.cflags = cflags
}

// Cflags returns the current control-flag bitmask.
func (s *Session) Cflags() uint64 {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	return s.p.cflags
}

// SetIOFlags replaces the I/O-flag bitmask.
func (s *Session) SetIOFlags(ioflags uint32) {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	s.p.ioflags = ioflags
}

// IOFlags returns the current I/O-flag bitmask.
func (s *Session) IOFlags() uint32 {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	return s.p.ioflags
}

// SetNamespace replaces the transform namespace.
func (s *Session) SetNamespace(ns string) {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	s.p.namespace = ns
}

// Namespace returns the current transform namespace.
func (s *Session) Namespace() string {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	return s.p.namespace
}

// SetTimeout replaces the per-transaction timeout.
func (s *Session) SetTimeout(d time.Duration) {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	s.p.timeout = d
}

// Timeout returns the current per-transaction timeout.
func (s *Session) Timeout() time.Duration {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	return s.p.timeout
}

// SetFilter replaces the per-entry filter predicate.
func (s *Session) SetFilter(f predicate.Filter) {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	s.p.filter = f
}

// Filter returns the current per-entry filter predicate.
func (s *Session) Filter() predicate.Filter {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	return s.p.filter
}

// SetChecker replaces the terminal checker predicate.
func (s *Session) SetChecker(c predicate.Checker) {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	s.p.checker = c
}

// Checker returns the current terminal checker predicate.
func (s *Session) Checker() predicate.Checker {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	return s.p.checker
}

// SetExceptionPolicy replaces the exception-policy bitmask.
func (s *Session) SetExceptionPolicy(p predicate.ExceptionPolicy) {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	s.p.excPolicy = p
}

// ExceptionPolicy returns the current exception-policy bitmask.
func (s *Session) ExceptionPolicy() predicate.ExceptionPolicy {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	return s.p.excPolicy
}

// Transform resolves a raw id from a name under this session's
// namespace and configured transform.
func (s *Session) Transform(name string) dckey.RawID {
	return dckey.Namespaced(s.transform, s.Namespace(), name)
}

// Resolve materializes a key's group-scoped id under group, using
// this session's transform and namespace when the key is by-name.
func (s *Session) Resolve(k *dckey.Key, group int32) dckey.GroupID {
	return k.Transform(s.transform, s.Namespace()).WithGroup(group)
}

// Transport exposes the underlying wire-primitive transport, used by
// package composite and package callback to build controls and
// dispatch them without importing session's internals.
func (s *Session) Transport() transport.Transport {
	return s.tr
}

// scope is a saved snapshot of the mutable policy fields that
// composite operations override for the span of a sub-call, restored
// on every exit path per spec.md 4.2 "session_scope discipline".
type scope struct {
	s    *Session
	snap policyData
}

// EnterScope snapshots the current filter, checker and exception
// policy so a composite operation can override them for a sub-call and
// guarantee restoration via defer, even on panic.
//
//	sc := session.EnterScope(s)
//	defer sc.Exit()
//	s.SetFilter(predicate.AllWithAck)
//	s.SetChecker(predicate.NoCheck)
//	...
func EnterScope(s *Session) *scope {
	return &scope{s: s, snap: s.p.snapshot()}
}

// Exit restores every field EnterScope captured.
func (sc *scope) Exit() {
	sc.s.p.restore(sc.snap)
}

// BuildIOAttr assembles an IOAttr from the session's ioflags plus the
// operation-specific range/offset fields a caller supplies.
func (s *Session) BuildIOAttr(offset, size, start, num uint64, subID, parentID uint64, typ int32) tctl.IOAttr {
	return tctl.IOAttr{
		Offset:   offset,
		Size:     size,
		Start:    start,
		Num:      num,
		Flags:    s.IOFlags(),
		SubID:    subID,
		ParentID: parentID,
		Type:     typ,
	}
}

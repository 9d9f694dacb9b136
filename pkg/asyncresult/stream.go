package asyncresult

import (
	"sync"

	"elliptics-go/pkg/dcerr"
	"elliptics-go/pkg/dckey"
	"elliptics-go/pkg/predicate"
	"elliptics-go/pkg/tctl"
)

// Result is the async result stream for a single operation: entries
// accepted by the filter, all command headers seen (for the checker),
// and a terminal error decided exactly once.
//
// A Result is safe for concurrent Push from multiple transport
// goroutines and concurrent Wait/Get/Entries/Connect from readers.
type Result[E Entry] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []E
	headers []tctl.CmdHeader
	total   int
	done    bool
	err     error
	lastErr error

	filter  predicate.Filter
	checker predicate.Checker
	policy  predicate.ExceptionPolicy

	targetID dckey.RawID
	op       string

	onDone []func([]E, error)
}

// New creates an empty Result carrying the filter, checker and
// exception policy captured from the launching session, per spec.md 3
// "A stream carries its session's filter, checker, and exception
// policy captured at creation time."
func New[E Entry](filter predicate.Filter, checker predicate.Checker, policy predicate.ExceptionPolicy, total int, targetID dckey.RawID, op string) *Result[E] {
	r := &Result[E]{
		filter:   filter,
		checker:  checker,
		policy:   policy,
		total:    total,
		targetID: targetID,
		op:       op,
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Completed returns a Result that is already terminal, carrying err
// (nil for success) and no entries. Used for synchronous
// argument-validation failures that never reach the transport.
func Completed[E Entry](err error) *Result[E] {
	r := &Result[E]{done: true, err: err}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Push delivers one reply entry. Its header is recorded for the
// checker regardless of the filter; the entry itself is only kept for
// user consumption if filter(status, payloadLen) holds, per spec.md
// invariant 1.
func (r *Result[E]) Push(e E) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	r.headers = append(r.headers, e.Header())
	if e.Status() != 0 {
		r.lastErr = dcerr.FromStatus(e.Status(), r.targetID, r.op)
	}
	if r.filter == nil || r.filter(e.Status(), e.PayloadLen()) {
		r.items = append(r.items, e)
	}
	r.cond.Broadcast()
}

// Complete runs the checker over every header observed so far and
// posts the terminal status exactly once, per spec.md invariant 2.
//
// Terminal error decision (spec.md 7): if the checker accepts, the
// stream succeeds with a nil error; if it rejects, the last per-reply
// error is surfaced when one exists (it is more specific), falling
// back to a generic predicate-failed error otherwise.
func (r *Result[E]) Complete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	if r.checker == nil || r.checker(r.headers, r.total) {
		r.err = nil
	} else if r.lastErr != nil {
		r.err = r.lastErr
	} else {
		r.err = dcerr.New(dcerr.KindPredicateFailed, 0, r.targetID, r.op, "checker rejected aggregate result")
	}
	r.finish()
}

// CompleteWithError posts a pre-decided terminal error, bypassing the
// checker. Used when a composite operation short-circuits (e.g. CAS
// exhausting its retry budget) or the transport reports a
// non-recoverable failure before any reply arrived.
func (r *Result[E]) CompleteWithError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	r.err = err
	r.finish()
}

// finish must be called with mu held; it marks the stream terminal,
// wakes blocked waiters and fires registered completion handlers.
func (r *Result[E]) finish() {
	r.done = true
	items := append([]E(nil), r.items...)
	err := r.err
	handlers := r.onDone
	r.onDone = nil
	r.cond.Broadcast()
	r.mu.Unlock()
	for _, h := range handlers {
		h(items, err)
	}
	r.mu.Lock()
}

// Wait blocks until the terminal status is posted and returns it. If
// the exception policy demands it, the caller is expected to panic on
// a non-nil error; ThrowIfNeeded implements that behavior explicitly
// so callers can choose.
func (r *Result[E]) Wait() error {
	r.mu.Lock()
	for !r.done {
		r.cond.Wait()
	}
	err := r.err
	r.mu.Unlock()
	return err
}

// Get waits for completion and returns every entry the filter
// accepted, alongside the terminal error.
func (r *Result[E]) Get() ([]E, error) {
	err := r.Wait()
	r.mu.Lock()
	items := append([]E(nil), r.items...)
	r.mu.Unlock()
	return items, err
}

// ThrowIfNeeded panics with err when the stream's exception policy
// demands raising at wait time and err is non-nil; otherwise it
// returns err unchanged.
func (r *Result[E]) ThrowIfNeeded(err error) error {
	if err != nil && r.policy.ShouldThrowAtWait() {
		panic(err)
	}
	return err
}

// Connect registers fn to run once the stream completes, receiving
// the accepted entries and terminal error. If the stream is already
// done, fn runs synchronously before Connect returns, per spec.md 5
// "connect(handler) registers a callback invoked ... delivering the
// terminal frame."
func (r *Result[E]) Connect(fn func([]E, error)) {
	r.mu.Lock()
	if r.done {
		items := append([]E(nil), r.items...)
		err := r.err
		r.mu.Unlock()
		fn(items, err)
		return
	}
	r.onDone = append(r.onDone, fn)
	r.mu.Unlock()
}

// Entries returns a channel streaming every entry the filter has
// accepted so far and every one accepted afterward, closing once the
// stream completes. Entries arrive in Push order (transport order),
// per spec.md 5 "Ordering".
func (r *Result[E]) Entries() <-chan E {
	ch := make(chan E)
	go func() {
		defer close(ch)
		idx := 0
		r.mu.Lock()
		for {
			for idx < len(r.items) {
				item := r.items[idx]
				idx++
				r.mu.Unlock()
				ch <- item
				r.mu.Lock()
			}
			if r.done {
				r.mu.Unlock()
				return
			}
			r.cond.Wait()
		}
	}()
	return ch
}

// Headers returns every command header observed so far, regardless of
// filter. Composite operations (prepare_latest) need the full set,
// not just the filtered entries.
func (r *Result[E]) Headers() []tctl.CmdHeader {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]tctl.CmdHeader(nil), r.headers...)
}

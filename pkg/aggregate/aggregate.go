// Package aggregate implements the N-way join of async result streams
// used by composite operations (spec.md component C8).
package aggregate

import (
	"sync"

	"elliptics-go/pkg/asyncresult"
	"elliptics-go/pkg/dckey"
)

// Aggregate joins N input streams into a single output stream.
// Entries from any input are forwarded to the output in arrival
// order; the output posts exactly one terminal status once every
// input has terminated. Success combination: if any input carried a
// status-0, non-empty-payload entry, the output succeeds with a nil
// error; otherwise it carries the last non-empty error observed
// across all inputs, per spec.md 4.6.
func Aggregate[E asyncresult.Entry](inputs []*asyncresult.Result[E]) *asyncresult.Result[E] {
	out := asyncresult.New[E](nil, nil, 0, 0, dckey.RawID{}, "aggregate")

	var wg sync.WaitGroup
	var mu sync.Mutex
	var succeeded bool
	var lastErr error

	wg.Add(len(inputs))
	for _, in := range inputs {
		in := in
		go func() {
			defer wg.Done()
			for e := range in.Entries() {
				out.Push(e)
				if e.Status() == 0 && e.PayloadLen() > 0 {
					mu.Lock()
					succeeded = true
					mu.Unlock()
				}
			}
			if err := in.Wait(); err != nil {
				mu.Lock()
				lastErr = err
				mu.Unlock()
			}
		}()
	}

	go func() {
		wg.Wait()
		mu.Lock()
		ok, err := succeeded, lastErr
		mu.Unlock()
		if ok {
			out.CompleteWithError(nil)
		} else {
			out.CompleteWithError(err)
		}
	}()

	return out
}

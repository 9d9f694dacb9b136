// Package composite implements the multi-step operations built atop
// the callback layer (spec.md component C9): prepare_latest,
// read_latest, write_cas, range read/delete, and bulk read/write.
package composite

import (
	"elliptics-go/pkg/asyncresult"
	"elliptics-go/pkg/dcerr"
	"elliptics-go/pkg/session"
)

// failFast mirrors package callback's validationFailure: a
// synchronous argument-validation error either raises immediately
// (throw_at_start) or is delivered as a pre-completed stream.
func failFast[E asyncresult.Entry](s *session.Session, err *dcerr.Error) *asyncresult.Result[E] {
	if s.ExceptionPolicy().ShouldThrowAtStart() {
		panic(err)
	}
	return asyncresult.Completed[E](err)
}

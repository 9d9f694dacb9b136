package composite

import (
	"context"

	"elliptics-go/pkg/asyncresult"
	"elliptics-go/pkg/callback"
	"elliptics-go/pkg/dckey"
	"elliptics-go/pkg/session"
)

// ReadLatest runs prepare_latest to compute a group preference order,
// then issues a single ordered read against it, per spec.md 4.5
// "read_latest(key, offset, size)".
func ReadLatest(ctx context.Context, s *session.Session, key *dckey.Key, offset, size uint64) *asyncresult.Result[asyncresult.ReadEntry] {
	groups := s.Groups()
	if len(groups) == 0 {
		return callback.ReadGroups(ctx, s, key, groups, offset, size)
	}

	candidates := computeOrder(ctx, s, key, groups, groups[0])
	pref := make([]int32, 0, len(candidates))
	for _, c := range candidates {
		if c.rank <= 1 {
			pref = append(pref, c.group)
		}
	}
	if len(pref) == 0 {
		pref = groups
	}
	return callback.ReadGroups(ctx, s, key, pref, offset, size)
}

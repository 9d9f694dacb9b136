// Package routing implements the consistent-hash ring and the
// group/state routing table the transport consults for route(),
// mix_states() and get_routes(). This is external-collaborator
// territory per spec.md 1 ("Cluster membership, group state lists,
// and routing tables... the core consumes a route(id, group) ->
// address and mix_states() -> [group] capability"); it is provided
// here as the concrete implementation the shipped transport uses.
package routing

import (
	"fmt"
	"hash/crc32"
	"math/rand"
	"sort"
	"sync"

	"elliptics-go/pkg/dckey"
)

// Router owns one consistent-hash ring per replication group and
// answers the route/mix_states/get_routes/search_range questions the
// transport contract requires. Unlike a flat hash ring shared across
// every consumer, each group's virtual nodes are seeded with the
// group id, so the same address lands at different ring positions in
// different groups instead of every group hot-spotting on the same
// address for the same key.
type Router struct {
	mu       sync.RWMutex
	replicas int

	// ringHashes/ringOwners are keyed by group; presence of the key
	// (even with an empty slice/map) distinguishes "group registered
	// with zero states" from "group never seen".
	ringHashes map[int32][]uint32
	ringOwners map[int32]map[uint32]string

	// sorted per-group boundary ids, used by SearchRange to find the
	// next covered sub-range without needing a live connection.
	boundaries map[int32][]dckey.RawID
}

// NewRouter creates an empty router; replicas controls the number of
// virtual nodes each group's ring carries per real address.
func NewRouter(replicas int) *Router {
	if replicas <= 0 {
		replicas = 1
	}
	return &Router{
		replicas:   replicas,
		ringHashes: make(map[int32][]uint32),
		ringOwners: make(map[int32]map[uint32]string),
		boundaries: make(map[int32][]dckey.RawID),
	}
}

// virtualNodeHash mixes the group id into the virtual-node seed so a
// node's ring position is group-specific rather than shared across
// every group it happens to serve.
func virtualNodeHash(group int32, addr string, replica int) uint32 {
	return crc32.ChecksumIEEE([]byte(fmt.Sprintf("%d:%s#%d", group, addr, replica)))
}

// SetGroupStates replaces the set of node addresses serving group.
func (r *Router) SetGroupStates(group int32, addrs []string) {
	hashes := make([]uint32, 0, len(addrs)*r.replicas)
	owners := make(map[uint32]string, len(addrs)*r.replicas)
	for _, a := range addrs {
		for i := 0; i < r.replicas; i++ {
			h := virtualNodeHash(group, a, i)
			hashes = append(hashes, h)
			owners[h] = a
		}
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })

	r.mu.Lock()
	r.ringHashes[group] = hashes
	r.ringOwners[group] = owners
	r.mu.Unlock()
}

// SetGroupBoundaries records the sorted set of key-range boundary ids
// a group's states partition the keyspace at, used by SearchRange.
func (r *Router) SetGroupBoundaries(group int32, boundaries []dckey.RawID) {
	sorted := append([]dckey.RawID(nil), boundaries...)
	sort.Slice(sorted, func(i, j int) bool { return dckey.Less(sorted[i], sorted[j]) })
	r.mu.Lock()
	r.boundaries[group] = sorted
	r.mu.Unlock()
}

// Route resolves the address responsible for id within group.
func (r *Router) Route(group int32, id dckey.RawID) (string, error) {
	r.mu.RLock()
	hashes, known := r.ringHashes[group]
	owners := r.ringOwners[group]
	r.mu.RUnlock()
	if !known {
		return "", fmt.Errorf("routing: no known states for group %d", group)
	}
	if len(hashes) == 0 {
		return "", fmt.Errorf("routing: group %d ring is empty", group)
	}
	h := crc32.ChecksumIEEE(id[:])
	idx := sort.Search(len(hashes), func(i int) bool { return hashes[i] >= h })
	if idx == len(hashes) {
		idx = 0
	}
	return owners[hashes[idx]], nil
}

// MixStates returns a permutation of known group ids. When keyHint is
// non-nil, groups are ordered by their ring's affinity for that key
// (a stable, deterministic weighting); otherwise a random permutation
// is returned, matching spec.md's "randomized/weighted permutation".
func (r *Router) MixStates(keyHint *dckey.RawID) []int32 {
	r.mu.RLock()
	groups := make([]int32, 0, len(r.ringHashes))
	for g := range r.ringHashes {
		groups = append(groups, g)
	}
	r.mu.RUnlock()

	sort.Slice(groups, func(i, j int) bool { return groups[i] < groups[j] })

	if keyHint == nil {
		rand.Shuffle(len(groups), func(i, j int) { groups[i], groups[j] = groups[j], groups[i] })
		return groups
	}

	type weighted struct {
		group  int32
		weight string
	}
	ws := make([]weighted, len(groups))
	for i, g := range groups {
		ws[i] = weighted{g, fmt.Sprintf("%x:%d", keyHint[:], g)}
	}
	sort.Slice(ws, func(i, j int) bool { return ws[i].weight < ws[j].weight })
	out := make([]int32, len(ws))
	for i, w := range ws {
		out[i] = w.group
	}
	return out
}

// SearchRange returns the end of the sub-range starting at cursor that
// a single boundary segment of group covers. If cursor is past every
// recorded boundary, it returns cursor unchanged (caller clamps to the
// sweep's end, per spec.md 4.5 step 2).
func (r *Router) SearchRange(group int32, cursor dckey.RawID) dckey.RawID {
	r.mu.RLock()
	bounds := r.boundaries[group]
	r.mu.RUnlock()
	for _, b := range bounds {
		if dckey.Less(cursor, b) {
			return b
		}
	}
	return cursor
}

// GetRoutes returns every (group, address) pair currently known, each
// group's addresses sorted and deduplicated.
func (r *Router) GetRoutes() map[int32][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[int32][]string, len(r.ringOwners))
	for g, owners := range r.ringOwners {
		seen := make(map[string]struct{}, len(owners))
		addrs := make([]string, 0, len(owners))
		for _, a := range owners {
			if _, ok := seen[a]; !ok {
				seen[a] = struct{}{}
				addrs = append(addrs, a)
			}
		}
		sort.Strings(addrs)
		out[g] = addrs
	}
	return out
}

package httptransport

import (
	"crypto/sha512"
	"encoding/binary"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"elliptics-go/pkg/asyncresult"
	"elliptics-go/pkg/dcerr"
	"elliptics-go/pkg/dckey"
	"elliptics-go/pkg/tctl"
)

// object is one stored value plus the file-info a lookup reports.
type object struct {
	value    []byte
	mtime    dckey.Time
	checksum dckey.RawID
}

// Backend is a minimal in-memory reference implementation of the
// command set pkg/tctl.CommandCode enumerates, standing in for the
// real elliptics storage backend a production Server would front.
// It exists so this module's request engine can be exercised
// end-to-end without a live cluster.
type Backend struct {
	mu      sync.RWMutex
	groups  map[int32]map[dckey.RawID]*object
	cache   map[int32]map[dckey.RawID]*object
	pending map[int32]map[dckey.RawID][]byte // staged prepare/plain bytes, invisible until commit
}

// NewBackend creates an empty backend.
func NewBackend() *Backend {
	return &Backend{
		groups:  make(map[int32]map[dckey.RawID]*object),
		cache:   make(map[int32]map[dckey.RawID]*object),
		pending: make(map[int32]map[dckey.RawID][]byte),
	}
}

func (b *Backend) group(group int32) map[dckey.RawID]*object {
	g, ok := b.groups[group]
	if !ok {
		g = make(map[dckey.RawID]*object)
		b.groups[group] = g
	}
	return g
}

func (b *Backend) cacheGroup(group int32) map[dckey.RawID]*object {
	c, ok := b.cache[group]
	if !ok {
		c = make(map[dckey.RawID]*object)
		b.cache[group] = c
	}
	return c
}

func (b *Backend) pendingGroup(group int32) map[dckey.RawID][]byte {
	p, ok := b.pending[group]
	if !ok {
		p = make(map[dckey.RawID][]byte)
		b.pending[group] = p
	}
	return p
}

// resolve looks a key up preferring the cache tier, matching real
// elliptics' cache-then-backing-store read order.
func (b *Backend) resolve(group int32, id dckey.RawID) (*object, bool) {
	if c, ok := b.cache[group]; ok {
		if obj, ok := c[id]; ok {
			return obj, true
		}
	}
	if g, ok := b.groups[group]; ok {
		if obj, ok := g[id]; ok {
			return obj, true
		}
	}
	return nil, false
}

// writeAt overlays data onto buf at offset, growing buf with zero
// bytes as needed, matching the offset semantics IOAttr.Offset carries
// for prepare/plain/commit staged writes.
func writeAt(buf []byte, offset uint64, data []byte) []byte {
	end := offset + uint64(len(data))
	if uint64(len(buf)) < end {
		grown := make([]byte, end)
		copy(grown, buf)
		buf = grown
	}
	copy(buf[offset:end], data)
	return buf
}

// Handle interprets one wireRequest against the in-memory store and
// returns the frames a real node's Dispatch would have streamed back.
func (b *Backend) Handle(req wireRequest) wireResponse {
	switch req.Command {
	case tctl.CmdWrite:
		return b.handleWrite(req)
	case tctl.CmdWritePrepare:
		return b.handleWritePrepare(req)
	case tctl.CmdWritePlain:
		return b.handleWritePlain(req)
	case tctl.CmdWriteCommit:
		return b.handleWriteCommit(req)
	case tctl.CmdWriteCache:
		return b.handleWriteCache(req)
	case tctl.CmdWriteCAS:
		return b.handleWriteCAS(req)
	case tctl.CmdLookup:
		return b.handleLookup(req)
	case tctl.CmdRead:
		return b.handleRead(req)
	case tctl.CmdRemove:
		return b.handleRemove(req)
	case tctl.CmdBulkRead:
		return b.handleBulkRead(req)
	case tctl.CmdRangeRead:
		return b.handleRange(req, false)
	case tctl.CmdRangeDelete:
		return b.handleRange(req, true)
	case tctl.CmdStat, tctl.CmdStatCount:
		return b.handleStat(req)
	case tctl.CmdCmd:
		return b.handleCmd(req)
	default:
		return wireResponse{Frames: []frameEnvelope{singleStatus(req, dcerr.ENOENT)}}
	}
}

func singleStatus(req wireRequest, status int32) frameEnvelope {
	return frameEnvelope{Status: status, Command: req.Command, TransID: req.TransID, SourceID: req.RawID}
}

// handleWrite implements the simple, unconditioned full-object write:
// the payload becomes the object's entire value regardless of any
// prior staged writes in flight for the same id.
func (b *Backend) handleWrite(req wireRequest) wireResponse {
	b.mu.Lock()
	defer b.mu.Unlock()
	g := b.group(req.Group)
	g[req.RawID] = &object{
		value:    append([]byte(nil), req.Payload...),
		mtime:    nowTime(),
		checksum: sha512.Sum512(req.Payload),
	}
	return wireResponse{Frames: []frameEnvelope{singleStatus(req, 0)}}
}

// handleWritePrepare begins a staged write: it stages the payload at
// its io offset in a scratch buffer keyed by id, invisible to reads
// and lookups until handleWriteCommit finalizes it.
func (b *Backend) handleWritePrepare(req wireRequest) wireResponse {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.pendingGroup(req.Group)
	p[req.RawID] = writeAt(nil, req.IO.Offset, req.Payload)
	return wireResponse{Frames: []frameEnvelope{singleStatus(req, 0)}}
}

// handleWritePlain overlays one more chunk onto a staged write's
// scratch buffer, still invisible until commit.
func (b *Backend) handleWritePlain(req wireRequest) wireResponse {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.pendingGroup(req.Group)
	p[req.RawID] = writeAt(p[req.RawID], req.IO.Offset, req.Payload)
	return wireResponse{Frames: []frameEnvelope{singleStatus(req, 0)}}
}

// handleWriteCommit merges its payload into whatever handleWritePrepare/
// handleWritePlain staged, publishes the merged buffer as the object's
// value, and clears the staging entry. A commit with no prior staged
// bytes is equivalent to a single-chunk staged write.
func (b *Backend) handleWriteCommit(req wireRequest) wireResponse {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.pendingGroup(req.Group)
	buf := writeAt(p[req.RawID], req.IO.Offset, req.Payload)
	delete(p, req.RawID)
	g := b.group(req.Group)
	g[req.RawID] = &object{
		value:    buf,
		mtime:    nowTime(),
		checksum: sha512.Sum512(buf),
	}
	return wireResponse{Frames: []frameEnvelope{singleStatus(req, 0)}}
}

// handleWriteCache writes to the cache tier, a separate map that
// handleLookup/handleRead consult before the durable store.
func (b *Backend) handleWriteCache(req wireRequest) wireResponse {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.cacheGroup(req.Group)
	c[req.RawID] = &object{
		value:    append([]byte(nil), req.Payload...),
		mtime:    nowTime(),
		checksum: sha512.Sum512(req.Payload),
	}
	return wireResponse{Frames: []frameEnvelope{singleStatus(req, 0)}}
}

// handleWriteCAS implements compare-and-swap: payload is laid out as
// expectedChecksum(64 bytes) || next value, matching
// pkg/callback.WriteCAS's encoding. A checksum disagreement with the
// stored (or, if absent, empty-value) checksum reports -EINVAL so
// pkg/composite.WriteCAS knows to retry.
func (b *Backend) handleWriteCAS(req wireRequest) wireResponse {
	if len(req.Payload) < dckey.IDSize {
		return wireResponse{Frames: []frameEnvelope{singleStatus(req, dcerr.EINVAL)}}
	}
	var expected dckey.RawID
	copy(expected[:], req.Payload[:dckey.IDSize])
	next := req.Payload[dckey.IDSize:]

	b.mu.Lock()
	defer b.mu.Unlock()
	g := b.group(req.Group)
	current, ok := g[req.RawID]
	var currentChecksum dckey.RawID
	if ok {
		currentChecksum = current.checksum
	} else {
		currentChecksum = sha512.Sum512(nil)
	}
	if !dckey.Equal(expected, currentChecksum) {
		return wireResponse{Frames: []frameEnvelope{singleStatus(req, dcerr.EINVAL)}}
	}
	g[req.RawID] = &object{
		value:    append([]byte(nil), next...),
		mtime:    nowTime(),
		checksum: sha512.Sum512(next),
	}
	return wireResponse{Frames: []frameEnvelope{singleStatus(req, 0)}}
}

func (b *Backend) handleLookup(req wireRequest) wireResponse {
	b.mu.RLock()
	defer b.mu.RUnlock()
	obj, ok := b.resolve(req.Group, req.RawID)
	if !ok {
		return wireResponse{Frames: []frameEnvelope{singleStatus(req, dcerr.ENOENT)}}
	}
	info := asyncresult.FileInfo{Mtime: obj.mtime, Size: uint64(len(obj.value)), Checksum: obj.checksum}
	f := singleStatus(req, 0)
	f.Payload = asyncresult.EncodeFileInfo(info)
	f.Size = uint64(len(f.Payload))
	return wireResponse{Frames: []frameEnvelope{f}}
}

func (b *Backend) handleRead(req wireRequest) wireResponse {
	b.mu.RLock()
	defer b.mu.RUnlock()
	obj, ok := b.resolve(req.Group, req.RawID)
	if !ok {
		return wireResponse{Frames: []frameEnvelope{singleStatus(req, dcerr.ENOENT)}}
	}
	start := req.IO.Offset
	if start > uint64(len(obj.value)) {
		start = uint64(len(obj.value))
	}
	end := uint64(len(obj.value))
	if req.IO.Size > 0 && start+req.IO.Size < end {
		end = start + req.IO.Size
	}
	f := singleStatus(req, 0)
	f.Payload = append([]byte(nil), obj.value[start:end]...)
	f.Size = uint64(len(f.Payload))
	return wireResponse{Frames: []frameEnvelope{f}}
}

func (b *Backend) handleRemove(req wireRequest) wireResponse {
	b.mu.Lock()
	defer b.mu.Unlock()
	g := b.group(req.Group)
	if _, ok := g[req.RawID]; !ok {
		return wireResponse{Frames: []frameEnvelope{singleStatus(req, dcerr.ENOENT)}}
	}
	delete(g, req.RawID)
	return wireResponse{Frames: []frameEnvelope{singleStatus(req, 0)}}
}

func (b *Backend) handleBulkRead(req wireRequest) wireResponse {
	b.mu.RLock()
	defer b.mu.RUnlock()
	g := b.group(req.Group)
	var records []byte
	for i := 0; i+dckey.IDSize <= len(req.Payload); i += dckey.IDSize {
		var id dckey.RawID
		copy(id[:], req.Payload[i:i+dckey.IDSize])
		if obj, ok := g[id]; ok {
			records = appendRecord(records, id, obj.value)
		}
	}
	f := singleStatus(req, 0)
	f.Payload = records
	f.Size = uint64(len(records))
	return wireResponse{Frames: []frameEnvelope{f}}
}

// handleRange serves both range_read and range_delete: payload is
// start(64 bytes) || end(64 bytes), matching pkg/composite.sweepRange's
// segment encoding. It returns every stored record whose id falls in
// [start, end), deleting them first when del is set.
func (b *Backend) handleRange(req wireRequest, del bool) wireResponse {
	if len(req.Payload) < 2*dckey.IDSize {
		return wireResponse{Frames: []frameEnvelope{singleStatus(req, dcerr.EINVAL)}}
	}
	var start, end dckey.RawID
	copy(start[:], req.Payload[:dckey.IDSize])
	copy(end[:], req.Payload[dckey.IDSize:2*dckey.IDSize])

	b.mu.Lock()
	defer b.mu.Unlock()
	g := b.group(req.Group)
	ids := make([]dckey.RawID, 0, len(g))
	for id := range g {
		if dckey.Cmp(id, start) >= 0 && dckey.Cmp(id, end) < 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return dckey.Less(ids[i], ids[j]) })

	var records []byte
	for _, id := range ids {
		records = appendRecord(records, id, g[id].value)
		if del {
			delete(g, id)
		}
	}
	f := singleStatus(req, 0)
	f.Payload = records
	f.Size = uint64(len(records))
	return wireResponse{Frames: []frameEnvelope{f}}
}

func (b *Backend) handleStat(req wireRequest) wireResponse {
	b.mu.RLock()
	defer b.mu.RUnlock()
	total := int64(0)
	for _, g := range b.groups {
		total += int64(len(g))
	}
	payload, _ := json.Marshal(map[string]int64{"objects": total})
	f := singleStatus(req, 0)
	f.Payload = payload
	f.Size = uint64(len(payload))
	return wireResponse{Frames: []frameEnvelope{f}}
}

// handleCmd acks an opaque shell/admin command with no payload,
// distinct from stat/stat-count's counter payload.
func (b *Backend) handleCmd(req wireRequest) wireResponse {
	return wireResponse{Frames: []frameEnvelope{singleStatus(req, 0)}}
}

func appendRecord(out []byte, id dckey.RawID, value []byte) []byte {
	out = append(out, id[:]...)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(value)))
	out = append(out, lenBuf[:]...)
	return append(out, value...)
}

func nowTime() dckey.Time {
	n := time.Now()
	return dckey.Time{Tsec: uint64(n.Unix()), Tnsec: uint64(n.Nanosecond())}
}

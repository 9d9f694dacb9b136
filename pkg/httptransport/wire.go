// Package httptransport is the reference implementation of
// pkg/transport.Transport: a JSON-over-HTTP dispatcher paired with an
// in-memory backend served by a chi-based HTTP server. It exists to make the request
// engine runnable end-to-end (demos, tests); production deployments
// are expected to swap in a real wire protocol, per spec.md 1's
// framing of the transport as an external collaborator.
package httptransport

import (
	"github.com/google/uuid"

	"elliptics-go/pkg/dckey"
	"elliptics-go/pkg/tctl"
)

// wireRequest is the JSON envelope POSTed to a node for one
// transaction attempt.
type wireRequest struct {
	Command  tctl.CommandCode `json:"command"`
	RawID    dckey.RawID      `json:"raw_id"`
	Group    int32            `json:"group"`
	Type     int32            `json:"type"`
	CFlags   uint64           `json:"cflags"`
	IO       tctl.IOAttr      `json:"io"`
	TransID  uuid.UUID        `json:"trans_id"`
	Payload  []byte           `json:"payload,omitempty"`
	RangeEnd dckey.RawID      `json:"range_end,omitempty"`
}

// frameEnvelope is one reply frame as carried over the wire.
type frameEnvelope struct {
	Status   int32            `json:"status"`
	Command  tctl.CommandCode `json:"command"`
	Size     uint64           `json:"size"`
	Flags    uint32           `json:"flags"`
	TransID  uuid.UUID        `json:"trans_id"`
	SourceID dckey.RawID      `json:"source_id"`
	Payload  []byte           `json:"payload,omitempty"`
	More     bool             `json:"more"`
}

// wireResponse batches every frame produced for one dispatched
// transaction plus the terminal error, if any. Real wire protocols
// would stream frames incrementally; this reference transport
// resolves the whole exchange in one HTTP round-trip for simplicity.
type wireResponse struct {
	Frames []frameEnvelope `json:"frames"`
	Err    string          `json:"err,omitempty"`
}

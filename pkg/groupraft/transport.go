package groupraft

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.etcd.io/etcd/raft/v3/raftpb"
)

const (
	raftEndpoint     = "/internal/groupraft/step"
	transportTimeout = 3 * time.Second
	maxRetries       = 3
	retryDelay       = 100 * time.Millisecond
)

// PeerTransport delivers raft messages between the nodes of a
// routing-authority consensus group.
type PeerTransport interface {
	Send(msg raftpb.Message) error
	AddPeer(id uint64, addr string)
	RemovePeer(id uint64)
	UpdatePeer(id uint64, addr string)
}

// HTTPTransport delivers raft messages over HTTP, POSTing the
// marshaled message to each peer's step endpoint with a small retry
// budget for transient network errors.
type HTTPTransport struct {
	mu     sync.RWMutex
	peers  map[uint64]string
	client *http.Client
}

// NewHTTPTransport creates a transport seeded with the given peer
// addresses.
func NewHTTPTransport(peers map[uint64]string) *HTTPTransport {
	cp := make(map[uint64]string, len(peers))
	for k, v := range peers {
		cp[k] = v
	}
	return &HTTPTransport{peers: cp, client: &http.Client{Timeout: transportTimeout}}
}

func (t *HTTPTransport) AddPeer(id uint64, addr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers[id] = addr
}

func (t *HTTPTransport) RemovePeer(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, id)
}

func (t *HTTPTransport) UpdatePeer(id uint64, addr string) {
	t.AddPeer(id, addr)
}

func (t *HTTPTransport) Send(msg raftpb.Message) error {
	t.mu.RLock()
	addr, ok := t.peers[msg.To]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("groupraft: unknown peer %d", msg.To)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("groupraft: marshal message: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := t.sendHTTP(addr+raftEndpoint, body); err != nil {
			lastErr = err
			slog.Warn("groupraft: send failed, retrying", "attempt", attempt+1, "to", msg.To, "err", err)
			time.Sleep(retryDelay * time.Duration(attempt+1))
			continue
		}
		return nil
	}
	return fmt.Errorf("groupraft: send failed after %d retries: %w", maxRetries, lastErr)
}

func (t *HTTPTransport) sendHTTP(url string, body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), transportTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("groupraft: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("groupraft: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("groupraft: unexpected status %d: %s", resp.StatusCode, string(b))
	}
	return nil
}

// InprocTransport routes messages directly between Nodes registered
// in the same process, used by tests and single-process demos in
// place of a real network hop.
type InprocTransport struct {
	mu    sync.RWMutex
	nodes map[uint64]*Node
}

// NewInprocTransport creates an empty in-process transport.
func NewInprocTransport() *InprocTransport {
	return &InprocTransport{nodes: make(map[uint64]*Node)}
}

// Register makes n reachable as a Send target under n.ID.
func (t *InprocTransport) Register(n *Node) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes[n.ID] = n
}

func (t *InprocTransport) Send(msg raftpb.Message) error {
	t.mu.RLock()
	target, ok := t.nodes[msg.To]
	t.mu.RUnlock()
	if !ok {
		return nil
	}
	go func() { _ = target.Handle(context.Background(), msg) }()
	return nil
}

func (t *InprocTransport) AddPeer(id uint64, addr string)    {}
func (t *InprocTransport) RemovePeer(id uint64)              {}
func (t *InprocTransport) UpdatePeer(id uint64, addr string) {}

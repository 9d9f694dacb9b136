package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"elliptics-go/pkg/dckey"
	"elliptics-go/pkg/routing"
	"elliptics-go/pkg/tctl"
	"elliptics-go/pkg/transport"
)

// Client implements pkg/transport.Transport over JSON-over-HTTP: one
// *http.Client, a baseURL-per-address dial convention, and a
// build-request/do/decode-JSON shape. Routing decisions (Route,
// MixStates, SearchRange) delegate to a *routing.Router the caller
// keeps in sync with cluster membership; Client itself only tracks
// the flat set of node addresses AddState/UpdateStatus/GetRoutes
// operate over.
type Client struct {
	http   *http.Client
	router *routing.Router

	mu    sync.RWMutex
	nodes map[string]int
}

// NewClient wires an HTTP transport client atop router, which the
// caller (typically a pkg/membership watcher) keeps populated with
// live group rosters.
func NewClient(router *routing.Router) *Client {
	return &Client{
		http:   http.DefaultClient,
		router: router,
		nodes:  make(map[string]int),
	}
}

// Dispatch POSTs tc to addr's /api/dispatch endpoint and replays every
// frame in the response to onReply, matching the reference server's
// batched (not streamed) reply convention documented in wire.go.
func (c *Client) Dispatch(ctx context.Context, tc tctl.Control, addr string, onReply transport.OnReply) error {
	req := wireRequest{
		Command: tc.Command,
		RawID:   tc.ID.ID,
		Group:   tc.ID.Group,
		Type:    tc.ID.Type,
		CFlags:  tc.CFlags,
		IO:      tc.IO,
		TransID: tc.TransID,
	}
	if tc.Payload != nil {
		req.Payload = tc.Payload.Bytes()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("httptransport: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, addr+"/api/dispatch", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("httptransport: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("httptransport: do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("httptransport: dispatch failed: %d: %s", resp.StatusCode, string(b))
	}

	var wr wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return fmt.Errorf("httptransport: decode response: %w", err)
	}
	for _, f := range wr.Frames {
		onReply(transport.ReplyFrame{
			Header: tctl.CmdHeader{
				Status:   f.Status,
				Command:  f.Command,
				Size:     f.Size,
				Flags:    f.Flags,
				TransID:  f.TransID,
				SourceID: f.SourceID,
			},
			Payload: f.Payload,
			More:    f.More,
		})
	}
	if wr.Err != "" {
		return fmt.Errorf("httptransport: %s", wr.Err)
	}
	return nil
}

// Route resolves the address responsible for id within group via the
// consistent-hash ring the caller's membership watcher maintains.
func (c *Client) Route(ctx context.Context, group int32, id dckey.RawID) (string, error) {
	return c.router.Route(group, id)
}

// MixStates returns router's ordered permutation of known groups.
func (c *Client) MixStates(ctx context.Context, keyHint *dckey.RawID) ([]int32, error) {
	return c.router.MixStates(keyHint), nil
}

// SearchRange returns the next covered sub-range boundary for group.
func (c *Client) SearchRange(ctx context.Context, group int32, cursor dckey.RawID) (dckey.RawID, error) {
	return c.router.SearchRange(group, cursor), nil
}

// LookupAddr resolves id's group-scoped address without dispatching.
func (c *Client) LookupAddr(ctx context.Context, id dckey.GroupID) (string, error) {
	return c.router.Route(id.Group, id.ID)
}

// GetRoutes flattens the router's per-group roster into individual
// address entries; RawID is left zero since spec.md's callers
// (broadcast) only ever consult the address.
func (c *Client) GetRoutes(ctx context.Context) ([]transport.RouteEntry, error) {
	var out []transport.RouteEntry
	for _, addrs := range c.router.GetRoutes() {
		for _, addr := range addrs {
			out = append(out, transport.RouteEntry{Addr: addr})
		}
	}
	c.mu.RLock()
	for addr := range c.nodes {
		out = append(out, transport.RouteEntry{Addr: addr})
	}
	c.mu.RUnlock()
	return out, nil
}

// UpdateStatus records a health status observed for addr, outside of
// any particular group's roster (e.g. from a heartbeat prober).
func (c *Client) UpdateStatus(ctx context.Context, addr string, status int) (int, error) {
	c.mu.Lock()
	c.nodes[addr] = status
	c.mu.Unlock()
	return status, nil
}

// AddState registers addr as a known node outside of group rosters,
// for broadcast operations that target every reachable state.
func (c *Client) AddState(ctx context.Context, addr string) error {
	c.mu.Lock()
	if _, ok := c.nodes[addr]; !ok {
		c.nodes[addr] = 0
	}
	c.mu.Unlock()
	return nil
}

// StateNum reports the number of nodes AddState has registered.
func (c *Client) StateNum() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.nodes)
}

// NativeSession exposes the underlying router for advanced callers
// (e.g. membership watchers wiring group rosters directly).
func (c *Client) NativeSession() any {
	return c.router
}

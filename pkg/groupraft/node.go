package groupraft

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/etcd/raft/v3"
	"go.etcd.io/etcd/raft/v3/raftpb"

	"elliptics-go/pkg/routing"
)

// rosterState is the last committed ordered state list for one group,
// tagged with a version so WatchRoster can tell "still the old value"
// apart from "changed, but happens to look the same".
type rosterState struct {
	states  []string
	version uint64
}

// Node runs one voter of the routing-authority consensus group and
// applies committed RosterCmd entries to an in-memory roster table,
// notifying anyone watching a given group's roster as it changes.
type Node struct {
	ID           uint64
	Peers        map[uint64]string
	underlying   raft.Node
	storage      *raft.MemoryStorage
	conf         *raftpb.ConfState
	tickInterval time.Duration
	transport    PeerTransport

	ctx  context.Context
	stop context.CancelFunc

	rosterMu   sync.RWMutex
	rosterCond *sync.Cond
	roster     map[int32]rosterState

	proposalsMu sync.RWMutex
	proposals   map[uuid.UUID]chan error
}

// NewNode starts a fresh raft voter for the given configuration,
// wired to transport for message delivery.
func NewNode(cfg *Config, transport PeerTransport) (*Node, error) {
	storage := raft.NewMemoryStorage()
	raftCfg := toRaftConfig(cfg, storage)

	var confState raftpb.ConfState
	peers := make(map[uint64]string, len(cfg.Peers))
	raftPeers := make([]raft.Peer, 0, len(cfg.Peers))
	for _, p := range cfg.Peers {
		if _, ok := peers[p.ID]; ok {
			return nil, fmt.Errorf("groupraft: duplicate peer id %d", p.ID)
		}
		peers[p.ID] = p.Address
		confState.Voters = append(confState.Voters, p.ID)
		raftPeers = append(raftPeers, raft.Peer{ID: p.ID, Context: []byte(p.Address)})
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &Node{
		ID:           cfg.ID,
		Peers:        peers,
		conf:         &confState,
		underlying:   raft.StartNode(raftCfg, raftPeers),
		storage:      storage,
		tickInterval: 100 * time.Millisecond,
		transport:    transport,
		roster:       make(map[int32]rosterState),
		proposals:    make(map[uuid.UUID]chan error),
		ctx:          ctx,
		stop:         cancel,
	}
	n.rosterCond = sync.NewCond(&n.rosterMu)
	return n, nil
}

// Run drives the raft event loop until ctx or the node itself is
// stopped. This shape — tick, drain Ready, Advance — is the contract
// go.etcd.io/etcd/raft/v3 imposes on every caller; the roster-specific
// behavior lives in applyEntry and WatchRoster below, not here.
func (n *Node) Run(ctx context.Context) error {
	ticker := time.NewTicker(n.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return n.ctx.Err()
		case <-ctx.Done():
			_ = n.Stop()
			return ctx.Err()
		case <-ticker.C:
			n.underlying.Tick()
		case rd := <-n.underlying.Ready():
			if err := n.handleReady(rd); err != nil {
				return err
			}
		}
	}
}

func (n *Node) handleReady(rd raft.Ready) error {
	if err := n.storage.Append(rd.Entries); err != nil {
		return fmt.Errorf("groupraft: append entries: %w", err)
	}

	for _, msg := range rd.Messages {
		if msg.To == n.ID {
			continue
		}
		msg := msg
		go func() {
			if err := n.transport.Send(msg); err != nil {
				slog.Error("groupraft: send failed", "from", msg.From, "to", msg.To, "type", msg.Type, "err", err)
			}
		}()
	}

	for _, entry := range rd.CommittedEntries {
		if err := n.applyEntry(entry); err != nil {
			slog.Error("groupraft: failed to apply entry", "err", err)
			return fmt.Errorf("groupraft: apply entry: %w", err)
		}
		if entry.Type == raftpb.EntryConfChange {
			var cc raftpb.ConfChange
			if err := cc.Unmarshal(entry.Data); err != nil {
				return fmt.Errorf("groupraft: unmarshal conf change: %w", err)
			}
			n.conf = n.underlying.ApplyConfChange(cc)
			switch cc.Type {
			case raftpb.ConfChangeAddNode:
				addr := string(cc.Context)
				n.Peers[cc.NodeID] = addr
				n.transport.AddPeer(cc.NodeID, addr)
			case raftpb.ConfChangeRemoveNode:
				delete(n.Peers, cc.NodeID)
				n.transport.RemovePeer(cc.NodeID)
			case raftpb.ConfChangeUpdateNode:
				addr := string(cc.Context)
				n.Peers[cc.NodeID] = addr
				n.transport.UpdatePeer(cc.NodeID, addr)
			}
		}
	}

	n.underlying.Advance()
	return nil
}

// applyEntry installs a committed RosterCmd into the roster table,
// bumps that group's version, wakes any WatchRoster loop blocked on
// it, and releases the proposer (if this node is the one that made
// the call to ProposeRoster).
func (n *Node) applyEntry(entry raftpb.Entry) error {
	if entry.Type != raftpb.EntryNormal || len(entry.Data) == 0 {
		return nil
	}
	var cmd RosterCmd
	if err := json.Unmarshal(entry.Data, &cmd); err != nil {
		return fmt.Errorf("groupraft: unmarshal roster cmd: %w", err)
	}

	n.rosterMu.Lock()
	cur := n.roster[cmd.Group]
	cur.states = cmd.States
	cur.version++
	n.roster[cmd.Group] = cur
	n.rosterMu.Unlock()
	n.rosterCond.Broadcast()

	n.proposalsMu.RLock()
	ch, ok := n.proposals[cmd.ID]
	n.proposalsMu.RUnlock()
	if ok {
		select {
		case ch <- nil:
		default:
		}
	}
	return nil
}

// IsLeader reports whether this node currently believes itself leader.
func (n *Node) IsLeader() bool {
	return n.underlying.Status().Lead == n.ID
}

// LeaderAddr returns the address of the currently known leader.
func (n *Node) LeaderAddr() string {
	return n.Peers[n.underlying.Status().Lead]
}

// ProposeRoster replicates a new ordered state list for group and
// waits for it to commit or ctx to expire.
func (n *Node) ProposeRoster(ctx context.Context, group int32, states []string) error {
	cmd := NewRosterCmd(group, states)
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("groupraft: marshal roster cmd: %w", err)
	}

	resultCh := make(chan error, 1)
	n.proposalsMu.Lock()
	n.proposals[cmd.ID] = resultCh
	n.proposalsMu.Unlock()
	defer func() {
		n.proposalsMu.Lock()
		delete(n.proposals, cmd.ID)
		n.proposalsMu.Unlock()
	}()

	if err := n.underlying.Propose(ctx, data); err != nil {
		return fmt.Errorf("groupraft: propose: %w", err)
	}

	select {
	case err := <-resultCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Roster returns the last committed ordered state list for group.
func (n *Node) Roster(group int32) []string {
	n.rosterMu.RLock()
	defer n.rosterMu.RUnlock()
	return append([]string(nil), n.roster[group].states...)
}

// WatchRoster runs until ctx is done, pushing every committed change
// to group's roster into router — the raft-backed counterpart to
// membership.ZKMembership.Watch, so a routing.Router can be kept in
// sync from either collaborator interchangeably.
func (n *Node) WatchRoster(ctx context.Context, router *routing.Router, group int32) {
	go func() {
		<-ctx.Done()
		n.rosterCond.Broadcast()
	}()

	go func() {
		var seen uint64
		for {
			n.rosterMu.Lock()
			for ctx.Err() == nil {
				if cur, ok := n.roster[group]; ok && cur.version != seen {
					break
				}
				n.rosterCond.Wait()
			}
			if ctx.Err() != nil {
				n.rosterMu.Unlock()
				return
			}
			cur := n.roster[group]
			seen = cur.version
			states := append([]string(nil), cur.states...)
			n.rosterMu.Unlock()
			router.SetGroupStates(group, states)
		}
	}()
}

// Handle steps an incoming raft message from a peer.
func (n *Node) Handle(ctx context.Context, msg raftpb.Message) error {
	return n.underlying.Step(ctx, msg)
}

// Stop tears the node down, unblocking any pending proposals and any
// blocked WatchRoster loop.
func (n *Node) Stop() error {
	n.underlying.Stop()
	n.stop()
	n.rosterCond.Broadcast()

	n.proposalsMu.Lock()
	for _, ch := range n.proposals {
		select {
		case ch <- fmt.Errorf("groupraft: node stopped"):
		default:
		}
		close(ch)
	}
	n.proposalsMu.Unlock()
	return nil
}

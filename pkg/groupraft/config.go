// Package groupraft replicates the ordered state list ("roster") for
// each replication group across a small consensus group of routing
// authorities, using go.etcd.io/etcd/raft/v3. It is the concrete
// backing for the "cluster membership, group state lists, and routing
// tables" collaborator spec.md 1 treats as external: every client
// observing this consensus group's committed log sees the same
// ordered roster per group, which route()/mix_states() then serve
// from.
package groupraft

import "go.etcd.io/etcd/raft/v3"

// PeerConfig identifies one voter in the routing-authority consensus
// group.
type PeerConfig struct {
	ID      uint64
	Address string
}

// Config configures a single Node's underlying raft.Config plus its
// peer set.
type Config struct {
	ID                        uint64
	ElectionTick              int
	HeartbeatTick             int
	MaxSizePerMsg             uint64
	MaxCommittedSizePerReady  uint64
	MaxUncommittedEntriesSize uint64
	MaxInflightMsgs           int
	CheckQuorum               bool
	PreVote                   bool
	Peers                     []PeerConfig
}

func toRaftConfig(c *Config, storage raft.Storage) *raft.Config {
	return &raft.Config{
		ID:                        c.ID,
		ElectionTick:              c.ElectionTick,
		HeartbeatTick:             c.HeartbeatTick,
		Storage:                   storage,
		MaxSizePerMsg:             c.MaxSizePerMsg,
		MaxCommittedSizePerReady:  c.MaxCommittedSizePerReady,
		MaxUncommittedEntriesSize: c.MaxUncommittedEntriesSize,
		MaxInflightMsgs:           c.MaxInflightMsgs,
		CheckQuorum:               c.CheckQuorum,
		PreVote:                   c.PreVote,
	}
}

// Default returns development-friendly tick settings.
func Default(id uint64, peers []PeerConfig) *Config {
	return &Config{
		ID:                        id,
		ElectionTick:              10,
		HeartbeatTick:             1,
		MaxSizePerMsg:             1024 * 1024,
		MaxCommittedSizePerReady:  16 * 1024 * 1024,
		MaxUncommittedEntriesSize: 1 << 30,
		MaxInflightMsgs:           256,
		CheckQuorum:               true,
		PreVote:                   true,
		Peers:                     peers,
	}
}

// Package membership tracks which node addresses currently serve each
// replication group, using ZooKeeper ephemeral nodes so a crashed
// state disappears from the roster automatically. It feeds
// pkg/routing.Router so route()/mix_states() observe a live view of
// the cluster, per spec.md 1's external "cluster membership, group
// state lists, and routing tables" collaborator.
package membership

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"

	"elliptics-go/pkg/routing"
)

// ZKMembership registers this node's presence in a group and watches
// the ensemble for roster changes, pushing updates into a Router.
type ZKMembership struct {
	conn     *zk.Conn
	rootPath string
	local    string
	log      *slog.Logger
}

// New connects to the given ZooKeeper ensemble. rootPath is the znode
// prefix under which group rosters live (e.g. "/elliptics"); local is
// this node's own address.
func New(servers []string, rootPath, local string, log *slog.Logger) (*ZKMembership, error) {
	conn, _, err := zk.Connect(servers, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("membership: zk connect: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &ZKMembership{conn: conn, rootPath: rootPath, local: local, log: log}, nil
}

// Close releases the ZooKeeper session.
func (m *ZKMembership) Close() error {
	m.conn.Close()
	return nil
}

func (m *ZKMembership) groupPath(group int32) string {
	return fmt.Sprintf("%s/groups/%d/states", m.rootPath, group)
}

func (m *ZKMembership) ensurePath(path string) error {
	cur := ""
	for _, p := range strings.Split(path, "/") {
		if p == "" {
			continue
		}
		cur += "/" + p
		exists, _, err := m.conn.Exists(cur)
		if err != nil {
			return err
		}
		if !exists {
			if _, err := m.conn.Create(cur, nil, 0, zk.WorldACL(zk.PermAll)); err != nil && err != zk.ErrNodeExists {
				return err
			}
		}
	}
	return nil
}

func (m *ZKMembership) waitConnected(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		switch m.conn.State() {
		case zk.StateConnected, zk.StateHasSession:
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("membership: zk not connected after %s", timeout)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// RegisterState creates an ephemeral znode advertising this node as a
// state serving group. It disappears automatically if the process
// dies or its session expires.
func (m *ZKMembership) RegisterState(group int32) error {
	if err := m.waitConnected(10 * time.Second); err != nil {
		return err
	}
	if err := m.ensurePath(m.groupPath(group)); err != nil {
		return fmt.Errorf("membership: ensure group path: %w", err)
	}
	nodePath := m.groupPath(group) + "/" + strconv.Quote(m.local)
	_, err := m.conn.Create(nodePath, nil, zk.FlagEphemeral, zk.WorldACL(zk.PermAll))
	if err != nil && err != zk.ErrNodeExists {
		return fmt.Errorf("membership: register state: %w", err)
	}
	m.log.Info("state registered", "group", group, "addr", m.local)
	return nil
}

func (m *ZKMembership) readStates(group int32) ([]string, error) {
	children, _, err := m.conn.Children(m.groupPath(group))
	if err != nil {
		return nil, fmt.Errorf("membership: children: %w", err)
	}
	out := make([]string, 0, len(children))
	for _, c := range children {
		if addr, err := strconv.Unquote(c); err == nil {
			out = append(out, addr)
		} else {
			out = append(out, c)
		}
	}
	return out, nil
}

// Watch runs until ctx is done, keeping router's roster for group in
// sync with the ZooKeeper-observed set of live states.
func (m *ZKMembership) Watch(ctx context.Context, router *routing.Router, group int32) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			children, _, ch, err := m.conn.ChildrenW(m.groupPath(group))
			if err != nil {
				m.log.Warn("watch children failed", "group", group, "err", err)
				time.Sleep(2 * time.Second)
				continue
			}
			addrs := make([]string, 0, len(children))
			for _, c := range children {
				if addr, err := strconv.Unquote(c); err == nil {
					addrs = append(addrs, addr)
				} else {
					addrs = append(addrs, c)
				}
			}
			router.SetGroupStates(group, addrs)
			m.log.Info("group roster updated", "group", group, "states", addrs)

			select {
			case <-ch:
			case <-ctx.Done():
				return
			}
		}
	}()
}

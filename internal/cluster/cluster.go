// Package cluster manages raft membership: adding voters, recording the API
// addresses of each member and telling followers where the leader is.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"

	"github.com/heysubinoy/etagkv/internal/store"
	"github.com/heysubinoy/etagkv/internal/wire"
)

var (
	ErrNotLeader   = errors.New("cluster: not the leader")
	ErrInvalidJoin = errors.New("cluster: join request needs an id and a raft address")
)

// Cluster is one node's view of the raft cluster.
type Cluster struct {
	raft   *raft.Raft
	fsm    *store.RaftStore
	self   store.Peer
	logger hclog.Logger
}

func New(r *raft.Raft, fsm *store.RaftStore, self store.Peer, logger hclog.Logger) *Cluster {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Cluster{raft: r, fsm: fsm, self: self, logger: logger}
}

// Self is the join request this node sends to the leader.
func (c *Cluster) Self() wire.JoinRequest {
	return wire.JoinRequest{
		ID:       c.self.ID,
		Addr:     c.self.RaftAddr,
		HTTPAddr: c.self.HTTPAddr,
		GRPCAddr: c.self.GRPCAddr,
	}
}

func (c *Cluster) IsLeader() bool {
	return c.raft.State() == raft.Leader
}

// Leader describes the current leader. The API addresses are empty until the
// leader has announced itself.
func (c *Cluster) Leader() (wire.LeaderInfo, bool) {
	addr, id := c.raft.LeaderWithID()
	if id == "" {
		return wire.LeaderInfo{}, false
	}
	info := wire.LeaderInfo{ID: string(id), Addr: string(addr), Term: c.term()}
	if p, ok := c.fsm.Peer(string(id)); ok {
		info.HTTPAddr = p.HTTPAddr
		info.GRPCAddr = p.GRPCAddr
	}
	return info, true
}

func (c *Cluster) term() uint64 {
	term, _ := strconv.ParseUint(c.raft.Stats()["term"], 10, 64)
	return term
}

// Join adds the node as a voter and records its addresses. Joining twice with
// the same id and address is a no-op for raft.
func (c *Cluster) Join(ctx context.Context, req wire.JoinRequest) error {
	if req.ID == "" || req.Addr == "" {
		return ErrInvalidJoin
	}
	if !c.IsLeader() {
		return ErrNotLeader
	}

	c.logger.Info("adding voter", "id", req.ID, "addr", req.Addr)
	f := c.raft.AddVoter(raft.ServerID(req.ID), raft.ServerAddress(req.Addr), 0, store.ApplyTimeout)
	if err := f.Error(); err != nil {
		if errors.Is(err, raft.ErrNotLeader) {
			return ErrNotLeader
		}
		return fmt.Errorf("cluster: add voter %q: %w", req.ID, err)
	}
	return c.fsm.RegisterPeer(ctx, store.Peer{
		ID:       req.ID,
		RaftAddr: req.Addr,
		HTTPAddr: req.HTTPAddr,
		GRPCAddr: req.GRPCAddr,
	})
}

// Announce records this node's own addresses once it leads. It returns nil
// without writing when another node leads.
func (c *Cluster) Announce(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if c.IsLeader() {
			if p, ok := c.fsm.Peer(c.self.ID); ok && p == c.self {
				return nil
			}
			err := c.fsm.RegisterPeer(ctx, c.self)
			if !errors.Is(err, raft.ErrNotLeader) {
				return err
			}
		} else if _, id := c.raft.LeaderWithID(); id != "" && string(id) != c.self.ID {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("cluster: announce: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

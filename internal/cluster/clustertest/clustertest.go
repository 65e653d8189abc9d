// Package clustertest starts in-memory raft clusters for tests.
package clustertest

import (
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"

	"github.com/heysubinoy/etagkv/internal/cluster"
	"github.com/heysubinoy/etagkv/internal/store"
	"github.com/heysubinoy/etagkv/pkg/kv"
)

// StoreName is the name the replicated store is registered under.
const StoreName = "statestore"

type Node struct {
	ID        string
	Addr      raft.ServerAddress
	Raft      *raft.Raft
	FSM       *store.RaftStore
	Stores    *kv.Registry
	Cluster   *cluster.Cluster
	Transport *raft.InmemTransport
}

// NewNode starts a raft node on an in-memory transport. Only a bootstrap node
// forms a cluster on its own; the others wait to be added.
func NewNode(t *testing.T, id, httpAddr, grpcAddr string, bootstrap bool) *Node {
	t.Helper()

	cfg := raft.DefaultConfig()
	cfg.LocalID = raft.ServerID(id)
	cfg.Logger = hclog.NewNullLogger()
	cfg.HeartbeatTimeout = 50 * time.Millisecond
	cfg.ElectionTimeout = 50 * time.Millisecond
	cfg.LeaderLeaseTimeout = 50 * time.Millisecond
	cfg.CommitTimeout = 5 * time.Millisecond

	fsm := store.NewRaftStore(store.NewMemStore())
	logs := raft.NewInmemStore()
	addr, transport := raft.NewInmemTransport("")

	r, err := raft.NewRaft(cfg, fsm, logs, logs, raft.NewInmemSnapshotStore(), transport)
	if err != nil {
		t.Fatalf("new raft %s: %v", id, err)
	}
	fsm.SetRaft(r)
	t.Cleanup(func() { _ = r.Shutdown().Error() })

	if bootstrap {
		f := r.BootstrapCluster(raft.Configuration{
			Servers: []raft.Server{{ID: cfg.LocalID, Address: addr}},
		})
		if err := f.Error(); err != nil {
			t.Fatalf("bootstrap %s: %v", id, err)
		}
	}

	registry := kv.NewRegistry()
	registry.Register(StoreName, fsm)

	self := store.Peer{ID: id, RaftAddr: string(addr), HTTPAddr: httpAddr, GRPCAddr: grpcAddr}
	return &Node{
		ID:        id,
		Addr:      addr,
		Raft:      r,
		FSM:       fsm,
		Stores:    registry,
		Cluster:   cluster.New(r, fsm, self, nil),
		Transport: transport,
	}
}

// Connect links every node's transport to every other node.
func Connect(nodes ...*Node) {
	for _, a := range nodes {
		for _, b := range nodes {
			if a != b {
				a.Transport.Connect(b.Addr, b.Transport)
			}
		}
	}
}

// WaitFor polls cond until it holds or five seconds pass.
func WaitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// StartPair returns an announced leader and a follower that joined it and
// already knows the leader's addresses.
func StartPair(t *testing.T) (leader, follower *Node) {
	t.Helper()

	leader = NewNode(t, "node1", "node1.test:8080", "node1.test:9090", true)
	follower = NewNode(t, "node2", "node2.test:8080", "node2.test:9090", false)
	Connect(leader, follower)

	WaitFor(t, "node1 to lead", leader.Cluster.IsLeader)
	if err := leader.Cluster.Announce(t.Context()); err != nil {
		t.Fatalf("announce: %v", err)
	}
	if err := leader.Cluster.Join(t.Context(), follower.Cluster.Self()); err != nil {
		t.Fatalf("join: %v", err)
	}
	WaitFor(t, "node2 to learn the leader", func() bool {
		info, ok := follower.Cluster.Leader()
		return ok && info.HTTPAddr != ""
	})
	return leader, follower
}

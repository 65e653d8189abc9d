package store

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// RaftOptions describes one raft node.
type RaftOptions struct {
	NodeID    string
	Addr      string
	DataDir   string
	Bootstrap bool
}

// RaftNode is a running raft instance and the bolt file behind it.
type RaftNode struct {
	Raft *raft.Raft

	boltStore *raftboltdb.BoltStore
}

// Close shuts raft down, which also closes its transport, then closes the
// bolt file.
func (n *RaftNode) Close() error {
	var result *multierror.Error
	if err := n.Raft.Shutdown().Error(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := n.boltStore.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// OpenRaft starts a raft node backed by boltdb for its log and stable store
// and file snapshots in DataDir. With Bootstrap set a fresh node forms a
// single-server cluster.
func OpenRaft(opts RaftOptions, fsm *RaftStore, logger hclog.Logger) (node *RaftNode, err error) {
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: ensure raft dir %q: %w", opts.DataDir, err)
	}

	cfg := raft.DefaultConfig()
	cfg.LocalID = raft.ServerID(opts.NodeID)
	cfg.Logger = logger

	boltStore, err := raftboltdb.NewBoltStore(filepath.Join(opts.DataDir, "raft.db"))
	if err != nil {
		return nil, fmt.Errorf("store: open bolt store: %w", err)
	}
	defer func() {
		if err != nil {
			boltStore.Close()
		}
	}()

	snapshots, err := raft.NewFileSnapshotStoreWithLogger(opts.DataDir, 2, logger)
	if err != nil {
		return nil, fmt.Errorf("store: open snapshot store: %w", err)
	}

	advertise, err := net.ResolveTCPAddr("tcp", opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("store: resolve raft addr %q: %w", opts.Addr, err)
	}
	transport, err := raft.NewTCPTransportWithLogger(opts.Addr, advertise, 3, 10*time.Second, logger)
	if err != nil {
		return nil, fmt.Errorf("store: raft transport: %w", err)
	}

	r, err := raft.NewRaft(cfg, fsm, boltStore, boltStore, snapshots, transport)
	if err != nil {
		transport.Close()
		return nil, fmt.Errorf("store: new raft: %w", err)
	}
	fsm.SetRaft(r)
	node = &RaftNode{Raft: r, boltStore: boltStore}

	if opts.Bootstrap {
		hasState, err := raft.HasExistingState(boltStore, boltStore, snapshots)
		if err != nil {
			r.Shutdown()
			return nil, err
		}
		if !hasState {
			f := r.BootstrapCluster(raft.Configuration{
				Servers: []raft.Server{{ID: cfg.LocalID, Address: transport.LocalAddr()}},
			})
			if err := f.Error(); err != nil {
				r.Shutdown()
				return nil, fmt.Errorf("store: bootstrap raft: %w", err)
			}
		}
	}
	return node, nil
}

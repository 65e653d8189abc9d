package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hashicorp/raft"

	"github.com/heysubinoy/etagkv/pkg/kv"
)

// ApplyTimeout bounds how long a write waits to be enqueued by raft.
const ApplyTimeout = 5 * time.Second

// ErrNoRaft is returned when a RaftStore is used before SetRaft.
var ErrNoRaft = errors.New("store: raft node not attached")

// GetRaft returns the attached raft node, nil before SetRaft.
func (rs *RaftStore) GetRaft() *raft.Raft {
	return rs.raft
}

// SetRaft attaches the raft node. The FSM has to exist before the node is
// created, so the two are wired after construction.
func (rs *RaftStore) SetRaft(r *raft.Raft) {
	rs.raft = r
}

// RaftCommand represents a compare-and-swap put or delete applied via Raft,
// or a peer registration. Next is minted by the leader before Apply so
// replays are deterministic.
type RaftCommand struct {
	Op     string `json:"op"` // "put", "delete" or "peer"
	Key    string `json:"key,omitempty"`
	Value  []byte `json:"value,omitempty"`
	Expect string `json:"expect,omitempty"`
	Next   string `json:"next,omitempty"`
	Peer   *Peer  `json:"peer,omitempty"`
}

// Peer holds the addresses of one cluster member. Peers are part of the
// replicated state so every node can point clients at the leader.
type Peer struct {
	ID       string `json:"id"`
	RaftAddr string `json:"raft_addr"`
	HTTPAddr string `json:"http_addr,omitempty"`
	GRPCAddr string `json:"grpc_addr,omitempty"`
}

type applyResult struct {
	etag string
	err  error
}

// RaftStore wraps a MemStore and applies changes via Raft consensus.
type RaftStore struct {
	store *MemStore
	raft  *raft.Raft

	mu    sync.RWMutex
	peers map[string]Peer
}

// Compile-time checks.
var (
	_ kv.Store            = (*RaftStore)(nil)
	_ kv.ConsistentReader = (*RaftStore)(nil)
	_ raft.FSM            = (*RaftStore)(nil)
)

func NewRaftStore(store *MemStore) *RaftStore {
	return &RaftStore{store: store, peers: make(map[string]Peer)}
}

// Apply applies a Raft log entry to the local store.
func (rs *RaftStore) Apply(log *raft.Log) interface{} {
	var cmd RaftCommand
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return applyResult{err: fmt.Errorf("store: decode raft command: %w", err)}
	}
	switch cmd.Op {
	case "put":
		etag, err := rs.store.put(cmd.Key, cmd.Value, cmd.Expect, cmd.Next)
		return applyResult{etag: etag, err: err}
	case "delete":
		return applyResult{err: rs.store.delete(cmd.Key, cmd.Expect)}
	case "peer":
		if cmd.Peer == nil || cmd.Peer.ID == "" {
			return applyResult{err: errors.New("store: peer command without id")}
		}
		rs.mu.Lock()
		rs.peers[cmd.Peer.ID] = *cmd.Peer
		rs.mu.Unlock()
		return applyResult{}
	default:
		return applyResult{err: fmt.Errorf("store: unknown raft op %q", cmd.Op)}
	}
}

// Snapshot captures the full map and the peer table; Restore replaces both.
func (rs *RaftStore) Snapshot() (raft.FSMSnapshot, error) {
	rs.mu.RLock()
	peers := make(map[string]Peer, len(rs.peers))
	for id, p := range rs.peers {
		peers[id] = p
	}
	rs.mu.RUnlock()
	return &mapSnapshot{Items: rs.store.snapshot(), Peers: peers}, nil
}

func (rs *RaftStore) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	var snap mapSnapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("store: restore snapshot: %w", err)
	}
	rs.store.restore(snap.Items)
	if snap.Peers == nil {
		snap.Peers = make(map[string]Peer)
	}
	rs.mu.Lock()
	rs.peers = snap.Peers
	rs.mu.Unlock()
	return nil
}

type mapSnapshot struct {
	Items map[string]kv.Item `json:"items"`
	Peers map[string]Peer    `json:"peers"`
}

func (m *mapSnapshot) Persist(sink raft.SnapshotSink) error {
	if err := json.NewEncoder(sink).Encode(m); err != nil {
		_ = sink.Cancel()
		return err
	}
	return sink.Close()
}

func (m *mapSnapshot) Release() {}

// Put submits a compare-and-swap put to Raft.
func (rs *RaftStore) Put(ctx context.Context, key string, value []byte, etag string) (string, error) {
	res, err := rs.apply(ctx, RaftCommand{Op: "put", Key: key, Value: value, Expect: etag, Next: kv.NewETag()})
	if err != nil {
		return "", err
	}
	return res.etag, res.err
}

// Delete submits a compare-and-swap delete to Raft.
func (rs *RaftStore) Delete(ctx context.Context, key string, etag string) error {
	res, err := rs.apply(ctx, RaftCommand{Op: "delete", Key: key, Expect: etag})
	if err != nil {
		return err
	}
	return res.err
}

// RegisterPeer records p in the replicated peer table.
func (rs *RaftStore) RegisterPeer(ctx context.Context, p Peer) error {
	res, err := rs.apply(ctx, RaftCommand{Op: "peer", Peer: &p})
	if err != nil {
		return err
	}
	return res.err
}

// Peer returns the addresses registered for id.
func (rs *RaftStore) Peer(id string) (Peer, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	p, ok := rs.peers[id]
	return p, ok
}

func (rs *RaftStore) apply(ctx context.Context, cmd RaftCommand) (applyResult, error) {
	if err := ctx.Err(); err != nil {
		return applyResult{}, err
	}
	if rs.raft == nil {
		return applyResult{}, ErrNoRaft
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return applyResult{}, err
	}
	f := rs.raft.Apply(data, ApplyTimeout)
	if err := f.Error(); err != nil {
		return applyResult{}, err
	}
	res, ok := f.Response().(applyResult)
	if !ok {
		return applyResult{}, fmt.Errorf("store: unexpected raft response %T", f.Response())
	}
	return res, nil
}

// Get reads directly from the local store.
func (rs *RaftStore) Get(ctx context.Context, key string) (kv.Item, bool, error) {
	return rs.store.Get(ctx, key)
}

// GetConsistent waits for the local FSM to catch up with every committed
// entry before a strong read. Only the leader can serve strong reads.
func (rs *RaftStore) GetConsistent(ctx context.Context, key string, consistency kv.Consistency) (kv.Item, bool, error) {
	if consistency == kv.ConsistencyStrong {
		if rs.raft == nil {
			return kv.Item{}, false, ErrNoRaft
		}
		if err := rs.raft.Barrier(ApplyTimeout).Error(); err != nil {
			return kv.Item{}, false, err
		}
	}
	return rs.store.Get(ctx, key)
}

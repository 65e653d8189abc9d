package store

import (
	"context"
	"sync"

	"github.com/heysubinoy/etagkv/pkg/kv"
)

type memEntry struct {
	value []byte
	etag  string
}

// MemStore is an in-memory implementation of the kv.Store interface.
// It uses a map protected by a RWMutex; the write lock is held across each
// compare-and-swap.
type MemStore struct {
	mu   sync.RWMutex
	data map[string]memEntry
}

// Compile-time check to ensure MemStore implements kv.Store.
var _ kv.Store = (*MemStore)(nil)

// NewMemStore creates and returns a new MemStore instance.
func NewMemStore() *MemStore {
	return &MemStore{
		data: make(map[string]memEntry),
	}
}

// Get retrieves a copy of the item stored under key.
func (s *MemStore) Get(ctx context.Context, key string) (kv.Item, bool, error) {
	if err := ctx.Err(); err != nil {
		return kv.Item{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[key]
	if !ok {
		return kv.Item{}, false, nil
	}
	return kv.Item{Key: key, Value: kv.Clone(e.value), ETag: e.etag}, true, nil
}

// Put stores value under key if etag is empty or matches the current version.
func (s *MemStore) Put(ctx context.Context, key string, value []byte, etag string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.put(key, value, etag, kv.NewETag())
}

// put applies a compare-and-swap with a caller-supplied next etag so that
// replicated replays stay deterministic.
func (s *MemStore) put(key string, value []byte, expect, next string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expect != "" {
		cur, ok := s.data[key]
		if !ok || cur.etag != expect {
			return "", kv.ErrETagMismatch
		}
	}
	s.data[key] = memEntry{value: kv.Clone(value), etag: next}
	return next, nil
}

// Delete removes key if etag is empty or matches the current version.
// Unconditional deletes of missing keys succeed.
func (s *MemStore) Delete(ctx context.Context, key string, etag string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.delete(key, etag)
}

func (s *MemStore) delete(key, expect string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expect != "" {
		cur, ok := s.data[key]
		if !ok || cur.etag != expect {
			return kv.ErrETagMismatch
		}
	}
	delete(s.data, key)
	return nil
}

// Len returns the number of stored keys.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// snapshot copies the whole map, used by RaftStore snapshots.
func (s *MemStore) snapshot() map[string]kv.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]kv.Item, len(s.data))
	for k, e := range s.data {
		out[k] = kv.Item{Key: k, Value: kv.Clone(e.value), ETag: e.etag}
	}
	return out
}

// restore replaces the whole map.
func (s *MemStore) restore(items map[string]kv.Item) {
	data := make(map[string]memEntry, len(items))
	for k, it := range items {
		data[k] = memEntry{value: it.Value, etag: it.ETag}
	}
	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
}

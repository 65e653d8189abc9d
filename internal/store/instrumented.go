package store

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/heysubinoy/etagkv/pkg/kv"
)

// Metrics holds timing statistics for store operations.
// Uses atomic operations for thread-safe updates without locks.
type Metrics struct {
	GetCount    atomic.Uint64
	PutCount    atomic.Uint64
	DeleteCount atomic.Uint64

	// Conditional operations that lost against a newer version.
	ConflictCount atomic.Uint64
	ErrorCount    atomic.Uint64

	// Cumulative latencies in nanoseconds
	GetLatencyNs    atomic.Uint64
	PutLatencyNs    atomic.Uint64
	DeleteLatencyNs atomic.Uint64
}

// InstrumentedStore wraps any kv.Store implementation with timing metrics.
// This pattern works for in-memory, SQLite and Raft-backed stores.
type InstrumentedStore struct {
	store   kv.Store
	metrics *Metrics
}

// Compile-time check to ensure InstrumentedStore implements kv.Store.
var (
	_ kv.Store            = (*InstrumentedStore)(nil)
	_ kv.ConsistentReader = (*InstrumentedStore)(nil)
)

// NewInstrumentedStore wraps a store with instrumentation.
func NewInstrumentedStore(store kv.Store) *InstrumentedStore {
	return &InstrumentedStore{
		store:   store,
		metrics: &Metrics{},
	}
}

// Unwrap returns the wrapped store.
func (s *InstrumentedStore) Unwrap() kv.Store {
	return s.store
}

// Get delegates to the wrapped store and records timing.
func (s *InstrumentedStore) Get(ctx context.Context, key string) (kv.Item, bool, error) {
	return s.GetConsistent(ctx, key, kv.ConsistencyEventual)
}

// GetConsistent passes the consistency through when the wrapped store
// supports it.
func (s *InstrumentedStore) GetConsistent(ctx context.Context, key string, consistency kv.Consistency) (kv.Item, bool, error) {
	start := time.Now()
	item, found, err := kv.Read(ctx, s.store, key, consistency)
	elapsed := time.Since(start).Nanoseconds()

	s.metrics.GetCount.Add(1)
	s.metrics.GetLatencyNs.Add(uint64(elapsed))
	s.record(err)

	return item, found, err
}

// Put delegates to the wrapped store and records timing.
func (s *InstrumentedStore) Put(ctx context.Context, key string, value []byte, etag string) (string, error) {
	start := time.Now()
	next, err := s.store.Put(ctx, key, value, etag)
	elapsed := time.Since(start).Nanoseconds()

	s.metrics.PutCount.Add(1)
	s.metrics.PutLatencyNs.Add(uint64(elapsed))
	s.record(err)

	return next, err
}

// Delete delegates to the wrapped store and records timing.
func (s *InstrumentedStore) Delete(ctx context.Context, key string, etag string) error {
	start := time.Now()
	err := s.store.Delete(ctx, key, etag)
	elapsed := time.Since(start).Nanoseconds()

	s.metrics.DeleteCount.Add(1)
	s.metrics.DeleteLatencyNs.Add(uint64(elapsed))
	s.record(err)

	return err
}

func (s *InstrumentedStore) record(err error) {
	switch {
	case err == nil:
	case errors.Is(err, kv.ErrETagMismatch):
		s.metrics.ConflictCount.Add(1)
	default:
		s.metrics.ErrorCount.Add(1)
	}
}

// GetMetrics returns a snapshot of current metrics.
func (s *InstrumentedStore) GetMetrics() MetricsSnapshot {
	getCount := s.metrics.GetCount.Load()
	putCount := s.metrics.PutCount.Load()
	deleteCount := s.metrics.DeleteCount.Load()

	return MetricsSnapshot{
		GetCount:         getCount,
		PutCount:         putCount,
		DeleteCount:      deleteCount,
		ConflictCount:    s.metrics.ConflictCount.Load(),
		ErrorCount:       s.metrics.ErrorCount.Load(),
		GetAvgLatency:    s.avgLatency(s.metrics.GetLatencyNs.Load(), getCount),
		PutAvgLatency:    s.avgLatency(s.metrics.PutLatencyNs.Load(), putCount),
		DeleteAvgLatency: s.avgLatency(s.metrics.DeleteLatencyNs.Load(), deleteCount),
	}
}

// ResetMetrics clears all metrics counters.
func (s *InstrumentedStore) ResetMetrics() {
	s.metrics.GetCount.Store(0)
	s.metrics.PutCount.Store(0)
	s.metrics.DeleteCount.Store(0)
	s.metrics.ConflictCount.Store(0)
	s.metrics.ErrorCount.Store(0)
	s.metrics.GetLatencyNs.Store(0)
	s.metrics.PutLatencyNs.Store(0)
	s.metrics.DeleteLatencyNs.Store(0)
}

func (s *InstrumentedStore) avgLatency(totalNs, count uint64) time.Duration {
	if count == 0 {
		return 0
	}
	return time.Duration(totalNs / count)
}

// MetricsSnapshot is a point-in-time view of metrics.
type MetricsSnapshot struct {
	GetCount         uint64
	PutCount         uint64
	DeleteCount      uint64
	ConflictCount    uint64
	ErrorCount       uint64
	GetAvgLatency    time.Duration
	PutAvgLatency    time.Duration
	DeleteAvgLatency time.Duration
}

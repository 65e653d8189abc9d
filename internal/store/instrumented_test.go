package store

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/heysubinoy/etagkv/internal/store/storetest"
)

func TestInstrumentedStore(t *testing.T) {
	s := NewInstrumentedStore(NewMemStore())

	storetest.SuiteStore(s, t)
	storetest.SuiteOptimisticLocking(s, t)
}

func TestInstrumentedStore_Counts(t *testing.T) {
	ctx := context.Background()
	s := NewInstrumentedStore(NewMemStore())

	etag, _ := s.Put(ctx, "k", []byte("v1"), "")
	_, _ = s.Put(ctx, "k", []byte("v2"), etag)
	_, _ = s.Put(ctx, "k", []byte("v3"), etag) // stale
	_, _, _ = s.Get(ctx, "k")
	_ = s.Delete(ctx, "k", "")

	got := s.GetMetrics()
	want := MetricsSnapshot{
		GetCount:      1,
		PutCount:      3,
		DeleteCount:   1,
		ConflictCount: 1,
	}
	ignoreLatency := cmpopts.IgnoreFields(MetricsSnapshot{}, "GetAvgLatency", "PutAvgLatency", "DeleteAvgLatency")
	if diff := cmp.Diff(want, got, ignoreLatency); diff != "" {
		t.Fatalf("metrics mismatch (-want +got):\n%s", diff)
	}

	s.ResetMetrics()
	if diff := cmp.Diff(MetricsSnapshot{}, s.GetMetrics()); diff != "" {
		t.Fatalf("expected zero metrics after reset (-want +got):\n%s", diff)
	}
}

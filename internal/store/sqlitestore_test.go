package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/heysubinoy/etagkv/internal/store/storetest"
)

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	storetest.SuiteStore(s, t)
	storetest.SuiteOptimisticLocking(s, t)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	etag, err := s.Put(ctx, "widget", []byte(`{"size":"small"}`), "")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s2.Close() })

	item, found, err := s2.Get(ctx, "widget")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found {
		t.Fatal("expected item to survive reopen")
	}
	if item.ETag != etag {
		t.Fatalf("expected etag %q, got %q", etag, item.ETag)
	}
	if string(item.Value) != `{"size":"small"}` {
		t.Fatalf("unexpected value %q", item.Value)
	}
}

func TestOpenSQLite_RequiresPath(t *testing.T) {
	if _, err := OpenSQLite("  "); err == nil {
		t.Fatal("expected error for blank path")
	}
}

package store

import (
	"context"
	"testing"

	"github.com/heysubinoy/etagkv/internal/store/storetest"
)

func TestMemStore(t *testing.T) {
	s := NewMemStore()

	storetest.SuiteStore(s, t)
	storetest.SuiteOptimisticLocking(s, t)
}

func TestMemStore_ValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	value := []byte("abc")
	if _, err := s.Put(ctx, "k", value, ""); err != nil {
		t.Fatalf("put: %v", err)
	}
	value[0] = 'X'

	item, _, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(item.Value) != "abc" {
		t.Fatalf("expected stored value to be unaffected, got %q", item.Value)
	}

	item.Value[0] = 'Y'
	again, _, _ := s.Get(ctx, "k")
	if string(again.Value) != "abc" {
		t.Fatalf("expected read copy to be detached, got %q", again.Value)
	}
}

func TestMemStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewMemStore()
	if _, err := s.Put(ctx, "k", []byte("v"), ""); err == nil {
		t.Fatal("expected error for canceled context")
	}
	if s.Len() != 0 {
		t.Fatalf("expected no writes, got %d keys", s.Len())
	}
}

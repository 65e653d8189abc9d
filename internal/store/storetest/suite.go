package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	. "github.com/fulldump/biff"

	"github.com/heysubinoy/etagkv/pkg/kv"
)

// SuiteStore checks the basic get/put/delete contract of a kv.Store.
func SuiteStore(s kv.Store, t *testing.T) {

	ctx := context.Background()

	t.Run("Get missing", func(t *testing.T) {
		item, found, err := s.Get(ctx, "missing")
		AssertNil(err)
		AssertFalse(found)
		AssertEqual(item.ETag, "")
	})

	var etag1 string

	t.Run("Put unconditional", func(t *testing.T) {
		etag, err := s.Put(ctx, "one", []byte("v1"), "")
		AssertNil(err)
		AssertTrue(etag != "")
		etag1 = etag
	})

	t.Run("Get returns value and etag", func(t *testing.T) {
		item, found, err := s.Get(ctx, "one")
		AssertNil(err)
		AssertTrue(found)
		AssertEqual(string(item.Value), "v1")
		AssertEqual(item.ETag, etag1)
	})

	t.Run("Put unconditional advances etag", func(t *testing.T) {
		etag, err := s.Put(ctx, "one", []byte("v2"), "")
		AssertNil(err)
		AssertTrue(etag != etag1)

		item, _, _ := s.Get(ctx, "one")
		AssertEqual(item.ETag, etag)
	})

	t.Run("Delete unconditional missing key", func(t *testing.T) {
		err := s.Delete(ctx, "never-existed", "")
		AssertNil(err)
	})

	t.Run("Delete unconditional", func(t *testing.T) {
		err := s.Delete(ctx, "one", "")
		AssertNil(err)

		_, found, err := s.Get(ctx, "one")
		AssertNil(err)
		AssertFalse(found)
	})

	t.Run("Concurrency", func(t *testing.T) {
		w := &sync.WaitGroup{}
		for i := 0; i < 50; i++ {
			w.Add(1)

			key := fmt.Sprintf("item-%d", i)

			_, err := s.Put(ctx, key, []byte(key), "")
			AssertNil(err)

			go func() {
				defer w.Done()
				_ = s.Delete(ctx, key, "")
			}()
		}

		w.Wait()
	})
}

// SuiteOptimisticLocking checks compare-and-swap semantics of a kv.Store.
func SuiteOptimisticLocking(s kv.Store, t *testing.T) {

	ctx := context.Background()

	t.Run("Stale etag put is rejected", func(t *testing.T) {
		e1, err := s.Put(ctx, "occ", []byte("v1"), "")
		AssertNil(err)

		e2, err := s.Put(ctx, "occ", []byte("v2"), e1)
		AssertNil(err)

		_, err = s.Put(ctx, "occ", []byte("v3"), e1)
		AssertTrue(errors.Is(err, kv.ErrETagMismatch))

		item, found, err := s.Get(ctx, "occ")
		AssertNil(err)
		AssertTrue(found)
		AssertEqual(string(item.Value), "v2")
		AssertEqual(item.ETag, e2)
	})

	t.Run("Conditional put on missing key is rejected", func(t *testing.T) {
		_, err := s.Put(ctx, "occ-missing", []byte("v"), "some-etag")
		AssertTrue(errors.Is(err, kv.ErrETagMismatch))

		_, found, err := s.Get(ctx, "occ-missing")
		AssertNil(err)
		AssertFalse(found)
	})

	t.Run("Stale etag delete is rejected", func(t *testing.T) {
		e1, err := s.Put(ctx, "occ-del", []byte("v1"), "")
		AssertNil(err)
		e2, err := s.Put(ctx, "occ-del", []byte("v2"), "")
		AssertNil(err)

		err = s.Delete(ctx, "occ-del", e1)
		AssertTrue(errors.Is(err, kv.ErrETagMismatch))

		item, found, _ := s.Get(ctx, "occ-del")
		AssertTrue(found)
		AssertEqual(item.ETag, e2)

		err = s.Delete(ctx, "occ-del", e2)
		AssertNil(err)

		_, found, _ = s.Get(ctx, "occ-del")
		AssertFalse(found)

		err = s.Delete(ctx, "occ-del", e2)
		AssertTrue(errors.Is(err, kv.ErrETagMismatch))
	})

	t.Run("Racers holding the same etag", func(t *testing.T) {
		e1, err := s.Put(ctx, "race", []byte("start"), "")
		AssertNil(err)

		racers := 20
		wins := int32(0)
		losses := int32(0)
		w := &sync.WaitGroup{}
		for i := 0; i < racers; i++ {
			w.Add(1)
			go func(i int) {
				defer w.Done()
				_, err := s.Put(ctx, "race", []byte(fmt.Sprintf("racer-%d", i)), e1)
				switch {
				case err == nil:
					atomic.AddInt32(&wins, 1)
				case errors.Is(err, kv.ErrETagMismatch):
					atomic.AddInt32(&losses, 1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		w.Wait()

		AssertEqual(wins, int32(1))
		AssertEqual(losses, int32(racers-1))
	})

	t.Run("Read-modify-write workers", func(t *testing.T) {
		_, err := s.Put(ctx, "counter", []byte("0"), "")
		AssertNil(err)

		workers := 20
		w := &sync.WaitGroup{}
		for i := 0; i < workers; i++ {
			w.Add(1)
			go func() {
				defer w.Done()
				for {
					item, _, err := s.Get(ctx, "counter")
					if err != nil {
						t.Errorf("get: %v", err)
						return
					}
					var n int
					fmt.Sscanf(string(item.Value), "%d", &n)
					_, err = s.Put(ctx, "counter", []byte(fmt.Sprint(n+1)), item.ETag)
					if errors.Is(err, kv.ErrETagMismatch) {
						continue
					}
					if err != nil {
						t.Errorf("put: %v", err)
					}
					return
				}
			}()
		}
		w.Wait()

		item, _, err := s.Get(ctx, "counter")
		AssertNil(err)
		AssertEqual(string(item.Value), fmt.Sprint(workers))
	})
}

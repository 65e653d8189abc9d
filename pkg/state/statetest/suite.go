// Package statetest holds end-to-end checks that any state.Transport wired to
// a working store must pass.
package statetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	. "github.com/fulldump/biff"

	"github.com/heysubinoy/etagkv/pkg/state"
)

type Widget struct {
	Size  string `json:"size"`
	Color string `json:"color"`
}

// SuiteWidget walks one key through the save, stale-save and delete cycle
// using the typed helpers.
func SuiteWidget(c *state.Client, store string, t *testing.T) {

	ctx := context.Background()
	key := "widget"

	var e1, e2, e3 state.ETag

	t.Run("Save without etag then read back", func(t *testing.T) {
		err := state.SaveState(ctx, c, store, key, Widget{Size: "small", Color: "yellow"})
		AssertNil(err)

		w, etag, err := state.GetStateAndETag[Widget](ctx, c, store, key)
		AssertNil(err)
		AssertEqual(w, Widget{Size: "small", Color: "yellow"})
		AssertTrue(etag.IsSet())
		e1 = etag
	})

	t.Run("Unconditional save advances etag", func(t *testing.T) {
		err := state.SaveState(ctx, c, store, key, Widget{Size: "small", Color: "orange"})
		AssertNil(err)

		w, etag, err := state.GetStateAndETag[Widget](ctx, c, store, key)
		AssertNil(err)
		AssertEqual(w.Color, "orange")
		AssertTrue(etag.IsSet())
		AssertFalse(etag.Equal(e1))
		e2 = etag
	})

	t.Run("Save with stale etag is rejected", func(t *testing.T) {
		ok, err := state.TrySaveState(ctx, c, store, key, Widget{Size: "small", Color: "purple"}, e1)
		AssertNil(err)
		AssertFalse(ok)

		w, etag, err := state.GetStateAndETag[Widget](ctx, c, store, key)
		AssertNil(err)
		AssertEqual(w.Color, "orange")
		AssertTrue(etag.Equal(e2))
	})

	t.Run("Save with current etag", func(t *testing.T) {
		ok, err := state.TrySaveState(ctx, c, store, key, Widget{Size: "small", Color: "purple"}, e2)
		AssertNil(err)
		AssertTrue(ok)

		w, etag, err := state.GetStateAndETag[Widget](ctx, c, store, key)
		AssertNil(err)
		AssertEqual(w.Color, "purple")
		AssertTrue(etag.IsSet())
		AssertFalse(etag.Equal(e2))
		e3 = etag
	})

	t.Run("Delete with stale etag is rejected", func(t *testing.T) {
		ok, err := c.TryDelete(ctx, store, key, e1)
		AssertNil(err)
		AssertFalse(ok)

		entry, err := c.GetStateAndETag(ctx, store, key)
		AssertNil(err)
		AssertTrue(entry.Found())
		AssertTrue(entry.ETag.Equal(e3))
		AssertEqual(string(entry.Value), `{"size":"small","color":"purple"}`)
	})

	t.Run("Delete with current etag", func(t *testing.T) {
		entry, err := c.GetStateAndETag(ctx, store, key)
		AssertNil(err)

		ok, err := c.TryDelete(ctx, store, key, entry.ETag)
		AssertNil(err)
		AssertTrue(ok)

		entry, err = c.GetStateAndETag(ctx, store, key)
		AssertNil(err)
		AssertFalse(entry.Found())
		AssertTrue(entry.Value == nil)
	})

	t.Run("Empty etag never reaches the store", func(t *testing.T) {
		ok, err := c.TrySave(ctx, store, key, []byte(`{}`), state.NewETag(""))
		AssertFalse(ok)
		AssertNotNil(err)

		entry, err := c.GetStateAndETag(ctx, store, key)
		AssertNil(err)
		AssertFalse(entry.Found())
	})

	t.Run("Conditional ops on a missing key", func(t *testing.T) {
		ok, err := c.TrySave(ctx, store, key, []byte(`{}`), e2)
		AssertNil(err)
		AssertFalse(ok)

		ok, err = c.TryDelete(ctx, store, key, e2)
		AssertNil(err)
		AssertFalse(ok)

		ok, err = c.TryDelete(ctx, store, key, state.NoETag)
		AssertNil(err)
		AssertTrue(ok)
	})
}

// SuiteRacers checks that of many writers holding the same etag exactly one
// wins, and that Mutate converges under contention.
func SuiteRacers(c *state.Client, store string, t *testing.T) {

	ctx := context.Background()

	t.Run("One winner per etag", func(t *testing.T) {
		key := "race"
		AssertNil(c.SaveState(ctx, store, key, []byte("0")))
		entry, err := c.GetStateAndETag(ctx, store, key)
		AssertNil(err)

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := c.TrySave(ctx, store, key, []byte("1"), entry.ETag)
				if err == nil && ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		AssertEqual(wins.Load(), int32(1))
	})

	t.Run("Mutate counter", func(t *testing.T) {
		key := "counter"
		const workers = 8
		AssertNil(state.SaveState(ctx, c, store, key, 0))

		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := state.Mutate(ctx, c, store, key, func(n *int) error {
					*n++
					return nil
				}, state.MutateOptions{MaxAttempts: 100})
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			AssertNil(err)
		}

		n, _, err := state.GetStateAndETag[int](ctx, c, store, key)
		AssertNil(err)
		AssertEqual(n, workers)
	})
}

package state_test

import (
	"context"
	"errors"
	"testing"

	"github.com/heysubinoy/etagkv/internal/store"
	"github.com/heysubinoy/etagkv/pkg/kv"
	"github.com/heysubinoy/etagkv/pkg/state"
	"github.com/heysubinoy/etagkv/pkg/transport/localtransport"
)

func newLocalClient(opts ...state.ClientOption) *state.Client {
	registry := kv.NewRegistry()
	registry.Register("statestore", store.NewMemStore())
	return state.NewClient(localtransport.New(registry), opts...)
}

type account struct {
	Owner   string `json:"owner"`
	Balance int    `json:"balance"`
}

func TestTypedRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newLocalClient()

	got, etag, err := state.GetStateAndETag[account](ctx, c, "statestore", "acct")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if got != (account{}) || etag.IsSet() {
		t.Fatalf("expected zero value and no etag, got %+v %s", got, etag)
	}

	if err := state.SaveState(ctx, c, "statestore", "acct", account{Owner: "ana", Balance: 10}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, etag, err = state.GetStateAndETag[account](ctx, c, "statestore", "acct")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != (account{Owner: "ana", Balance: 10}) || !etag.IsSet() {
		t.Fatalf("unexpected read %+v %s", got, etag)
	}
}

func TestTypedDecodeError(t *testing.T) {
	ctx := context.Background()
	c := newLocalClient()

	if err := c.SaveState(ctx, "statestore", "raw", []byte("not json")); err != nil {
		t.Fatalf("save: %v", err)
	}
	_, _, err := state.GetStateAndETag[account](ctx, c, "statestore", "raw")
	if err == nil {
		t.Fatal("expected decode error")
	}
}

func TestMutate(t *testing.T) {
	ctx := context.Background()
	c := newLocalClient()

	got, err := state.Mutate(ctx, c, "statestore", "acct", func(a *account) error {
		a.Owner = "ana"
		a.Balance += 5
		return nil
	}, state.MutateOptions{})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if got != (account{Owner: "ana", Balance: 5}) {
		t.Fatalf("unexpected result %+v", got)
	}

	got, err = state.Mutate(ctx, c, "statestore", "acct", func(a *account) error {
		a.Balance *= 2
		return nil
	}, state.MutateOptions{})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if got.Balance != 10 {
		t.Fatalf("expected balance 10, got %d", got.Balance)
	}
}

func TestMutate_RetriesAfterConflict(t *testing.T) {
	ctx := context.Background()
	c := newLocalClient()

	if err := state.SaveState(ctx, c, "statestore", "n", 1); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rounds := 0
	got, err := state.Mutate(ctx, c, "statestore", "n", func(n *int) error {
		rounds++
		if rounds == 1 {
			// Another writer sneaks in between our read and write.
			if err := state.SaveState(ctx, c, "statestore", "n", 100); err != nil {
				return err
			}
		}
		*n++
		return nil
	}, state.MutateOptions{})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if rounds != 2 {
		t.Fatalf("expected 2 rounds, got %d", rounds)
	}
	if got != 101 {
		t.Fatalf("expected 101, got %d", got)
	}
}

func TestMutate_TooManyConflicts(t *testing.T) {
	ctx := context.Background()
	c := newLocalClient()

	if err := state.SaveState(ctx, c, "statestore", "n", 0); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rounds := 0
	_, err := state.Mutate(ctx, c, "statestore", "n", func(n *int) error {
		rounds++
		*n++
		return state.SaveState(ctx, c, "statestore", "n", -1)
	}, state.MutateOptions{MaxAttempts: 3})
	if !errors.Is(err, state.ErrTooManyConflicts) {
		t.Fatalf("expected ErrTooManyConflicts, got %v", err)
	}
	if rounds != 3 {
		t.Fatalf("expected 3 rounds, got %d", rounds)
	}
}

func TestMutate_Errors(t *testing.T) {
	ctx := context.Background()
	c := newLocalClient()

	_, err := state.Mutate[int](ctx, c, "statestore", "n", nil, state.MutateOptions{})
	if !errors.Is(err, state.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}

	abort := errors.New("abort")
	_, err = state.Mutate(ctx, c, "statestore", "n", func(*int) error { return abort }, state.MutateOptions{})
	if !errors.Is(err, abort) {
		t.Fatalf("expected mutator error, got %v", err)
	}
	entry, _ := c.GetStateAndETag(ctx, "statestore", "n")
	if entry.Found() {
		t.Fatal("aborted mutate must not write")
	}
}

func TestClient_UnknownStore(t *testing.T) {
	c := newLocalClient()

	_, err := c.GetStateAndETag(context.Background(), "nope", "k")
	if !errors.Is(err, kv.ErrUnknownStore) {
		t.Fatalf("expected ErrUnknownStore, got %v", err)
	}
}

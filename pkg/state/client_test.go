package state_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/heysubinoy/etagkv/pkg/state"
)

// fakeTransport answers from canned results and counts calls.
type fakeTransport struct {
	mu sync.Mutex

	entry    state.Entry
	readErr  error
	writeErr error
	delErr   error

	reads   []state.ReadRequest
	writes  []state.WriteRequest
	deletes []state.DeleteRequest
}

func (f *fakeTransport) Read(_ context.Context, req state.ReadRequest) (state.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, req)
	return f.entry, f.readErr
}

func (f *fakeTransport) Write(_ context.Context, req state.WriteRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, req)
	return f.writeErr
}

func (f *fakeTransport) Delete(_ context.Context, req state.DeleteRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, req)
	return f.delErr
}

func (f *fakeTransport) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reads) + len(f.writes) + len(f.deletes)
}

// recorder keeps every event it observes.
type recorder struct {
	mu     sync.Mutex
	events []state.Event
}

func (r *recorder) Observe(_ context.Context, ev state.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.Duration = 0
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []state.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []state.EventKind
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func TestTrySave_EmptyETagIsRejectedBeforeDispatch(t *testing.T) {
	ft := &fakeTransport{}
	c := state.NewClient(ft)

	ok, err := c.TrySave(context.Background(), "store", "key", []byte("v"), state.NewETag(""))
	if ok {
		t.Fatal("expected false")
	}
	if !errors.Is(err, state.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	var argErr *state.ArgumentError
	if !errors.As(err, &argErr) || argErr.Param != "etag" {
		t.Fatalf("expected etag ArgumentError, got %#v", err)
	}
	if n := ft.calls(); n != 0 {
		t.Fatalf("expected no transport calls, got %d", n)
	}
}

func TestTryDelete_EmptyETagIsRejectedBeforeDispatch(t *testing.T) {
	ft := &fakeTransport{}
	c := state.NewClient(ft)

	ok, err := c.TryDelete(context.Background(), "store", "key", state.NewETag(""))
	if ok {
		t.Fatal("expected false")
	}
	if !errors.Is(err, state.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if n := ft.calls(); n != 0 {
		t.Fatalf("expected no transport calls, got %d", n)
	}
}

func TestClient_RequiresStoreAndKey(t *testing.T) {
	ctx := context.Background()
	ft := &fakeTransport{}
	c := state.NewClient(ft)

	cases := []struct {
		name  string
		store string
		key   string
		param string
	}{
		{name: "no store", store: "", key: "k", param: "store"},
		{name: "no key", store: "s", key: "", param: "key"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.GetStateAndETag(ctx, tc.store, tc.key)
			assertArgument(t, err, tc.param)

			_, err = c.TrySave(ctx, tc.store, tc.key, []byte("v"), state.NoETag)
			assertArgument(t, err, tc.param)

			_, err = c.TryDelete(ctx, tc.store, tc.key, state.NoETag)
			assertArgument(t, err, tc.param)
		})
	}
	if n := ft.calls(); n != 0 {
		t.Fatalf("expected no transport calls, got %d", n)
	}
}

func assertArgument(t *testing.T, err error, param string) {
	t.Helper()
	var argErr *state.ArgumentError
	if !errors.As(err, &argErr) {
		t.Fatalf("expected *ArgumentError, got %v", err)
	}
	if argErr.Param != param {
		t.Fatalf("expected param %q, got %q", param, argErr.Param)
	}
}

func TestGetStateAndETag_Found(t *testing.T) {
	ft := &fakeTransport{entry: state.Entry{Value: []byte("hello"), ETag: state.NewETag("v1")}}
	rec := &recorder{}
	c := state.NewClient(ft, state.WithObserver(rec))

	entry, err := c.GetStateAndETag(context.Background(), "store", "key",
		state.WithConsistency(state.ConsistencyStrong),
		state.WithMetadata(map[string]string{"tenant": "a"}),
	)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	want := state.Entry{Store: "store", Key: "key", Value: []byte("hello"), ETag: state.NewETag("v1")}
	if diff := cmp.Diff(want, entry, cmp.Comparer(state.ETag.Equal)); diff != "" {
		t.Fatalf("entry mismatch (-want +got):\n%s", diff)
	}
	if got := ft.reads[0].Consistency; got != state.ConsistencyStrong {
		t.Fatalf("expected strong read, got %s", got)
	}
	if got := ft.reads[0].Metadata["tenant"]; got != "a" {
		t.Fatalf("expected metadata to be forwarded, got %q", got)
	}
	if diff := cmp.Diff([]state.EventKind{state.EventAttempt, state.EventSuccess}, rec.kinds()); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestGetStateAndETag_NotFound(t *testing.T) {
	ft := &fakeTransport{entry: state.Entry{Value: []byte("ignored")}}
	rec := &recorder{}
	c := state.NewClient(ft, state.WithObserver(rec))

	entry, err := c.GetStateAndETag(context.Background(), "store", "missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry.Found() || entry.Value != nil || entry.ETag.IsSet() {
		t.Fatalf("expected empty entry, got %+v", entry)
	}
	if entry.Store != "store" || entry.Key != "missing" {
		t.Fatalf("expected store and key to be kept, got %+v", entry)
	}
	if diff := cmp.Diff([]state.EventKind{state.EventAttempt, state.EventNotFound}, rec.kinds()); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestGetStateAndETag_TransportError(t *testing.T) {
	boom := errors.New("boom")
	ft := &fakeTransport{readErr: boom}
	c := state.NewClient(ft)

	_, err := c.GetStateAndETag(context.Background(), "store", "key")
	if !errors.Is(err, boom) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestTrySave_Outcomes(t *testing.T) {
	boom := errors.New("connection refused")

	cases := []struct {
		name     string
		writeErr error
		wantOK   bool
		wantErr  error
		wantKind state.EventKind
	}{
		{name: "success", writeErr: nil, wantOK: true, wantKind: state.EventSuccess},
		{name: "conflict", writeErr: state.ErrVersionConflict, wantOK: false, wantKind: state.EventConflict},
		{name: "wrapped conflict", writeErr: errors.Join(errors.New("412"), state.ErrVersionConflict), wantOK: false, wantKind: state.EventConflict},
		{name: "failure", writeErr: boom, wantOK: false, wantErr: boom, wantKind: state.EventFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ft := &fakeTransport{writeErr: tc.writeErr}
			rec := &recorder{}
			c := state.NewClient(ft, state.WithObserver(rec))

			ok, err := c.TrySave(context.Background(), "store", "key", []byte("v"), state.NewETag("e1"))
			if ok != tc.wantOK {
				t.Fatalf("expected ok=%v, got %v", tc.wantOK, ok)
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected error %v, got %v", tc.wantErr, err)
			}
			if tc.wantErr == nil && err != nil {
				t.Fatalf("expected nil error, got %v", err)
			}
			if got := ft.writes[0].ETag; !got.Equal(state.NewETag("e1")) {
				t.Fatalf("expected etag e1 to be forwarded, got %s", got)
			}
			kinds := rec.kinds()
			if kinds[len(kinds)-1] != tc.wantKind {
				t.Fatalf("expected last event %s, got %s", tc.wantKind, kinds[len(kinds)-1])
			}
		})
	}
}

func TestTryDelete_Outcomes(t *testing.T) {
	boom := errors.New("timeout")

	ft := &fakeTransport{}
	c := state.NewClient(ft)
	ok, err := c.TryDelete(context.Background(), "store", "key", state.NoETag)
	if !ok || err != nil {
		t.Fatalf("expected unconditional delete to succeed, got %v %v", ok, err)
	}

	ft.delErr = state.ErrVersionConflict
	ok, err = c.TryDelete(context.Background(), "store", "key", state.NewETag("stale"))
	if ok || err != nil {
		t.Fatalf("expected conflict to be (false, nil), got %v %v", ok, err)
	}

	ft.delErr = boom
	ok, err = c.TryDelete(context.Background(), "store", "key", state.NewETag("e1"))
	if ok || !errors.Is(err, boom) {
		t.Fatalf("expected transport error, got %v %v", ok, err)
	}
}

func TestClient_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ft := &fakeTransport{}
	c := state.NewClient(ft)

	if _, err := c.GetStateAndETag(ctx, "s", "k"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := c.TrySave(ctx, "s", "k", nil, state.NoETag); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := c.TryDelete(ctx, "s", "k", state.NoETag); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if n := ft.calls(); n != 0 {
		t.Fatalf("expected no transport calls, got %d", n)
	}
}

func TestClient_SaveAndDeleteStateAreUnconditional(t *testing.T) {
	ft := &fakeTransport{}
	c := state.NewClient(ft)

	if err := c.SaveState(context.Background(), "s", "k", []byte("v")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := c.DeleteState(context.Background(), "s", "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ft.writes[0].ETag.IsSet() || ft.deletes[0].ETag.IsSet() {
		t.Fatal("expected no etag on unconditional calls")
	}
}

func TestObservers_FanOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	var calls int
	fn := state.ObserverFunc(func(context.Context, state.Event) { calls++ })

	c := state.NewClient(&fakeTransport{}, state.WithObserver(state.Observers{a, b, fn}))
	_, _ = c.TrySave(context.Background(), "s", "k", nil, state.NoETag)

	if len(a.events) != 2 || len(b.events) != 2 || calls != 2 {
		t.Fatalf("expected 2 events each, got %d %d %d", len(a.events), len(b.events), calls)
	}
	if a.events[1].Op != state.OpSave || a.events[1].Store != "s" || a.events[1].Key != "k" {
		t.Fatalf("unexpected event %+v", a.events[1])
	}
}

func TestEventKind_String(t *testing.T) {
	want := map[state.EventKind]string{
		state.EventAttempt:  "attempt",
		state.EventSuccess:  "success",
		state.EventConflict: "conflict",
		state.EventNotFound: "not_found",
		state.EventFailure:  "failure",
		state.EventKind(99): "unknown",
	}
	for k, s := range want {
		if k.String() != s {
			t.Errorf("%d: expected %q, got %q", int(k), s, k.String())
		}
	}
}

func TestParseConsistency(t *testing.T) {
	for in, want := range map[string]state.Consistency{
		"":         state.ConsistencyEventual,
		"eventual": state.ConsistencyEventual,
		"strong":   state.ConsistencyStrong,
	} {
		got, ok := state.ParseConsistency(in)
		if !ok || got != want {
			t.Errorf("%q: expected %s, got %s (ok=%v)", in, want, got, ok)
		}
	}
	if _, ok := state.ParseConsistency("linearizable"); ok {
		t.Error("expected unknown consistency to be rejected")
	}
}

package state

import (
	"context"
	"time"
)

type EventKind int

const (
	EventAttempt EventKind = iota
	EventSuccess
	EventConflict
	EventNotFound
	EventFailure
)

func (k EventKind) String() string {
	switch k {
	case EventAttempt:
		return "attempt"
	case EventSuccess:
		return "success"
	case EventConflict:
		return "conflict"
	case EventNotFound:
		return "not_found"
	case EventFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Operation names used in events.
const (
	OpGet    = "get"
	OpSave   = "save"
	OpDelete = "delete"
)

// Event describes one step of a client operation. Duration is zero for
// EventAttempt.
type Event struct {
	Kind     EventKind
	Op       string
	Store    string
	Key      string
	ETag     ETag
	Err      error
	Duration time.Duration
}

// Observer receives structured events from Client. Implementations must be
// safe for concurrent use and should not block.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) Observe(ctx context.Context, ev Event) {
	f(ctx, ev)
}

// Observers fans every event out to each observer in order.
type Observers []Observer

func (os Observers) Observe(ctx context.Context, ev Event) {
	for _, o := range os {
		o.Observe(ctx, ev)
	}
}

type nopObserver struct{}

func (nopObserver) Observe(context.Context, Event) {}

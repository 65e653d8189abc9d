package observe

import (
	"context"
	"sync/atomic"

	"github.com/heysubinoy/etagkv/pkg/state"
)

// Counters tallies client outcomes with atomic counters.
type Counters struct {
	attempts  atomic.Uint64
	successes atomic.Uint64
	conflicts atomic.Uint64
	notFound  atomic.Uint64
	failures  atomic.Uint64
}

var _ state.Observer = (*Counters)(nil)

func (c *Counters) Observe(_ context.Context, ev state.Event) {
	switch ev.Kind {
	case state.EventAttempt:
		c.attempts.Add(1)
	case state.EventSuccess:
		c.successes.Add(1)
	case state.EventConflict:
		c.conflicts.Add(1)
	case state.EventNotFound:
		c.notFound.Add(1)
	case state.EventFailure:
		c.failures.Add(1)
	}
}

// CountersSnapshot is a point-in-time view of Counters.
type CountersSnapshot struct {
	Attempts  uint64
	Successes uint64
	Conflicts uint64
	NotFound  uint64
	Failures  uint64
}

func (c *Counters) Snapshot() CountersSnapshot {
	return CountersSnapshot{
		Attempts:  c.attempts.Load(),
		Successes: c.successes.Load(),
		Conflicts: c.conflicts.Load(),
		NotFound:  c.notFound.Load(),
		Failures:  c.failures.Load(),
	}
}

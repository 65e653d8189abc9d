// Package observe provides state.Observer implementations for logging,
// tracing and counting client operations.
package observe

import (
	"context"

	"github.com/hashicorp/go-hclog"

	"github.com/heysubinoy/etagkv/pkg/state"
)

// LogObserver writes one hclog line per event. Attempts and successes are
// logged at debug, conflicts at info, failures at error.
type LogObserver struct {
	logger hclog.Logger
}

var _ state.Observer = (*LogObserver)(nil)

func NewLogObserver(logger hclog.Logger) *LogObserver {
	return &LogObserver{logger: logger.Named("state")}
}

func (o *LogObserver) Observe(_ context.Context, ev state.Event) {
	args := []interface{}{"op", ev.Op, "store", ev.Store, "key", ev.Key, "etag", ev.ETag.String()}
	if ev.Kind != state.EventAttempt {
		args = append(args, "duration", ev.Duration)
	}

	switch ev.Kind {
	case state.EventAttempt:
		o.logger.Debug("attempt", args...)
	case state.EventSuccess:
		o.logger.Debug("success", args...)
	case state.EventNotFound:
		o.logger.Debug("not found", args...)
	case state.EventConflict:
		o.logger.Info("version conflict", args...)
	case state.EventFailure:
		o.logger.Error("failure", append(args, "error", ev.Err)...)
	}
}

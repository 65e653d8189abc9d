// Command etags-example walks a widget through optimistic concurrency with
// etags: blind writes, a stale write, a guarded write and guarded deletes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/heysubinoy/etagkv/internal/logging"
	"github.com/heysubinoy/etagkv/internal/store"
	"github.com/heysubinoy/etagkv/pkg/kv"
	"github.com/heysubinoy/etagkv/pkg/state"
	"github.com/heysubinoy/etagkv/pkg/state/observe"
	"github.com/heysubinoy/etagkv/pkg/transport/grpctransport"
	"github.com/heysubinoy/etagkv/pkg/transport/httptransport"
	"github.com/heysubinoy/etagkv/pkg/transport/localtransport"
)

const (
	storeName = "statestore"
	widgetKey = "widget"
)

type Widget struct {
	Size  string `json:"size"`
	Color string `json:"color"`
}

func main() {
	addr := flag.String("addr", "", "HTTP base URL of a state server; runs in-process when empty")
	grpcAddr := flag.String("grpc-addr", "", "gRPC address of a state server, used instead of -addr")
	storeFlag := flag.String("store", storeName, "store name")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger := logging.New("etags-example", *logLevel)

	transport, closeTransport, err := newTransport(*addr, *grpcAddr, *storeFlag, logger)
	if err != nil {
		logger.Error("transport setup failed", "error", err)
		os.Exit(1)
	}
	defer closeTransport()

	counters := &observe.Counters{}
	client := state.NewClient(transport, state.WithObserver(state.Observers{
		observe.NewLogObserver(logger),
		counters,
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := run(ctx, client, *storeFlag, logger); err != nil {
		logger.Error("example failed", "error", err)
		os.Exit(1)
	}
	snap := counters.Snapshot()
	logger.Info("done", "attempts", snap.Attempts, "successes", snap.Successes, "conflicts", snap.Conflicts)
}

func newTransport(addr, grpcAddr, name string, logger hclog.Logger) (state.Transport, func(), error) {
	switch {
	case grpcAddr != "":
		tr, err := grpctransport.Dial(grpcAddr)
		if err != nil {
			return nil, nil, err
		}
		return tr, func() { tr.Close() }, nil
	case addr != "":
		tr, err := httptransport.New(addr, httptransport.Options{Logger: logger})
		if err != nil {
			return nil, nil, err
		}
		return tr, func() {}, nil
	default:
		registry := kv.NewRegistry()
		registry.Register(name, store.NewMemStore())
		return localtransport.New(registry), func() {}, nil
	}
}

var errUnexpected = errors.New("unexpected outcome")

func run(ctx context.Context, c *state.Client, storeName string, logger hclog.Logger) error {
	widget := Widget{Size: "small", Color: "yellow"}
	if err := state.SaveState(ctx, c, storeName, widgetKey, widget); err != nil {
		return err
	}
	got, e1, err := state.GetStateAndETag[Widget](ctx, c, storeName, widgetKey)
	if err != nil {
		return err
	}
	logger.Info("saved without etag", "widget", fmt.Sprintf("%+v", got), "etag", e1.String())

	widget.Color = "orange"
	if err := state.SaveState(ctx, c, storeName, widgetKey, widget); err != nil {
		return err
	}
	got, e2, err := state.GetStateAndETag[Widget](ctx, c, storeName, widgetKey)
	if err != nil {
		return err
	}
	logger.Info("saved again without etag", "widget", fmt.Sprintf("%+v", got), "etag", e2.String())
	if e1.Equal(e2) {
		return fmt.Errorf("%w: etag did not change after save", errUnexpected)
	}

	widget.Color = "purple"
	ok, err := state.TrySaveState(ctx, c, storeName, widgetKey, widget, e1)
	if err != nil {
		return err
	}
	logger.Info("save with stale etag", "etag", e1.String(), "saved", ok)
	if ok {
		return fmt.Errorf("%w: save with stale etag succeeded", errUnexpected)
	}

	ok, err = state.TrySaveState(ctx, c, storeName, widgetKey, widget, e2)
	if err != nil {
		return err
	}
	logger.Info("save with current etag", "etag", e2.String(), "saved", ok)
	if !ok {
		return fmt.Errorf("%w: save with current etag failed", errUnexpected)
	}

	ok, err = c.TryDelete(ctx, storeName, widgetKey, e1)
	if err != nil {
		return err
	}
	logger.Info("delete with stale etag", "etag", e1.String(), "deleted", ok)
	if ok {
		return fmt.Errorf("%w: delete with stale etag succeeded", errUnexpected)
	}

	empty := state.NewETag("")
	_, err = state.TrySaveState(ctx, c, storeName, widgetKey, widget, empty)
	if !errors.Is(err, state.ErrInvalidArgument) {
		return fmt.Errorf("%w: save with empty etag returned %v", errUnexpected, err)
	}
	logger.Info("save with empty etag rejected", "error", err)

	_, err = c.TryDelete(ctx, storeName, widgetKey, empty)
	if !errors.Is(err, state.ErrInvalidArgument) {
		return fmt.Errorf("%w: delete with empty etag returned %v", errUnexpected, err)
	}
	logger.Info("delete with empty etag rejected", "error", err)

	entry, err := c.GetStateAndETag(ctx, storeName, widgetKey)
	if err != nil {
		return err
	}
	ok, err = c.TryDelete(ctx, storeName, widgetKey, entry.ETag)
	if err != nil {
		return err
	}
	logger.Info("delete with current etag", "etag", entry.ETag.String(), "deleted", ok)
	if !ok {
		return fmt.Errorf("%w: delete with current etag failed", errUnexpected)
	}

	entry, err = c.GetStateAndETag(ctx, storeName, widgetKey)
	if err != nil {
		return err
	}
	if entry.Found() {
		return fmt.Errorf("%w: widget still present after delete", errUnexpected)
	}
	logger.Info("widget gone")
	return nil
}

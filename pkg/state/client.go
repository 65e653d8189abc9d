package state

import (
	"context"
	"errors"
	"time"
)

// Client performs etag-guarded reads, writes and deletes through a Transport.
// It keeps no state besides the transport and observer and is safe for
// concurrent use.
type Client struct {
	transport Transport
	observer  Observer
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithObserver attaches an observer for operation events.
func WithObserver(o Observer) ClientOption {
	return func(c *Client) {
		if o != nil {
			c.observer = o
		}
	}
}

// NewClient creates a client over transport.
func NewClient(transport Transport, opts ...ClientOption) *Client {
	c := &Client{
		transport: transport,
		observer:  nopObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetStateAndETag reads key from store. A missing key is not an error: the
// returned Entry has a nil Value and no ETag.
func (c *Client) GetStateAndETag(ctx context.Context, store, key string, opts ...Option) (Entry, error) {
	if err := validateKey(OpGet, store, key); err != nil {
		return Entry{}, err
	}
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	o := applyOptions(opts)

	start := c.begin(ctx, OpGet, store, key, NoETag)
	entry, err := c.transport.Read(ctx, ReadRequest{
		Store:       store,
		Key:         key,
		Consistency: o.consistency,
		Metadata:    o.metadata,
	})
	if err != nil {
		c.end(ctx, start, EventFailure, OpGet, store, key, NoETag, err)
		return Entry{}, err
	}
	entry.Store, entry.Key = store, key
	if !entry.ETag.IsSet() {
		c.end(ctx, start, EventNotFound, OpGet, store, key, NoETag, nil)
		return Entry{Store: store, Key: key}, nil
	}
	c.end(ctx, start, EventSuccess, OpGet, store, key, entry.ETag, nil)
	return entry, nil
}

// TrySave writes value under key. Without an etag the write is an
// unconditional upsert. With an etag it only succeeds when the etag matches
// the store's current version; a mismatch returns false and a nil error.
// A present but empty etag is an *ArgumentError.
func (c *Client) TrySave(ctx context.Context, store, key string, value []byte, etag ETag, opts ...Option) (bool, error) {
	if err := validateKey(OpSave, store, key); err != nil {
		return false, err
	}
	if !etag.valid() {
		return false, &ArgumentError{Op: OpSave, Param: "etag", Reason: "must not be empty"}
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	o := applyOptions(opts)

	start := c.begin(ctx, OpSave, store, key, etag)
	err := c.transport.Write(ctx, WriteRequest{
		Store:    store,
		Key:      key,
		Value:    value,
		ETag:     etag,
		Metadata: o.metadata,
	})
	return c.settle(ctx, start, OpSave, store, key, etag, err)
}

// TryDelete removes key. Without an etag the delete is unconditional and
// succeeds even when the key does not exist. With an etag it only succeeds
// when the etag matches; a mismatch or a missing key returns false and a nil
// error. A present but empty etag is an *ArgumentError.
func (c *Client) TryDelete(ctx context.Context, store, key string, etag ETag, opts ...Option) (bool, error) {
	if err := validateKey(OpDelete, store, key); err != nil {
		return false, err
	}
	if !etag.valid() {
		return false, &ArgumentError{Op: OpDelete, Param: "etag", Reason: "must not be empty"}
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	o := applyOptions(opts)

	start := c.begin(ctx, OpDelete, store, key, etag)
	err := c.transport.Delete(ctx, DeleteRequest{
		Store:    store,
		Key:      key,
		ETag:     etag,
		Metadata: o.metadata,
	})
	return c.settle(ctx, start, OpDelete, store, key, etag, err)
}

// SaveState writes value unconditionally.
func (c *Client) SaveState(ctx context.Context, store, key string, value []byte, opts ...Option) error {
	_, err := c.TrySave(ctx, store, key, value, NoETag, opts...)
	return err
}

// DeleteState deletes key unconditionally.
func (c *Client) DeleteState(ctx context.Context, store, key string, opts ...Option) error {
	_, err := c.TryDelete(ctx, store, key, NoETag, opts...)
	return err
}

func (c *Client) settle(ctx context.Context, start time.Time, op, store, key string, etag ETag, err error) (bool, error) {
	switch {
	case err == nil:
		c.end(ctx, start, EventSuccess, op, store, key, etag, nil)
		return true, nil
	case errors.Is(err, ErrVersionConflict):
		c.end(ctx, start, EventConflict, op, store, key, etag, nil)
		return false, nil
	default:
		c.end(ctx, start, EventFailure, op, store, key, etag, err)
		return false, err
	}
}

func (c *Client) begin(ctx context.Context, op, store, key string, etag ETag) time.Time {
	c.observer.Observe(ctx, Event{Kind: EventAttempt, Op: op, Store: store, Key: key, ETag: etag})
	return time.Now()
}

func (c *Client) end(ctx context.Context, start time.Time, kind EventKind, op, store, key string, etag ETag, err error) {
	c.observer.Observe(ctx, Event{
		Kind:     kind,
		Op:       op,
		Store:    store,
		Key:      key,
		ETag:     etag,
		Err:      err,
		Duration: time.Since(start),
	})
}

func validateKey(op, store, key string) error {
	if store == "" {
		return &ArgumentError{Op: op, Param: "store", Reason: "is required"}
	}
	if key == "" {
		return &ArgumentError{Op: op, Param: "key", Reason: "is required"}
	}
	return nil
}

// Package localtransport connects a state.Client directly to kv stores in the
// same process. Concurrency is whatever the registered stores provide; all
// stores in this module are safe for concurrent use.
package localtransport

import (
	"context"
	"errors"

	"github.com/heysubinoy/etagkv/pkg/kv"
	"github.com/heysubinoy/etagkv/pkg/state"
)

type Transport struct {
	registry *kv.Registry
}

var _ state.Transport = (*Transport)(nil)

func New(registry *kv.Registry) *Transport {
	return &Transport{registry: registry}
}

func (t *Transport) Read(ctx context.Context, req state.ReadRequest) (state.Entry, error) {
	s, err := t.registry.Lookup(req.Store)
	if err != nil {
		return state.Entry{}, err
	}
	item, found, err := kv.Read(ctx, s, req.Key, kv.Consistency(req.Consistency))
	if err != nil {
		return state.Entry{}, err
	}
	if !found {
		return state.Entry{Store: req.Store, Key: req.Key}, nil
	}
	return state.Entry{
		Store: req.Store,
		Key:   req.Key,
		Value: item.Value,
		ETag:  state.NewETag(item.ETag),
	}, nil
}

func (t *Transport) Write(ctx context.Context, req state.WriteRequest) error {
	s, err := t.registry.Lookup(req.Store)
	if err != nil {
		return err
	}
	_, err = s.Put(ctx, req.Key, req.Value, req.ETag.Token())
	return translate(err)
}

func (t *Transport) Delete(ctx context.Context, req state.DeleteRequest) error {
	s, err := t.registry.Lookup(req.Store)
	if err != nil {
		return err
	}
	return translate(s.Delete(ctx, req.Key, req.ETag.Token()))
}

func translate(err error) error {
	if errors.Is(err, kv.ErrETagMismatch) {
		return state.ErrVersionConflict
	}
	return err
}

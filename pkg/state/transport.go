package state

import (
	"context"
)

// Consistency is the read freshness requested from the store.
type Consistency int

const (
	ConsistencyEventual Consistency = iota
	ConsistencyStrong
)

func (c Consistency) String() string {
	switch c {
	case ConsistencyStrong:
		return "strong"
	default:
		return "eventual"
	}
}

// ParseConsistency maps "strong" and "eventual" (or "") to a Consistency.
func ParseConsistency(s string) (Consistency, bool) {
	switch s {
	case "", "eventual":
		return ConsistencyEventual, true
	case "strong":
		return ConsistencyStrong, true
	default:
		return ConsistencyEventual, false
	}
}

// Entry is one key read from a store. An Entry with a nil Value and no ETag
// means the key was not found.
type Entry struct {
	Store string
	Key   string
	Value []byte
	ETag  ETag
}

// Found reports whether the read hit an existing key.
func (e Entry) Found() bool {
	return e.ETag.IsSet()
}

type ReadRequest struct {
	Store       string
	Key         string
	Consistency Consistency
	Metadata    map[string]string
}

type WriteRequest struct {
	Store    string
	Key      string
	Value    []byte
	ETag     ETag
	Metadata map[string]string
}

type DeleteRequest struct {
	Store    string
	Key      string
	ETag     ETag
	Metadata map[string]string
}

// Transport performs the remote calls for Client.
//
// Read returns an Entry without an etag and a nil error for missing keys.
// Write and Delete return ErrVersionConflict when a conditional request loses
// against the store's current version, including the case where the key is
// gone. Any other error is treated as a transport failure.
//
// Implementations must be safe for concurrent use.
type Transport interface {
	Read(ctx context.Context, req ReadRequest) (Entry, error)
	Write(ctx context.Context, req WriteRequest) error
	Delete(ctx context.Context, req DeleteRequest) error
}

// Option tunes a single operation.
type Option func(*callOptions)

type callOptions struct {
	metadata    map[string]string
	consistency Consistency
}

// WithMetadata forwards metadata to the transport.
func WithMetadata(md map[string]string) Option {
	return func(o *callOptions) {
		o.metadata = md
	}
}

// WithConsistency sets the read consistency for GetStateAndETag.
func WithConsistency(c Consistency) Option {
	return func(o *callOptions) {
		o.consistency = c
	}
}

func applyOptions(opts []Option) callOptions {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

package kv

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrETagMismatch is returned by conditional writes and deletes when the
	// supplied etag does not match the current version of the key, including
	// the case where the key does not exist.
	ErrETagMismatch = errors.New("kv: etag mismatch")

	// ErrUnknownStore is returned when a request names a store that is not
	// registered.
	ErrUnknownStore = errors.New("kv: unknown store")
)

// Item is a stored value together with its current version token.
type Item struct {
	Key   string
	Value []byte
	ETag  string
}

// Consistency selects how fresh a read has to be. Stores that are not
// replicated treat every read as strong.
type Consistency int

const (
	ConsistencyEventual Consistency = iota
	ConsistencyStrong
)

// Store defines the interface for a versioned key-value store.
// Implementations of this interface can be swapped out,
// allowing for different storage backends (e.g., in-memory, SQLite, Raft-replicated).
//
// Every successful Put assigns a fresh etag. An empty etag argument means the
// operation is unconditional.
type Store interface {
	// Get retrieves the item associated with the given key.
	// Returns the item and true if the key exists, or a zero Item and false if not.
	Get(ctx context.Context, key string) (Item, bool, error)

	// Put stores value under key and returns the new etag.
	// With a non-empty etag the write only happens if it matches the current
	// version, otherwise ErrETagMismatch is returned.
	Put(ctx context.Context, key string, value []byte, etag string) (string, error)

	// Delete removes a key from the store.
	// Unconditional deletes of missing keys succeed. Conditional deletes
	// return ErrETagMismatch when the version differs or the key is gone.
	Delete(ctx context.Context, key string, etag string) error
}

// ConsistentReader is implemented by stores that can serve reads at more than
// one consistency level.
type ConsistentReader interface {
	GetConsistent(ctx context.Context, key string, consistency Consistency) (Item, bool, error)
}

// Read uses GetConsistent when the store supports it and falls back to Get.
func Read(ctx context.Context, s Store, key string, consistency Consistency) (Item, bool, error) {
	if cr, ok := s.(ConsistentReader); ok {
		return cr.GetConsistent(ctx, key, consistency)
	}
	return s.Get(ctx, key)
}

// NewETag mints a fresh opaque version token.
func NewETag() string {
	return uuid.NewString()
}

// Clone returns a copy of b so callers can't alias stored values.
func Clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

package state

import (
	"context"
	"encoding/json"
	"fmt"
)

// GetStateAndETag reads key and decodes its JSON value into T. A missing key
// yields the zero T and NoETag.
func GetStateAndETag[T any](ctx context.Context, c *Client, store, key string, opts ...Option) (T, ETag, error) {
	var value T
	entry, err := c.GetStateAndETag(ctx, store, key, opts...)
	if err != nil {
		return value, NoETag, err
	}
	if !entry.Found() {
		return value, NoETag, nil
	}
	if err := json.Unmarshal(entry.Value, &value); err != nil {
		return value, NoETag, fmt.Errorf("state: decode %s/%s: %w", store, key, err)
	}
	return value, entry.ETag, nil
}

// TrySaveState JSON-encodes value and calls Client.TrySave.
func TrySaveState[T any](ctx context.Context, c *Client, store, key string, value T, etag ETag, opts ...Option) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("state: encode %s/%s: %w", store, key, err)
	}
	return c.TrySave(ctx, store, key, data, etag, opts...)
}

// SaveState JSON-encodes value and writes it unconditionally.
func SaveState[T any](ctx context.Context, c *Client, store, key string, value T, opts ...Option) error {
	_, err := TrySaveState(ctx, c, store, key, value, NoETag, opts...)
	return err
}

// DefaultMaxAttempts bounds Mutate when MutateOptions.MaxAttempts is zero.
const DefaultMaxAttempts = 10

type MutateOptions struct {
	// MaxAttempts is the number of read-modify-write rounds before giving up.
	MaxAttempts int
	// Options are passed to every read and write.
	Options []Option
}

// Mutator changes a value in place. Returning an error aborts Mutate.
type Mutator[T any] func(*T) error

// Mutate reads key, applies fn and writes the result guarded by the etag it
// read. When the write loses a race the value is re-read and fn applied again.
// A missing key starts from the zero T and is written unconditionally, so
// concurrent first writers of the same key may overwrite each other.
//
// It returns the value that was saved.
func Mutate[T any](ctx context.Context, c *Client, store, key string, fn Mutator[T], mo MutateOptions) (T, error) {
	var zero T
	if fn == nil {
		return zero, &ArgumentError{Op: "mutate", Param: "mutator", Reason: "is required"}
	}
	attempts := mo.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		value, etag, err := GetStateAndETag[T](ctx, c, store, key, mo.Options...)
		if err != nil {
			return zero, err
		}
		if err := fn(&value); err != nil {
			return zero, err
		}
		ok, err := TrySaveState(ctx, c, store, key, value, etag, mo.Options...)
		if err != nil {
			return zero, err
		}
		if ok {
			return value, nil
		}
	}
	return zero, fmt.Errorf("%w: %s/%s after %d attempts", ErrTooManyConflicts, store, key, attempts)
}

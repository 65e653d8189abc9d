// Package state is a client for remote key-value state stores that guard
// writes with opaque version tokens (etags).
//
// Reads return the current value together with its etag. Writes and deletes
// may pass that etag back as a compare-and-swap precondition. Losing such a
// race is reported as a false result, never as an error, so read-modify-write
// loops don't need error handling for the common case:
//
//	for {
//		entry, err := client.GetStateAndETag(ctx, "statestore", "widget")
//		if err != nil {
//			return err
//		}
//		ok, err := client.TrySave(ctx, "statestore", "widget", update(entry.Value), entry.ETag)
//		if err != nil {
//			return err
//		}
//		if ok {
//			return nil
//		}
//	}
//
// Malformed arguments, such as an empty etag, are returned as *ArgumentError
// before anything is sent. Transport failures are returned unchanged.
//
// Mutate wraps the loop above for typed values.
package state

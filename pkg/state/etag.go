package state

import (
	"encoding/json"
)

// ETag is an optional version token. The zero value means no version is
// known, which makes writes and deletes unconditional.
type ETag struct {
	token string
	set   bool
}

// NoETag is the absent etag.
var NoETag = ETag{}

// NewETag wraps token as a present etag without validating it. Passing an
// empty token is allowed here but rejected by every operation that uses it.
func NewETag(token string) ETag {
	return ETag{token: token, set: true}
}

// ParseETag wraps token as a present etag, rejecting the empty string.
func ParseETag(token string) (ETag, error) {
	if token == "" {
		return NoETag, &ArgumentError{Op: "parse etag", Param: "etag", Reason: "must not be empty"}
	}
	return NewETag(token), nil
}

// IsSet reports whether the etag carries a token.
func (e ETag) IsSet() bool {
	return e.set
}

// Token returns the wrapped token, or "" when the etag is absent.
func (e ETag) Token() string {
	return e.token
}

// Equal reports whether both etags are absent or both carry the same token.
func (e ETag) Equal(other ETag) bool {
	return e.set == other.set && e.token == other.token
}

func (e ETag) String() string {
	if !e.set {
		return "<none>"
	}
	return e.token
}

// valid reports whether the etag may cross into a conditional operation.
func (e ETag) valid() bool {
	return !e.set || e.token != ""
}

func (e ETag) MarshalJSON() ([]byte, error) {
	if !e.set {
		return []byte("null"), nil
	}
	return json.Marshal(e.token)
}

func (e *ETag) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*e = NoETag
		return nil
	}
	var token string
	if err := json.Unmarshal(data, &token); err != nil {
		return err
	}
	*e = NewETag(token)
	return nil
}

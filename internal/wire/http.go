package wire

import (
	"net/url"
	"strings"
)

// HTTP names shared by the server handlers and the HTTP transport.
const (
	HeaderETag    = "ETag"
	HeaderIfMatch = "If-Match"
	// HeaderNotFound marks a 404 that means the key is absent, as opposed to
	// an unknown route.
	HeaderNotFound = "X-Etagkv-Not-Found"
	// HeaderLeader is the leader's HTTP address, set on follower responses.
	HeaderLeader     = "X-Etagkv-Leader"
	HeaderLeaderGRPC = "X-Etagkv-Leader-Grpc"
	HeaderLeaderID   = "X-Etagkv-Leader-Id"
	MetadataPrefix   = "X-Etagkv-Meta-"
	ConsistencyParam = "consistency"
)

// Cluster routes.
const (
	LeaderPath = "/v1/raft/leader"
	JoinPath   = "/v1/raft/join"
)

// StatePath is the REST path of one key.
func StatePath(store, key string) string {
	return "/v1/state/" + PathSegment(store) + "/" + PathSegment(key)
}

// PathSegment escapes s as one path segment. Dot segments are percent-encoded
// so path cleaning in clients and muxes leaves them alone.
func PathSegment(s string) string {
	switch s {
	case ".":
		return "%2E"
	case "..":
		return "%2E%2E"
	}
	return url.PathEscape(s)
}

// QuoteETag renders an etag as an HTTP entity tag.
func QuoteETag(etag string) string {
	return `"` + etag + `"`
}

// UnquoteETag strips the weak prefix and surrounding quotes of an entity tag.
func UnquoteETag(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "W/")
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		v = v[1 : len(v)-1]
	}
	return v
}

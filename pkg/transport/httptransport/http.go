// Package httptransport speaks the etagkv REST API.
//
// Reads are retried on connection errors and 5xx responses using
// go-retryablehttp's default policy. Writes and deletes are never retried:
// a conditional request whose response was lost would otherwise come back as
// a spurious version conflict. The underlying pooled client is safe for
// concurrent use.
package httptransport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/heysubinoy/etagkv/internal/wire"
	"github.com/heysubinoy/etagkv/pkg/state"
)

// StatusError is returned for responses the transport can't map to an
// outcome.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
	// Leader is the leader's HTTP address when a follower answered.
	Leader string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("httptransport: %s: unexpected HTTP response code %d: %s", e.Op, e.StatusCode, e.Body)
	if e.Leader != "" {
		msg += fmt.Sprintf(" (leader at %s)", e.Leader)
	}
	return msg
}

type Options struct {
	// RetryMax is the number of read retries. Zero keeps the retryablehttp default.
	RetryMax int
	// Logger receives request logs. Nil disables them.
	Logger hclog.Logger
	// Headers are added to every request.
	Headers map[string]string
	// HTTPClient replaces the pooled cleanhttp client.
	HTTPClient *http.Client
}

type Transport struct {
	base    *url.URL
	client  *retryablehttp.Client
	headers map[string]string
}

var _ state.Transport = (*Transport)(nil)

type noRetryKey struct{}

// New creates a transport for the server at baseURL, e.g. http://127.0.0.1:8080.
func New(baseURL string, opts Options) (*Transport, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("httptransport: parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("httptransport: base url %q needs a scheme and host", baseURL)
	}

	client := retryablehttp.NewClient()
	client.HTTPClient = opts.HTTPClient
	if client.HTTPClient == nil {
		client.HTTPClient = cleanhttp.DefaultPooledClient()
	}
	if opts.RetryMax > 0 {
		client.RetryMax = opts.RetryMax
	}
	if opts.Logger != nil {
		client.Logger = opts.Logger.Named("httptransport")
	} else {
		client.Logger = nil
	}
	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Value(noRetryKey{}) != nil {
			return false, nil
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Transport{base: base, client: client, headers: opts.Headers}, nil
}

func (t *Transport) Read(ctx context.Context, req state.ReadRequest) (state.Entry, error) {
	u := t.endpoint(req.Store, req.Key)
	if req.Consistency == state.ConsistencyStrong {
		q := u.Query()
		q.Set(wire.ConsistencyParam, req.Consistency.String())
		u.RawQuery = q.Encode()
	}

	resp, err := t.do(ctx, http.MethodGet, u, nil, state.NoETag, req.Metadata)
	if err != nil {
		return state.Entry{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// Handled after
	case http.StatusNotFound:
		// A 404 without the marker comes from a wrong base URL or route.
		if resp.Header.Get(wire.HeaderNotFound) != "" {
			return state.Entry{Store: req.Store, Key: req.Key}, nil
		}
		return state.Entry{}, statusError("get state", resp)
	default:
		return state.Entry{}, statusError("get state", resp)
	}

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		return state.Entry{}, fmt.Errorf("httptransport: read state body: %w", err)
	}
	etag := wire.UnquoteETag(resp.Header.Get(wire.HeaderETag))
	if etag == "" {
		return state.Entry{}, fmt.Errorf("httptransport: get state: response has no ETag")
	}
	return state.Entry{
		Store: req.Store,
		Key:   req.Key,
		Value: buf.Bytes(),
		ETag:  state.NewETag(etag),
	}, nil
}

func (t *Transport) Write(ctx context.Context, req state.WriteRequest) error {
	body := req.Value
	if body == nil {
		body = []byte{}
	}
	resp, err := t.do(ctx, http.MethodPut, t.endpoint(req.Store, req.Key), body, req.ETag, req.Metadata)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	case http.StatusPreconditionFailed:
		return state.ErrVersionConflict
	default:
		return statusError("save state", resp)
	}
}

func (t *Transport) Delete(ctx context.Context, req state.DeleteRequest) error {
	resp, err := t.do(ctx, http.MethodDelete, t.endpoint(req.Store, req.Key), nil, req.ETag, req.Metadata)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusPreconditionFailed:
		return state.ErrVersionConflict
	default:
		return statusError("delete state", resp)
	}
}

func (t *Transport) endpoint(store, key string) *url.URL {
	u := *t.base
	u.Path = t.base.Path + "/v1/state/" + store + "/" + key
	u.RawPath = t.base.EscapedPath() + wire.StatePath(store, key)
	return &u
}

func (t *Transport) do(ctx context.Context, method string, u *url.URL, body []byte, etag state.ETag, md map[string]string) (*http.Response, error) {
	if method != http.MethodGet {
		ctx = context.WithValue(ctx, noRetryKey{}, true)
	}

	var reqBody interface{}
	if body != nil {
		reqBody = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("httptransport: build %s request: %w", method, err)
	}
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	for k, v := range md {
		req.Header.Set(wire.MetadataPrefix+k, v)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}
	if etag.IsSet() {
		req.Header.Set(wire.HeaderIfMatch, wire.QuoteETag(etag.Token()))
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httptransport: %s %s: %w", method, u.Path, err)
	}
	return resp, nil
}

func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
		Leader:     resp.Header.Get(wire.HeaderLeader),
	}
}

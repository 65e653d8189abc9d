package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/heysubinoy/etagkv/internal/wire"
)

// maxJoinHops bounds how many follower redirects JoinVia follows.
const maxJoinHops = 3

// JoinVia asks the member at addr to add self to the cluster. A follower
// answers with the leader's address, which is tried next. Joining is
// idempotent, so failed attempts are retried.
func JoinVia(ctx context.Context, addr string, self wire.JoinRequest, logger hclog.Logger) error {
	body, err := json.Marshal(self)
	if err != nil {
		return fmt.Errorf("cluster: encode join request: %w", err)
	}

	client := retryablehttp.NewClient()
	client.HTTPClient = cleanhttp.DefaultClient()
	client.RetryMax = 5
	if logger != nil {
		client.Logger = logger.Named("join")
	} else {
		client.Logger = nil
	}
	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if resp != nil && resp.StatusCode == http.StatusServiceUnavailable && resp.Header.Get(wire.HeaderLeader) != "" {
			return false, nil
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	target := addr
	for hop := 0; hop < maxJoinHops; hop++ {
		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, BaseURL(target)+wire.JoinPath, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("cluster: build join request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("cluster: join via %s: %w", target, err)
		}
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		leader := resp.Header.Get(wire.HeaderLeader)

		switch {
		case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent:
			return nil
		case resp.StatusCode == http.StatusServiceUnavailable && leader != "":
			target = leader
		default:
			return fmt.Errorf("cluster: join via %s: unexpected HTTP response code %d: %s",
				target, resp.StatusCode, strings.TrimSpace(string(msg)))
		}
	}
	return fmt.Errorf("cluster: join: gave up after %d leader redirects", maxJoinHops)
}

// BaseURL turns a host:port into an http URL. A missing host means localhost.
func BaseURL(addr string) string {
	if strings.Contains(addr, "://") {
		return strings.TrimRight(addr, "/")
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

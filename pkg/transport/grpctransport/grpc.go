// Package grpctransport speaks the etagkv gRPC service. A *grpc.ClientConn is
// safe for concurrent use, so one Transport can serve many in-flight calls.
package grpctransport

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/heysubinoy/etagkv/internal/wire"
	"github.com/heysubinoy/etagkv/pkg/state"
)

type Transport struct {
	conn   *grpc.ClientConn
	client *wire.StateServiceClient
}

var _ state.Transport = (*Transport)(nil)

// Dial connects to addr (host:port) without TLS.
func Dial(addr string, opts ...grpc.DialOption) (*Transport, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	// passthrough resolver for direct address connection
	conn, err := grpc.NewClient("passthrough:///"+addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpctransport: connect %s: %w", addr, err)
	}
	return New(conn), nil
}

// New wraps an existing connection. Close closes it.
func New(conn *grpc.ClientConn) *Transport {
	return &Transport{conn: conn, client: wire.NewStateServiceClient(conn)}
}

func (t *Transport) Close() error {
	return t.conn.Close()
}

func (t *Transport) Read(ctx context.Context, req state.ReadRequest) (state.Entry, error) {
	in := &wire.GetRequest{
		Store:    req.Store,
		Key:      req.Key,
		Metadata: req.Metadata,
	}
	if req.Consistency == state.ConsistencyStrong {
		in.Consistency = req.Consistency.String()
	}
	resp, err := t.client.Get(ctx, in)
	if err != nil {
		return state.Entry{}, err
	}
	if !resp.Found {
		return state.Entry{Store: req.Store, Key: req.Key}, nil
	}
	if resp.ETag == "" {
		return state.Entry{}, fmt.Errorf("grpctransport: get state: response has no ETag")
	}
	return state.Entry{
		Store: req.Store,
		Key:   req.Key,
		Value: resp.Value,
		ETag:  state.NewETag(resp.ETag),
	}, nil
}

func (t *Transport) Write(ctx context.Context, req state.WriteRequest) error {
	_, err := t.client.Save(ctx, &wire.SaveRequest{
		Store:    req.Store,
		Key:      req.Key,
		Value:    req.Value,
		ETag:     etagPtr(req.ETag),
		Metadata: req.Metadata,
	})
	return translate(err)
}

func (t *Transport) Delete(ctx context.Context, req state.DeleteRequest) error {
	_, err := t.client.Delete(ctx, &wire.DeleteRequest{
		Store:    req.Store,
		Key:      req.Key,
		ETag:     etagPtr(req.ETag),
		Metadata: req.Metadata,
	})
	return translate(err)
}

func etagPtr(e state.ETag) *string {
	if !e.IsSet() {
		return nil
	}
	token := e.Token()
	return &token
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if status.Code(err) == codes.FailedPrecondition {
		return state.ErrVersionConflict
	}
	return err
}

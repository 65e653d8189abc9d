package api

import (
	"context"
	"errors"

	"github.com/hashicorp/go-hclog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/heysubinoy/etagkv/internal/cluster"
	"github.com/heysubinoy/etagkv/internal/wire"
	"github.com/heysubinoy/etagkv/pkg/kv"
)

// GRPCServer implements the wire.StateServiceServer interface.
// It wraps a registry of kv.Stores and exposes it over gRPC.
type GRPCServer struct {
	Stores  *kv.Registry
	Cluster *cluster.Cluster
	Logger  hclog.Logger
}

var _ wire.StateServiceServer = (*GRPCServer)(nil)

// NewGRPCServer creates a new gRPC server with the given stores.
func NewGRPCServer(stores *kv.Registry, c *cluster.Cluster, logger hclog.Logger) *GRPCServer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &GRPCServer{
		Stores:  stores,
		Cluster: c,
		Logger:  logger.Named("grpc"),
	}
}

// Get retrieves a value and its etag by key. Missing keys are reported with
// Found=false, not as an error.
func (s *GRPCServer) Get(ctx context.Context, req *wire.GetRequest) (*wire.GetResponse, error) {
	st, err := s.lookup(ctx, req.Store, req.Key)
	if err != nil {
		return nil, err
	}

	consistency := kv.ConsistencyEventual
	switch req.Consistency {
	case "", "eventual":
	case "strong":
		consistency = kv.ConsistencyStrong
	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown consistency %q", req.Consistency)
	}

	item, found, err := kv.Read(ctx, st, req.Key, consistency)
	if err != nil {
		s.Logger.Error("get failed", "store", req.Store, "key", req.Key, "error", err)
		return nil, status.Error(codes.Internal, "failed to get key")
	}
	if !found {
		return &wire.GetResponse{Found: false}, nil
	}
	return &wire.GetResponse{
		Found: true,
		Value: item.Value,
		ETag:  item.ETag,
	}, nil
}

// Save stores a value, conditionally when an etag is supplied.
func (s *GRPCServer) Save(ctx context.Context, req *wire.SaveRequest) (*wire.SaveResponse, error) {
	st, err := s.lookup(ctx, req.Store, req.Key)
	if err != nil {
		return nil, err
	}
	etag, err := requestETag(req.ETag)
	if err != nil {
		return nil, err
	}

	s.Logger.Debug("save", "store", req.Store, "key", req.Key, "etag", etag, "metadata", req.Metadata)
	next, err := st.Put(ctx, req.Key, req.Value, etag)
	if errors.Is(err, kv.ErrETagMismatch) {
		return nil, status.Error(codes.FailedPrecondition, "etag mismatch")
	}
	if err != nil {
		s.Logger.Error("save failed", "store", req.Store, "key", req.Key, "error", err)
		return nil, status.Error(codes.Internal, "failed to set key")
	}

	return &wire.SaveResponse{ETag: next}, nil
}

// Delete removes a key, conditionally when an etag is supplied.
func (s *GRPCServer) Delete(ctx context.Context, req *wire.DeleteRequest) (*wire.DeleteResponse, error) {
	st, err := s.lookup(ctx, req.Store, req.Key)
	if err != nil {
		return nil, err
	}
	etag, err := requestETag(req.ETag)
	if err != nil {
		return nil, err
	}

	s.Logger.Debug("delete", "store", req.Store, "key", req.Key, "etag", etag, "metadata", req.Metadata)
	err = st.Delete(ctx, req.Key, etag)
	if errors.Is(err, kv.ErrETagMismatch) {
		return nil, status.Error(codes.FailedPrecondition, "etag mismatch")
	}
	if err != nil {
		s.Logger.Error("delete failed", "store", req.Store, "key", req.Key, "error", err)
		return nil, status.Error(codes.Internal, "failed to delete key")
	}

	return &wire.DeleteResponse{}, nil
}

func (s *GRPCServer) lookup(ctx context.Context, storeName, key string) (kv.Store, error) {
	if s.Cluster != nil && !s.Cluster.IsLeader() {
		return nil, s.notLeader(ctx)
	}
	if storeName == "" {
		return nil, status.Error(codes.InvalidArgument, "store is required")
	}
	if key == "" {
		return nil, status.Error(codes.InvalidArgument, "key is required")
	}
	st, err := s.Stores.Lookup(storeName)
	if err != nil {
		return nil, status.Errorf(codes.NotFound, "unknown store %q", storeName)
	}
	return st, nil
}

// notLeader reports the leader in the response header metadata and in the
// status message.
func (s *GRPCServer) notLeader(ctx context.Context) error {
	info, ok := s.Cluster.Leader()
	if !ok {
		return status.Error(codes.Unavailable, "not leader and no leader known")
	}
	md := metadata.Pairs(wire.MetadataLeaderID, info.ID)
	if info.GRPCAddr != "" {
		md.Set(wire.MetadataLeaderGRPC, info.GRPCAddr)
	}
	// Fails outside a real stream, e.g. in direct calls from tests.
	_ = grpc.SendHeader(ctx, md)
	return status.Errorf(codes.Unavailable, "not leader (leader %s at %s)", info.ID, info.GRPCAddr)
}

func requestETag(etag *string) (string, error) {
	if etag == nil {
		return "", nil
	}
	if *etag == "" {
		return "", status.Error(codes.InvalidArgument, "etag must not be empty")
	}
	return *etag, nil
}

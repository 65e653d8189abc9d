// Package server assembles the configured stores and serves them over HTTP
// and gRPC.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/raft"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/heysubinoy/etagkv/internal/api"
	"github.com/heysubinoy/etagkv/internal/cluster"
	"github.com/heysubinoy/etagkv/internal/store"
	"github.com/heysubinoy/etagkv/internal/telemetry"
	"github.com/heysubinoy/etagkv/internal/wire"
	"github.com/heysubinoy/etagkv/pkg/config"
	"github.com/heysubinoy/etagkv/pkg/kv"
)

const (
	ReadHeaderTimeout = 10 * time.Second
	ShutdownTimeout   = 15 * time.Second
	LeaderWaitTimeout = 30 * time.Second
)

// Node is one running etagkv process: its stores, an optional raft node and
// the resources to release on Close.
type Node struct {
	Stores  *kv.Registry
	Raft    *raft.Raft
	Cluster *cluster.Cluster

	cfg     *config.Config
	logger  hclog.Logger
	closers []func() error
}

// Build opens every configured store. On error everything opened so far is
// closed again.
func Build(cfg *config.Config, logger hclog.Logger) (*Node, error) {
	n := &Node{
		Stores: kv.NewRegistry(),
		cfg:    cfg,
		logger: logger,
	}

	for _, sc := range cfg.Stores {
		s, err := n.open(sc)
		if err != nil {
			n.Close()
			return nil, fmt.Errorf("server: open store %q: %w", sc.Name, err)
		}
		n.Stores.Register(sc.Name, store.NewInstrumentedStore(s))
		logger.Info("store ready", "name", sc.Name, "backend", sc.Backend)
	}
	return n, nil
}

func (n *Node) open(sc config.StoreConfig) (kv.Store, error) {
	switch sc.Backend {
	case config.BackendMemory:
		return store.NewMemStore(), nil

	case config.BackendSQLite:
		s, err := store.OpenSQLite(sc.Path)
		if err != nil {
			return nil, err
		}
		n.closers = append(n.closers, s.Close)
		return s, nil

	case config.BackendRaft:
		rs := store.NewRaftStore(store.NewMemStore())
		node, err := store.OpenRaft(store.RaftOptions{
			NodeID:    n.cfg.Raft.NodeID,
			Addr:      n.cfg.Raft.Addr,
			DataDir:   n.cfg.Raft.DataDir,
			Bootstrap: n.cfg.Raft.Bootstrap,
		}, rs, n.logger.Named("raft"))
		if err != nil {
			return nil, err
		}
		n.Raft = node.Raft
		n.Cluster = cluster.New(node.Raft, rs, store.Peer{
			ID:       n.cfg.Raft.NodeID,
			RaftAddr: n.cfg.Raft.Addr,
			HTTPAddr: n.cfg.Raft.AdvertiseHTTP,
			GRPCAddr: n.cfg.Raft.AdvertiseGRPC,
		}, n.logger.Named("cluster"))
		n.closers = append(n.closers, node.Close)
		return rs, nil

	default:
		return nil, fmt.Errorf("unknown backend %q", sc.Backend)
	}
}

// WaitForLeader blocks until the raft node knows a leader. It returns
// immediately when no raft store is configured.
func (n *Node) WaitForLeader(ctx context.Context) error {
	if n.Raft == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, LeaderWaitTimeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if addr, id := n.Raft.LeaderWithID(); addr != "" {
			n.logger.Info("raft leader known", "leader", id, "addr", addr, "state", n.Raft.State().String())
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("server: waiting for raft leader: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// JoinCluster joins through cfg.Raft.Join when set, waits for a leader and,
// on the leader, records this node's API addresses so followers can hand
// them out.
func (n *Node) JoinCluster(ctx context.Context) error {
	if n.Cluster == nil {
		return nil
	}
	if n.cfg.Raft.Join != "" {
		n.logger.Info("joining cluster", "via", n.cfg.Raft.Join)
		if err := cluster.JoinVia(ctx, n.cfg.Raft.Join, n.Cluster.Self(), n.logger); err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}
	if err := n.WaitForLeader(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, LeaderWaitTimeout)
	defer cancel()
	if err := n.Cluster.Announce(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// Handler returns the HTTP API.
func (n *Node) Handler() http.Handler {
	mux := http.NewServeMux()
	api.NewServer(n.Stores, n.Cluster, n.logger).RegisterRoutes(mux)
	return mux
}

// GRPCServer returns a gRPC server with the state service registered.
func (n *Node) GRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	srv := grpc.NewServer(append(telemetry.ServerOptions(), opts...)...)
	wire.RegisterStateServiceServer(srv, api.NewGRPCServer(n.Stores, n.Cluster, n.logger))
	return srv
}

// Serve runs the HTTP and gRPC listeners until ctx is done, then shuts both
// down gracefully.
func (n *Node) Serve(ctx context.Context, httpLis, grpcLis net.Listener) error {
	httpSrv := &http.Server{
		Handler:           n.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
	}
	grpcSrv := n.GRPCServer()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n.logger.Info("HTTP server listening", "addr", httpLis.Addr().String())
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		n.logger.Info("gRPC server listening", "addr", grpcLis.Addr().String())
		if err := grpcSrv.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("server: grpc: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		n.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		done := make(chan struct{})
		go func() {
			grpcSrv.GracefulStop()
			close(done)
		}()
		err := httpSrv.Shutdown(shutdownCtx)
		select {
		case <-done:
		case <-shutdownCtx.Done():
			grpcSrv.Stop()
		}
		return err
	})
	return g.Wait()
}

// Close releases stores and the raft node.
func (n *Node) Close() error {
	var result *multierror.Error
	for i := len(n.closers) - 1; i >= 0; i-- {
		if err := n.closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	n.closers = nil
	return result.ErrorOrNil()
}

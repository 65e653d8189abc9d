package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/heysubinoy/etagkv/internal/cluster"
	"github.com/heysubinoy/etagkv/internal/wire"
	"github.com/heysubinoy/etagkv/pkg/kv"
)

// MaxValueBytes caps request bodies.
const MaxValueBytes = 4 << 20

// Server wraps a registry of named kv.Stores and exposes HTTP endpoints for
// etag-guarded state operations. When Cluster is set, requests are only
// served by the leader and followers point clients at it.
type Server struct {
	Stores  *kv.Registry
	Cluster *cluster.Cluster
	Logger  hclog.Logger
}

// NewServer creates a new HTTP server with the given stores. c may be nil
// for a standalone node.
func NewServer(stores *kv.Registry, c *cluster.Cluster, logger hclog.Logger) *Server {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Server{
		Stores:  stores,
		Cluster: c,
		Logger:  logger.Named("http"),
	}
}

// RegisterRoutes registers all HTTP handlers on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/state/{store}/{key}", s.handleGet)
	mux.HandleFunc("PUT /v1/state/{store}/{key}", s.handlePut)
	mux.HandleFunc("DELETE /v1/state/{store}/{key}", s.handleDelete)
	mux.HandleFunc("GET /v1/metrics", MetricsHandler(s.Stores))
	if s.Cluster != nil {
		mux.HandleFunc("GET "+wire.LeaderPath, s.handleLeader)
		mux.HandleFunc("POST "+wire.JoinPath, s.handleJoin)
	}
}

// handleGet handles GET /v1/state/{store}/{key}.
// Returns the raw value with its ETag header, or 404 when the key is absent.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if !s.checkLeader(w) {
		return
	}
	st, key, ok := s.lookup(w, r)
	if !ok {
		return
	}

	consistency := kv.ConsistencyEventual
	switch r.URL.Query().Get(wire.ConsistencyParam) {
	case "", "eventual":
	case "strong":
		consistency = kv.ConsistencyStrong
	default:
		http.Error(w, "Invalid consistency parameter", http.StatusBadRequest)
		return
	}

	item, found, err := kv.Read(r.Context(), st, key, consistency)
	if err != nil {
		s.Logger.Error("get failed", "store", r.PathValue("store"), "key", key, "error", err)
		http.Error(w, "Failed to get key", http.StatusInternalServerError)
		return
	}
	if !found {
		w.Header().Set(wire.HeaderNotFound, "true")
		http.Error(w, "Key not found", http.StatusNotFound)
		return
	}

	w.Header().Set(wire.HeaderETag, wire.QuoteETag(item.ETag))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(item.Value)
}

// handlePut handles PUT /v1/state/{store}/{key} with the raw value as body.
// An If-Match header makes the write conditional.
func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	if !s.checkLeader(w) {
		return
	}
	st, key, ok := s.lookup(w, r)
	if !ok {
		return
	}
	etag, ok := ifMatch(w, r)
	if !ok {
		return
	}

	value, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxValueBytes))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	s.Logger.Debug("put", "store", r.PathValue("store"), "key", key, "if_match", etag, "metadata", requestMetadata(r))
	next, err := st.Put(r.Context(), key, value, etag)
	if errors.Is(err, kv.ErrETagMismatch) {
		http.Error(w, "ETag mismatch", http.StatusPreconditionFailed)
		return
	}
	if err != nil {
		s.Logger.Error("put failed", "store", r.PathValue("store"), "key", key, "error", err)
		http.Error(w, "Failed to set key", http.StatusInternalServerError)
		return
	}

	w.Header().Set(wire.HeaderETag, wire.QuoteETag(next))
	w.WriteHeader(http.StatusNoContent)
}

// handleDelete handles DELETE /v1/state/{store}/{key}.
// An If-Match header makes the delete conditional.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !s.checkLeader(w) {
		return
	}
	st, key, ok := s.lookup(w, r)
	if !ok {
		return
	}
	etag, ok := ifMatch(w, r)
	if !ok {
		return
	}

	s.Logger.Debug("delete", "store", r.PathValue("store"), "key", key, "if_match", etag, "metadata", requestMetadata(r))
	err := st.Delete(r.Context(), key, etag)
	if errors.Is(err, kv.ErrETagMismatch) {
		http.Error(w, "ETag mismatch", http.StatusPreconditionFailed)
		return
	}
	if err != nil {
		s.Logger.Error("delete failed", "store", r.PathValue("store"), "key", key, "error", err)
		http.Error(w, "Failed to delete key", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleLeader handles GET /v1/raft/leader.
func (s *Server) handleLeader(w http.ResponseWriter, r *http.Request) {
	info, ok := s.Cluster.Leader()
	if !ok {
		http.Error(w, "Leader not available", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(info)
}

// handleJoin handles POST /v1/raft/join. Only the leader adds voters;
// followers answer like any other write.
func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req wire.JoinRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxValueBytes)).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !s.checkLeader(w) {
		return
	}

	err := s.Cluster.Join(r.Context(), req)
	switch {
	case errors.Is(err, cluster.ErrInvalidJoin):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, cluster.ErrNotLeader):
		s.notLeader(w)
	case err != nil:
		s.Logger.Error("join failed", "id", req.ID, "addr", req.Addr, "error", err)
		http.Error(w, "Failed to join", http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) checkLeader(w http.ResponseWriter) bool {
	if s.Cluster == nil || s.Cluster.IsLeader() {
		return true
	}
	s.notLeader(w)
	return false
}

func (s *Server) notLeader(w http.ResponseWriter) {
	info, ok := s.Cluster.Leader()
	if !ok {
		http.Error(w, "Not leader and no leader known", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set(wire.HeaderLeaderID, info.ID)
	if info.HTTPAddr != "" {
		w.Header().Set(wire.HeaderLeader, info.HTTPAddr)
	}
	if info.GRPCAddr != "" {
		w.Header().Set(wire.HeaderLeaderGRPC, info.GRPCAddr)
	}
	http.Error(w, "Not leader", http.StatusServiceUnavailable)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (kv.Store, string, bool) {
	name, key := r.PathValue("store"), r.PathValue("key")
	if name == "" || key == "" {
		http.Error(w, "Missing store or key", http.StatusBadRequest)
		return nil, "", false
	}
	st, err := s.Stores.Lookup(name)
	if err != nil {
		http.Error(w, "Unknown store", http.StatusBadRequest)
		return nil, "", false
	}
	return st, key, true
}

// ifMatch returns the unquoted If-Match token, "" when the header is absent.
// A header that is present but carries an empty token is rejected.
func ifMatch(w http.ResponseWriter, r *http.Request) (string, bool) {
	values, present := r.Header[wire.HeaderIfMatch]
	if !present {
		return "", true
	}
	etag := ""
	if len(values) > 0 {
		etag = wire.UnquoteETag(values[0])
	}
	if etag == "" {
		http.Error(w, "Empty If-Match", http.StatusBadRequest)
		return "", false
	}
	return etag, true
}

func requestMetadata(r *http.Request) map[string]string {
	var md map[string]string
	for name, values := range r.Header {
		if !strings.HasPrefix(name, wire.MetadataPrefix) || len(values) == 0 {
			continue
		}
		if md == nil {
			md = make(map[string]string)
		}
		md[strings.ToLower(strings.TrimPrefix(name, wire.MetadataPrefix))] = values[0]
	}
	return md
}

package wire

// LeaderInfo describes the current raft leader and where clients reach it.
type LeaderInfo struct {
	ID       string `json:"id"`
	Addr     string `json:"addr"`
	HTTPAddr string `json:"http_addr,omitempty"`
	GRPCAddr string `json:"grpc_addr,omitempty"`
	Term     uint64 `json:"term"`
}

// JoinRequest asks the leader to add a node as a voter.
type JoinRequest struct {
	ID       string `json:"id"`
	Addr     string `json:"addr"`
	HTTPAddr string `json:"http_addr,omitempty"`
	GRPCAddr string `json:"grpc_addr,omitempty"`
}

// gRPC response metadata set by followers.
const (
	MetadataLeaderID   = "x-etagkv-leader-id"
	MetadataLeaderGRPC = "x-etagkv-leader-grpc"
)

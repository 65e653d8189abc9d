package cluster_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/heysubinoy/etagkv/internal/api"
	"github.com/heysubinoy/etagkv/internal/cluster"
	"github.com/heysubinoy/etagkv/internal/cluster/clustertest"
	"github.com/heysubinoy/etagkv/internal/wire"
)

func TestCluster_JoinAndLeaderInfo(t *testing.T) {
	leader, follower := clustertest.StartPair(t)

	info, ok := follower.Cluster.Leader()
	if !ok {
		t.Fatal("follower knows no leader")
	}
	if info.ID != "node1" || info.HTTPAddr != "node1.test:8080" || info.GRPCAddr != "node1.test:9090" {
		t.Fatalf("unexpected leader info %+v", info)
	}
	if info.Addr != string(leader.Addr) || info.Term == 0 {
		t.Fatalf("expected raft address and term, got %+v", info)
	}

	f := leader.Raft.GetConfiguration()
	if err := f.Error(); err != nil {
		t.Fatal(err)
	}
	if n := len(f.Configuration().Servers); n != 2 {
		t.Fatalf("expected 2 voters, got %d", n)
	}
	if p, ok := leader.FSM.Peer("node2"); !ok || p.HTTPAddr != "node2.test:8080" {
		t.Fatalf("expected node2 addresses recorded, got %+v", p)
	}

	// Joining again is harmless.
	if err := leader.Cluster.Join(context.Background(), follower.Cluster.Self()); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
}

func TestCluster_FollowerRefusesJoin(t *testing.T) {
	_, follower := clustertest.StartPair(t)

	err := follower.Cluster.Join(context.Background(), wire.JoinRequest{ID: "node3", Addr: "x"})
	if !errors.Is(err, cluster.ErrNotLeader) {
		t.Fatalf("expected ErrNotLeader, got %v", err)
	}
	if err := follower.Cluster.Announce(context.Background()); err != nil {
		t.Fatalf("announce on a follower should be a no-op, got %v", err)
	}
	if _, ok := follower.FSM.Peer("node2"); !ok {
		t.Fatal("node2 was registered by the leader on join")
	}
}

func TestCluster_InvalidJoin(t *testing.T) {
	leader, _ := clustertest.StartPair(t)

	for _, req := range []wire.JoinRequest{{Addr: "x"}, {ID: "node3"}} {
		if err := leader.Cluster.Join(context.Background(), req); !errors.Is(err, cluster.ErrInvalidJoin) {
			t.Fatalf("expected ErrInvalidJoin for %+v, got %v", req, err)
		}
	}
}

func TestJoinVia_FollowsLeaderRedirect(t *testing.T) {
	leaderMux, followerMux := http.NewServeMux(), http.NewServeMux()
	leaderSrv := httptest.NewUnstartedServer(leaderMux)
	followerSrv := httptest.NewUnstartedServer(followerMux)
	leaderAddr := leaderSrv.Listener.Addr().String()
	followerAddr := followerSrv.Listener.Addr().String()

	n1 := clustertest.NewNode(t, "node1", leaderAddr, "", true)
	n2 := clustertest.NewNode(t, "node2", followerAddr, "", false)
	n3 := clustertest.NewNode(t, "node3", "", "", false)
	clustertest.Connect(n1, n2, n3)

	api.NewServer(n1.Stores, n1.Cluster, nil).RegisterRoutes(leaderMux)
	api.NewServer(n2.Stores, n2.Cluster, nil).RegisterRoutes(followerMux)
	leaderSrv.Start()
	defer leaderSrv.Close()
	followerSrv.Start()
	defer followerSrv.Close()

	ctx := context.Background()
	clustertest.WaitFor(t, "node1 to lead", n1.Cluster.IsLeader)
	if err := n1.Cluster.Announce(ctx); err != nil {
		t.Fatalf("announce: %v", err)
	}
	if err := cluster.JoinVia(ctx, leaderAddr, n2.Cluster.Self(), nil); err != nil {
		t.Fatalf("join node2: %v", err)
	}
	clustertest.WaitFor(t, "node2 to learn the leader", func() bool {
		info, ok := n2.Cluster.Leader()
		return ok && info.HTTPAddr == leaderAddr
	})

	// node3 asks the follower, which points it at the leader.
	if err := cluster.JoinVia(ctx, followerAddr, n3.Cluster.Self(), nil); err != nil {
		t.Fatalf("join node3 via follower: %v", err)
	}
	f := n1.Raft.GetConfiguration()
	if err := f.Error(); err != nil {
		t.Fatal(err)
	}
	if n := len(f.Configuration().Servers); n != 3 {
		t.Fatalf("expected 3 voters, got %d", n)
	}
}

func TestJoinVia_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad join", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := cluster.JoinVia(context.Background(), srv.URL, wire.JoinRequest{ID: "n", Addr: "a"}, nil)
	if err == nil {
		t.Fatal("expected join error")
	}
}

func TestBaseURL(t *testing.T) {
	for in, want := range map[string]string{
		":8080":              "http://localhost:8080",
		"10.0.0.1:8080":      "http://10.0.0.1:8080",
		"https://node1:443/": "https://node1:443",
	} {
		if got := cluster.BaseURL(in); got != want {
			t.Errorf("BaseURL(%q) = %q, want %q", in, got, want)
		}
	}
}

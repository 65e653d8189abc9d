package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "etagkv.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := &Config{
		HTTPAddr: ":8080",
		GRPCAddr: ":9090",
		LogLevel: "info",
		Stores:   []StoreConfig{{Name: "statestore", Backend: BackendMemory}},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfig_YAMLAndEnv(t *testing.T) {
	path := writeConfig(t, `
http_addr: ":7000"
log_level: debug
stores:
  - name: statestore
    backend: raft
  - name: durable
    backend: sqlite
    path: /tmp/durable.db
raft:
  node_id: node1
  addr: 127.0.0.1:7001
  bootstrap: true
`)
	t.Setenv("ETAGKV_HTTP_ADDR", ":7100")
	t.Setenv("ETAGKV_RAFT_DATA_DIR", "/var/lib/etagkv")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":7100" {
		t.Fatalf("expected env override, got %q", cfg.HTTPAddr)
	}
	if cfg.LogLevel != "debug" || cfg.GRPCAddr != ":9090" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	wantRaft := RaftConfig{
		NodeID:        "node1",
		Addr:          "127.0.0.1:7001",
		DataDir:       "/var/lib/etagkv",
		Bootstrap:     true,
		AdvertiseHTTP: "127.0.0.1:7100",
		AdvertiseGRPC: "127.0.0.1:9090",
	}
	if diff := cmp.Diff(wantRaft, cfg.Raft); diff != "" {
		t.Fatalf("raft mismatch (-want +got):\n%s", diff)
	}
	if !cfg.HasRaft() || len(cfg.Stores) != 2 {
		t.Fatalf("unexpected stores %+v", cfg.Stores)
	}
}

func TestLoadConfig_StoresFromEnv(t *testing.T) {
	t.Setenv("ETAGKV_STORES", "a, b:sqlite:/tmp/b.db")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []StoreConfig{
		{Name: "a", Backend: BackendMemory},
		{Name: "b", Backend: BackendSQLite, Path: "/tmp/b.db"},
	}
	if diff := cmp.Diff(want, cfg.Stores); diff != "" {
		t.Fatalf("stores mismatch (-want +got):\n%s", diff)
	}
	if cfg.HasRaft() {
		t.Fatal("expected no raft store")
	}
}

func TestLoadConfig_RaftDataDirDefault(t *testing.T) {
	t.Setenv("ETAGKV_STORES", "statestore:raft")
	t.Setenv("ETAGKV_RAFT_NODE_ID", "n2")
	t.Setenv("ETAGKV_RAFT_ADDR", "127.0.0.1:7002")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Raft.DataDir != "./etagkv/n2" {
		t.Fatalf("unexpected data dir %q", cfg.Raft.DataDir)
	}
}

func TestLoadConfig_JoinAndAdvertise(t *testing.T) {
	t.Setenv("ETAGKV_STORES", "statestore:raft")
	t.Setenv("ETAGKV_GRPC_ADDR", "10.0.0.5:9191")
	t.Setenv("ETAGKV_RAFT_NODE_ID", "n3")
	t.Setenv("ETAGKV_RAFT_ADDR", ":7003")
	t.Setenv("ETAGKV_RAFT_JOIN", "10.0.0.1:8080")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Raft.Join != "10.0.0.1:8080" {
		t.Fatalf("unexpected join %q", cfg.Raft.Join)
	}
	if cfg.Raft.AdvertiseHTTP != "localhost:8080" {
		t.Fatalf("unexpected http advertise %q", cfg.Raft.AdvertiseHTTP)
	}
	if cfg.Raft.AdvertiseGRPC != "10.0.0.5:9191" {
		t.Fatalf("unexpected grpc advertise %q", cfg.Raft.AdvertiseGRPC)
	}

	t.Setenv("ETAGKV_RAFT_BOOTSTRAP", "true")
	_, err = LoadConfig("")
	if err == nil || !strings.Contains(err.Error(), "mutually exclusive") {
		t.Fatalf("expected bootstrap/join conflict, got %v", err)
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := &Config{
		Stores: []StoreConfig{
			{Name: "a", Backend: BackendSQLite},
			{Name: "a", Backend: BackendMemory},
			{Name: "", Backend: "redis"},
			{Name: "r1", Backend: BackendRaft},
			{Name: "r2", Backend: BackendRaft},
		},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{
		"sqlite backend needs a path",
		`duplicate store name "a"`,
		"name is required",
		`unknown backend "redis"`,
		"at most one raft store",
		"raft.node_id is required",
		"raft.addr is required",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in %s", want, msg)
		}
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := LoadConfig(writeConfig(t, "stores: [")); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
	t.Setenv("ETAGKV_RAFT_BOOTSTRAP", "maybe")
	if _, err := LoadConfig(""); err == nil {
		t.Fatal("expected error for malformed bool")
	}
}

func TestParseStores(t *testing.T) {
	if _, err := ParseStores(":memory"); err == nil {
		t.Fatal("expected error for entry without name")
	}
	stores, err := ParseStores(" , ")
	if err != nil || len(stores) != 0 {
		t.Fatalf("expected no stores, got %v %v", stores, err)
	}
}

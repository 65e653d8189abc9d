package config

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "ETAGKV_"

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRaft   = "raft"
)

type StoreConfig struct {
	Name    string `yaml:"name"`
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

type RaftConfig struct {
	NodeID    string `yaml:"node_id" env:"NODE_ID"`
	Addr      string `yaml:"addr" env:"ADDR"`
	DataDir   string `yaml:"data_dir" env:"DATA_DIR"`
	Bootstrap bool   `yaml:"bootstrap" env:"BOOTSTRAP"`
	// Join is the HTTP address of any cluster member to join through.
	Join string `yaml:"join" env:"JOIN"`
	// AdvertiseHTTP and AdvertiseGRPC are the API addresses other nodes hand
	// out to clients when this node leads. They default to the listen
	// addresses, borrowing the host of Addr when those have none.
	AdvertiseHTTP string `yaml:"advertise_http" env:"ADVERTISE_HTTP"`
	AdvertiseGRPC string `yaml:"advertise_grpc" env:"ADVERTISE_GRPC"`
}

type Config struct {
	HTTPAddr     string `yaml:"http_addr" env:"HTTP_ADDR"`
	GRPCAddr     string `yaml:"grpc_addr" env:"GRPC_ADDR"`
	LogLevel     string `yaml:"log_level" env:"LOG_LEVEL"`
	OTelEndpoint string `yaml:"otel_endpoint" env:"OTEL_ENDPOINT"`

	Stores []StoreConfig `yaml:"stores"`
	// StoresList overrides Stores from the environment, see ParseStores.
	StoresList string `yaml:"-" env:"STORES"`

	Raft RaftConfig `yaml:"raft" envPrefix:"RAFT_"`
}

// LoadConfig loads configuration from a YAML file if path is provided,
// then applies environment variable overrides, defaults and validation.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides lets ETAGKV_* environment variables override YAML values.
// Unset variables leave the field untouched.
func applyEnvOverrides(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("config: parse env: %w", err)
	}
	if cfg.StoresList != "" {
		stores, err := ParseStores(cfg.StoresList)
		if err != nil {
			return err
		}
		cfg.Stores = stores
	}
	return nil
}

func (cfg *Config) setDefaults() {
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.GRPCAddr == "" {
		cfg.GRPCAddr = ":9090"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if len(cfg.Stores) == 0 {
		cfg.Stores = []StoreConfig{{Name: "statestore", Backend: BackendMemory}}
	}
	for i := range cfg.Stores {
		if cfg.Stores[i].Backend == "" {
			cfg.Stores[i].Backend = BackendMemory
		}
	}
	if cfg.Raft.NodeID != "" {
		if cfg.Raft.DataDir == "" {
			cfg.Raft.DataDir = fmt.Sprintf("./etagkv/%s", cfg.Raft.NodeID)
		}
		if cfg.Raft.AdvertiseHTTP == "" {
			cfg.Raft.AdvertiseHTTP = advertise(cfg.HTTPAddr, cfg.Raft.Addr)
		}
		if cfg.Raft.AdvertiseGRPC == "" {
			cfg.Raft.AdvertiseGRPC = advertise(cfg.GRPCAddr, cfg.Raft.Addr)
		}
	}
}

// advertise fills in the host of a ":port" listen address from raftAddr,
// falling back to localhost.
func advertise(listen, raftAddr string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil || host != "" {
		return listen
	}
	host, _, err = net.SplitHostPort(raftAddr)
	if err != nil || host == "" {
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}

// Validate reports every configuration problem at once.
func (cfg *Config) Validate() error {
	var result *multierror.Error

	seen := make(map[string]bool)
	raftStores := 0
	for i, s := range cfg.Stores {
		if s.Name == "" {
			result = multierror.Append(result, fmt.Errorf("stores[%d]: name is required", i))
		} else if seen[s.Name] {
			result = multierror.Append(result, fmt.Errorf("stores[%d]: duplicate store name %q", i, s.Name))
		}
		seen[s.Name] = true

		switch s.Backend {
		case BackendMemory:
		case BackendSQLite:
			if s.Path == "" {
				result = multierror.Append(result, fmt.Errorf("stores[%d]: sqlite backend needs a path", i))
			}
		case BackendRaft:
			raftStores++
		default:
			result = multierror.Append(result, fmt.Errorf("stores[%d]: unknown backend %q", i, s.Backend))
		}
	}

	if raftStores > 1 {
		result = multierror.Append(result, fmt.Errorf("at most one raft store is supported, got %d", raftStores))
	}
	if raftStores > 0 {
		if cfg.Raft.NodeID == "" {
			result = multierror.Append(result, fmt.Errorf("raft.node_id is required (set via %sRAFT_NODE_ID or config file)", EnvPrefix))
		}
		if cfg.Raft.Addr == "" {
			result = multierror.Append(result, fmt.Errorf("raft.addr is required (set via %sRAFT_ADDR or config file)", EnvPrefix))
		}
		if cfg.Raft.Bootstrap && cfg.Raft.Join != "" {
			result = multierror.Append(result, fmt.Errorf("raft.bootstrap and raft.join are mutually exclusive"))
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// HasRaft reports whether any store uses the raft backend.
func (cfg *Config) HasRaft() bool {
	for _, s := range cfg.Stores {
		if s.Backend == BackendRaft {
			return true
		}
	}
	return false
}

// ParseStores parses a comma separated list of name[:backend[:path]] entries,
// e.g. "statestore:memory,durable:sqlite:/var/lib/etagkv/durable.db".
func ParseStores(list string) ([]StoreConfig, error) {
	var stores []StoreConfig
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.SplitN(part, ":", 3)
		s := StoreConfig{Name: fields[0]}
		if len(fields) > 1 {
			s.Backend = fields[1]
		}
		if len(fields) > 2 {
			s.Path = fields[2]
		}
		if s.Name == "" {
			return nil, fmt.Errorf("config: store entry %q has no name", part)
		}
		stores = append(stores, s)
	}
	return stores, nil
}

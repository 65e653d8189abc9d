package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/heysubinoy/etagkv/internal/logging"
	"github.com/heysubinoy/etagkv/pkg/state"
	"github.com/heysubinoy/etagkv/pkg/state/observe"
	"github.com/heysubinoy/etagkv/pkg/transport/grpctransport"
	"github.com/heysubinoy/etagkv/pkg/transport/httptransport"
)

const (
	defaultHTTPAddr = "http://127.0.0.1:8080"
	defaultGRPCAddr = "127.0.0.1:9090"
	requestTimeout  = 5 * time.Second
)

// Exit codes beyond 0 and 1.
const (
	exitNotFound = 2
	exitConflict = 3
)

// Meta holds the flags and plumbing shared by every command.
type Meta struct {
	Ui cli.Ui

	addr     string
	grpcAddr string
	useGRPC  bool
	verbose  bool
}

func (m *Meta) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&m.addr, "addr", envOr("ETAGKV_ADDR", defaultHTTPAddr), "HTTP base URL of the state server")
	fs.StringVar(&m.grpcAddr, "grpc-addr", envOr("ETAGKV_GRPC_ADDR", defaultGRPCAddr), "gRPC address of the state server")
	fs.BoolVar(&m.useGRPC, "grpc", false, "use gRPC instead of HTTP")
	fs.BoolVar(&m.verbose, "verbose", false, "log every request")
	return fs
}

// client builds a state client for the selected transport. The returned
// function releases the transport.
func (m *Meta) client() (*state.Client, func(), error) {
	level := "warn"
	if m.verbose {
		level = "debug"
	}
	logger := logging.New("state-cli", level)
	opts := []state.ClientOption{state.WithObserver(observe.NewLogObserver(logger))}

	if m.useGRPC {
		tr, err := grpctransport.Dial(m.grpcAddr)
		if err != nil {
			return nil, nil, err
		}
		return state.NewClient(tr, opts...), func() { tr.Close() }, nil
	}

	var transportLogger hclog.Logger
	if m.verbose {
		transportLogger = logger
	}
	tr, err := httptransport.New(m.addr, httptransport.Options{Logger: transportLogger})
	if err != nil {
		return nil, nil, err
	}
	return state.NewClient(tr, opts...), func() {}, nil
}

func (m *Meta) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

// parseETag maps the -etag flag to an ETag. An unset flag means no etag;
// a flag given as -etag= passes the empty token through so the client can
// reject it.
func parseETag(fs *flag.FlagSet, token string) state.ETag {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "etag" {
			set = true
		}
	})
	if !set {
		return state.NoETag
	}
	return state.NewETag(token)
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

// usageError reports a bad invocation; cli.CLI then prints the command help.
func (m *Meta) usageError(format string, args ...interface{}) int {
	m.Ui.Error(fmt.Sprintf(format, args...))
	return cli.RunResultHelp
}

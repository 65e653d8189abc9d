package main

import (
	"fmt"
	"strings"

	"github.com/heysubinoy/etagkv/pkg/state"
)

type GetCommand struct {
	Meta
}

func (c *GetCommand) Run(args []string) int {
	fs := c.flagSet("get")
	strong := fs.Bool("strong", false, "request a linearizable read")
	if err := fs.Parse(args); err != nil {
		return c.usageError("%s", err)
	}
	if fs.NArg() != 2 {
		return c.usageError("get needs <store> <key>")
	}
	store, key := fs.Arg(0), fs.Arg(1)

	client, done, err := c.client()
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	defer done()
	ctx, cancel := c.context()
	defer cancel()

	var opts []state.Option
	if *strong {
		opts = append(opts, state.WithConsistency(state.ConsistencyStrong))
	}
	entry, err := client.GetStateAndETag(ctx, store, key, opts...)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Get failed: %v", err))
		return 1
	}
	if !entry.Found() {
		c.Ui.Error(fmt.Sprintf("Key '%s' not found in store '%s'", key, store))
		return exitNotFound
	}
	c.Ui.Output(string(entry.Value))
	c.Ui.Info("etag: " + entry.ETag.Token())
	return 0
}

func (c *GetCommand) Synopsis() string {
	return "Read a value and its etag"
}

func (c *GetCommand) Help() string {
	return strings.TrimSpace(`
Usage: state-cli get [options] <store> <key>

  Prints the value stored under key, followed by its etag.
  Exits with 2 when the key does not exist.

Options:

  -strong           Linearizable read through the leader.
` + commonHelp)
}

type SetCommand struct {
	Meta
}

func (c *SetCommand) Run(args []string) int {
	fs := c.flagSet("set")
	etag := fs.String("etag", "", "only write if the stored etag matches")
	if err := fs.Parse(args); err != nil {
		return c.usageError("%s", err)
	}
	if fs.NArg() != 3 {
		return c.usageError("set needs <store> <key> <value>")
	}
	store, key, value := fs.Arg(0), fs.Arg(1), fs.Arg(2)

	client, done, err := c.client()
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	defer done()
	ctx, cancel := c.context()
	defer cancel()

	ok, err := client.TrySave(ctx, store, key, []byte(value), parseETag(fs, *etag))
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Set failed: %v", err))
		return 1
	}
	if !ok {
		c.Ui.Error(fmt.Sprintf("Set '%s' rejected: etag %q is stale", key, *etag))
		return exitConflict
	}
	c.Ui.Output(fmt.Sprintf("Set '%s' = '%s'", key, value))
	return 0
}

func (c *SetCommand) Synopsis() string {
	return "Write a value, optionally guarded by an etag"
}

func (c *SetCommand) Help() string {
	return strings.TrimSpace(`
Usage: state-cli set [options] <store> <key> <value>

  Writes value under key. With -etag the write only succeeds when the
  stored etag still matches; otherwise it exits with 3.

Options:

  -etag=<token>     Expected current etag.
` + commonHelp)
}

type DeleteCommand struct {
	Meta
}

func (c *DeleteCommand) Run(args []string) int {
	fs := c.flagSet("delete")
	etag := fs.String("etag", "", "only delete if the stored etag matches")
	if err := fs.Parse(args); err != nil {
		return c.usageError("%s", err)
	}
	if fs.NArg() != 2 {
		return c.usageError("delete needs <store> <key>")
	}
	store, key := fs.Arg(0), fs.Arg(1)

	client, done, err := c.client()
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}
	defer done()
	ctx, cancel := c.context()
	defer cancel()

	ok, err := client.TryDelete(ctx, store, key, parseETag(fs, *etag))
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Delete failed: %v", err))
		return 1
	}
	if !ok {
		c.Ui.Error(fmt.Sprintf("Delete '%s' rejected: etag %q is stale or key is gone", key, *etag))
		return exitConflict
	}
	c.Ui.Output(fmt.Sprintf("Deleted '%s'", key))
	return 0
}

func (c *DeleteCommand) Synopsis() string {
	return "Delete a key, optionally guarded by an etag"
}

func (c *DeleteCommand) Help() string {
	return strings.TrimSpace(`
Usage: state-cli delete [options] <store> <key>

  Deletes key. With -etag the delete only succeeds when the stored etag
  still matches; otherwise it exits with 3.

Options:

  -etag=<token>     Expected current etag.
` + commonHelp)
}

const commonHelp = `
  -addr=<url>       HTTP base URL (default $ETAGKV_ADDR or http://127.0.0.1:8080).
  -grpc             Talk gRPC instead of HTTP.
  -grpc-addr=<addr> gRPC address (default $ETAGKV_GRPC_ADDR or 127.0.0.1:9090).
  -verbose          Log each request to stderr.
`

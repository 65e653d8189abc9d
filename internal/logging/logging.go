// Package logging builds the hclog loggers shared by the etagkv binaries.
package logging

import (
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
)

// New returns a root logger writing to stderr. Unknown levels fall back to
// info.
func New(name, level string) hclog.Logger {
	return NewWithOutput(name, level, os.Stderr)
}

func NewWithOutput(name, level string, w io.Writer) hclog.Logger {
	lvl := hclog.LevelFromString(level)
	if lvl == hclog.NoLevel {
		lvl = hclog.Info
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   name,
		Level:  lvl,
		Output: w,
	})
}

// Package logger owns the host's root hclog logger. Components receive a
// Named sub-logger; the package-level helpers cover code paths that have
// no logger injected (HTTP error responses, startup).
package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// Options configures the root logger.
type Options struct {
	Name   string
	Level  string // trace, debug, info, warn, error
	Format string // "json" or text
	Output io.Writer
}

var (
	root   hclog.Logger = hclog.NewNullLogger()
	rootMu sync.RWMutex
)

// New builds a logger from options without touching the package default.
func New(opts Options) hclog.Logger {
	output := opts.Output
	if output == nil {
		output = os.Stderr
	}
	name := opts.Name
	if name == "" {
		name = "soundcrowd"
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:            name,
		Level:           hclog.LevelFromString(strings.ToLower(opts.Level)),
		Output:          output,
		JSONFormat:      strings.EqualFold(opts.Format, "json"),
		IncludeLocation: false,
	})
}

// Init builds the root logger and installs it as the package default.
func Init(opts Options) hclog.Logger {
	l := New(opts)
	SetDefault(l)
	return l
}

// SetDefault replaces the package default logger.
func SetDefault(l hclog.Logger) {
	rootMu.Lock()
	defer rootMu.Unlock()
	root = l
}

// Get returns the package default logger.
func Get() hclog.Logger {
	rootMu.RLock()
	defer rootMu.RUnlock()
	return root
}

// Named returns a sub-logger of the package default.
func Named(name string) hclog.Logger {
	return Get().Named(name)
}

// Info logs informational messages with key/value pairs
func Info(msg string, args ...interface{}) {
	Get().Info(msg, args...)
}

// Warn logs warning messages
func Warn(msg string, args ...interface{}) {
	Get().Warn(msg, args...)
}

// Error logs error messages
func Error(msg string, args ...interface{}) {
	Get().Error(msg, args...)
}

// Debug logs debug messages
func Debug(msg string, args ...interface{}) {
	Get().Debug(msg, args...)
}

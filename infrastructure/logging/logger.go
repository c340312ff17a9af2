// Package logging provides structured logging using bolt.
//
// A single process logger backs the package-level event constructors. The
// CLI points it at stderr before any command runs and reconfigures it once
// the configuration file has been read.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/felixgeelhaar/bolt/v3"
)

// Config configures the process logger.
type Config struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string

	// Format is json or console.
	Format string

	// Output defaults to stderr so stdout stays free for the operator
	// dialogue and for --json output.
	Output io.Writer
}

// DefaultConfig logs info and above to stderr in console format.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "console",
		Output: os.Stderr,
	}
}

var (
	mu      sync.RWMutex
	current Config
	logger  *bolt.Logger
)

func parseLevel(s string) bolt.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return bolt.TRACE
	case "debug":
		return bolt.DEBUG
	case "warn", "warning":
		return bolt.WARN
	case "error":
		return bolt.ERROR
	default:
		return bolt.INFO
	}
}

// New builds a standalone logger. Tests use it to capture JSON output.
func New(format string, output io.Writer, level string) *bolt.Logger {
	var handler bolt.Handler
	if strings.EqualFold(format, "json") {
		handler = bolt.NewJSONHandler(output)
	} else {
		handler = bolt.NewConsoleHandler(output)
	}
	return bolt.New(handler).SetLevel(parseLevel(level))
}

// Init replaces the process logger. Empty fields keep their current value,
// so a config file that only names a level does not move the output.
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	if logger == nil {
		current = DefaultConfig()
	}
	if cfg.Level != "" {
		current.Level = cfg.Level
	}
	if cfg.Format != "" {
		current.Format = cfg.Format
	}
	if cfg.Output != nil {
		current.Output = cfg.Output
	}
	logger = New(current.Format, current.Output, current.Level)
}

// SetLevel changes the level of the process logger.
func SetLevel(level string) {
	Init(Config{Level: level})
}

func get() *bolt.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}
	Init(Config{})
	return get()
}

// Event wraps a bolt event so Fields can be chained onto it.
type Event struct {
	event *bolt.Event
}

// Add applies a field and returns the event for chaining.
func (e *Event) Add(f Field) *Event {
	e.event = f(e.event)
	return e
}

// Msg writes the event.
func (e *Event) Msg(msg string) {
	e.event.Msg(msg)
}

func Debug() *Event { return &Event{event: get().Debug()} }
func Info() *Event  { return &Event{event: get().Info()} }
func Warn() *Event  { return &Event{event: get().Warn()} }
func Error() *Event { return &Event{event: get().Error()} }

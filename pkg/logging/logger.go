// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger. Loggers created with
// NewLogger afterwards inherit its output and level.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(cfg.Level.zerologLevel())

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel validates a level name from configuration.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return "", fmt.Errorf("unknown log level %q", s)
	}
}

// zerologLevel maps the level to zerolog. Unknown levels log at info.
func (l LogLevel) zerologLevel() zerolog.Level {
	switch strings.ToLower(string(l)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Field names shared by every component logging a search session.
const (
	FieldSessionID = "session_id"
	FieldQuery     = "query"
)

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// WithSession returns a child of l tagged with a search session.
func WithSession(l zerolog.Logger, sessionID, query string) zerolog.Logger {
	return l.With().
		Str(FieldSessionID, sessionID).
		Str(FieldQuery, query).
		Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Boundary signals and dispatched fetches (page, kind)
//   - Cache hits and conditional requests (etag)
//   - Cancelled sessions dropping results
//
// Info: Normal operation events
//   - Search sessions started
//   - Remote source exhausted for a session
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Failed remote fetches (published to the session error stream)
//   - Search budget low, requests throttled
//   - Cache and rate limit state errors (request proceeds)
//
// Error: Error conditions requiring attention
//   - Store failures (fatal for the session)
//   - Search budget exhausted, requests blocked
//   - Configuration errors
//
// Context Fields:
//   - component: emitting package (backfill, search, github-client, store, server)
//   - session_id: backfill session UUID
//   - query: raw search string
//   - page: remote page number (1-based)
//   - records: records in a fetched or persisted batch
//   - status: HTTP status code
//   - error_class: fetch failure class (client, server, rate_limit, network, decode)
//   - remaining: GitHub search requests left in the window
//   - etag: ETag value for conditional requests

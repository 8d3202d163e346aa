// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
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

	// RunID is attached to every line as run_id when set.
	RunID string
}

// DefaultConfig returns a default logger configuration. Pretty output is on
// when stderr is a terminal.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: IsTerminal(os.Stderr),
		Output: os.Stderr,
	}
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// NewRunID returns a fresh identifier for one scrape run.
func NewRunID() string {
	return uuid.NewString()
}

// ValidLevel reports whether level names a known log level.
func ValidLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	// Set global log level
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	// Configure output
	var output io.Writer = cfg.Output
	if cfg.Pretty && cfg.Output != nil {
		output = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: "15:04:05"}
	}

	if output == nil {
		output = os.Stderr
	}

	// Create logger with timestamp
	ctx := zerolog.New(output).With().Timestamp()
	if cfg.RunID != "" {
		ctx = ctx.Str("run_id", cfg.RunID)
	}
	logger := ctx.Logger()

	// Set as global logger
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache operations (hit/miss, key, TTL)
//   - Throttle pauses
//   - Dropped relationships and skipped images
//
// Info: Normal operation events
//   - Page progress per listing class
//   - Phase summaries (index built, products enriched)
//   - Run start and final report
//
// Warn: Warning conditions that don't prevent operation
//   - Paging loops ending on an error (partial data kept)
//   - Rejected images (bad status, not an image)
//   - Cache errors (fallback to direct request)
//   - Empty scrapes
//
// Error: Error conditions requiring attention
//   - Image write failures
//   - CSV write failures
//   - Configuration errors
//
// Context Fields:
//   - run_id: Identifier of one scrape run
//   - component: Emitting package
//   - class: Listing class
//   - page: Page number
//   - status: HTTP status code
//   - error_class: Error classification (client, server, network, decode)
//   - product_id: Product identifier
//   - url / path: Image source and destination

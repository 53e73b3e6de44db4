package logx

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// New returns a console logger on stderr filtered at the given level.
// Stdout is never used because the MCP and ACP transports own it. Colors are
// only emitted when stderr is a terminal; a child whose stderr is a pipe
// writes plain lines.
func New(level string) zerolog.Logger {
	fd := os.Stderr.Fd()
	return NewWriter(Console(os.Stderr, isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)), level)
}

// Console returns the human-readable writer used by New.
func Console(w io.Writer, color bool) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000", NoColor: !color}
}

// NewWriter is New with an explicit sink.
func NewWriter(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// ParseLevel converts a string to a zerolog level.
// Accepts: all, trace, debug, info, warn, warning, error, fatal, none.
// Unknown values default to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "all", "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "none", "off", "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

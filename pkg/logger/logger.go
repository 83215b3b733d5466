package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel names a minimum log level
type LogLevel string

// Log levels
const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config contains logger configuration options
type Config struct {
	// Level is the minimum level to log
	Level string
	// JSON enables JSON formatting instead of text
	JSON bool
	// Output is where logs will be written (defaults to os.Stderr)
	Output io.Writer
	// AddSource adds source code information to logs
	AddSource bool
}

// DefaultConfig returns the production logger configuration
func DefaultConfig() Config {
	return Config{
		Level:  string(LevelInfo),
		JSON:   true,
		Output: os.Stderr,
	}
}

// Logger wraps slog for structured logging
type Logger struct {
	*slog.Logger
	config Config
}

var global *Logger

// ParseLevel maps a level name to its slog level. Unknown names log at info.
func ParseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// New creates a new logger with the given configuration.
// The first logger created becomes the global one.
func New(config Config) *Logger {
	if config.Output == nil {
		config.Output = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(config.Level), AddSource: config.AddSource}

	var handler slog.Handler = slog.NewTextHandler(config.Output, opts)
	if config.JSON {
		handler = slog.NewJSONHandler(config.Output, opts)
	}

	l := &Logger{Logger: slog.New(handler), config: config}
	if global == nil {
		global = l
	}
	return l
}

// SetGlobal sets the global logger instance
func SetGlobal(logger *Logger) {
	global = logger
}

// GetGlobal returns the global logger instance
func GetGlobal() *Logger {
	return global
}

// LogError logs err at error level with extra key/value pairs
func (l *Logger) LogError(err error, msg string, args ...any) {
	l.Error(msg, append([]any{"error", err.Error()}, args...)...)
}

func (l *Logger) with(key, value string) *Logger {
	if value == "" {
		return l
	}
	return &Logger{Logger: l.Logger.With(key, value), config: l.config}
}

// WithRequestID tags entries with the HTTP request ID
func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.with("request_id", requestID)
}

// WithSubject tags entries with the authenticated token subject
func (l *Logger) WithSubject(subject string) *Logger {
	return l.with("subject", subject)
}

// WithMessageID tags entries with an inbound WhatsApp message ID
func (l *Logger) WithMessageID(messageID string) *Logger {
	return l.with("wa_message_id", messageID)
}

type ctxKey struct{}

// NewContext returns a copy of ctx carrying l
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// WithContext returns the logger carried by ctx, or l when there is none
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if scoped, ok := ctx.Value(ctxKey{}).(*Logger); ok && scoped != nil {
		return scoped
	}
	return l
}

// LogRequest logs a completed HTTP request. Probe endpoints log at debug.
func (l *Logger) LogRequest(method, path string, status int, latency time.Duration) {
	level := slog.LevelInfo
	switch {
	case status >= 500:
		level = slog.LevelError
	case status >= 400:
		level = slog.LevelWarn
	case isProbe(path):
		level = slog.LevelDebug
	}
	l.Log(context.Background(), level, "request completed",
		"method", method,
		"path", path,
		"status", status,
		"latency_ms", latency.Milliseconds(),
	)
}

func isProbe(path string) bool {
	switch path {
	case "/health", "/api/health", "/metrics", "/version":
		return true
	}
	return false
}

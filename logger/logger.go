// Package logger provides structured logging for the metadata repository.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog with component helpers.
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool
	Output     io.Writer
	WithCaller bool
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	}
	return zerolog.InfoLevel
}

// NewLogger creates a new structured logger
func NewLogger(cfg Config) *Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	zlog := zerolog.New(output).
		Level(parseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service", "clinical-mdr-api").
		Logger()
	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}
	return &Logger{zlog: zlog}
}

// Nop discards everything; used by tests.
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

func (l *Logger) GetZerolog() *zerolog.Logger {
	return &l.zlog
}

func (l *Logger) Info() *zerolog.Event {
	return l.zlog.Info()
}

func (l *Logger) Debug() *zerolog.Event {
	return l.zlog.Debug()
}

func (l *Logger) Warn() *zerolog.Event {
	return l.zlog.Warn()
}

func (l *Logger) Error() *zerolog.Event {
	return l.zlog.Error()
}

// DbLogger returns a logger for database operations
func (l *Logger) DbLogger(operation string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", "database").Str("operation", operation).Logger()}
}

// HTTPLogger returns a logger for the HTTP layer
func (l *Logger) HTTPLogger() *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", "http").Logger()}
}

// ServiceLogger returns a logger for one service, keyed by entity name
func (l *Logger) ServiceLogger(entity string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", "service").Str("entity", entity).Logger()}
}

// LogRequest logs a completed HTTP request.
func (l *Logger) LogRequest(method, path string, status int, latency time.Duration, requestID string) {
	event := l.zlog.Info()
	if status >= 500 {
		event = l.zlog.Error()
	} else if status >= 400 {
		event = l.zlog.Warn()
	}
	event.Str("method", method).
		Str("path", path).
		Int("status", status).
		Dur("latency_ms", latency).
		Str("request_id", requestID).
		Msg("request completed")
}

// LogTransition logs a lifecycle transition of a versioned item.
func (l *Logger) LogTransition(operation, uid, version, status string, err error) {
	if err != nil {
		l.zlog.Warn().Str("operation", operation).Str("uid", uid).Err(err).Msg("transition rejected")
		return
	}
	l.zlog.Info().
		Str("operation", operation).
		Str("uid", uid).
		Str("version", version).
		Str("status", status).
		Msg("transition committed")
}

// LogServerStart logs server startup
func (l *Logger) LogServerStart(port string) {
	l.zlog.Info().Str("event", "server_start").Str("port", port).Msg("server starting")
}

var globalLogger *Logger

// InitGlobalLogger initializes the process logger
func InitGlobalLogger(cfg Config) *Logger {
	globalLogger = NewLogger(cfg)
	log.Logger = *globalLogger.GetZerolog()
	return globalLogger
}

// GetGlobalLogger returns the process logger
func GetGlobalLogger() *Logger {
	if globalLogger == nil {
		return InitGlobalLogger(Config{Level: "info"})
	}
	return globalLogger
}

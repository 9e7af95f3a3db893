package quillsign

import (
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Logger is the minimal structured logging interface the SDK emits to.
// Key-value pairs alternate keys and values.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// SimpleLogger writes leveled lines to stderr via the standard log package.
type SimpleLogger struct {
	l *log.Logger
}

// NewSimpleLogger returns a console logger suitable for development.
func NewSimpleLogger() *SimpleLogger {
	return &SimpleLogger{l: log.New(os.Stderr, "quillsign ", log.LstdFlags)}
}

func (s *SimpleLogger) Debug(msg string, kv ...interface{}) { s.print("DEBUG", msg, kv) }
func (s *SimpleLogger) Info(msg string, kv ...interface{})  { s.print("INFO", msg, kv) }
func (s *SimpleLogger) Warn(msg string, kv ...interface{})  { s.print("WARN", msg, kv) }
func (s *SimpleLogger) Error(msg string, kv ...interface{}) { s.print("ERROR", msg, kv) }

func (s *SimpleLogger) print(level, msg string, kv []interface{}) {
	line := level + " " + msg
	for i := 0; i+1 < len(kv); i += 2 {
		line += fmt.Sprintf(" %v=%v", kv[i], kv[i+1])
	}
	s.l.Println(line)
}

// zerologLogger adapts a zerolog.Logger to the Logger interface.
type zerologLogger struct {
	zl zerolog.Logger
}

// NewZerologLogger wraps a zerolog.Logger for use as the SDK logger.
func NewZerologLogger(zl zerolog.Logger) Logger {
	return &zerologLogger{zl: zl}
}

func (z *zerologLogger) Debug(msg string, kv ...interface{}) {
	z.zl.Debug().Fields(kvFields(kv)).Msg(msg)
}

func (z *zerologLogger) Info(msg string, kv ...interface{}) {
	z.zl.Info().Fields(kvFields(kv)).Msg(msg)
}

func (z *zerologLogger) Warn(msg string, kv ...interface{}) {
	z.zl.Warn().Fields(kvFields(kv)).Msg(msg)
}

func (z *zerologLogger) Error(msg string, kv ...interface{}) {
	z.zl.Error().Fields(kvFields(kv)).Msg(msg)
}

func kvFields(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}

// DebugConfig selects which pipeline events are logged. All flags default
// to on when debug logging is enabled.
type DebugConfig struct {
	Enabled     bool
	LogRequests bool
	LogCache    bool
	LogRetries  bool
	LogCircuit  bool
	LogTokens   bool
	// RequestIDGen produces the per-call correlation ID.
	RequestIDGen func() string
}

// DefaultDebugConfig returns a config with every event class enabled.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		Enabled:      false,
		LogRequests:  true,
		LogCache:     true,
		LogRetries:   true,
		LogCircuit:   true,
		LogTokens:    true,
		RequestIDGen: uuid.NewString,
	}
}

package redisserver

import (
	"fmt"
	"io"
	"log"
	"strings"
)

// Field represents a structured log field
type Field struct {
	Key   string
	Value interface{}
}

// Logger interface for custom logging implementations
type Logger interface {
	// Debug logs a debug message with optional fields
	Debug(msg string, fields ...Field)

	// Info logs an info message with optional fields
	Info(msg string, fields ...Field)

	// Error logs an error message with optional fields
	Error(msg string, fields ...Field)
}

// Level is the minimum severity a Logger created by NewLogger writes
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel converts a level name (debug, info, warn, error) to a Level
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warning", "warn":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error: %w", level, ErrInvalidConfig)
	}
}

// NewLogger returns a Logger writing to out that drops messages below level
func NewLogger(level Level, out io.Writer) Logger {
	return &defaultLogger{
		level:  level,
		logger: log.New(out, "", log.Ldate|log.Ltime),
	}
}

// defaultLogger is a simple logger implementation using the standard log package
type defaultLogger struct {
	level  Level
	logger *log.Logger
}

func (l *defaultLogger) Debug(msg string, fields ...Field) {
	if l.level <= LevelDebug {
		l.logWithFields("DEBUG", msg, fields...)
	}
}

func (l *defaultLogger) Info(msg string, fields ...Field) {
	if l.level <= LevelInfo {
		l.logWithFields("INFO", msg, fields...)
	}
}

func (l *defaultLogger) Error(msg string, fields ...Field) {
	l.logWithFields("ERROR", msg, fields...)
}

func (l *defaultLogger) logWithFields(level, msg string, fields ...Field) {
	var b strings.Builder
	fmt.Fprintf(&b, "%-5s | %s", level, msg)
	for _, field := range fields {
		b.WriteString(" " + field.Key + "=" + formatValue(field.Value))
	}

	if l.logger == nil {
		log.Println(b.String())
		return
	}
	l.logger.Println(b.String())
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case error:
		return val.Error()
	default:
		return fmt.Sprintf("%v", val)
	}
}

package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

// ParseLevel maps "debug", "info", "warn" or "error" to a Level; anything
// else is INFO.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// Logger provides structured JSON logging with optional secret redaction.
type Logger struct {
	level  Level
	mu     sync.Mutex
	redact bool
	out    io.Writer

	// child loggers share base's level, output and lock
	base   *Logger
	fields []interface{}
}

var defaultLogger = &Logger{level: INFO, redact: true, out: os.Stderr}

// SetLevel sets the minimum log level for the default logger.
func SetLevel(l Level) { defaultLogger.level = l }

// SetRedact enables or disables redaction for the default logger.
func SetRedact(r bool) { defaultLogger.redact = r }

// SetOutput redirects the default logger. Used by tests.
func SetOutput(w io.Writer) {
	defaultLogger.mu.Lock()
	defaultLogger.out = w
	defaultLogger.mu.Unlock()
}

// Debug emits a DEBUG-level structured log entry.
func Debug(msg string, fields ...interface{}) { defaultLogger.log(DEBUG, msg, fields...) }

// Info emits an INFO-level structured log entry.
func Info(msg string, fields ...interface{}) { defaultLogger.log(INFO, msg, fields...) }

// Warn emits a WARN-level structured log entry.
func Warn(msg string, fields ...interface{}) { defaultLogger.log(WARN, msg, fields...) }

// Error emits an ERROR-level structured log entry.
func Error(msg string, fields ...interface{}) { defaultLogger.log(ERROR, msg, fields...) }

// With returns a logger that prepends fields to every entry, e.g.
// logger.With("component", "monitor", "tenant", id).
func With(fields ...interface{}) *Logger {
	return defaultLogger.With(fields...)
}

// With returns a child logger sharing this logger's output.
func (l *Logger) With(fields ...interface{}) *Logger {
	return &Logger{
		base:   l.root(),
		fields: append(append([]interface{}{}, l.fields...), fields...),
	}
}

func (l *Logger) root() *Logger {
	if l.base != nil {
		return l.base
	}
	return l
}

// Debug emits a DEBUG-level entry with the logger's fields.
func (l *Logger) Debug(msg string, fields ...interface{}) {
	l.root().log(DEBUG, msg, l.merge(fields)...)
}

// Info emits an INFO-level entry with the logger's fields.
func (l *Logger) Info(msg string, fields ...interface{}) { l.root().log(INFO, msg, l.merge(fields)...) }

// Warn emits a WARN-level entry with the logger's fields.
func (l *Logger) Warn(msg string, fields ...interface{}) { l.root().log(WARN, msg, l.merge(fields)...) }

// Error emits an ERROR-level entry with the logger's fields.
func (l *Logger) Error(msg string, fields ...interface{}) {
	l.root().log(ERROR, msg, l.merge(fields)...)
}

func (l *Logger) merge(fields []interface{}) []interface{} {
	if len(l.fields) == 0 {
		return fields
	}
	return append(append([]interface{}{}, l.fields...), fields...)
}

func (l *Logger) log(level Level, msg string, fields ...interface{}) {
	if level < l.level {
		return
	}

	entry := map[string]interface{}{
		"time":  time.Now().UTC().Format(time.RFC3339),
		"level": levelNames[level],
		"msg":   msg,
	}

	// Parse key-value pairs from fields
	for i := 0; i < len(fields)-1; i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		val := fmt.Sprintf("%v", fields[i+1])
		if l.redact {
			val = redactValue(key, val)
		}
		entry[key] = val
	}

	data, _ := json.Marshal(entry)
	l.mu.Lock()
	fmt.Fprintln(l.out, string(data))
	l.mu.Unlock()
}

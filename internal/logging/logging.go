// Package logging provides leveled, in-memory-buffered logging for the
// CollabVM server. Every component logs through a *Logger obtained from a
// shared LogManager so operators get one consistent stream regardless of
// which guard, channel, or VM emitted the entry.
package logging

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// LogLevel represents the severity of a log entry.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// String returns the human-readable name of the level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LogEntry is a single recorded log line kept in the in-memory ring buffer.
type LogEntry struct {
	Timestamp time.Time // When the entry was recorded
	Level     LogLevel  // Severity of the entry
	Component string    // Component that emitted the entry, e.g. "vmregistry"
	Message   string    // Rendered message text
}

// LogConfig configures a LogManager.
type LogConfig struct {
	MinLevel   LogLevel  // Entries below this level are dropped
	BufferSize int       // Number of recent entries retained in memory
	Output     *os.File  // Destination for rendered log lines
}

// LogManager fans out leveled log entries to stdout/stderr and keeps the
// most recent BufferSize entries for inspection (e.g. by an admin HTTP
// endpoint) without re-parsing log files.
type LogManager struct {
	config LogConfig
	std    *log.Logger

	mu      sync.Mutex
	buffer  []LogEntry
	nextIdx int
}

// NewLogManager creates a LogManager with sensible defaults: info level,
// stdout output, a 512-entry ring buffer.
func NewLogManager() *LogManager {
	return NewLogManagerWithConfig(LogConfig{
		MinLevel:   LogLevelInfo,
		BufferSize: 512,
		Output:     os.Stdout,
	})
}

// NewLogManagerWithConfig creates a LogManager with custom settings.
func NewLogManagerWithConfig(config LogConfig) *LogManager {
	if config.BufferSize <= 0 {
		config.BufferSize = 512
	}
	if config.Output == nil {
		config.Output = os.Stdout
	}
	return &LogManager{
		config: config,
		std:    log.New(config.Output, "", log.LstdFlags),
		buffer: make([]LogEntry, 0, config.BufferSize),
	}
}

// For returns a Logger scoped to component, e.g. "session" or "vm:3".
func (lm *LogManager) For(component string) *Logger {
	return &Logger{manager: lm, component: component}
}

// Recent returns a copy of the most recently recorded entries, oldest first.
func (lm *LogManager) Recent() []LogEntry {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	out := make([]LogEntry, 0, len(lm.buffer))
	out = append(out, lm.buffer[lm.nextIdx:]...)
	out = append(out, lm.buffer[:lm.nextIdx]...)
	return out
}

func (lm *LogManager) record(level LogLevel, component, msg string) {
	if level < lm.config.MinLevel {
		return
	}
	entry := LogEntry{Timestamp: time.Now(), Level: level, Component: component, Message: msg}

	lm.mu.Lock()
	if len(lm.buffer) < cap(lm.buffer) {
		lm.buffer = append(lm.buffer, entry)
	} else {
		lm.buffer[lm.nextIdx] = entry
		lm.nextIdx = (lm.nextIdx + 1) % cap(lm.buffer)
	}
	lm.mu.Unlock()

	lm.std.Printf("[%s] [%s] %s", level, component, msg)
}

// Logger is a component-scoped handle onto a LogManager.
type Logger struct {
	manager   *LogManager
	component string
}

func (l *Logger) Debugf(format string, args ...any) {
	l.manager.record(LogLevelDebug, l.component, fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...any) {
	l.manager.record(LogLevelInfo, l.component, fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...any) {
	l.manager.record(LogLevelWarn, l.component, fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	l.manager.record(LogLevelError, l.component, fmt.Sprintf(format, args...))
}

package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

// SimpleLogger is a structured logger backed by the standard library's
// log package. It is the default Logger used when the caller does not
// inject one of its own (tests, ad-hoc tools, local development).
type SimpleLogger struct {
	mu     sync.Mutex
	level  LogLevel
	fields map[string]interface{}
}

// NewSimpleLogger creates a new SimpleLogger at InfoLevel.
func NewSimpleLogger() *SimpleLogger {
	return &SimpleLogger{
		level:  InfoLevel,
		fields: make(map[string]interface{}),
	}
}

// NewDefaultLogger returns the default Logger implementation.
func NewDefaultLogger() Logger {
	return NewSimpleLogger()
}

// NoOpLogger discards everything. Useful for tests that don't care about
// log output and for components constructed without an explicit logger.
type NoOpLogger struct{}

func (NoOpLogger) Debug(msg string, fields ...interface{})      {}
func (NoOpLogger) Info(msg string, fields ...interface{})       {}
func (NoOpLogger) Warn(msg string, fields ...interface{})       {}
func (NoOpLogger) Error(msg string, fields ...interface{})      {}
func (NoOpLogger) SetLevel(level string)                        {}
func (n NoOpLogger) WithField(key string, value interface{}) Logger  { return n }
func (n NoOpLogger) WithFields(fields map[string]interface{}) Logger { return n }
func (n NoOpLogger) With(fields ...Field) Logger                     { return n }

func (l *SimpleLogger) Debug(msg string, fields ...interface{}) {
	if l.level <= DebugLevel {
		l.log("DEBUG", msg, fields...)
	}
}

func (l *SimpleLogger) Info(msg string, fields ...interface{}) {
	if l.level <= InfoLevel {
		l.log("INFO", msg, fields...)
	}
}

func (l *SimpleLogger) Warn(msg string, fields ...interface{}) {
	if l.level <= WarnLevel {
		l.log("WARN", msg, fields...)
	}
}

func (l *SimpleLogger) Error(msg string, fields ...interface{}) {
	if l.level <= ErrorLevel {
		l.log("ERROR", msg, fields...)
	}
}

func (l *SimpleLogger) SetLevel(level string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch strings.ToUpper(level) {
	case "DEBUG":
		l.level = DebugLevel
	case "INFO":
		l.level = InfoLevel
	case "WARN", "WARNING":
		l.level = WarnLevel
	case "ERROR":
		l.level = ErrorLevel
	}
}

func (l *SimpleLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

func (l *SimpleLogger) WithFields(fields map[string]interface{}) Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	newFields := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}
	return &SimpleLogger{level: l.level, fields: newFields}
}

func (l *SimpleLogger) With(fields ...Field) Logger {
	m := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	return l.WithFields(m)
}

func (l *SimpleLogger) log(level, msg string, fields ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	parts := make([]string, 0, 2+len(l.fields)+len(fields)/2)
	parts = append(parts, fmt.Sprintf("[%s]", level), msg)

	for k, v := range l.fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	for i := 0; i+1 < len(fields); i += 2 {
		parts = append(parts, fmt.Sprintf("%v=%v", fields[i], fields[i+1]))
	}

	log.Println(strings.Join(parts, " "))
}

// LevelFromEnv reads MAESTRO_LOG_LEVEL, defaulting to INFO.
func LevelFromEnv() string {
	level := os.Getenv("MAESTRO_LOG_LEVEL")
	if level == "" {
		return "INFO"
	}
	return level
}

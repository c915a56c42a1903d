package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
)

const (
	levelDebug = iota
	levelInfo
	levelWarn
	levelError
)

var logPrefixes = map[int]string{
	levelDebug: "[DBG]",
	levelInfo:  "[INF]",
	levelWarn:  "[WRN]",
	levelError: "[ERR]",
}

// Logger writes leveled diagnostic lines to a pair of streams.
//
// Debug and info lines go to Stdout, errors go to Stderr, and warnings go
// to both.
type Logger struct {
	mu      sync.Mutex
	stdout  io.Writer
	stderr  io.Writer
	verbose atomic.Bool
}

// New returns a Logger writing to stdout and stderr.
func New(stdout, stderr io.Writer) *Logger {
	return &Logger{stdout: stdout, stderr: stderr}
}

var std = New(os.Stdout, os.Stderr)

// Default returns the process-wide logger used by the package functions.
func Default() *Logger {
	return std
}

// SetVerbose enables or disables debug output.
func (l *Logger) SetVerbose(v bool) {
	l.verbose.Store(v)
}

// IsVerbose reports whether debug output is enabled.
func (l *Logger) IsVerbose() bool {
	return l.verbose.Load()
}

func (l *Logger) Debugf(format string, args ...any) {
	if l.IsVerbose() {
		l.logMessage(levelDebug, format, args...)
	}
}

func (l *Logger) Infof(format string, args ...any) {
	l.logMessage(levelInfo, format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.logMessage(levelWarn, format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.logMessage(levelError, format, args...)
}

func (l *Logger) logMessage(level int, format string, args ...any) {
	output := logPrefixes[level] + " " + fmt.Sprintf(format, args...) + "\n"

	l.mu.Lock()
	defer l.mu.Unlock()

	switch level {
	case levelError:
		_, _ = io.WriteString(l.stderr, output)
	case levelWarn:
		_, _ = io.WriteString(l.stdout, output)
		_, _ = io.WriteString(l.stderr, output)
	default:
		_, _ = io.WriteString(l.stdout, output)
	}
}

// SetVerbose sets the verbosity of the default logger.
func SetVerbose(v bool) {
	std.SetVerbose(v)
}

// IsVerbose reports whether the default logger emits debug output.
func IsVerbose() bool {
	return std.IsVerbose()
}

// Debugf logs a debug message if verbose is true.
func Debugf(format string, args ...any) {
	std.Debugf(format, args...)
}

// Infof logs an info message.
func Infof(format string, args ...any) {
	std.Infof(format, args...)
}

// Warnf logs a warning message.
func Warnf(format string, args ...any) {
	std.Warnf(format, args...)
}

// Errorf logs an error message.
func Errorf(format string, args ...any) {
	std.Errorf(format, args...)
}

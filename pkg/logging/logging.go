package logging

import (
	"io"
	"log"
	"os"
	"sync"
)

// Level represents the logging level
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

var (
	mu     sync.RWMutex
	level  = LevelInfo
	output = log.New(os.Stderr, "", log.LstdFlags)
)

// SetLevel sets the global log level
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

// SetVerbose enables verbose (debug) logging
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(LevelDebug)
	} else {
		SetLevel(LevelInfo)
	}
}

// SetOutput redirects all loggers to w.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output.SetOutput(w)
}

func enabled(l Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return level >= l
}

// Logger prefixes every line with its component name.
type Logger struct {
	prefix string
}

// New returns a logger for the named component.
func New(component string) *Logger {
	return &Logger{prefix: "[" + component + "] "}
}

func (l *Logger) printf(lvl Level, tag, format string, args ...interface{}) {
	if l == nil || !enabled(lvl) {
		return
	}
	output.Printf(tag+l.prefix+format, args...)
}

// Errorf logs an error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.printf(LevelError, "[ERROR] ", format, args...)
}

// Warnf logs a warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.printf(LevelWarn, "[WARN] ", format, args...)
}

// Infof logs an info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.printf(LevelInfo, "[INFO] ", format, args...)
}

// Debugf logs a debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.printf(LevelDebug, "[DEBUG] ", format, args...)
}

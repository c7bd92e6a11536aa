package util

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger atomic.Pointer[log.Logger]

// Logger returns the current logger, or nil before InitLogger.
func Logger() *log.Logger {
	return logger.Load()
}

// LogOptions configures InitLogger.
type LogOptions struct {
	// File, when set, receives a copy of every log line and is rotated.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// getColoredPrefix returns a styled prefix with colors
func getColoredPrefix() string {
	style := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(lipgloss.Color("#6366F1")).
		Bold(true).
		Padding(0, 1).
		MarginRight(1)
	return style.Render("aniresolve")
}

// InitLogger builds a charmbracelet logger and swaps it in atomically, so
// it may run while other goroutines are logging.
func InitLogger(opts LogOptions) {
	var out io.Writer = os.Stderr
	if opts.File != "" {
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSize,
			MaxBackups: opts.MaxBackups,
			Compress:   true,
		})
	}

	debug := IsDebug()
	l := log.NewWithOptions(out, log.Options{
		ReportCaller:    debug,
		ReportTimestamp: debug,
		TimeFormat:      "15:04:05",
		Prefix:          getColoredPrefix(),
	})
	l.SetColorProfile(termenv.TrueColor)

	if debug {
		l.SetLevel(log.DebugLevel)
		l.Debug("Debug logging enabled")
	} else {
		l.SetLevel(log.InfoLevel)
	}
	logger.Store(l)
}

// Debug logs a debug message (only when debug mode is enabled)
func Debug(msg interface{}, keyvals ...interface{}) {
	if l := logger.Load(); l != nil && IsDebug() {
		l.Debug(fmt.Sprintf("%v", msg), keyvals...)
	}
}

// Info logs an info message
func Info(msg interface{}, keyvals ...interface{}) {
	if l := logger.Load(); l != nil {
		l.Info(fmt.Sprintf("%v", msg), keyvals...)
	}
}

// Warn logs a warning message
func Warn(msg interface{}, keyvals ...interface{}) {
	if l := logger.Load(); l != nil {
		l.Warn(fmt.Sprintf("%v", msg), keyvals...)
	}
}

// Error logs an error message
func Error(msg interface{}, keyvals ...interface{}) {
	if l := logger.Load(); l != nil {
		l.Error(fmt.Sprintf("%v", msg), keyvals...)
	}
}

// Debugf logs a formatted debug message (only when debug mode is enabled)
func Debugf(format string, args ...interface{}) {
	if l := logger.Load(); l != nil && IsDebug() {
		l.Debug(fmt.Sprintf(format, args...))
	}
}

// Warnf logs a formatted warning message
func Warnf(format string, args ...interface{}) {
	if l := logger.Load(); l != nil {
		l.Warn(fmt.Sprintf(format, args...))
	}
}

package util

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/lipgloss"
)

var (
	debugMode atomic.Bool

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF4757")).
			Bold(true)

	debugErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#FF4757")).
			Padding(0, 1)
)

// SetDebugMode sets the process-wide debug mode. Safe for concurrent use.
func SetDebugMode(debug bool) {
	debugMode.Store(debug)
}

// IsDebug reports whether debug mode is on.
func IsDebug() bool {
	return debugMode.Load()
}

// ErrorHandler renders an error for a host UI. In debug mode the full wrapped
// chain (with pkg/errors stack traces) is shown.
func ErrorHandler(err error) string {
	if err == nil {
		return ""
	}
	if IsDebug() {
		return debugErrorStyle.Render(fmt.Sprintf("%+v", err))
	}
	return errorStyle.Render(err.Error())
}

// Truncate shortens s to at most n runes for log output.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}

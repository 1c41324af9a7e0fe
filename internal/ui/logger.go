package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

// Logger provides color-coded progress output on stderr, similar to the
// bash scripts this tool replaces.
type Logger struct {
	Verbose bool
	Quiet   bool

	info    *color.Color
	success *color.Color
	warning *color.Color
	err     *color.Color
	debug   *color.Color
}

// NewLogger creates a new logger
func NewLogger(verbose, quiet, noColor bool) *Logger {
	if noColor {
		color.NoColor = true
	}
	return &Logger{
		Verbose: verbose,
		Quiet:   quiet,
		info:    color.New(color.FgBlue),
		success: color.New(color.FgGreen),
		warning: color.New(color.FgYellow),
		err:     color.New(color.FgRed),
		debug:   color.New(color.FgCyan),
	}
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	if l.Quiet {
		return
	}
	fmt.Fprintln(os.Stderr, l.info.Sprintf("[INFO] "+format, args...))
}

// Success logs a success message
func (l *Logger) Success(format string, args ...interface{}) {
	if l.Quiet {
		return
	}
	fmt.Fprintln(os.Stderr, l.success.Sprintf("[SUCCESS] "+format, args...))
}

// Warning logs a warning message
func (l *Logger) Warning(format string, args ...interface{}) {
	fmt.Fprintln(os.Stderr, l.warning.Sprintf("[WARNING] "+format, args...))
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	fmt.Fprintln(os.Stderr, l.err.Sprintf("[ERROR] "+format, args...))
}

// Debug logs a debug message (only if verbose is enabled)
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.Verbose {
		return
	}
	fmt.Fprintln(os.Stderr, l.debug.Sprintf("[DEBUG] "+format, args...))
}

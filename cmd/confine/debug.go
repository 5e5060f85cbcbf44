package main

import (
	"fmt"
	"io"
)

// DebugLogger provides structured debug output for the driver and the
// wrapper roles. It is disabled by default (when output is nil) and
// writes to stderr when enabled via --debug.
type DebugLogger struct {
	output io.Writer
}

// NewDebugLogger creates a debug logger. If output is nil, the logger is
// disabled and all methods are no-ops.
func NewDebugLogger(output io.Writer) *DebugLogger {
	return &DebugLogger{output: output}
}

// Enabled reports whether debug logging is enabled.
func (d *DebugLogger) Enabled() bool {
	return d != nil && d.output != nil
}

// Section outputs a section header.
func (d *DebugLogger) Section(name string) {
	if !d.Enabled() {
		return
	}

	_, _ = fmt.Fprintf(d.output, "\n=== %s ===\n", name)
}

// Logf outputs a formatted debug message.
func (d *DebugLogger) Logf(format string, args ...any) {
	if !d.Enabled() {
		return
	}

	_, _ = fmt.Fprintf(d.output, format+"\n", args...)
}

// Bulletf outputs an indented bullet point item.
func (d *DebugLogger) Bulletf(format string, args ...any) {
	if !d.Enabled() {
		return
	}

	_, _ = fmt.Fprintf(d.output, "  • "+format+"\n", args...)
}

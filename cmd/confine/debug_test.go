package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestDebugLoggerNoOpWhenNil(t *testing.T) {
	var d *DebugLogger

	if d.Enabled() {
		t.Fatal("nil logger should report disabled")
	}

	d.Section("should not panic")
	d.Logf("should not panic")
	d.Bulletf("should not panic")
}

func TestDebugLoggerWritesWhenEnabled(t *testing.T) {
	var buf bytes.Buffer

	d := NewDebugLogger(&buf)
	if !d.Enabled() {
		t.Fatal("logger with a non-nil writer should be enabled")
	}

	d.Section("compiler invocation")
	d.Bulletf("package: %s", "widget")

	out := buf.String()
	if !strings.Contains(out, "compiler invocation") {
		t.Fatalf("output = %q, want it to contain the section name", out)
	}

	if !strings.Contains(out, "package: widget") {
		t.Fatalf("output = %q, want it to contain the bullet", out)
	}
}

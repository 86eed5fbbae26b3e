// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevelRecognizesNames(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"DEBUG":   LevelDebug,
		"warn":    LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"bogus":   LevelInfo,
	}
	for name, want := range cases {
		if got := ParseLevel(name); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestLoggerSuppressesBelowMinLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "test", LevelWarn)

	l.Debug("should not appear")
	l.Info("also should not appear")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below min level, got %q", buf.String())
	}

	l.Warn("should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Fatalf("expected warn message to appear, got %q", buf.String())
	}
}

func TestLoggerAppendsFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "test", LevelDebug)

	l.Info("routed flow", "flow", "n1-n3-0", "hops", 3)
	out := buf.String()
	if !strings.Contains(out, "flow=n1-n3-0") || !strings.Contains(out, "hops=3") {
		t.Fatalf("expected rendered fields in output, got %q", out)
	}
}

func TestFieldsOddArgsIgnoresTrailing(t *testing.T) {
	got := Fields("a", 1, "b")
	if got != "a=1" {
		t.Fatalf("expected only the complete pair to render, got %q", got)
	}
}

func TestWithLevelChangesGate(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "test", LevelError)
	quieter := l.WithLevel(LevelDebug)

	quieter.Debug("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Fatalf("expected WithLevel to change the gate on the shared writer, got %q", buf.String())
	}
}

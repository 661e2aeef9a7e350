// Package logging tests for the structured logger.
package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// parseEntries decodes every JSON line written to the buffer.
func parseEntries(t *testing.T, buf *bytes.Buffer) []LogEntry {
	t.Helper()
	var entries []LogEntry
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var e LogEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("Log line is not valid JSON: %q: %v", line, err)
		}
		entries = append(entries, e)
	}
	return entries
}

// TestLevelFilter verifies entries below the minimum level are dropped.
func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelWarn)

	l.Debug("dropped")
	l.Info("dropped too")
	l.Warn("kept")
	l.Error("kept too", errors.New("boom"))

	entries := parseEntries(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != "WARN" || entries[0].Message != "kept" {
		t.Errorf("Unexpected first entry: %+v", entries[0])
	}
	if entries[1].Error != "boom" {
		t.Errorf("Expected error field, got %+v", entries[1])
	}
}

// TestContextMerge verifies multiple context maps are merged.
func TestContextMerge(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelDebug)

	l.Info("merged",
		map[string]interface{}{"a": "1"},
		map[string]interface{}{"b": "2"})

	entries := parseEntries(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	ctx := entries[0].Context
	if ctx["a"] != "1" || ctx["b"] != "2" {
		t.Errorf("Context not merged: %v", ctx)
	}
}

// TestComponentLogger verifies the component tag is attached.
func TestComponentLogger(t *testing.T) {
	var buf bytes.Buffer
	c := &ComponentLogger{base: New(&buf, LevelDebug), component: "store"}

	c.Info("opened")

	entries := parseEntries(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	if entries[0].Component != "store" {
		t.Errorf("Expected component store, got %q", entries[0].Component)
	}
}

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// setOutput switches the global output format for one test.
func setOutput(t *testing.T, format string) {
	t.Helper()
	prev := output
	output = format
	t.Cleanup(func() { output = prev })
}

// setNoColor switches plain markers on for one test.
func setNoColor(t *testing.T) {
	t.Helper()
	prev := noColor
	noColor = true
	t.Cleanup(func() { noColor = prev })
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("Failed to get home directory: %v", err)
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "tilde only", input: "~", expected: home},
		{name: "tilde with path", input: "~/test/path", expected: filepath.Join(home, "test", "path")},
		{name: "absolute path", input: "/absolute/path", expected: "/absolute/path"},
		{name: "relative path", input: "relative/path", expected: "relative/path"},
		{name: "empty path", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandPath(tt.input)
			if err != nil {
				t.Fatalf("expandPath() error = %v", err)
			}
			if got != tt.expected {
				t.Errorf("expandPath() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		name     string
		size     int64
		expected string
	}{
		{name: "bytes", size: 500, expected: "500 B"},
		{name: "kilobytes", size: 1536, expected: "1.5 KB"},
		{name: "megabytes", size: 1048576, expected: "1.0 MB"},
		{name: "gigabytes", size: 1073741824, expected: "1.0 GB"},
		{name: "zero", size: 0, expected: "0 B"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatSize(tt.size)
			if got != tt.expected {
				t.Errorf("formatSize(%d) = %v, want %v", tt.size, got, tt.expected)
			}
		})
	}
}

func TestRenderJSON(t *testing.T) {
	setOutput(t, jsonFormat)

	var buf bytes.Buffer
	if err := render(&buf, map[string]any{"count": 1}); err != nil {
		t.Fatalf("render() error = %v", err)
	}
	if !strings.Contains(buf.String(), `"count": 1`) {
		t.Errorf("render() = %q, want JSON object", buf.String())
	}
}

func TestRenderYAML(t *testing.T) {
	setOutput(t, yamlFormat)

	var buf bytes.Buffer
	if err := render(&buf, map[string]any{"count": 1}); err != nil {
		t.Fatalf("render() error = %v", err)
	}
	if !strings.Contains(buf.String(), "count: 1") {
		t.Errorf("render() = %q, want YAML mapping", buf.String())
	}
}

func TestRenderUnknownFormat(t *testing.T) {
	setOutput(t, "xml")

	var buf bytes.Buffer
	err := render(&buf, map[string]any{})
	if err == nil || !strings.Contains(err.Error(), "unknown output format") {
		t.Errorf("render() error = %v, want unknown format error", err)
	}
}

func TestMark(t *testing.T) {
	setNoColor(t)

	if got := mark(true); got != "ok" {
		t.Errorf("mark(true) = %q, want ok", got)
	}
	if got := mark(false); got != "FAIL" {
		t.Errorf("mark(false) = %q, want FAIL", got)
	}
}

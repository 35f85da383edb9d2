package utils

import (
	"context"
	"testing"
	"time"
)

/**
 * Test command existence probing
 * @param {*testing.T} t - Testing framework instance
 */
func TestCommandExists(t *testing.T) {
	if !CommandExists("go") && !CommandExists("sh") && !CommandExists("cmd") {
		t.Skip("no known command available in PATH")
	}
	if CommandExists("termhost-definitely-not-a-command") {
		t.Error("Nonexistent command reported as available")
	}
}

/**
 * Test that a hung command is cut off by the timeout
 * @param {*testing.T} t - Testing framework instance
 */
func TestRunCommandTimeout(t *testing.T) {
	if !CommandExists("sleep") {
		t.Skip("sleep not available")
	}

	start := time.Now()
	_, err := RunCommandTimeout(context.Background(), 200*time.Millisecond, "", "sleep", "10")
	if err == nil {
		t.Error("Expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Command was not cut off promptly, took %s", elapsed)
	}
}

/**
 * Test output line splitting
 * @param {*testing.T} t - Testing framework instance
 */
func TestSplitLines(t *testing.T) {
	lines := SplitLines("first\n\nsecond\n  \nthird\n")
	if len(lines) != 3 {
		t.Fatalf("Expected 3 lines, got %d: %v", len(lines), lines)
	}
	if lines[0] != "first" || lines[2] != "third" {
		t.Errorf("Unexpected lines: %v", lines)
	}

	if got := SplitLines(""); len(got) != 0 {
		t.Errorf("Empty output should give no lines, got %v", got)
	}
}

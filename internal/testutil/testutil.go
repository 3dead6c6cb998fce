// Package testutil provides testing utilities for piper tests.
package testutil

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// DefaultTimeout bounds how long a test waits on a pipeline before failing.
const DefaultTimeout = 10 * time.Second

// SkipIfNoCommand skips the test if any of the named commands is not
// installed.
func SkipIfNoCommand(t *testing.T, names ...string) {
	t.Helper()

	for _, name := range names {
		if _, err := exec.LookPath(name); err != nil {
			t.Skipf("%s not found in PATH, skipping test", name)
		}
	}
}

// SkipIfNoPOSIX skips the test on platforms without the POSIX utilities the
// process tests spawn.
func SkipIfNoPOSIX(t *testing.T) {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("POSIX utilities not available on windows, skipping test")
	}
	SkipIfNoCommand(t, "cat", "grep", "wc", "sort", "sh")
}

// WriteFile creates dir/name with content, creating parent directories as
// needed, and returns the full path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	fullPath := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", name, err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file %s: %v", name, err)
	}
	return fullPath
}

// WriteLines writes lines joined by newlines (with a trailing newline) to
// dir/name and returns the full path.
func WriteLines(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()

	return WriteFile(t, dir, name, strings.Join(lines, "\n")+"\n")
}

// ReadFile returns the content of path, failing the test on error.
func ReadFile(t *testing.T, path string) string {
	t.Helper()

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read file %s: %v", path, err)
	}
	return string(content)
}

// Context returns a context bounded by DefaultTimeout and cancelled when the
// test completes.
func Context(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	t.Cleanup(cancel)
	return ctx
}

// ScenarioLines is the input shared by the word-count pipeline tests. Lines
// matching "test" contain 19 words in total.
var ScenarioLines = []string{
	"test alpha beta",
	"another test line here",
	"no match on this line",
	"testing is fun",
	"the latest test results are in",
	"contest",
	"skip me",
	"test test",
}

// ScenarioTestWords is the `grep test | wc -w` result over ScenarioLines.
const ScenarioTestWords = 19

// IgnoreLines is a .gitignore-like input with 4 lines matching "test".
var IgnoreLines = []string{
	"testdata/out",
	"*.test",
	"test-results/",
	"coverage.out",
	"bin/",
	"latest.log",
}

// IgnoreTestLines is the `grep test | wc -l` result over IgnoreLines.
const IgnoreTestLines = 4

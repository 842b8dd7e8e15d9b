// Package testutil provides sandboxed directories and configuration resets
// for folio tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestEnv is a temporary directory that refuses paths escaping it. It is
// removed when the test completes.
type TestEnv struct {
	t       *testing.T
	rootDir string
}

// NewTestEnv creates a sandbox for t.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	return &TestEnv{t: t, rootDir: t.TempDir()}
}

// RootDir is the sandbox root.
func (e *TestEnv) RootDir() string {
	return e.rootDir
}

// Path joins elem below the sandbox root, failing the test when the result
// lies outside it.
func (e *TestEnv) Path(elem ...string) string {
	e.t.Helper()
	p := filepath.Clean(filepath.Join(e.rootDir, filepath.Join(elem...)))
	root := filepath.Clean(e.rootDir)
	if p != root && !strings.HasPrefix(p, root+string(filepath.Separator)) {
		e.t.Fatalf("path %q escapes test sandbox %q", p, e.rootDir)
	}
	return p
}

// WriteFile writes content below the sandbox, creating parent directories.
func (e *TestEnv) WriteFile(path string, content []byte) {
	e.t.Helper()
	abs := e.Path(path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		e.t.Fatalf("failed to create directory for %q: %v", abs, err)
	}
	if err := os.WriteFile(abs, content, 0o644); err != nil {
		e.t.Fatalf("failed to write %q: %v", abs, err)
	}
}

// WriteFileString is WriteFile for text.
func (e *TestEnv) WriteFileString(path, content string) {
	e.t.Helper()
	e.WriteFile(path, []byte(content))
}

// ReadFile reads a file below the sandbox.
func (e *TestEnv) ReadFile(path string) []byte {
	e.t.Helper()
	data, err := os.ReadFile(e.Path(path))
	if err != nil {
		e.t.Fatalf("failed to read %q: %v", path, err)
	}
	return data
}

// MkdirAll creates a directory below the sandbox.
func (e *TestEnv) MkdirAll(path string) {
	e.t.Helper()
	if err := os.MkdirAll(e.Path(path), 0o755); err != nil {
		e.t.Fatalf("failed to create directory %q: %v", path, err)
	}
}

// FileExists reports whether path exists below the sandbox.
func (e *TestEnv) FileExists(path string) bool {
	e.t.Helper()
	_, err := os.Stat(e.Path(path))
	return err == nil
}

// ListFiles returns the names in a sandbox directory, sorted.
func (e *TestEnv) ListFiles(path string) []string {
	e.t.Helper()
	entries, err := os.ReadDir(e.Path(path))
	if err != nil {
		e.t.Fatalf("failed to list %q: %v", path, err)
	}
	names := make([]string, len(entries))
	for i, entry := range entries {
		names[i] = entry.Name()
	}
	return names
}

// Chdir moves into a sandbox directory until the test completes.
func (e *TestEnv) Chdir(path string) {
	e.t.Helper()
	abs := e.Path(path)
	orig, err := os.Getwd()
	if err != nil {
		e.t.Fatalf("failed to get current directory: %v", err)
	}
	if err := os.Chdir(abs); err != nil {
		e.t.Fatalf("failed to change directory to %q: %v", abs, err)
	}
	e.t.Cleanup(func() {
		if err := os.Chdir(orig); err != nil {
			e.t.Errorf("failed to restore directory to %q: %v", orig, err)
		}
	})
}

// SetEnv sets an environment variable until the test completes.
func (e *TestEnv) SetEnv(key, value string) {
	e.t.Helper()
	old, had := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		e.t.Fatalf("failed to set environment variable %q: %v", key, err)
	}
	e.t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, old)
		} else {
			_ = os.Unsetenv(key)
		}
	})
}

func (e *TestEnv) String() string {
	return fmt.Sprintf("TestEnv{rootDir: %q}", e.rootDir)
}

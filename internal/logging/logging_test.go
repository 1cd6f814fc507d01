package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFactory_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "restaurants.log")

	f, err := New(Options{File: path, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	f.Logger("sync").Printf("fetched %d restaurants", 10)
	f.Logger("replay").Printf("queue empty")

	if err := f.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "[sync] ") || !strings.Contains(out, "fetched 10 restaurants") {
		t.Errorf("log file missing sync line:\n%s", out)
	}
	if !strings.Contains(out, "[replay] ") || !strings.Contains(out, "queue empty") {
		t.Errorf("log file missing replay line:\n%s", out)
	}
}

func TestFactory_Quiet(t *testing.T) {
	f, err := New(Options{Quiet: true})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if f.Writer() != io.Discard {
		t.Error("quiet factory should discard output")
	}
	if err := f.Close(); err != nil {
		t.Errorf("Close() failed: %v", err)
	}
}

func TestFactory_Stderr(t *testing.T) {
	f, err := New(Options{})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if f.Writer() != os.Stderr {
		t.Error("default factory should write to stderr")
	}
}

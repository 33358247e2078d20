package config

import (
	"os"
	"testing"
)

func TestDefaultDataDirXDG(t *testing.T) {
	original := os.Getenv("XDG_DATA_HOME")
	os.Setenv("XDG_DATA_HOME", "/custom/data")
	t.Cleanup(func() {
		if original != "" {
			os.Setenv("XDG_DATA_HOME", original)
		} else {
			os.Unsetenv("XDG_DATA_HOME")
		}
	})

	if got := DefaultDataDir(); got != "/custom/data/lode" {
		t.Fatalf("DefaultDataDir = %q", got)
	}
}

func TestDefaultDataDirConsistency(t *testing.T) {
	if DefaultDataDir() != DefaultDataDir() {
		t.Fatalf("DefaultDataDir should be stable across calls")
	}
	if DefaultDataDir() == "" {
		t.Fatalf("DefaultDataDir should not be empty")
	}
}

func TestIsDir(t *testing.T) {
	if !isDir(".") {
		t.Fatalf("expected . to be a directory")
	}
	if isDir("/non/existent/path/that/does/not/exist") {
		t.Fatalf("expected missing path to report false")
	}
}

package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestShort(t *testing.T) {
	if got := Short(); got != Version {
		t.Errorf("Short() = %q, want %q", got, Version)
	}
}

func TestInfo(t *testing.T) {
	result := Info()
	for _, want := range []string{Name, Version, "commit:", "built:", runtime.Version()} {
		if !strings.Contains(result, want) {
			t.Errorf("Info() = %q, missing %q", result, want)
		}
	}
}

func TestCommitTruncation(t *testing.T) {
	originalCommit := Commit
	defer func() { Commit = originalCommit }()

	tests := []struct {
		commit string
		want   string
	}{
		{"abc123456789abcdef", "abc1234"},
		{"abc", "abc"},
	}
	for _, tt := range tests {
		Commit = tt.commit
		if got := shortCommit(); got != tt.want {
			t.Errorf("shortCommit() with %q = %q, want %q", tt.commit, got, tt.want)
		}
		if info := Info(); !strings.Contains(info, "commit: "+tt.want+",") {
			t.Errorf("Info() = %q, want commit %q", info, tt.want)
		}
	}
}

func TestFull(t *testing.T) {
	result := Full()
	for _, want := range []string{Name, "Commit:", "Built:", "Go version:", "OS/Arch:", runtime.GOOS, runtime.GOARCH} {
		if !strings.Contains(result, want) {
			t.Errorf("Full() = %q, missing %q", result, want)
		}
	}
	if lines := strings.Split(result, "\n"); len(lines) != 5 {
		t.Errorf("Full() has %d lines, want 5", len(lines))
	}
}

func TestUserAgent(t *testing.T) {
	originalVersion, originalCommit := Version, Commit
	defer func() { Version, Commit = originalVersion, originalCommit }()

	Version, Commit = "v1.2.3", "0123456789"
	want := "open-accountability/v1.2.3 (" + runtime.GOOS + "; commit 0123456)"
	if got := UserAgent(); got != want {
		t.Errorf("UserAgent() = %q, want %q", got, want)
	}
}

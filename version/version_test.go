package version

import (
	"strings"
	"testing"
)

// withVersionVars temporarily sets version variables and restores them after the test.
func withVersionVars(t *testing.T, v, commit, date string, fn func()) {
	t.Helper()
	origVersion, origCommit, origDate := version, gitCommit, buildDate
	defer func() {
		version, gitCommit, buildDate = origVersion, origCommit, origDate
	}()
	version, gitCommit, buildDate = v, commit, date
	fn()
}

func TestGetVersion(t *testing.T) {
	v := GetVersion()
	if v == "" {
		t.Error("GetVersion() returned empty string")
	}

	withVersionVars(t, "1.2.3", "", "", func() {
		if got := GetVersion(); got != "1.2.3" {
			t.Errorf("GetVersion() = %q, want %q", got, "1.2.3")
		}
	})
}

func TestGetVersionInfo(t *testing.T) {
	info := GetVersionInfo()
	if !strings.Contains(info, "bellhop version") {
		t.Errorf("GetVersionInfo() should contain 'bellhop version', got: %s", info)
	}

	withVersionVars(t, "2.0.0", "abc1234", "2026-01-02", func() {
		info := GetVersionInfo()
		for _, want := range []string{"bellhop version 2.0.0", "commit: abc1234", "built: 2026-01-02"} {
			if !strings.Contains(info, want) {
				t.Errorf("GetVersionInfo() missing %q, got: %s", want, info)
			}
		}
	})
}

func TestGetBuildInfo(t *testing.T) {
	withVersionVars(t, "2.0.0", "abc1234", "2026-01-02", func() {
		attrs := GetBuildInfo()
		if len(attrs) < 2 {
			t.Fatalf("GetBuildInfo() returned %d attrs, want at least 2", len(attrs))
		}
		if attrs[0] != "version" || attrs[1] != "2.0.0" {
			t.Errorf("GetBuildInfo() first pair = %v %v, want version 2.0.0", attrs[0], attrs[1])
		}
	})
}

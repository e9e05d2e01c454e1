package version

import (
	"runtime"
	"testing"
)

func setBuild(t *testing.T, v, commit, built string) {
	t.Helper()
	origVersion, origCommit, origBuildTime := Version, Commit, BuildTime
	t.Cleanup(func() {
		Version, Commit, BuildTime = origVersion, origCommit, origBuildTime
	})
	Version, Commit, BuildTime = v, commit, built
}

func TestString(t *testing.T) {
	tests := []struct {
		name                   string
		version, commit, built string
		want                   string
	}{
		{"defaults", "dev", "unknown", "unknown", "dev (unknown) built unknown"},
		{"release", "1.2.3", "abc1234", "2025-01-15T10:00:00Z", "1.2.3 (abc1234) built 2025-01-15T10:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBuild(t, tt.version, tt.commit, tt.built)
			if got := String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGet(t *testing.T) {
	setBuild(t, "1.2.3", "abc1234", "2025-01-15T10:00:00Z")

	info := Get()
	want := Info{Version: "1.2.3", Commit: "abc1234", BuildTime: "2025-01-15T10:00:00Z", GoVersion: runtime.Version()}
	if info != want {
		t.Errorf("Get() = %+v, want %+v", info, want)
	}
}

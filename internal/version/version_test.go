package version

import (
	"strings"
	"testing"
)

func TestVersion_DefaultValues(t *testing.T) {
	if Version == "" {
		t.Error("Version should have a default value")
	}
}

func TestBanner_OverriddenValues(t *testing.T) {
	origVersion, origCommit, origMessage, origDate := Version, GitCommit, GitMessage, BuildDate
	defer func() {
		Version, GitCommit, GitMessage, BuildDate = origVersion, origCommit, origMessage, origDate
	}()

	Version = "1.2.3"
	GitCommit = "abc123def456"
	GitMessage = "fix table padding"
	BuildDate = "2024-01-15T10:30:00Z"

	got := Banner(false)
	for _, want := range []string{
		"emlink 1.2.3\n",
		"commit: abc123def456\n",
		"message: fix table padding\n",
		"built: 2024-01-15T10:30:00Z\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Banner() = %q, missing %q", got, want)
		}
	}
}

func TestBanner_EmptyOptionalFields(t *testing.T) {
	origMessage, origDate := GitMessage, BuildDate
	defer func() { GitMessage, BuildDate = origMessage, origDate }()

	GitMessage = ""
	BuildDate = ""
	got := Banner(false)
	if strings.Contains(got, "message:") || strings.Contains(got, "built:") {
		t.Errorf("empty fields should be omitted, got %q", got)
	}
}

func TestColored_KeepsSuffix(t *testing.T) {
	orig := Version
	defer func() { Version = orig }()

	cases := []string{
		"0.1.0",
		"1.0.0-beta.1",
		"0.1.0-dev",
		"1.2.3-rc.1+build.123",
	}
	for _, v := range cases {
		Version = v
		got := Colored()
		if i := strings.IndexAny(v, "-+"); i >= 0 && !strings.HasSuffix(got, v[i:]) {
			t.Errorf("Colored() for %q = %q, suffix lost", v, got)
		}
	}

	Version = "dev"
	if got := Colored(); got != "dev" {
		t.Errorf("non-semver version should pass through, got %q", got)
	}
}

func BenchmarkBanner(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = Banner(true)
	}
}

package robotflow

import (
	"regexp"
	"testing"
)

func TestVersion(t *testing.T) {
	t.Parallel()

	if !regexp.MustCompile(`^\d+\.\d+\.\d+$`).MatchString(Version) {
		t.Errorf("Version %q is not semver", Version)
	}
	if GetVersion() != Version {
		t.Errorf("GetVersion() = %s, want %s", GetVersion(), Version)
	}
}

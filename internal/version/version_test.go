package version

import "testing"

func TestString(t *testing.T) {
	old := Version
	t.Cleanup(func() { Version = old })

	Version = "v1.2.3"
	got := String()
	if got != "v1.2.3 (commit "+GitCommit+", built "+BuildTime+")" {
		t.Errorf("unexpected version string %q", got)
	}
}

package version

import "testing"

func TestString(t *testing.T) {
	saved := [3]string{Version, GitSHA, BuildTime}
	t.Cleanup(func() { Version, GitSHA, BuildTime = saved[0], saved[1], saved[2] })

	Version, GitSHA, BuildTime = "0.3.0", "abc1234", "2026-10-01T00:00:00Z"
	want := "0.3.0 (abc1234, built 2026-10-01T00:00:00Z)"
	if got := String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

package source

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"2026-03-15", "2026-03-15"},
		{"20260315", "2026-03-15"},
		{"03/15/2026", "2026-03-15"},
		{"March 15, 2026", "2026-03-15"},
		{"15 Mar 2026", "2026-03-15"},
		{"2026-03-15T10:30:00Z", "2026-03-15"},
	}

	for _, tc := range cases {
		got := ParseDate(tc.in)
		if got == nil {
			t.Fatalf("ParseDate(%q) returned nil", tc.in)
		}
		if got.Format("2006-01-02") != tc.want {
			t.Fatalf("ParseDate(%q) = %v, want %s", tc.in, got, tc.want)
		}
	}
}

func TestParseDateGarbage(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "   ", "not a date", "2026-99-99", "soon"} {
		if got := ParseDate(in); got != nil {
			t.Fatalf("ParseDate(%q) = %v, want nil", in, got)
		}
	}
}

func TestBeforeCutoff(t *testing.T) {
	t.Parallel()

	cutoff := time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)
	old := cutoff.AddDate(0, -1, 0)
	recent := cutoff.AddDate(0, 0, 5)

	if !beforeCutoff(&old, cutoff) {
		t.Fatal("expected old date to fall before cutoff")
	}
	if beforeCutoff(&recent, cutoff) {
		t.Fatal("expected recent date to pass cutoff")
	}
	// A record without a date is never excluded.
	if beforeCutoff(nil, cutoff) {
		t.Fatal("expected nil date to pass cutoff")
	}
}

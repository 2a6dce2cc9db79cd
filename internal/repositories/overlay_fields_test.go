package repositories

import (
	"testing"
	"time"
)

func TestParseOverlayTime(t *testing.T) {
	want := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	for _, raw := range []any{"2025-03-01T09:30:00Z", "2025-03-01T10:30:00+01:00", "2025-03-01T09:30", want} {
		got, err := ParseOverlayTime(raw)
		if err != nil || got == nil || !got.Equal(want) {
			t.Errorf("ParseOverlayTime(%v) = %v, %v", raw, got, err)
		}
	}
	for _, raw := range []any{nil, "", "  ", time.Time{}} {
		got, err := ParseOverlayTime(raw)
		if err != nil || got != nil {
			t.Errorf("expected unbounded for %v, got %v %v", raw, got, err)
		}
	}
	for _, raw := range []any{"next tuesday", 42} {
		if _, err := ParseOverlayTime(raw); err == nil {
			t.Errorf("expected error for %v", raw)
		}
	}
}

func TestDecodeTargetPages(t *testing.T) {
	cases := []struct {
		raw  any
		want int
	}{
		{[]any{"/donate", " *"}, 2},
		{[]string{"/about", ""}, 1},
		{`["/donate","/fr/about"]`, 2},
		{[]byte(`["*"]`), 1},
		{[]any{"/donate", 7}, 0},
		{"not json", 0},
		{nil, 0},
		{[]any{}, 0},
	}
	for _, tc := range cases {
		if got := DecodeTargetPages(tc.raw); len(got) != tc.want {
			t.Errorf("DecodeTargetPages(%v) = %v, want %d pages", tc.raw, got, tc.want)
		}
	}
}

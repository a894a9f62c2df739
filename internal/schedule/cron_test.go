package schedule

import (
	"testing"
	"time"
)

func TestConvertDOW_Tokens(t *testing.T) {
	// mapDay shifts Sunday=0 to Monday=0 numbering, the divergence the
	// design notes call out explicitly.
	shiftToMondayZero := func(n int) int { return (n + 6) % 7 }

	tests := []struct {
		name  string
		field string
		want  string
	}{
		{"wildcard", "*", "*"},
		{"single day sunday", "0", "6"},
		{"single day monday", "1", "0"},
		{"list", "0,3,5", "6,2,4"},
		{"range", "1-5", "0-4"},
		{"stepped range", "1-5/2", "0-4/2"},
		{"step wildcard", "*/2", "*/2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConvertDOW(tt.field, shiftToMondayZero)
			if err != nil {
				t.Fatalf("ConvertDOW(%q): %v", tt.field, err)
			}
			if got != tt.want {
				t.Errorf("ConvertDOW(%q) = %q, want %q", tt.field, got, tt.want)
			}
		})
	}
}

func TestConvertDOW_Involution(t *testing.T) {
	// Converting to Monday=0 and back to Sunday=0 must recover the original
	// field, for every token shape exercised above (spec §8.3 round-trip law).
	toMondayZero := func(n int) int { return (n + 6) % 7 }
	toSundayZero := func(n int) int { return (n + 1) % 7 }

	for _, field := range []string{"0", "1-5", "0,3,5", "*/2", "1-5/2"} {
		mid, err := ConvertDOW(field, toMondayZero)
		if err != nil {
			t.Fatalf("ConvertDOW(%q) fwd: %v", field, err)
		}
		back, err := ConvertDOW(mid, toSundayZero)
		if err != nil {
			t.Fatalf("ConvertDOW(%q) back: %v", mid, err)
		}
		if back != field {
			t.Errorf("involution failed for %q: got %q via %q", field, back, mid)
		}
	}
}

func TestValidCron(t *testing.T) {
	tests := []struct {
		expr string
		want bool
	}{
		{"0 9 * * 1-5", true},
		{"*/5 * * * *", true},
		{"0 9 * *", false},     // only 4 fields
		{"0 9 * * 1-5 *", false}, // 6 fields
	}
	for _, tt := range tests {
		if got := ValidCron(tt.expr); got != tt.want {
			t.Errorf("ValidCron(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestNextFire_WeekdayMorning(t *testing.T) {
	// Monday 2026-01-05 08:00 -> next "0 9 * * 1-5" fire is the same day 09:00.
	ref := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	next, err := NextFire("0 9 * * 1-5", ref)
	if err != nil {
		t.Fatalf("NextFire: %v", err)
	}
	want := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("NextFire = %v, want %v", next, want)
	}
}

func TestNextFire_SkipsWeekend(t *testing.T) {
	// Friday 2026-01-02 10:00 (past that day's 9am fire) -> next fire is
	// Monday 2026-01-05 09:00, skipping Saturday/Sunday.
	ref := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	next, err := NextFire("0 9 * * 1-5", ref)
	if err != nil {
		t.Fatalf("NextFire: %v", err)
	}
	want := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("NextFire = %v, want %v", next, want)
	}
}

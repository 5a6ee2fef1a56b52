package model

import (
	"testing"
	"time"
)

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("15:50")
	if err != nil {
		t.Fatal(err)
	}
	if tod.Hour != 15 || tod.Minute != 50 {
		t.Errorf("parsed %v, want 15:50", tod)
	}
	if tod.String() != "15:50" {
		t.Errorf("String() = %q, want 15:50", tod.String())
	}

	for _, bad := range []string{"", "15", "25:00", "12:61", "noon"} {
		if _, err := ParseTimeOfDay(bad); err == nil {
			t.Errorf("ParseTimeOfDay(%q): expected error", bad)
		}
	}
}

func TestTimeOfDay_Comparisons(t *testing.T) {
	end := TimeOfDay{Hour: 15, Minute: 0}

	at := func(h, m, s int) time.Time {
		return time.Date(2026, 3, 2, h, m, s, 0, time.UTC)
	}
	if end.AfterClock(at(15, 0, 0)) {
		t.Error("15:00:00 is not strictly after 15:00")
	}
	if !end.AfterClock(at(15, 0, 1)) {
		t.Error("15:00:01 is strictly after 15:00")
	}
	if !end.BeforeClock(at(14, 59, 59)) {
		t.Error("14:59:59 is before 15:00")
	}
	if !end.ReachedBy(at(15, 0, 0)) {
		t.Error("15:00:00 reaches 15:00")
	}
	if end.ReachedBy(at(14, 59, 59)) {
		t.Error("14:59:59 does not reach 15:00")
	}
	if !end.Before(TimeOfDay{Hour: 15, Minute: 50}) {
		t.Error("15:00 is before 15:50")
	}
}

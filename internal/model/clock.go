package model

import (
	"fmt"
	"time"
)

// TimeOfDay is a wall-clock HH:MM in the trading-session timezone.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var t TimeOfDay
	if _, err := fmt.Sscanf(s, "%d:%d", &t.Hour, &t.Minute); err != nil {
		return t, fmt.Errorf("invalid time %q: %w", s, err)
	}
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
		return t, fmt.Errorf("invalid time %q", s)
	}
	return t, nil
}

func (t TimeOfDay) minutes() int { return t.Hour*60 + t.Minute }

// Before reports whether t is strictly earlier than other.
func (t TimeOfDay) Before(other TimeOfDay) bool { return t.minutes() < other.minutes() }

// AfterClock reports whether now's wall-clock time is strictly after t.
func (t TimeOfDay) AfterClock(now time.Time) bool {
	h, m, s := now.Clock()
	return h*3600+m*60+s > t.minutes()*60
}

// BeforeClock reports whether now's wall-clock time is strictly before t.
func (t TimeOfDay) BeforeClock(now time.Time) bool {
	h, m, _ := now.Clock()
	return h*60+m < t.minutes()
}

// ReachedBy reports whether now's wall-clock time is at or past t.
func (t TimeOfDay) ReachedBy(now time.Time) bool {
	h, m, _ := now.Clock()
	return h*60+m >= t.minutes()
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

package model

import (
	"testing"
	"time"
)

func bar(t time.Time, close float64) Bar {
	return Bar{Time: t, Open: close, High: close, Low: close, Close: close, Volume: 100}
}

func TestBarSeries_UpsertOverwritesSameMinute(t *testing.T) {
	s := NewBarSeries()
	at := time.Date(2026, 3, 2, 9, 31, 0, 0, time.UTC)
	s.Upsert(bar(at, 100))
	s.Upsert(bar(at, 101)) // live update of the forming bar
	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
	last, _ := s.Last()
	if last.Close != 101 {
		t.Errorf("close = %v, want the updated 101", last.Close)
	}
}

func TestBarSeries_OutOfOrderInsertKeepsSorted(t *testing.T) {
	s := NewBarSeries()
	at := time.Date(2026, 3, 2, 9, 31, 0, 0, time.UTC)
	s.Upsert(bar(at, 1))
	s.Upsert(bar(at.Add(2*time.Minute), 3))
	s.Upsert(bar(at.Add(time.Minute), 2)) // arrives late

	bars := s.Bars()
	for i := 1; i < len(bars); i++ {
		if !bars[i].Time.After(bars[i-1].Time) {
			t.Fatalf("bars out of order at %d: %v then %v", i, bars[i-1].Time, bars[i].Time)
		}
	}
	if bars[1].Close != 2 {
		t.Errorf("middle close = %v, want the late bar", bars[1].Close)
	}
	// The index must still resolve every timestamp after the shift.
	s.Upsert(bar(at.Add(2*time.Minute), 30))
	last, _ := s.Last()
	if last.Close != 30 {
		t.Errorf("close = %v, want 30 after update through the shifted index", last.Close)
	}
}

func TestBarSeries_DayFilters(t *testing.T) {
	s := NewBarSeries()
	d1 := time.Date(2026, 3, 2, 9, 31, 0, 0, time.UTC)
	d2 := time.Date(2026, 3, 3, 9, 31, 0, 0, time.UTC)
	s.Upsert(bar(d1, 1))
	s.Upsert(bar(d1.Add(time.Minute), 2))
	s.Upsert(bar(d2, 3))

	if got := s.Day(d1); len(got) != 2 {
		t.Errorf("day 1 bars = %d, want 2", len(got))
	}
	if got := s.Days(); len(got) != 2 {
		t.Errorf("distinct days = %d, want 2", len(got))
	}
}

func TestBar_Typical(t *testing.T) {
	b := Bar{High: 12, Low: 9, Close: 9}
	if b.Typical() != 10 {
		t.Errorf("typical = %v, want 10", b.Typical())
	}
}

package readings

import (
	"testing"
	"time"

	"milkwatch/internal/model"
)

func mustAppend(t *testing.T, s *Store, device string, weight float64, at time.Time) {
	t.Helper()
	if err := s.Append(model.Reading{DeviceID: device, WeightGrams: weight, ObservedAt: at}); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func TestAppendDuplicateIgnored(t *testing.T) {
	s := NewStore(30, time.UTC)
	at := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
	mustAppend(t, s, "device1", 900, at)
	mustAppend(t, s, "device1", 900, at)
	if got := s.Count("device1"); got != 1 {
		t.Fatalf("expected 1 reading after duplicate append, got %d", got)
	}
}

func TestAppendRejectsInvalid(t *testing.T) {
	s := NewStore(30, time.UTC)
	at := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
	if err := s.Append(model.Reading{DeviceID: "", WeightGrams: 100, ObservedAt: at}); err == nil {
		t.Fatalf("expected error for empty device id")
	}
	if err := s.Append(model.Reading{DeviceID: "device1", WeightGrams: -1, ObservedAt: at}); err == nil {
		t.Fatalf("expected error for negative weight")
	}
	if err := s.Append(model.Reading{DeviceID: "device1", WeightGrams: 100}); err == nil {
		t.Fatalf("expected error for zero timestamp")
	}
}

func TestQueryWindowOrdered(t *testing.T) {
	s := NewStore(30, time.UTC)
	base := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
	// Out of order on purpose.
	mustAppend(t, s, "device1", 880, base.Add(2*time.Hour))
	mustAppend(t, s, "device1", 1000, base)
	mustAppend(t, s, "device1", 940, base.Add(1*time.Hour))

	got := s.QueryWindow("device1", base)
	if len(got) != 3 {
		t.Fatalf("expected 3 readings, got %d", len(got))
	}
	want := []float64{1000, 940, 880}
	for i, w := range want {
		if got[i].WeightGrams != w {
			t.Fatalf("reading %d: expected %.0f got %.0f", i, w, got[i].WeightGrams)
		}
	}

	tail := s.QueryWindow("device1", base.Add(90*time.Minute))
	if len(tail) != 1 || tail[0].WeightGrams != 880 {
		t.Fatalf("window query mismatch: %+v", tail)
	}
}

func TestDayBoundaries(t *testing.T) {
	s := NewStore(30, time.UTC)
	day1 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	day4 := day1.AddDate(0, 0, 3)

	mustAppend(t, s, "device1", 1000, day1.Add(8*time.Hour))
	mustAppend(t, s, "device1", 940, day1.Add(20*time.Hour))
	mustAppend(t, s, "device1", 900, day2.Add(9*time.Hour))
	mustAppend(t, s, "device1", 850, day4.Add(7*time.Hour))

	got := s.DayBoundaries("device1", day1, day1.AddDate(0, 0, 7))
	if len(got) != 3 {
		t.Fatalf("expected 3 days with readings, got %d", len(got))
	}
	if got[0].FirstWeight != 1000 || got[0].LastWeight != 940 {
		t.Fatalf("day1 boundary mismatch: %+v", got[0])
	}
	// Single reading: first and last coincide.
	if got[1].FirstWeight != 900 || got[1].LastWeight != 900 {
		t.Fatalf("day2 boundary mismatch: %+v", got[1])
	}
	if !got[2].Day.Equal(day4) {
		t.Fatalf("expected day4, got %v", got[2].Day)
	}
}

func TestBaselineAllTimeSurvivesEviction(t *testing.T) {
	s := NewStore(7, time.UTC)
	old := time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)
	mustAppend(t, s, "device1", 1200, old)
	// A reading far enough ahead evicts the old one.
	mustAppend(t, s, "device1", 400, old.AddDate(0, 0, 20))

	if got := s.Count("device1"); got != 1 {
		t.Fatalf("expected eviction to leave 1 reading, got %d", got)
	}
	baseline, ok := s.Baseline("device1", time.Time{})
	if !ok || baseline != 1200 {
		t.Fatalf("all-time baseline should survive eviction, got %.0f ok=%v", baseline, ok)
	}
}

func TestBaselineWindowed(t *testing.T) {
	s := NewStore(30, time.UTC)
	base := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
	mustAppend(t, s, "device1", 1500, base)
	mustAppend(t, s, "device1", 900, base.AddDate(0, 0, 10))

	baseline, ok := s.Baseline("device1", base.AddDate(0, 0, 5))
	if !ok || baseline != 900 {
		t.Fatalf("windowed baseline mismatch: %.0f ok=%v", baseline, ok)
	}
	if _, ok := s.Baseline("device1", base.AddDate(0, 0, 15)); ok {
		t.Fatalf("window past the newest reading must have no baseline")
	}
	if _, ok := s.Baseline("missing", time.Time{}); ok {
		t.Fatalf("expected no baseline for unknown device")
	}
}

func TestLast(t *testing.T) {
	s := NewStore(30, time.UTC)
	base := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
	if _, ok := s.Last("device1"); ok {
		t.Fatalf("expected no last reading for empty store")
	}
	mustAppend(t, s, "device1", 1000, base)
	mustAppend(t, s, "device1", 940, base.Add(time.Hour))
	last, ok := s.Last("device1")
	if !ok || last.WeightGrams != 940 {
		t.Fatalf("last reading mismatch: %+v ok=%v", last, ok)
	}
}

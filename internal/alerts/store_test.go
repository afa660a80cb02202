package alerts

import (
	"strconv"
	"testing"
	"time"

	"milkwatch/internal/model"
)

func TestAddAndList(t *testing.T) {
	s := NewStore(10)
	base := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		s.Add(model.Alert{ID: strconv.Itoa(i), Timestamp: base.Add(time.Duration(i) * time.Minute)})
	}
	got := s.List(0)
	if len(got) != 3 || got[0].ID != "0" || got[2].ID != "2" {
		t.Fatalf("list mismatch: %+v", got)
	}
	got = s.List(2)
	if len(got) != 2 || got[0].ID != "1" {
		t.Fatalf("limited list should keep newest, got %+v", got)
	}
}

func TestBoundedEviction(t *testing.T) {
	s := NewStore(3)
	for i := 0; i < 5; i++ {
		s.Add(model.Alert{ID: strconv.Itoa(i)})
	}
	got := s.List(0)
	if len(got) != 3 || got[0].ID != "2" || got[2].ID != "4" {
		t.Fatalf("expected oldest entries evicted, got %+v", got)
	}
}

func TestSince(t *testing.T) {
	s := NewStore(10)
	base := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		s.Add(model.Alert{ID: strconv.Itoa(i), Timestamp: base.Add(time.Duration(i) * time.Hour)})
	}
	got := s.Since(base.Add(2 * time.Hour))
	if len(got) != 2 || got[0].ID != "2" {
		t.Fatalf("since filter mismatch: %+v", got)
	}
}

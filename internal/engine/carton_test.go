package engine

import (
	"testing"
	"time"
)

func TestObserveZeroArmsTimer(t *testing.T) {
	c := newCartonMachine()
	now := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
	grace := time.Minute

	emptied, _, hadPrev := c.Observe("device1", 0, now, grace)
	if emptied {
		t.Fatalf("first zero reading must not empty")
	}
	if hadPrev {
		t.Fatalf("no prior weight expected on first reading")
	}
	timer, ok := c.Timer("device1")
	if !ok || !timer.GraceActive || !timer.ZeroStartedAt.Equal(now) {
		t.Fatalf("timer not armed: %+v ok=%v", timer, ok)
	}
}

func TestObserveSingleTimerPerDevice(t *testing.T) {
	c := newCartonMachine()
	now := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
	grace := time.Minute

	c.Observe("device1", 0, now, grace)
	// Second zero inside the grace window must not restart the clock.
	c.Observe("device1", 0, now.Add(30*time.Second), grace)
	timer, ok := c.Timer("device1")
	if !ok || !timer.ZeroStartedAt.Equal(now) {
		t.Fatalf("timer restarted: %+v ok=%v", timer, ok)
	}
}

func TestObserveTransientLiftCancels(t *testing.T) {
	c := newCartonMachine()
	now := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
	grace := time.Minute

	c.Observe("device1", 500, now, grace)
	c.Observe("device1", 0, now.Add(time.Second), grace)
	emptied, prev, hadPrev := c.Observe("device1", 480, now.Add(30*time.Second), grace)
	if emptied {
		t.Fatalf("transient lift must not empty")
	}
	if !hadPrev || prev != 0 {
		t.Fatalf("expected prior weight 0, got %.0f hadPrev=%v", prev, hadPrev)
	}
	if _, ok := c.Timer("device1"); ok {
		t.Fatalf("positive reading must cancel the timer")
	}
}

func TestObserveZeroPastGraceEmpties(t *testing.T) {
	c := newCartonMachine()
	now := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
	grace := time.Minute

	c.Observe("device1", 0, now, grace)
	emptied, _, _ := c.Observe("device1", 0, now.Add(grace), grace)
	if !emptied {
		t.Fatalf("zero reading at grace boundary must empty")
	}
	// Timer consumed: the next zero re-arms instead of emptying again.
	if _, ok := c.Timer("device1"); ok {
		t.Fatalf("timer must be consumed on empty")
	}
	emptied, _, _ = c.Observe("device1", 0, now.Add(grace+time.Second), grace)
	if emptied {
		t.Fatalf("re-armed dwell must not empty immediately")
	}
}

func TestExpireSweep(t *testing.T) {
	c := newCartonMachine()
	now := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
	grace := time.Minute

	c.Observe("device1", 0, now, grace)
	c.Observe("device2", 0, now.Add(45*time.Second), grace)

	if got := c.Expire(now.Add(30*time.Second), grace); len(got) != 0 {
		t.Fatalf("nothing should expire inside the window, got %v", got)
	}
	got := c.Expire(now.Add(grace), grace)
	if len(got) != 1 || got[0] != "device1" {
		t.Fatalf("expected only device1 expired, got %v", got)
	}
	// Already consumed, a later sweep must not report it again.
	if got := c.Expire(now.Add(10*time.Minute), grace); len(got) != 1 || got[0] != "device2" {
		t.Fatalf("expected only device2 on second sweep, got %v", got)
	}
}

func TestLastWeightTracking(t *testing.T) {
	c := newCartonMachine()
	now := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)

	if _, ok := c.LastWeight("device1"); ok {
		t.Fatalf("unknown device must have no last weight")
	}
	c.Observe("device1", 500, now, time.Minute)
	w, ok := c.LastWeight("device1")
	if !ok || w != 500 {
		t.Fatalf("last weight mismatch: %.0f ok=%v", w, ok)
	}
}

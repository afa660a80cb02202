package engine

import (
	"sync"
	"testing"
	"time"

	"milkwatch/internal/config"
	"milkwatch/internal/model"
	"milkwatch/internal/readings"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func analysisDefaults() config.AnalysisConfig {
	return config.DefaultConfig().Analysis
}

func seedReadings(t *testing.T, store *readings.Store, device string, start time.Time, step time.Duration, weights ...float64) {
	t.Helper()
	for i, w := range weights {
		err := store.Append(model.Reading{
			DeviceID:    device,
			WeightGrams: w,
			ObservedAt:  start.Add(time.Duration(i) * step),
		})
		if err != nil {
			t.Fatalf("seed reading %d: %v", i, err)
		}
	}
}

func TestLearnedCupSizeMedian(t *testing.T) {
	now := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	store := readings.NewStore(30, time.UTC)
	clock := newFakeClock(now)
	est := NewEstimator(store, clock)
	cfg := analysisDefaults()

	// Drops of 50, 60, 70 plus one refill jump that must be ignored.
	seedReadings(t, store, "device1", now.Add(-6*time.Hour), time.Hour,
		1000, 950, 890, 820, 1500)
	got := est.LearnedCupSize("device1", cfg)
	if got != 60 {
		t.Fatalf("expected median cup size 60, got %.1f", got)
	}
}

func TestLearnedCupSizeEvenCount(t *testing.T) {
	now := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	store := readings.NewStore(30, time.UTC)
	est := NewEstimator(store, newFakeClock(now))
	cfg := analysisDefaults()

	// Drops 40 and 80: even count averages the central pair.
	seedReadings(t, store, "device1", now.Add(-3*time.Hour), time.Hour,
		1000, 960, 880)
	if got := est.LearnedCupSize("device1", cfg); got != 60 {
		t.Fatalf("expected mean of central pair 60, got %.1f", got)
	}
}

func TestLearnedCupSizeDefaultFallback(t *testing.T) {
	now := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	store := readings.NewStore(30, time.UTC)
	est := NewEstimator(store, newFakeClock(now))
	cfg := analysisDefaults()

	if got := est.LearnedCupSize("device1", cfg); got != cfg.DefaultCupG {
		t.Fatalf("empty history should fall back to %.0f, got %.1f", cfg.DefaultCupG, got)
	}

	// Only out-of-band deltas: a 10g sensor wobble and a 400g removal.
	seedReadings(t, store, "device1", now.Add(-3*time.Hour), time.Hour,
		1000, 990, 590)
	if got := est.LearnedCupSize("device1", cfg); got != cfg.DefaultCupG {
		t.Fatalf("filtered-out drops should fall back to %.0f, got %.1f", cfg.DefaultCupG, got)
	}
}

func TestLearnedDailyConsumption(t *testing.T) {
	now := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	store := readings.NewStore(30, time.UTC)
	est := NewEstimator(store, newFakeClock(now))
	cfg := analysisDefaults()

	day1 := time.Date(2026, 8, 7, 8, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	day3 := day1.AddDate(0, 0, 2)
	seedReadings(t, store, "device1", day1, 4*time.Hour, 1000, 940)
	seedReadings(t, store, "device1", day2, 4*time.Hour, 940, 860)
	// Refill day: last above first, skipped.
	seedReadings(t, store, "device1", day3, 4*time.Hour, 860, 1800)

	got, ok := est.LearnedDailyConsumption("device1", cfg)
	if !ok {
		t.Fatalf("expected a daily estimate")
	}
	if got != 70 {
		t.Fatalf("expected mean of 60 and 80, got %.1f", got)
	}
}

func TestLearnedDailyConsumptionNeedsMinDays(t *testing.T) {
	now := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	store := readings.NewStore(30, time.UTC)
	est := NewEstimator(store, newFakeClock(now))
	cfg := analysisDefaults()

	day1 := time.Date(2026, 8, 8, 8, 0, 0, 0, time.UTC)
	seedReadings(t, store, "device1", day1, 4*time.Hour, 1000, 940)
	if _, ok := est.LearnedDailyConsumption("device1", cfg); ok {
		t.Fatalf("one qualifying day is below the minimum, estimate must be undefined")
	}
}

func TestLearnedDailyConsumptionExcludesToday(t *testing.T) {
	now := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	store := readings.NewStore(30, time.UTC)
	est := NewEstimator(store, newFakeClock(now))
	cfg := analysisDefaults()

	// Two complete days plus a huge drop today that must not skew the mean.
	day1 := time.Date(2026, 8, 8, 8, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	seedReadings(t, store, "device1", day1, 4*time.Hour, 1000, 940)
	seedReadings(t, store, "device1", day2, 4*time.Hour, 940, 880)
	seedReadings(t, store, "device1", now.Add(-2*time.Hour), time.Hour, 880, 100)

	got, ok := est.LearnedDailyConsumption("device1", cfg)
	if !ok || got != 60 {
		t.Fatalf("today's partial day must be excluded, got %.1f ok=%v", got, ok)
	}
}

func TestPercentFull(t *testing.T) {
	now := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	store := readings.NewStore(30, time.UTC)
	est := NewEstimator(store, newFakeClock(now))
	cfg := analysisDefaults()

	seedReadings(t, store, "device1", now.Add(-3*time.Hour), time.Hour, 2000, 1500)

	pct, ok := est.PercentFull("device1", 500, cfg)
	if !ok || pct != 25 {
		t.Fatalf("expected 25%% of baseline 2000, got %.1f ok=%v", pct, ok)
	}
	// A heavier carton than the baseline clamps at 100.
	pct, ok = est.PercentFull("device1", 2500, cfg)
	if !ok || pct != 100 {
		t.Fatalf("expected clamp at 100, got %.1f ok=%v", pct, ok)
	}
	if _, ok := est.PercentFull("unknown", 500, cfg); ok {
		t.Fatalf("no baseline means undefined percent")
	}
}

func TestProjectedEmptyDate(t *testing.T) {
	now := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	store := readings.NewStore(30, time.UTC)
	est := NewEstimator(store, newFakeClock(now))
	cfg := analysisDefaults()

	// 500g at 150g/day rounds up to 4 days.
	empty, ok := est.ProjectedEmptyDate(500, 150, cfg, now)
	if !ok {
		t.Fatalf("expected a projection")
	}
	want := time.Date(2026, 8, 14, 0, 0, 0, 0, time.UTC)
	if !empty.Equal(want) {
		t.Fatalf("expected %v, got %v", want, empty)
	}

	if _, ok := est.ProjectedEmptyDate(500, 0, cfg, now); ok {
		t.Fatalf("zero consumption must be undefined")
	}
	if _, ok := est.ProjectedEmptyDate(1e9, 1, cfg, now); ok {
		t.Fatalf("projection beyond the sanity ceiling must be undefined")
	}
}

func TestSnapshot(t *testing.T) {
	now := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	store := readings.NewStore(30, time.UTC)
	est := NewEstimator(store, newFakeClock(now))
	cfg := analysisDefaults()

	day1 := time.Date(2026, 8, 8, 8, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	seedReadings(t, store, "device1", day1, time.Hour, 1000, 940, 880)
	seedReadings(t, store, "device1", day2, time.Hour, 880, 820, 760)

	snap := est.Snapshot("device1", 760, cfg)
	if snap.DeviceID != "device1" || snap.CurrentAmountG != 760 {
		t.Fatalf("snapshot identity mismatch: %+v", snap)
	}
	if snap.LearnedCupSizeG != 60 {
		t.Fatalf("expected cup size 60, got %.1f", snap.LearnedCupSizeG)
	}
	if snap.CupsLeft == 0 {
		t.Fatalf("expected cups left to be derived")
	}
	if snap.LearnedDailyG == nil || *snap.LearnedDailyG != 120 {
		t.Fatalf("expected daily 120, got %v", snap.LearnedDailyG)
	}
	if snap.PercentFull == nil || *snap.PercentFull != 76 {
		t.Fatalf("expected 76%% of baseline 1000, got %v", snap.PercentFull)
	}
	if snap.EmptyDate == nil {
		t.Fatalf("expected a projected empty date")
	}
}

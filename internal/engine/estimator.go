package engine

import (
	"math"
	"sort"
	"time"

	"milkwatch/internal/config"
	"milkwatch/internal/model"
	"milkwatch/internal/readings"
)

// Estimator derives usage analytics from the reading log. It keeps no state
// of its own; every output is recomputed from the store's current contents.
type Estimator struct {
	store *readings.Store
	clock Clock
}

func NewEstimator(store *readings.Store, clock Clock) *Estimator {
	if clock == nil {
		clock = RealClock()
	}
	return &Estimator{store: store, clock: clock}
}

// Snapshot computes the full analytics record for a device at its current
// weight. Undefined estimates stay nil; cup size always falls back to the
// configured default.
func (e *Estimator) Snapshot(deviceID string, currentWeight float64, cfg config.AnalysisConfig) model.UsageStats {
	now := e.clock.Now()
	stats := model.UsageStats{
		DeviceID:       deviceID,
		CurrentAmountG: currentWeight,
		UpdatedAt:      now,
	}

	cup := e.LearnedCupSize(deviceID, cfg)
	stats.LearnedCupSizeG = cup
	if cup > 0 {
		stats.CupsLeft = currentWeight / cup
	}

	if daily, ok := e.LearnedDailyConsumption(deviceID, cfg); ok {
		d := daily
		stats.LearnedDailyG = &d
		if empty, ok := e.ProjectedEmptyDate(currentWeight, daily, cfg, now); ok {
			stats.EmptyDate = &empty
		}
	}

	if pct, ok := e.PercentFull(deviceID, currentWeight, cfg); ok {
		p := pct
		stats.PercentFull = &p
	}
	return stats
}

// LearnedCupSize is the median of weight decreases between chronologically
// consecutive readings in the trailing window, restricted to
// [MinDropG, MaxDropG] to filter sensor noise, refills and removals.
func (e *Estimator) LearnedCupSize(deviceID string, cfg config.AnalysisConfig) float64 {
	since := e.clock.Now().Add(-time.Duration(cfg.WindowDays) * 24 * time.Hour)
	window := e.store.QueryWindow(deviceID, since)

	var drops []float64
	for i := 1; i < len(window); i++ {
		drop := window[i-1].WeightGrams - window[i].WeightGrams
		if drop >= cfg.MinDropG && drop <= cfg.MaxDropG {
			drops = append(drops, drop)
		}
	}
	cup, ok := median(drops)
	if !ok || cup <= 0 {
		return cfg.DefaultCupG
	}
	return cup
}

// LearnedDailyConsumption averages first-minus-last weight over complete days
// in the trailing window, excluding the current day. Refill days (negative
// delta) are skipped. Undefined when fewer than MinDaysForAvg days qualify.
func (e *Estimator) LearnedDailyConsumption(deviceID string, cfg config.AnalysisConfig) (float64, bool) {
	loc := e.store.Location()
	today := readings.DayOf(e.clock.Now(), loc)
	from := today.AddDate(0, 0, -cfg.WindowDays)

	days := e.store.DayBoundaries(deviceID, from, today)
	var sum float64
	var count int
	for _, d := range days {
		delta := d.FirstWeight - d.LastWeight
		if delta > 0 {
			sum += delta
			count++
		}
	}
	if count < cfg.MinDaysForAvg {
		return 0, false
	}
	return sum / float64(count), true
}

// PercentFull relates the current weight to the baseline full weight: the
// all-time maximum, or the maximum within the configured rolling window.
func (e *Estimator) PercentFull(deviceID string, currentWeight float64, cfg config.AnalysisConfig) (float64, bool) {
	var since time.Time
	if cfg.BaselineLookbackDays > 0 {
		since = e.clock.Now().Add(-time.Duration(cfg.BaselineLookbackDays) * 24 * time.Hour)
	}
	baseline, ok := e.store.Baseline(deviceID, since)
	if !ok || baseline <= 0 {
		return 0, false
	}
	pct := 100 * currentWeight / baseline
	if pct > 100 {
		pct = 100
	}
	return pct, true
}

// ProjectedEmptyDate rounds the remaining days up so the user sees the
// conservative earlier side of the estimate. Horizons beyond the sanity
// ceiling are treated as undefined.
func (e *Estimator) ProjectedEmptyDate(currentWeight, dailyConsumption float64, cfg config.AnalysisConfig, now time.Time) (time.Time, bool) {
	if dailyConsumption <= 0 {
		return time.Time{}, false
	}
	daysLeft := math.Ceil(currentWeight / dailyConsumption)
	if daysLeft <= 0 || daysLeft > float64(cfg.MaxProjectionDays) {
		return time.Time{}, false
	}
	loc := e.store.Location()
	today := readings.DayOf(now, loc)
	return today.AddDate(0, 0, int(daysLeft)), true
}

func median(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	s := append([]float64{}, values...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2], true
	}
	return 0.5 * (s[n/2-1] + s[n/2]), true
}

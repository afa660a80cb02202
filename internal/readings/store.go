package readings

import (
	"errors"
	"sort"
	"sync"
	"time"

	"milkwatch/internal/model"
)

// Store is the append-only time-ordered reading log, one log per device.
// It is the single source the estimator computes from; the all-time maximum
// weight per device survives retention eviction so the percent-full baseline
// stays stable across container lifetimes.
type Store struct {
	mu        sync.RWMutex
	devices   map[string]*deviceLog
	retention time.Duration
	loc       *time.Location
}

type deviceLog struct {
	entries []model.Reading
	seen    map[int64]struct{}
	maxW    float64
	hasMax  bool
}

func NewStore(retentionDays int, loc *time.Location) *Store {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Store{
		devices:   make(map[string]*deviceLog),
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		loc:       loc,
	}
}

// Append stores a reading. Exact (device, observedAt) duplicates are ignored
// and are not an error. Out-of-order arrivals are inserted in timestamp order.
func (s *Store) Append(r model.Reading) error {
	if r.DeviceID == "" {
		return errors.New("reading device id is empty")
	}
	if r.ObservedAt.IsZero() {
		return errors.New("reading timestamp is zero")
	}
	if r.WeightGrams < 0 {
		return errors.New("reading weight is negative")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	log, ok := s.devices[r.DeviceID]
	if !ok {
		log = &deviceLog{seen: make(map[int64]struct{})}
		s.devices[r.DeviceID] = log
	}
	key := r.ObservedAt.UnixNano()
	if _, dup := log.seen[key]; dup {
		return nil
	}
	log.seen[key] = struct{}{}

	n := len(log.entries)
	if n == 0 || !r.ObservedAt.Before(log.entries[n-1].ObservedAt) {
		log.entries = append(log.entries, r)
	} else {
		i := sort.Search(n, func(i int) bool {
			return log.entries[i].ObservedAt.After(r.ObservedAt)
		})
		log.entries = append(log.entries, model.Reading{})
		copy(log.entries[i+1:], log.entries[i:])
		log.entries[i] = r
	}
	if !log.hasMax || r.WeightGrams > log.maxW {
		log.maxW = r.WeightGrams
		log.hasMax = true
	}
	s.evictLocked(log)
	return nil
}

func (s *Store) evictLocked(log *deviceLog) {
	n := len(log.entries)
	if n == 0 {
		return
	}
	cutoff := log.entries[n-1].ObservedAt.Add(-s.retention)
	i := 0
	for i < n && log.entries[i].ObservedAt.Before(cutoff) {
		delete(log.seen, log.entries[i].ObservedAt.UnixNano())
		i++
	}
	if i > 0 {
		log.entries = append([]model.Reading{}, log.entries[i:]...)
	}
}

// QueryWindow returns readings observed at or after since, oldest first.
func (s *Store) QueryWindow(deviceID string, since time.Time) []model.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log, ok := s.devices[deviceID]
	if !ok {
		return nil
	}
	i := sort.Search(len(log.entries), func(i int) bool {
		return !log.entries[i].ObservedAt.Before(since)
	})
	out := make([]model.Reading, len(log.entries)-i)
	copy(out, log.entries[i:])
	return out
}

// DayBoundaries returns the first and last weight of each calendar day in
// [fromDay, toDayExclusive) that has at least one reading. Days are resolved
// in the store's configured location.
func (s *Store) DayBoundaries(deviceID string, fromDay, toDayExclusive time.Time) []model.DayBoundary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log, ok := s.devices[deviceID]
	if !ok {
		return nil
	}
	var out []model.DayBoundary
	var cur *model.DayBoundary
	for _, r := range log.entries {
		day := dayOf(r.ObservedAt, s.loc)
		if day.Before(fromDay) || !day.Before(toDayExclusive) {
			continue
		}
		if cur == nil || !cur.Day.Equal(day) {
			if cur != nil {
				out = append(out, *cur)
			}
			cur = &model.DayBoundary{Day: day, FirstWeight: r.WeightGrams, LastWeight: r.WeightGrams}
			continue
		}
		cur.LastWeight = r.WeightGrams
	}
	if cur != nil {
		out = append(out, *cur)
	}
	return out
}

// Baseline returns the maximum observed weight, all-time when since is the
// zero time, otherwise within [since, now]. The all-time maximum is tracked
// independently of eviction.
func (s *Store) Baseline(deviceID string, since time.Time) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log, ok := s.devices[deviceID]
	if !ok {
		return 0, false
	}
	if since.IsZero() {
		return log.maxW, log.hasMax
	}
	var maxW float64
	var found bool
	i := sort.Search(len(log.entries), func(i int) bool {
		return !log.entries[i].ObservedAt.Before(since)
	})
	for _, r := range log.entries[i:] {
		if !found || r.WeightGrams > maxW {
			maxW = r.WeightGrams
			found = true
		}
	}
	return maxW, found
}

// Last returns the most recent reading for a device.
func (s *Store) Last(deviceID string) (model.Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log, ok := s.devices[deviceID]
	if !ok || len(log.entries) == 0 {
		return model.Reading{}, false
	}
	return log.entries[len(log.entries)-1], true
}

func (s *Store) Count(deviceID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log, ok := s.devices[deviceID]
	if !ok {
		return 0
	}
	return len(log.entries)
}

func (s *Store) Devices() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.devices))
	for id := range s.devices {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices = make(map[string]*deviceLog)
}

// Location exposes the calendar-day location used for boundary queries.
func (s *Store) Location() *time.Location {
	return s.loc
}

func dayOf(ts time.Time, loc *time.Location) time.Time {
	t := ts.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// DayOf is the calendar-day truncation used throughout the engine.
func DayOf(ts time.Time, loc *time.Location) time.Time {
	return dayOf(ts, loc)
}

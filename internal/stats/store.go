package stats

import (
	"sync"
	"time"

	"milkwatch/internal/model"
)

// Store keeps the latest analytics snapshot per device for the API and any
// external sink that polls it. Bounded; the least recently updated device is
// evicted first.
type Store struct {
	mu       sync.RWMutex
	byDevice map[string]model.UsageStats
	limit    int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 1000
	}
	return &Store{
		byDevice: make(map[string]model.UsageStats),
		limit:    limit,
	}
}

func (s *Store) Update(stats model.UsageStats) {
	if stats.DeviceID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byDevice[stats.DeviceID] = stats
	if len(s.byDevice) > s.limit {
		s.evictOldest()
	}
}

func (s *Store) Get(deviceID string) (model.UsageStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats, ok := s.byDevice[deviceID]
	return stats, ok
}

func (s *Store) GetAll() map[string]model.UsageStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.UsageStats, len(s.byDevice))
	for id, stats := range s.byDevice {
		out[id] = stats
	}
	return out
}

func (s *Store) evictOldest() {
	var oldestID string
	var oldest time.Time
	for id, stats := range s.byDevice {
		if oldestID == "" || stats.UpdatedAt.Before(oldest) {
			oldestID = id
			oldest = stats.UpdatedAt
		}
	}
	if oldestID != "" {
		delete(s.byDevice, oldestID)
	}
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byDevice = make(map[string]model.UsageStats)
}

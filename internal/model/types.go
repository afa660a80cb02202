package model

import "time"

type AlertKind string

const (
	AlertWarning  AlertKind = "warning"
	AlertCritical AlertKind = "critical"
	AlertEmpty    AlertKind = "empty"
)

// Reading is a single weight sample from a household scale. Immutable once
// stored; ordering is by ObservedAt.
type Reading struct {
	DeviceID    string    `json:"device_id"`
	WeightGrams float64   `json:"weight_grams"`
	ObservedAt  time.Time `json:"observed_at"`
}

// User is one recipient mapped to a device. ThresholdG overrides the global
// low threshold when > 0.
type User struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Email       string  `json:"email"`
	DeviceID    string  `json:"device_id"`
	ThresholdG  float64 `json:"threshold_g,omitempty"`
}

// Alert is a decided notification. ID is assigned when the policy engine
// decides to send, before delivery is attempted.
type Alert struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	DeviceID    string    `json:"device_id"`
	UserID      string    `json:"user_id"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	Kind        AlertKind `json:"kind"`
	WeightGrams float64   `json:"weight_grams"`
	ThresholdG  float64   `json:"threshold_g,omitempty"`
}

// UsageStats is the per-device analytics snapshot recomputed on every reading.
// Pointer fields are nil when the underlying estimate is undefined.
type UsageStats struct {
	DeviceID        string     `json:"device_id"`
	CurrentAmountG  float64    `json:"current_amount_g"`
	LearnedCupSizeG float64    `json:"learned_cup_size_g"`
	CupsLeft        float64    `json:"cups_left"`
	LearnedDailyG   *float64   `json:"learned_daily_consumption_g,omitempty"`
	PercentFull     *float64   `json:"percent_full,omitempty"`
	EmptyDate       *time.Time `json:"expected_empty_date,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// DayBoundary is the first and last reading of one calendar day for a device.
// First and last coincide when only a single reading exists that day.
type DayBoundary struct {
	Day         time.Time `json:"day"`
	FirstWeight float64   `json:"first_weight"`
	LastWeight  float64   `json:"last_weight"`
}

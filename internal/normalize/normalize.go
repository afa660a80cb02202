package normalize

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"milkwatch/internal/config"
	"milkwatch/internal/model"
)

// Fields is the loosely-typed shape every ingest source produces before
// normalization. All values are strings; parsing happens here so every
// source shares one rejection point for malformed telemetry.
type Fields struct {
	DeviceID  string
	Weight    string
	Timestamp string
	MessageID string
	Raw       string
}

// Normalize turns raw fields into a canonical Reading. A missing device id
// falls back to the configured default; an unparseable or negative weight is
// an error and the reading is dropped at this boundary.
func Normalize(fields Fields, cfg *config.Config) (model.Reading, error) {
	device := strings.TrimSpace(fields.DeviceID)
	if device == "" {
		device = cfg.Ingest.Parser.DefaultDeviceID
	}

	weightStr := strings.TrimSpace(fields.Weight)
	if weightStr == "" {
		return model.Reading{}, errors.New("empty weight")
	}
	weight, err := strconv.ParseFloat(weightStr, 64)
	if err != nil {
		return model.Reading{}, fmt.Errorf("parse weight %q: %w", weightStr, err)
	}
	if math.IsNaN(weight) || math.IsInf(weight, 0) {
		return model.Reading{}, fmt.Errorf("weight %q is not finite", weightStr)
	}
	if weight < 0 {
		return model.Reading{}, fmt.Errorf("negative weight %.1f", weight)
	}

	loc := time.UTC
	if cfg.Ingest.Parser.Timezone != "" {
		if l, err := time.LoadLocation(cfg.Ingest.Parser.Timezone); err == nil {
			loc = l
		}
	}

	ts := time.Now().UTC()
	if fields.Timestamp != "" {
		parsed, err := ParseTimestamp(fields.Timestamp, loc)
		if err != nil {
			return model.Reading{}, fmt.Errorf("parse timestamp: %w", err)
		}
		ts = parsed.UTC()
	}

	return model.Reading{
		DeviceID:    device,
		WeightGrams: weight,
		ObservedAt:  ts,
	}, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
}

func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if isNumeric(value) {
		if ts, err := parseUnix(value); err == nil {
			return ts, nil
		}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", value)
}

func isNumeric(value string) bool {
	for _, ch := range value {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return len(value) > 0
}

func parseUnix(value string) (time.Time, error) {
	if len(value) >= 13 {
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(0, ms*int64(time.Millisecond)).UTC(), nil
	}
	sec, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}

package normalize

import (
	"testing"
	"time"

	"milkwatch/internal/config"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Ingest.Parser.DefaultDeviceID = "kitchen-1"
	return cfg
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := testConfig()
	r, err := Normalize(Fields{Weight: "842.5"}, cfg)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if r.DeviceID != "kitchen-1" {
		t.Fatalf("expected default device id, got %q", r.DeviceID)
	}
	if r.WeightGrams != 842.5 {
		t.Fatalf("weight mismatch: %.1f", r.WeightGrams)
	}
	if r.ObservedAt.IsZero() {
		t.Fatalf("missing timestamp should default to now")
	}
}

func TestNormalizeExplicitFields(t *testing.T) {
	cfg := testConfig()
	r, err := Normalize(Fields{
		DeviceID:  "fridge-2",
		Weight:    "512",
		Timestamp: "2026-08-10T08:00:00Z",
	}, cfg)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if r.DeviceID != "fridge-2" {
		t.Fatalf("device id mismatch: %q", r.DeviceID)
	}
	want := time.Date(2026, 8, 10, 8, 0, 0, 0, time.UTC)
	if !r.ObservedAt.Equal(want) {
		t.Fatalf("timestamp mismatch: %v", r.ObservedAt)
	}
}

func TestNormalizeRejectsBadWeights(t *testing.T) {
	cfg := testConfig()
	for _, w := range []string{"", "abc", "-5", "NaN", "Inf"} {
		if _, err := Normalize(Fields{Weight: w}, cfg); err == nil {
			t.Fatalf("weight %q must be rejected", w)
		}
	}
}

func TestNormalizeRejectsBadTimestamp(t *testing.T) {
	cfg := testConfig()
	if _, err := Normalize(Fields{Weight: "100", Timestamp: "last tuesday"}, cfg); err == nil {
		t.Fatalf("unparseable timestamp must be rejected")
	}
}

func TestParseTimestampFormats(t *testing.T) {
	want := time.Date(2026, 8, 10, 8, 30, 0, 0, time.UTC)
	cases := []string{
		"2026-08-10T08:30:00Z",
		"2026-08-10 08:30:00",
		"2026-08-10T08:30:00",
		"1786350600",
		"1786350600000",
	}
	for _, value := range cases {
		got, err := ParseTimestamp(value, time.UTC)
		if err != nil {
			t.Fatalf("parse %q: %v", value, err)
		}
		if !got.UTC().Equal(want) {
			t.Fatalf("parse %q: expected %v, got %v", value, want, got.UTC())
		}
	}
}

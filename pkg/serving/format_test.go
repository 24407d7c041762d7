package serving

import (
	"testing"
	"time"
)

func TestWindowParsesKnownValues(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		raw  string
		want time.Time
	}{
		{"", now.AddDate(0, 0, -7)},
		{"7d", now.AddDate(0, 0, -7)},
		{"30d", now.AddDate(0, 0, -30)},
		{"90d", now.AddDate(0, 0, -90)},
	}

	for _, tt := range tests {
		got, err := window(tt.raw, now)
		if err != nil {
			t.Fatalf("window(%q) error = %v", tt.raw, err)
		}
		if !got.Equal(tt.want) {
			t.Errorf("window(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestWindowRejectsUnknownValue(t *testing.T) {
	if _, err := window("1y", time.Now()); err == nil {
		t.Errorf("window(\"1y\") error = nil, want error")
	}
}

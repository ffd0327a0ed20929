package datetime

import (
	"testing"
	"time"
)

func TestMustParseTime(t *testing.T) {
	tests := []struct {
		name     string
		layout   string
		dateStr  string
		expected string
	}{
		{
			name:     "Valid date",
			layout:   DateLayout,
			dateStr:  "2025-01-31",
			expected: "2025-01-31",
		},
		{
			name:     "Leap day",
			layout:   DateLayout,
			dateStr:  "2024-02-29",
			expected: "2024-02-29",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := MustParseTime(tt.layout, tt.dateStr)
			if result.Format(tt.layout) != tt.expected {
				t.Errorf("MustParseTime() = %s, expected %s", result.Format(tt.layout), tt.expected)
			}
		})
	}
}

func TestMustParseTimePanic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("Expected MustParseTime to panic with invalid date")
		}
	}()

	MustParseTime(DateLayout, "invalid-date")
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"Valid", "2018-01-02", false},
		{"Empty", "", true},
		{"Month layout rejected", "2018-01", true},
		{"Garbage", "not-a-date", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseDate(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestOffsetMonths(t *testing.T) {
	tests := []struct {
		name     string
		date     string
		months   int
		expected string
	}{
		{"Six months", "2018-01-02", 6, "2018-07-02"},
		{"Across year", "2018-09-15", 6, "2019-03-15"},
		{"Three years", "2018-01-02", 36, "2021-01-02"},
		{"Month end overflow", "2018-01-31", 1, "2018-03-03"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Format(OffsetMonths(MustParseDate(tt.date), tt.months))
			if result != tt.expected {
				t.Errorf("OffsetMonths() = %s, expected %s", result, tt.expected)
			}
		})
	}
}

func TestOffsetDays(t *testing.T) {
	result := Format(OffsetDays(MustParseDate("2018-12-31"), 1))
	if result != "2019-01-01" {
		t.Errorf("OffsetDays() = %s, expected 2019-01-01", result)
	}
}

func TestTruncate(t *testing.T) {
	in := time.Date(2020, 5, 17, 15, 4, 5, 0, time.FixedZone("X", 3600))
	out := Truncate(in)
	if Format(out) != "2020-05-17" || out.Hour() != 0 || out.Location() != time.UTC {
		t.Errorf("Truncate() = %v, expected 2020-05-17 00:00 UTC", out)
	}
}

func TestStrictlyIncreasing(t *testing.T) {
	a := MustParseDate("2020-01-01")
	b := MustParseDate("2020-02-01")

	tests := []struct {
		name     string
		dates    []time.Time
		expected bool
	}{
		{"Empty", nil, true},
		{"Single", []time.Time{a}, true},
		{"Increasing", []time.Time{a, b}, true},
		{"Duplicate", []time.Time{a, a}, false},
		{"Decreasing", []time.Time{b, a}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StrictlyIncreasing(tt.dates); got != tt.expected {
				t.Errorf("StrictlyIncreasing() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

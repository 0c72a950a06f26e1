package types

import (
	"testing"
	"time"
)

func TestParseDay(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"01/03/2024", "01/03/2024", false},
		{"1/3/2024", "01/03/2024", false},
		{"15/03/2024 10:30", "15/03/2024", false},
		{"  31/12/2023  ", "31/12/2023", false},
		{"2024-03-01", "", true},
		{"32/01/2024", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDay(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseDay(%q) expected error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDay(%q) error: %v", tt.in, err)
			}
			if FormatDay(got) != tt.want {
				t.Errorf("ParseDay(%q) = %s, want %s", tt.in, FormatDay(got), tt.want)
			}
		})
	}
}

func TestExtractTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"01/03/2024 10:30", "01/03/2024 10:30", true},
		{"Guatemala, 01/03/2024 9:05 hrs", "01/03/2024 09:05", true},
		{"01/03/2024", "01/03/2024 00:00", true},
		{"fecha 31/02/2024", "", false},
		{"sin fecha", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ExtractTimestamp(tt.in)
			if ok != tt.ok {
				t.Fatalf("ExtractTimestamp(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("ExtractTimestamp(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestInRangeInclusive(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

	if !InRange(start, start, end) {
		t.Error("start boundary should be included")
	}
	if !InRange(end, start, end) {
		t.Error("end boundary should be included")
	}
	if InRange(end.AddDate(0, 0, 1), start, end) {
		t.Error("day after end should be excluded")
	}
	if InRange(start.AddDate(0, 0, -1), start, end) {
		t.Error("day before start should be excluded")
	}
}

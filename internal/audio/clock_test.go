package audio

import "testing"

func TestFormatClock(t *testing.T) {
	tests := []struct {
		seconds  float64
		expected string
	}{
		{0, "00:00"},
		{61, "01:01"},
		{3599, "59:59"},
		{59.9, "00:59"},
		{600, "10:00"},
		{-5, "00:00"},
	}

	for _, tt := range tests {
		if got := FormatClock(tt.seconds); got != tt.expected {
			t.Errorf("FormatClock(%v): expected %q, got %q", tt.seconds, tt.expected, got)
		}
	}
}

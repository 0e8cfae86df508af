package audio

import (
	"fmt"
	"math"
)

// FormatClock renders a duration in seconds as a zero-padded MM:SS clock
// string, e.g. 61 -> "01:01". Negative inputs render as "00:00".
func FormatClock(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

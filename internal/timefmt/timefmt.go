// Package timefmt renders countdown seconds for display.
package timefmt

import "fmt"

// Format renders seconds as zero-padded "MM:SS". Minutes do not roll over
// into hours, so 3600 renders as "60:00". Negative input renders as "00:00".
func Format(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// FormatMinutes renders a whole number of minutes the same way Format does.
func FormatMinutes(minutes int64) string {
	return Format(minutes * 60)
}

package domain

import (
	"fmt"
	"time"
)

// PeriodKey maps a reference time to the canonical identifier of the
// completion period containing it, evaluated in ref's location:
//
//	daily   YYYY-MM-DD
//	weekly  YYYY-Www (ISO-8601, weeks start on Monday)
//	monthly YYYY-MM
//
// Unknown frequencies are keyed daily.
func PeriodKey(freq Frequency, ref time.Time) string {
	switch freq {
	case FrequencyWeekly:
		year, week := ref.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case FrequencyMonthly:
		return ref.Format("2006-01")
	default:
		return ref.Format("2006-01-02")
	}
}

// PeriodBounds returns the half-open interval [start, end) of the period
// containing ref, in ref's location.
func PeriodBounds(freq Frequency, ref time.Time) (time.Time, time.Time) {
	y, m, d := ref.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, ref.Location())
	switch freq {
	case FrequencyWeekly:
		offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
		start := day.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7)
	case FrequencyMonthly:
		start := time.Date(y, m, 1, 0, 0, 0, 0, ref.Location())
		return start, start.AddDate(0, 1, 0)
	default:
		return day, day.AddDate(0, 0, 1)
	}
}

package domain

import "time"

// CompletionRecord marks a habit as satisfied for one period. At most one
// record exists per (HabitID, PeriodKey).
type CompletionRecord struct {
	ID                    string
	HabitID               string
	PeriodKey             string
	CompletedAt           time.Time
	DurationSecondsLogged *int
	Source                Source
}

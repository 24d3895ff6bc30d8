package db

import (
	"database/sql"
	"fmt"
	"strings"
)

// Migrate applies every schema statement. Statements are idempotent so the
// whole list is replayed on each open.
func Migrate(db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			// ALTER TABLE ADD COLUMN has no IF NOT EXISTS form.
			if strings.Contains(err.Error(), "duplicate column name") {
				continue
			}
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS habits (
		id                    TEXT PRIMARY KEY,
		name                  TEXT NOT NULL,
		frequency             TEXT NOT NULL DEFAULT 'daily'
		                      CHECK(frequency IN ('daily','weekly','monthly')),
		timer_mode            TEXT NOT NULL DEFAULT 'off'
		                      CHECK(timer_mode IN ('off','countdown','stopwatch','pomodoro')),
		target_duration_sec   INTEGER CHECK(target_duration_sec IS NULL OR target_duration_sec > 0),
		min_duration_sec      INTEGER CHECK(min_duration_sec IS NULL OR min_duration_sec > 0),
		auto_complete         INTEGER NOT NULL DEFAULT 0,
		require_timer         INTEGER NOT NULL DEFAULT 0,
		archived_at           TEXT,
		created_at            TEXT NOT NULL,
		updated_at            TEXT NOT NULL,
		CHECK(min_duration_sec IS NULL OR target_duration_sec IS NULL OR min_duration_sec <= target_duration_sec)
	)`,

	`CREATE TABLE IF NOT EXISTS timer_sessions (
		id             TEXT PRIMARY KEY,
		habit_id       TEXT NOT NULL REFERENCES habits(id) ON DELETE CASCADE,
		mode           TEXT NOT NULL DEFAULT 'stopwatch',
		state          TEXT NOT NULL DEFAULT 'running'
		               CHECK(state IN ('running','paused','ended')),
		source         TEXT NOT NULL DEFAULT 'manual'
		               CHECK(source IN ('manual','auto','widget','notification')),
		started_at     TEXT NOT NULL,
		resumed_at     TEXT,
		accumulated_ms INTEGER NOT NULL DEFAULT 0,
		target_ms      INTEGER NOT NULL DEFAULT 0,
		ended_at       TEXT,
		duration_sec   INTEGER,
		updated_at     TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_timer_sessions_habit ON timer_sessions(habit_id, started_at)`,
	`CREATE INDEX IF NOT EXISTS idx_timer_sessions_open ON timer_sessions(state) WHERE state != 'ended'`,

	// The unique index is the cross-process mutual exclusion for completion
	// writes; application code relies on it rather than on locking.
	`CREATE TABLE IF NOT EXISTS completions (
		id             TEXT PRIMARY KEY,
		habit_id       TEXT NOT NULL REFERENCES habits(id) ON DELETE CASCADE,
		period_key     TEXT NOT NULL,
		completed_at   TEXT NOT NULL,
		duration_sec   INTEGER,
		source         TEXT NOT NULL DEFAULT 'manual'
		               CHECK(source IN ('manual','auto','widget','notification')),
		UNIQUE(habit_id, period_key)
	)`,

	`CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,

	`INSERT OR IGNORE INTO settings (key, value) VALUES
		('single_active_timer', 'true'),
		('ask_before_skipping_timer', 'true')`,
}

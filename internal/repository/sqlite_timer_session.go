package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alexanderramin/streak/internal/db"
	"github.com/alexanderramin/streak/internal/domain"
)

const sessionColumns = `id, habit_id, mode, state, source, started_at, resumed_at,
	accumulated_ms, target_ms, ended_at, duration_sec, updated_at`

// SQLiteTimerSessionRepo implements TimerSessionRepo using a SQLite database.
type SQLiteTimerSessionRepo struct {
	db db.DBTX
}

func NewSQLiteTimerSessionRepo(conn db.DBTX) *SQLiteTimerSessionRepo {
	return &SQLiteTimerSessionRepo{db: conn}
}

func (r *SQLiteTimerSessionRepo) Create(ctx context.Context, s *domain.TimerSession) error {
	query := `INSERT INTO timer_sessions (` + sessionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		s.ID,
		s.HabitID,
		string(s.Mode),
		string(s.State),
		string(s.Source),
		formatTime(s.StartedAt),
		nullableTime(s.ResumedAt),
		s.AccumulatedMs,
		s.TargetMs,
		nullableTime(s.EndedAt),
		nullableInt(s.DurationSeconds),
		formatTime(s.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting timer session: %w", err)
	}
	return nil
}

func (r *SQLiteTimerSessionRepo) Update(ctx context.Context, s *domain.TimerSession) error {
	query := `UPDATE timer_sessions SET state = ?, resumed_at = ?, accumulated_ms = ?, target_ms = ?,
		ended_at = ?, duration_sec = ?, updated_at = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query,
		string(s.State),
		nullableTime(s.ResumedAt),
		s.AccumulatedMs,
		s.TargetMs,
		nullableTime(s.EndedAt),
		nullableInt(s.DurationSeconds),
		formatTime(s.UpdatedAt),
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("updating timer session: %w", err)
	}
	return requireAffected(res, "timer session "+s.ID)
}

func (r *SQLiteTimerSessionRepo) GetByID(ctx context.Context, id string) (*domain.TimerSession, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM timer_sessions WHERE id = ?`, id)
	s, err := scanTimerSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("timer session %s: %w", id, ErrNotFound)
	}
	return s, err
}

// ListOpen returns running and paused sessions, oldest first.
func (r *SQLiteTimerSessionRepo) ListOpen(ctx context.Context) ([]*domain.TimerSession, error) {
	return r.list(ctx, `SELECT `+sessionColumns+` FROM timer_sessions
		WHERE state != 'ended' ORDER BY started_at`)
}

// ListByHabitBetween returns the habit's sessions started in [from, to).
func (r *SQLiteTimerSessionRepo) ListByHabitBetween(ctx context.Context, habitID string, from, to time.Time) ([]*domain.TimerSession, error) {
	return r.list(ctx, `SELECT `+sessionColumns+` FROM timer_sessions
		WHERE habit_id = ? AND started_at >= ? AND started_at < ? ORDER BY started_at`,
		habitID, formatTime(from), formatTime(to))
}

func (r *SQLiteTimerSessionRepo) list(ctx context.Context, query string, args ...any) ([]*domain.TimerSession, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing timer sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.TimerSession
	for rows.Next() {
		s, err := scanTimerSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating timer sessions: %w", err)
	}
	return sessions, nil
}

func scanTimerSession(row rowScanner) (*domain.TimerSession, error) {
	var s domain.TimerSession
	var mode, state, source, startedAt, updatedAt string
	var resumedAt, endedAt sql.NullString
	var duration sql.NullInt64

	err := row.Scan(&s.ID, &s.HabitID, &mode, &state, &source, &startedAt, &resumedAt,
		&s.AccumulatedMs, &s.TargetMs, &endedAt, &duration, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning timer session: %w", err)
	}

	s.Mode = domain.TimerMode(mode)
	s.State = domain.SessionState(state)
	s.Source = domain.Source(source)
	s.ResumedAt = parseNullableTime(resumedAt)
	s.EndedAt = parseNullableTime(endedAt)
	s.DurationSeconds = intFromNull(duration)
	if s.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	if s.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &s, nil
}

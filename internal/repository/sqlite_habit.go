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

const habitColumns = `id, name, frequency, timer_mode, target_duration_sec, min_duration_sec,
	auto_complete, require_timer, archived_at, created_at, updated_at`

// SQLiteHabitRepo implements HabitRepo using a SQLite database.
type SQLiteHabitRepo struct {
	db db.DBTX
}

func NewSQLiteHabitRepo(conn db.DBTX) *SQLiteHabitRepo {
	return &SQLiteHabitRepo{db: conn}
}

func (r *SQLiteHabitRepo) Create(ctx context.Context, h *domain.Habit) error {
	query := `INSERT INTO habits (` + habitColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		h.ID,
		h.Name,
		string(h.Frequency),
		string(h.Policy.Mode),
		nullableInt(h.Policy.TargetDurationSeconds),
		nullableInt(h.Policy.MinDurationSeconds),
		boolToInt(h.Policy.AutoCompleteOnTarget),
		boolToInt(h.Policy.RequireTimerToComplete),
		nullableTime(h.ArchivedAt),
		formatTime(h.CreatedAt),
		formatTime(h.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting habit: %w", err)
	}
	return nil
}

func (r *SQLiteHabitRepo) GetByID(ctx context.Context, id string) (*domain.Habit, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+habitColumns+` FROM habits WHERE id = ?`, id)
	h, err := scanHabit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("habit %s: %w", id, ErrNotFound)
	}
	return h, err
}

func (r *SQLiteHabitRepo) List(ctx context.Context, includeArchived bool) ([]*domain.Habit, error) {
	query := `SELECT ` + habitColumns + ` FROM habits`
	if !includeArchived {
		query += ` WHERE archived_at IS NULL`
	}
	query += ` ORDER BY created_at, name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing habits: %w", err)
	}
	defer rows.Close()

	var habits []*domain.Habit
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, err
		}
		habits = append(habits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating habits: %w", err)
	}
	return habits, nil
}

func (r *SQLiteHabitRepo) Update(ctx context.Context, h *domain.Habit) error {
	query := `UPDATE habits SET name = ?, frequency = ?, timer_mode = ?, target_duration_sec = ?,
		min_duration_sec = ?, auto_complete = ?, require_timer = ?, archived_at = ?, updated_at = ?
		WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query,
		h.Name,
		string(h.Frequency),
		string(h.Policy.Mode),
		nullableInt(h.Policy.TargetDurationSeconds),
		nullableInt(h.Policy.MinDurationSeconds),
		boolToInt(h.Policy.AutoCompleteOnTarget),
		boolToInt(h.Policy.RequireTimerToComplete),
		nullableTime(h.ArchivedAt),
		formatTime(h.UpdatedAt),
		h.ID,
	)
	if err != nil {
		return fmt.Errorf("updating habit: %w", err)
	}
	return requireAffected(res, "habit "+h.ID)
}

func (r *SQLiteHabitRepo) Archive(ctx context.Context, id string) error {
	now := formatTime(time.Now())
	res, err := r.db.ExecContext(ctx,
		`UPDATE habits SET archived_at = ?, updated_at = ? WHERE id = ? AND archived_at IS NULL`, now, now, id)
	if err != nil {
		return fmt.Errorf("archiving habit: %w", err)
	}
	return requireAffected(res, "habit "+id)
}

func (r *SQLiteHabitRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM habits WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting habit: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHabit(row rowScanner) (*domain.Habit, error) {
	var h domain.Habit
	var freq, mode, createdAt, updatedAt string
	var target, minDur sql.NullInt64
	var autoComplete, requireTimer int
	var archivedAt sql.NullString

	err := row.Scan(&h.ID, &h.Name, &freq, &mode, &target, &minDur,
		&autoComplete, &requireTimer, &archivedAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning habit: %w", err)
	}

	h.Frequency = domain.Frequency(freq)
	h.Policy = domain.TimingPolicy{
		Mode:                   domain.TimerMode(mode),
		TargetDurationSeconds:  intFromNull(target),
		MinDurationSeconds:     intFromNull(minDur),
		AutoCompleteOnTarget:   intToBool(autoComplete),
		RequireTimerToComplete: intToBool(requireTimer),
	}
	h.ArchivedAt = parseNullableTime(archivedAt)
	if h.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if h.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &h, nil
}

func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

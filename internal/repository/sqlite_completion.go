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

const completionColumns = `id, habit_id, period_key, completed_at, duration_sec, source`

// SQLiteCompletionRepo implements CompletionRepo using a SQLite database.
// Uniqueness per (habit_id, period_key) is enforced by the schema so that
// separate processes writing the same file converge on one row.
type SQLiteCompletionRepo struct {
	db db.DBTX
}

func NewSQLiteCompletionRepo(conn db.DBTX) *SQLiteCompletionRepo {
	return &SQLiteCompletionRepo{db: conn}
}

func (r *SQLiteCompletionRepo) Insert(ctx context.Context, c *domain.CompletionRecord) (bool, error) {
	query := `INSERT INTO completions (` + completionColumns + `) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(habit_id, period_key) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query,
		c.ID,
		c.HabitID,
		c.PeriodKey,
		formatTime(c.CompletedAt),
		nullableInt(c.DurationSecondsLogged),
		string(c.Source),
	)
	if err != nil {
		return false, fmt.Errorf("inserting completion: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *SQLiteCompletionRepo) GetByPeriod(ctx context.Context, habitID, periodKey string) (*domain.CompletionRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+completionColumns+` FROM completions
		WHERE habit_id = ? AND period_key = ?`, habitID, periodKey)
	c, err := scanCompletion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("completion %s/%s: %w", habitID, periodKey, ErrNotFound)
	}
	return c, err
}

func (r *SQLiteCompletionRepo) Exists(ctx context.Context, habitID, periodKey string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM completions WHERE habit_id = ? AND period_key = ?`, habitID, periodKey).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking completion: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteCompletionRepo) Delete(ctx context.Context, habitID, periodKey string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM completions WHERE habit_id = ? AND period_key = ?`, habitID, periodKey)
	if err != nil {
		return false, fmt.Errorf("deleting completion: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteCompletionRepo) ListByHabit(ctx context.Context, habitID string) ([]*domain.CompletionRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+completionColumns+` FROM completions
		WHERE habit_id = ? ORDER BY completed_at`, habitID)
	if err != nil {
		return nil, fmt.Errorf("listing completions: %w", err)
	}
	defer rows.Close()

	var out []*domain.CompletionRecord
	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating completions: %w", err)
	}
	return out, nil
}

func scanCompletion(row rowScanner) (*domain.CompletionRecord, error) {
	var c domain.CompletionRecord
	var completedAt, source string
	var duration sql.NullInt64

	err := row.Scan(&c.ID, &c.HabitID, &c.PeriodKey, &completedAt, &duration, &source)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning completion: %w", err)
	}
	c.Source = domain.Source(source)
	c.DurationSecondsLogged = intFromNull(duration)
	if c.CompletedAt, err = time.Parse(timeLayout, completedAt); err != nil {
		return nil, fmt.Errorf("parsing completed_at: %w", err)
	}
	return &c, nil
}

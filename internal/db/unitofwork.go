package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrBusy is returned when the write lock is still held by another process
// after the begin retries. Nothing was written.
var ErrBusy = errors.New("database is busy")

const (
	defaultBeginAttempts = 3
	busyBackoff          = 50 * time.Millisecond
)

// UnitOfWork runs a callback inside one transaction. The callback receives a
// tx-backed DBTX from which it builds tx-scoped repositories.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error
}

// SQLiteUnitOfWork implements UnitOfWork with database/sql transactions.
// File databases take the write lock at BEGIN, so a lock conflict with
// another process surfaces there; BEGIN is retried a few times, the callback
// never is.
type SQLiteUnitOfWork struct {
	db       *sql.DB
	attempts int
}

func NewSQLiteUnitOfWork(db *sql.DB) *SQLiteUnitOfWork {
	return &SQLiteUnitOfWork{db: db, attempts: defaultBeginAttempts}
}

func (u *SQLiteUnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error {
	tx, err := u.begin(ctx)
	if err != nil {
		return err
	}
	return runTx(ctx, tx, fn)
}

func (u *SQLiteUnitOfWork) begin(ctx context.Context) (*sql.Tx, error) {
	for attempt := 1; ; attempt++ {
		tx, err := u.db.BeginTx(ctx, nil)
		switch {
		case err == nil:
			return tx, nil
		case !IsBusy(err):
			return nil, fmt.Errorf("beginning transaction: %w", err)
		case attempt >= u.attempts:
			return nil, fmt.Errorf("beginning transaction: %w: %w", ErrBusy, err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("beginning transaction: %w", ctx.Err())
		case <-time.After(time.Duration(attempt) * busyBackoff):
		}
	}
}

func runTx(ctx context.Context, tx *sql.Tx, fn func(ctx context.Context, tx DBTX) error) error {
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// IsBusy reports whether err is SQLite's SQLITE_BUSY or SQLITE_LOCKED.
func IsBusy(err error) bool {
	if errors.Is(err, ErrBusy) {
		return true
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	return false
}

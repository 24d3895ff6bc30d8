package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/alexanderramin/streak/internal/db"
)

// FailingExecUoW injects Err into a transaction's writes. Only ExecContext
// calls whose SQL contains Match are counted (all of them when Match is
// empty); the FailOn-th counted call fails, counting from 1. Reads pass
// through.
type FailingExecUoW struct {
	DB     *sql.DB
	Match  string
	FailOn int32
	Err    error

	calls atomic.Int32
}

// Calls reports how many transactions were attempted.
func (u *FailingExecUoW) Calls() int {
	return int(u.calls.Load())
}

func (u *FailingExecUoW) WithinTx(ctx context.Context, fn func(ctx context.Context, tx db.DBTX) error) error {
	u.calls.Add(1)
	tx, err := u.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	wrapped := &failingExec{DBTX: tx, match: u.Match, failOn: u.FailOn, err: u.Err}
	if fnErr := fn(ctx, wrapped); fnErr != nil {
		_ = tx.Rollback()
		return fnErr
	}
	return tx.Commit()
}

type failingExec struct {
	db.DBTX
	count  atomic.Int32
	match  string
	failOn int32
	err    error
}

func (f *failingExec) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if f.match == "" || strings.Contains(query, f.match) {
		if f.count.Add(1) == f.failOn {
			return nil, f.err
		}
	}
	return f.DBTX.ExecContext(ctx, query, args...)
}

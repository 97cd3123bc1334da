package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrBusy is wrapped into the error returned when the database stayed
// locked for every attempt of a statement or transaction
var ErrBusy = errors.New("database busy")

const busyAttempts = 3

// busyBackoff is the pause after the n-th busy attempt: 100ms, 200ms, ...
func busyBackoff(n int) time.Duration {
	return time.Duration(n) * 100 * time.Millisecond
}

// IsBusy reports whether err means the database was locked by another
// connection. SQLite errors are classified by result code; other drivers
// fall back to the message text.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBusy) {
		return true
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// retryBusy runs attempt until it succeeds or fails with anything but a busy
// error, pausing between tries. Cancellation during a pause ends the retry.
func retryBusy(ctx context.Context, attempt func() error) error {
	var err error
	for n := 1; ; n++ {
		if err = attempt(); !IsBusy(err) {
			return err
		}
		if n == busyAttempts {
			return fmt.Errorf("%w after %d attempts: %w", ErrBusy, busyAttempts, err)
		}
		if waitErr := sleepCtx(ctx, busyBackoff(n)); waitErr != nil {
			return fmt.Errorf("gave up waiting for a busy database: %w", waitErr)
		}
	}
}

// runTx executes fn inside a transaction, rerunning the whole transaction
// while the database is busy
func runTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	return retryBusy(ctx, func() error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return nil
	})
}

// exec executes a single statement with the same busy handling as runTx
func exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	var result sql.Result
	err := retryBusy(ctx, func() error {
		var err error
		result, err = db.ExecContext(ctx, query, args...)
		return err
	})
	return result, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package db

import (
	"errors"
	"fmt"

	e "github.com/gartstein/ymm/internal/registry/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// PostgreSQL SQLSTATE codes that mean another transaction holds the rows we need.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// IsContention reports whether err is a lock timeout, deadlock or busy
// database error raised by the driver.
func IsContention(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return true
		}
		return false
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// classify wraps driver contention errors with ErrCounterContention and
// leaves everything else untouched.
func classify(err error) error {
	if err == nil || errors.Is(err, e.ErrCounterContention) {
		return err
	}
	if IsContention(err) {
		return fmt.Errorf("%w: %v", e.ErrCounterContention, err)
	}
	return err
}
